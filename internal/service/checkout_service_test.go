package service

import (
	"context"
	"elearn_backend/internal/model"
	"elearn_backend/internal/util"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCourses 按 ID 返回预置课程
type fakeCourses struct {
	courses map[uint]*model.Course
}

func (f *fakeCourses) GetCourse(ctx context.Context, id uint) (*model.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, util.ErrCourseNotFound
	}
	return c, nil
}

type fakeCart struct {
	items map[uint][]uint
}

func newFakeCart() *fakeCart {
	return &fakeCart{items: make(map[uint][]uint)}
}

func (f *fakeCart) Add(ctx context.Context, studentID, courseID uint) error {
	f.items[studentID] = append(f.items[studentID], courseID)
	return nil
}

func (f *fakeCart) Remove(ctx context.Context, studentID, courseID uint) error {
	out := f.items[studentID][:0]
	for _, id := range f.items[studentID] {
		if id != courseID {
			out = append(out, id)
		}
	}
	f.items[studentID] = out
	return nil
}

func (f *fakeCart) List(ctx context.Context, studentID uint) ([]uint, error) {
	return append([]uint(nil), f.items[studentID]...), nil
}

func (f *fakeCart) Clear(ctx context.Context, studentID uint) error {
	delete(f.items, studentID)
	return nil
}

type fakeTxStore struct {
	created  []*model.Transaction
	statuses []model.TransactionStatus
	failAll  bool
}

func (f *fakeTxStore) Create(ctx context.Context, t *model.Transaction) error {
	if f.failAll {
		return errors.New("connection refused")
	}
	f.created = append(f.created, t)
	f.statuses = append(f.statuses, t.Status)
	return nil
}

func (f *fakeTxStore) Update(ctx context.Context, t *model.Transaction) error {
	if f.failAll {
		return errors.New("connection refused")
	}
	f.statuses = append(f.statuses, t.Status)
	return nil
}

type fakeTxFallback struct {
	saved []*model.Transaction
}

func (f *fakeTxFallback) Save(ctx context.Context, t *model.Transaction) error {
	f.saved = append(f.saved, t)
	return nil
}

func courseCatalog() *fakeCourses {
	return &fakeCourses{courses: map[uint]*model.Course{
		1: {BaseModel: model.BaseModel{ID: 1}, Title: "Go 入门", Price: "$100.00"},
		2: {BaseModel: model.BaseModel{ID: 2}, Title: "免费导论", Price: "Free"},
		3: {BaseModel: model.BaseModel{ID: 3}, Title: "进阶课", Price: "49.90"},
	}}
}

func newCheckoutFixture(t *testing.T) (*CheckoutService, *fakeCart, *fakeTxStore, *fakeTxFallback, *memStore) {
	t.Helper()
	cart := newFakeCart()
	txs := &fakeTxStore{}
	txFallback := &fakeTxFallback{}
	enrollStore := newMemStore()
	svc := NewCheckoutService(
		courseCatalog(),
		NewEnrollmentService(enrollStore),
		cart,
		txs,
		txFallback,
		0.10,
	)
	return svc, cart, txs, txFallback, enrollStore
}

func validCard() PaymentInput {
	return PaymentInput{
		CardNumber: "4532 0151 1283 0366",
		Expiry:     "12/99",
		CVC:        "123",
		HolderName: "Zhang Wei",
	}
}

func TestLuhnChecksum(t *testing.T) {
	assert.True(t, luhnValid("4532015112830366"))
	assert.False(t, luhnValid("4532015112830367"))
	assert.True(t, luhnValid("4111111111111111"))
}

func TestValidatePaymentFieldOrder(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	// 多个字段同时有问题时按 卡号→有效期→CVC→持卡人 顺序报第一个
	err := ValidatePayment(PaymentInput{CardNumber: "bad", Expiry: "bad", CVC: "x", HolderName: ""}, now)
	var ve *util.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "cardNumber", ve.Field)

	err = ValidatePayment(PaymentInput{CardNumber: "4532015112830366", Expiry: "bad", CVC: "x"}, now)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "expiry", ve.Field)

	err = ValidatePayment(PaymentInput{CardNumber: "4532015112830366", Expiry: "12/30", CVC: "x"}, now)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "cvc", ve.Field)

	err = ValidatePayment(PaymentInput{CardNumber: "4532015112830366", Expiry: "12/30", CVC: "123", HolderName: "  "}, now)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "holderName", ve.Field)

	assert.NoError(t, ValidatePayment(validCard(), now))
}

func TestValidateCardNumberNormalization(t *testing.T) {
	// 空格和连字符允许，其他字符整体拒绝
	assert.NoError(t, validateCardNumber("4532-0151-1283-0366"))
	assert.NoError(t, validateCardNumber("4532 0151 1283 0366"))
	assert.Error(t, validateCardNumber("4532a015112830366"))
	assert.Error(t, validateCardNumber("123"))
}

func TestValidateExpiry(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	assert.Error(t, validateExpiry("01/20", now))  // 已过期
	assert.NoError(t, validateExpiry("08/26", now)) // 当前年月恰好有效
	assert.Error(t, validateExpiry("07/26", now))  // 上个月
	assert.NoError(t, validateExpiry("09/26", now))
	assert.NoError(t, validateExpiry("12/99", now)) // 2099 年，窗口内最大值
	assert.Error(t, validateExpiry("13/30", now))  // 非法月份
	assert.Error(t, validateExpiry("00/30", now))
	assert.Error(t, validateExpiry("1/30", now)) // 必须两位
	assert.Error(t, validateExpiry("12/3", now))
	assert.Error(t, validateExpiry("12-30", now))
}

func TestValidateCVC(t *testing.T) {
	assert.NoError(t, validateCVC("123"))
	assert.NoError(t, validateCVC("1234"))
	assert.Error(t, validateCVC("12"))
	assert.Error(t, validateCVC("12345"))
	assert.Error(t, validateCVC("12a"))
}

func TestCheckoutStateMachine(t *testing.T) {
	svc, _, _, _, _ := newCheckoutFixture(t)

	assert.Equal(t, StateReview, svc.State(7))

	state, err := svc.Proceed(7)
	require.NoError(t, err)
	assert.Equal(t, StatePayment, state)

	// payment 状态不允许再次前进
	_, err = svc.Proceed(7)
	assert.ErrorIs(t, err, util.ErrBadTransition)

	state, err = svc.Back(7)
	require.NoError(t, err)
	assert.Equal(t, StateReview, state)

	// review 状态不允许回退
	_, err = svc.Back(7)
	assert.ErrorIs(t, err, util.ErrBadTransition)
}

func TestSubmitRequiresPaymentState(t *testing.T) {
	svc, cart, _, _, _ := newCheckoutFixture(t)
	cart.Add(context.Background(), 7, 1)

	_, err := svc.Submit(context.Background(), 7, validCard())
	assert.ErrorIs(t, err, util.ErrBadTransition)
}

func TestSubmitEmptyCart(t *testing.T) {
	svc, _, _, _, _ := newCheckoutFixture(t)
	svc.Proceed(7)

	_, err := svc.Submit(context.Background(), 7, validCard())
	assert.ErrorIs(t, err, util.ErrCartEmpty)
}

func TestSubmitValidationFailureTouchesNoStore(t *testing.T) {
	svc, cart, txs, _, _ := newCheckoutFixture(t)
	ctx := context.Background()
	cart.Add(ctx, 7, 1)
	svc.Proceed(7)

	input := validCard()
	input.CardNumber = "4532015112830367" // Luhn 校验失败

	_, err := svc.Submit(ctx, 7, input)
	assert.True(t, util.IsValidationError(err))
	assert.Empty(t, txs.created)
	items, _ := cart.List(ctx, 7)
	assert.Len(t, items, 1) // 购物车原样保留
	assert.Equal(t, StatePayment, svc.State(7))
}

func TestSubmitAppliesTax(t *testing.T) {
	svc, cart, txs, _, _ := newCheckoutFixture(t)
	ctx := context.Background()
	cart.Add(ctx, 7, 1) // $100.00
	svc.Proceed(7)

	result, err := svc.Submit(ctx, 7, validCard())
	require.NoError(t, err)
	assert.InDelta(t, 110.00, result.Total, 0.001)
	require.Len(t, txs.created, 1)
	assert.Equal(t, "0366", txs.created[0].CardLast4)
	assert.Equal(t, model.TransactionCompleted, txs.created[0].Status)
	assert.Equal(t, StateSuccess, svc.State(7))

	// 成功后购物车清空
	items, _ := cart.List(ctx, 7)
	assert.Empty(t, items)
}

func TestSubmitFreeOrderSkipsCardValidation(t *testing.T) {
	svc, cart, txs, _, enrollStore := newCheckoutFixture(t)
	ctx := context.Background()
	cart.Add(ctx, 7, 2) // Free
	svc.Proceed(7)

	// 完全不填卡片信息
	result, err := svc.Submit(ctx, 7, PaymentInput{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Total)
	assert.Equal(t, []uint{2}, result.Enrolled)
	require.Len(t, txs.created, 1)
	assert.Equal(t, "free", txs.created[0].Method)
	assert.Equal(t, model.TransactionCompleted, txs.created[0].Status)

	// 报名确实落库
	e, err := enrollStore.FindByStudentAndCourse(ctx, 7, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, e.Progress)
}

func TestSubmitSkipsAlreadyEnrolled(t *testing.T) {
	svc, cart, _, _, enrollStore := newCheckoutFixture(t)
	ctx := context.Background()

	// 课程 1 已报名
	enrollSvc := NewEnrollmentService(enrollStore)
	_, err := enrollSvc.Create(ctx, 7, 1)
	require.NoError(t, err)

	cart.Add(ctx, 7, 1)
	cart.Add(ctx, 7, 3)
	svc.Proceed(7)

	result, err := svc.Submit(ctx, 7, validCard())
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{3}, result.Enrolled)
	assert.ElementsMatch(t, []uint{1}, result.Skipped)
	assert.Equal(t, StateSuccess, svc.State(7))
}

// brokenEnrollStore 所有写入失败
type brokenEnrollStore struct{ *memStore }

func (b *brokenEnrollStore) Create(ctx context.Context, e *model.Enrollment) error {
	return errors.New("write failed")
}

func TestSubmitAllEnrollmentsFailedKeepsCart(t *testing.T) {
	cart := newFakeCart()
	txs := &fakeTxStore{}
	svc := NewCheckoutService(
		courseCatalog(),
		NewEnrollmentService(&brokenEnrollStore{memStore: newMemStore()}),
		cart,
		txs,
		&fakeTxFallback{},
		0.10,
	)
	ctx := context.Background()
	cart.Add(ctx, 7, 1)
	cart.Add(ctx, 7, 3)
	svc.Proceed(7)

	_, err := svc.Submit(ctx, 7, validCard())
	assert.ErrorIs(t, err, util.ErrCheckoutFailed)

	// 购物车保留供重试，交易标记失败
	items, _ := cart.List(ctx, 7)
	assert.Len(t, items, 2)
	require.NotEmpty(t, txs.statuses)
	assert.Equal(t, model.TransactionFailed, txs.statuses[len(txs.statuses)-1])
	assert.Equal(t, StatePayment, svc.State(7))
}

func TestSubmitRemoteTxFailureFallsBack(t *testing.T) {
	cart := newFakeCart()
	txs := &fakeTxStore{failAll: true}
	txFallback := &fakeTxFallback{}
	svc := NewCheckoutService(
		courseCatalog(),
		NewEnrollmentService(newMemStore()),
		cart,
		txs,
		txFallback,
		0.10,
	)
	ctx := context.Background()
	cart.Add(ctx, 7, 3)
	svc.Proceed(7)

	result, err := svc.Submit(ctx, 7, validCard())
	require.NoError(t, err)
	assert.NotEmpty(t, txFallback.saved)
	assert.Equal(t, []uint{3}, result.Enrolled)
}

func TestResetStartsNewRound(t *testing.T) {
	svc, cart, _, _, _ := newCheckoutFixture(t)
	ctx := context.Background()
	cart.Add(ctx, 7, 2)
	svc.Proceed(7)
	_, err := svc.Submit(ctx, 7, PaymentInput{})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, svc.State(7))

	svc.Reset(7)
	assert.Equal(t, StateReview, svc.State(7))
}

func TestRoundCents(t *testing.T) {
	assert.Equal(t, 110.0, roundCents(100*1.1))
	assert.Equal(t, 54.89, roundCents(49.90*1.1))
	assert.Equal(t, 0.0, roundCents(0))
}
