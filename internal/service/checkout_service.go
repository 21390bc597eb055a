package service

import (
	"context"
	"elearn_backend/internal/model"
	"elearn_backend/internal/util"
	"elearn_backend/pkg/logger"
	"elearn_backend/pkg/monitoring"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type CheckoutState string

const (
	StateReview  CheckoutState = "review"
	StatePayment CheckoutState = "payment"
	StateSuccess CheckoutState = "success"
)

// PaymentInput 提交结算时的支付表单。免费订单（总额为 0）跳过卡片校验。
type PaymentInput struct {
	CardNumber string `json:"cardNumber"`
	Expiry     string `json:"expiry"` // MM/YY
	CVC        string `json:"cvc"`
	HolderName string `json:"holderName"`
	Method     string `json:"method"`
}

// CheckoutResult 一次成功结算的汇总
type CheckoutResult struct {
	Transaction *model.Transaction `json:"transaction"`
	Enrolled    []uint             `json:"enrolled"`
	Skipped     []uint             `json:"skipped"` // 已报名，按成功处理
	Total       float64            `json:"total"`
}

type TransactionStore interface {
	Create(ctx context.Context, t *model.Transaction) error
	Update(ctx context.Context, t *model.Transaction) error
}

type TransactionFallback interface {
	Save(ctx context.Context, t *model.Transaction) error
}

type CartStore interface {
	Add(ctx context.Context, studentID, courseID uint) error
	Remove(ctx context.Context, studentID, courseID uint) error
	List(ctx context.Context, studentID uint) ([]uint, error)
	Clear(ctx context.Context, studentID uint) error
}

type CourseLoader interface {
	GetCourse(ctx context.Context, id uint) (*model.Course, error)
}

type checkoutSession struct {
	state      CheckoutState
	lastAccess time.Time
}

// CheckoutService 结算编排：校验 → 记账 → 逐项报名 → 清空购物车。
// 状态机 review → payment → success 严格前进，payment → review 是唯一回退。
type CheckoutService struct {
	Courses     CourseLoader
	Enrollments *EnrollmentService
	Cart        CartStore
	Txs         TransactionStore
	TxFallback  TransactionFallback
	TaxRate     float64

	mu       sync.Mutex
	sessions map[uint]*checkoutSession
}

func NewCheckoutService(courses CourseLoader, enrollments *EnrollmentService, cart CartStore, txs TransactionStore, txFallback TransactionFallback, taxRate float64) *CheckoutService {
	return &CheckoutService{
		Courses:     courses,
		Enrollments: enrollments,
		Cart:        cart,
		Txs:         txs,
		TxFallback:  txFallback,
		TaxRate:     taxRate,
		sessions:    make(map[uint]*checkoutSession),
	}
}

func (s *CheckoutService) sessionFor(studentID uint) *checkoutSession {
	sess, ok := s.sessions[studentID]
	if !ok {
		sess = &checkoutSession{state: StateReview}
		s.sessions[studentID] = sess
	}
	sess.lastAccess = time.Now()
	return sess
}

// SetTaxRate 配置热加载入口，只影响之后的结算
func (s *CheckoutService) SetTaxRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rate > 0 {
		s.TaxRate = rate
	}
}

func (s *CheckoutService) taxRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TaxRate
}

func (s *CheckoutService) State(studentID uint) CheckoutState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionFor(studentID).state
}

// Proceed review → payment
func (s *CheckoutService) Proceed(studentID uint) (CheckoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionFor(studentID)
	if sess.state != StateReview {
		return sess.state, util.ErrBadTransition
	}
	sess.state = StatePayment
	return sess.state, nil
}

// Back payment → review，唯一允许的回退
func (s *CheckoutService) Back(studentID uint) (CheckoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessionFor(studentID)
	if sess.state != StatePayment {
		return sess.state, util.ErrBadTransition
	}
	sess.state = StateReview
	return sess.state, nil
}

// Reset success 之后开启新一轮结算
func (s *CheckoutService) Reset(studentID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[studentID] = &checkoutSession{state: StateReview, lastAccess: time.Now()}
}

// Submit 结算提交。校验失败快速返回，不触达任何存储；
// 全部报名失败时聚合为 CheckoutFailed，购物车原样保留供重试；
// 部分成功（含“已报名”跳过）视为成功，所有报名调用返回后才清空购物车。
func (s *CheckoutService) Submit(ctx context.Context, studentID uint, input PaymentInput) (*CheckoutResult, error) {
	s.mu.Lock()
	sess := s.sessionFor(studentID)
	if sess.state != StatePayment {
		s.mu.Unlock()
		return nil, util.ErrBadTransition
	}
	s.mu.Unlock()

	courseIDs, err := s.Cart.List(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(courseIDs) == 0 {
		return nil, util.ErrCartEmpty
	}

	subtotal := 0.0
	courses := make([]*model.Course, 0, len(courseIDs))
	for _, id := range courseIDs {
		course, err := s.Courses.GetCourse(ctx, id)
		if err != nil {
			return nil, err
		}
		courses = append(courses, course)
		subtotal += util.ParsePrice(course.Price)
	}
	total := roundCents(subtotal + subtotal*s.taxRate())

	// 免费订单不需要卡片，也不需要任何支付网络调用，但照样记账
	if total > 0 {
		if verr := ValidatePayment(input, time.Now()); verr != nil {
			monitoring.CheckoutAttempts.WithLabelValues("validation_error").Inc()
			return nil, verr
		}
	}

	method := input.Method
	if method == "" {
		if total == 0 {
			method = "free"
		} else {
			method = "card"
		}
	}

	tx := &model.Transaction{
		StudentID: studentID,
		CourseIDs: model.CourseIDList(courseIDs),
		Amount:    total,
		Method:    method,
		Status:    model.TransactionPending,
		CardLast4: cardLast4(input.CardNumber),
		PaidAt:    time.Now(),
	}
	tx.ID = model.GenerateUUID()

	if err := s.Txs.Create(ctx, tx); err != nil {
		logger.Log.Warn("remote transaction write failed, writing fallback", zap.Error(err))
		monitoring.FallbackWrites.WithLabelValues("transaction").Inc()
		if fbErr := s.TxFallback.Save(ctx, tx); fbErr != nil {
			return nil, util.ErrRemoteUnavailable
		}
	}

	var enrolled, skipped, failed []uint
	for _, id := range courseIDs {
		_, err := s.Enrollments.Create(ctx, studentID, id)
		switch {
		case err == nil:
			enrolled = append(enrolled, id)
		case errors.Is(err, util.ErrAlreadyEnrolled):
			// 与成功等价，不中断整单
			skipped = append(skipped, id)
		default:
			logger.Log.Error("enrollment create failed during checkout",
				zap.Uint("studentId", studentID), zap.Uint("courseId", id), zap.Error(err))
			failed = append(failed, id)
		}
	}

	if len(failed) == len(courseIDs) {
		s.finishTransaction(ctx, tx, model.TransactionFailed)
		monitoring.CheckoutAttempts.WithLabelValues("failed").Inc()
		return nil, util.ErrCheckoutFailed
	}

	s.finishTransaction(ctx, tx, model.TransactionCompleted)

	// 所有报名调用都已返回，这时才清空购物车
	if err := s.Cart.Clear(ctx, studentID); err != nil {
		logger.Log.Warn("cart clear failed after checkout", zap.Uint("studentId", studentID), zap.Error(err))
	}

	s.mu.Lock()
	sess.state = StateSuccess
	s.mu.Unlock()

	monitoring.CheckoutAttempts.WithLabelValues("success").Inc()

	return &CheckoutResult{
		Transaction: tx,
		Enrolled:    enrolled,
		Skipped:     skipped,
		Total:       total,
	}, nil
}

func (s *CheckoutService) finishTransaction(ctx context.Context, tx *model.Transaction, status model.TransactionStatus) {
	if !tx.Status.CanTransition(status) {
		return
	}
	tx.Status = status
	if err := s.Txs.Update(ctx, tx); err != nil {
		logger.Log.Warn("transaction status update failed, writing fallback",
			zap.String("txId", tx.ID), zap.Error(err))
		_ = s.TxFallback.Save(ctx, tx)
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func cardLast4(cardNumber string) string {
	digits := normalizeCardNumber(cardNumber)
	if len(digits) < 4 {
		return ""
	}
	return digits[len(digits)-4:]
}

// ValidatePayment 字段级校验，全部通过返回 nil。顺序固定：
// 卡号 → 有效期 → CVC → 持卡人。
func ValidatePayment(input PaymentInput, now time.Time) error {
	if err := validateCardNumber(input.CardNumber); err != nil {
		return err
	}
	if err := validateExpiry(input.Expiry, now); err != nil {
		return err
	}
	if err := validateCVC(input.CVC); err != nil {
		return err
	}
	if strings.TrimSpace(input.HolderName) == "" {
		return util.NewValidationError("holderName", "cardholder name is required")
	}
	return nil
}

func normalizeCardNumber(cardNumber string) string {
	var b strings.Builder
	for _, r := range cardNumber {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-':
			// 分隔符忽略
		default:
			return ""
		}
	}
	return b.String()
}

func validateCardNumber(cardNumber string) error {
	digits := normalizeCardNumber(cardNumber)
	if digits == "" {
		return util.NewValidationError("cardNumber", "card number must contain digits only")
	}
	if len(digits) < 13 || len(digits) > 19 {
		return util.NewValidationError("cardNumber", "card number must be 13-19 digits")
	}
	if !luhnValid(digits) {
		return util.NewValidationError("cardNumber", "card number failed checksum")
	}
	return nil
}

// luhnValid Luhn 校验和，digits 只含 0-9
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// validateExpiry MM/YY，两位年份固定落在 2000–2099 窗口，
// 过期（严格早于当前年月）拒绝。
func validateExpiry(expiry string, now time.Time) error {
	parts := strings.Split(strings.TrimSpace(expiry), "/")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return util.NewValidationError("expiry", "expiry must be in MM/YY format")
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return util.NewValidationError("expiry", "expiry month must be 01-12")
	}
	yy, err := strconv.Atoi(parts[1])
	if err != nil {
		return util.NewValidationError("expiry", "expiry must be in MM/YY format")
	}
	year := 2000 + yy

	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return util.NewValidationError("expiry", "card has expired")
	}
	return nil
}

func validateCVC(cvc string) error {
	c := strings.TrimSpace(cvc)
	if len(c) < 3 || len(c) > 4 {
		return util.NewValidationError("cvc", "CVC must be 3 or 4 digits")
	}
	for _, r := range c {
		if r < '0' || r > '9' {
			return util.NewValidationError("cvc", "CVC must be 3 or 4 digits")
		}
	}
	return nil
}
