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

// recordingIssuer 记录收到的课程完成信号
type recordingIssuer struct {
	completed []string
}

func (r *recordingIssuer) CourseCompleted(ctx context.Context, e *model.Enrollment, c *model.Course) {
	r.completed = append(r.completed, e.ID)
}

func navigatorCourse() *fakeCourses {
	return &fakeCourses{courses: map[uint]*model.Course{
		10: {
			BaseModel: model.BaseModel{ID: 10},
			Title:     "Go 进阶",
			Modules: []model.CourseModule{
				{
					Title: "基础",
					Lessons: []model.Lesson{
						{LessonID: "l1", Title: "变量", Duration: "10 min"},
						{LessonID: "l2", Title: "函数", Duration: "15 min"},
					},
				},
				{
					Title: "并发",
					Lessons: []model.Lesson{
						{LessonID: "l3", Title: "Goroutine", Duration: "20 min"},
						{LessonID: "l4", Title: "Channel", Duration: "25 min"},
					},
				},
			},
		},
		11: {
			BaseModel: model.BaseModel{ID: 11},
			Title:     "空课程",
		},
	}}
}

func newNavigatorFixture(t *testing.T) (*NavigatorService, *EnrollmentService, *memStore, *recordingIssuer) {
	t.Helper()
	store := newMemStore()
	enrollments := NewEnrollmentService(store)
	issuer := &recordingIssuer{}
	nav := NewNavigatorService(navigatorCourse(), enrollments, issuer)
	return nav, enrollments, store, issuer
}

func enroll(t *testing.T, enrollments *EnrollmentService, studentID, courseID uint) *model.Enrollment {
	t.Helper()
	e, err := enrollments.Create(context.Background(), studentID, courseID)
	require.NoError(t, err)
	return e
}

func TestLoadRequiresEnrollment(t *testing.T) {
	nav, _, _, _ := newNavigatorFixture(t)
	_, err := nav.Load(context.Background(), 7, 10)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)
}

func TestLoadStartsAtFirstIncomplete(t *testing.T) {
	nav, enrollments, _, _ := newNavigatorFixture(t)
	ctx := context.Background()
	e := enroll(t, enrollments, 7, 10)

	// l1 和 l2 已完成，应该从 l3 开始，并发模块展开
	_, err := enrollments.UpdateProgress(ctx, e.ID, model.LessonIDSet{"l1", "l2"}, 4)
	require.NoError(t, err)

	state, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)
	require.NotNil(t, state.CurrentLesson)
	assert.Equal(t, "l3", state.CurrentLesson.LessonID)
	assert.Equal(t, 2, state.CurrentIndex)
	assert.Contains(t, state.ExpandedModules, 1)
	assert.Equal(t, 50, state.Progress)
	assert.False(t, state.ReviewMode)
	assert.Equal(t, 4, state.TotalLessons)
	assert.Equal(t, 70, state.TotalDuration)
	assert.Equal(t, "2/2", state.ModuleProgress["基础"])
	assert.Equal(t, "0/2", state.ModuleProgress["并发"])
}

func TestLoadAllCompleteEntersReviewMode(t *testing.T) {
	nav, enrollments, _, _ := newNavigatorFixture(t)
	ctx := context.Background()
	e := enroll(t, enrollments, 7, 10)
	_, err := enrollments.UpdateProgress(ctx, e.ID, model.LessonIDSet{"l1", "l2", "l3", "l4"}, 4)
	require.NoError(t, err)

	state, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)
	require.NotNil(t, state.CurrentLesson)
	assert.Equal(t, "l1", state.CurrentLesson.LessonID)
	assert.True(t, state.ReviewMode)
	assert.True(t, state.CourseComplete)
}

func TestLoadEmptyCourse(t *testing.T) {
	nav, enrollments, _, _ := newNavigatorFixture(t)
	ctx := context.Background()
	enroll(t, enrollments, 7, 11)

	state, err := nav.Load(ctx, 7, 11)
	require.NoError(t, err)
	assert.Nil(t, state.CurrentLesson)
	assert.Equal(t, -1, state.CurrentIndex)
	assert.Equal(t, 0, state.Progress)
	assert.Equal(t, 0, state.TotalLessons)
}

func TestNavigateBoundariesAreNoOps(t *testing.T) {
	nav, enrollments, _, _ := newNavigatorFixture(t)
	ctx := context.Background()
	enroll(t, enrollments, 7, 10)
	_, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)

	// 在第一课上 prev 不动
	state, err := nav.Navigate(ctx, 7, 10, DirPrev)
	require.NoError(t, err)
	assert.Equal(t, 0, state.CurrentIndex)

	// 走到最后一课
	for i := 0; i < 3; i++ {
		state, err = nav.Navigate(ctx, 7, 10, DirNext)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, state.CurrentIndex)

	// 最后一课上 next 不动
	state, err = nav.Navigate(ctx, 7, 10, DirNext)
	require.NoError(t, err)
	assert.Equal(t, 3, state.CurrentIndex)
}

func TestNavigateUnknownDirection(t *testing.T) {
	nav, enrollments, _, _ := newNavigatorFixture(t)
	ctx := context.Background()
	enroll(t, enrollments, 7, 10)
	_, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)

	_, err = nav.Navigate(ctx, 7, 10, Direction("sideways"))
	assert.Error(t, err)
}

func TestExpandedModulesAccumulate(t *testing.T) {
	nav, enrollments, _, _ := newNavigatorFixture(t)
	ctx := context.Background()
	enroll(t, enrollments, 7, 10)
	state, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, state.ExpandedModules)

	// 切到第二个模块的课时，第一个模块保持展开
	state, err = nav.SelectLesson(ctx, 7, 10, "l4")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, state.ExpandedModules)
	assert.Equal(t, 3, state.CurrentIndex)
}

func TestToggleModuleIsSymmetric(t *testing.T) {
	nav, enrollments, _, _ := newNavigatorFixture(t)
	ctx := context.Background()
	enroll(t, enrollments, 7, 10)
	_, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)

	state, err := nav.ToggleModule(ctx, 7, 10, 1)
	require.NoError(t, err)
	assert.Contains(t, state.ExpandedModules, 1)

	state, err = nav.ToggleModule(ctx, 7, 10, 1)
	require.NoError(t, err)
	assert.NotContains(t, state.ExpandedModules, 1)

	// 下标越界
	_, err = nav.ToggleModule(ctx, 7, 10, 5)
	assert.Error(t, err)
}

func TestMarkCompleteAdvancesAndPersists(t *testing.T) {
	nav, enrollments, _, _ := newNavigatorFixture(t)
	ctx := context.Background()
	e := enroll(t, enrollments, 7, 10)
	_, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)

	state, err := nav.MarkComplete(ctx, 7, 10, "l1")
	require.NoError(t, err)
	assert.Contains(t, state.Completed, "l1")
	assert.Equal(t, 25, state.Progress)
	// 自动前进到 l2
	assert.Equal(t, 1, state.CurrentIndex)

	// 持久化进度与会话一致
	persisted, err := enrollments.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, persisted.Progress)
	assert.ElementsMatch(t, []string{"l1"}, []string(persisted.CompletedLessons))
}

func TestMarkCompleteAlreadyCompletedIsInformational(t *testing.T) {
	nav, enrollments, _, _ := newNavigatorFixture(t)
	ctx := context.Background()
	enroll(t, enrollments, 7, 10)
	_, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)

	_, err = nav.MarkComplete(ctx, 7, 10, "l1")
	require.NoError(t, err)

	// 重复完成返回提示错误，但附带当前状态，进度不变
	state, err := nav.MarkComplete(ctx, 7, 10, "l1")
	assert.ErrorIs(t, err, util.ErrAlreadyCompleted)
	require.NotNil(t, state)
	assert.Equal(t, 25, state.Progress)
	assert.Len(t, state.Completed, 1)
}

func TestMarkCompleteUnknownLesson(t *testing.T) {
	nav, enrollments, _, _ := newNavigatorFixture(t)
	ctx := context.Background()
	enroll(t, enrollments, 7, 10)
	_, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)

	_, err = nav.MarkComplete(ctx, 7, 10, "ghost")
	assert.ErrorIs(t, err, util.ErrLessonNotFound)
}

func TestMarkCompleteLastLessonFiresCertificate(t *testing.T) {
	nav, enrollments, _, issuer := newNavigatorFixture(t)
	ctx := context.Background()
	e := enroll(t, enrollments, 7, 10)
	_, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)

	for _, id := range []string{"l1", "l2", "l3"} {
		_, err = nav.MarkComplete(ctx, 7, 10, id)
		require.NoError(t, err)
	}
	assert.Empty(t, issuer.completed)

	state, err := nav.MarkComplete(ctx, 7, 10, "l4")
	require.NoError(t, err)
	assert.Equal(t, 100, state.Progress)
	assert.True(t, state.CourseComplete)
	// 最后一课不再自动前进
	assert.Equal(t, 3, state.CurrentIndex)

	// 完成信号只发一次
	assert.Equal(t, []string{e.ID}, issuer.completed)

	persisted, err := enrollments.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, persisted.CertificateIssued)
}

// flakyUpdateStore Update 全部失败，其余透传
type flakyUpdateStore struct{ *memStore }

func (f *flakyUpdateStore) Update(ctx context.Context, e *model.Enrollment) error {
	return errors.New("write failed")
}

func TestMarkCompleteRollsBackOnPersistFailure(t *testing.T) {
	store := &flakyUpdateStore{memStore: newMemStore()}
	enrollments := NewEnrollmentService(store)
	nav := NewNavigatorService(navigatorCourse(), enrollments, &recordingIssuer{})
	ctx := context.Background()

	e := &model.Enrollment{
		StudentID:        7,
		CourseID:         10,
		EnrolledAt:       time.Now(),
		CompletedLessons: model.LessonIDSet{},
	}
	e.ID = model.GenerateUUID()
	require.NoError(t, store.memStore.Create(ctx, e))

	_, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)

	_, err = nav.MarkComplete(ctx, 7, 10, "l1")
	require.Error(t, err)

	// 本地集合回滚，会话状态不超前于存储
	state, err := nav.Refresh(ctx, 7, 10)
	require.NoError(t, err)
	assert.NotContains(t, state.Completed, "l1")
}

func TestRefreshReplacesLocalSet(t *testing.T) {
	nav, enrollments, _, _ := newNavigatorFixture(t)
	ctx := context.Background()
	e := enroll(t, enrollments, 7, 10)
	_, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)

	// 另一个会话（比如另一台设备）直接写进度
	_, err = enrollments.UpdateProgress(ctx, e.ID, model.LessonIDSet{"l1", "l2", "l3"}, 4)
	require.NoError(t, err)

	state, err := nav.Refresh(ctx, 7, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"l1", "l2", "l3"}, state.Completed)
	assert.Equal(t, 75, state.Progress)
}

func TestEvictAndSweepStale(t *testing.T) {
	nav, enrollments, _, _ := newNavigatorFixture(t)
	ctx := context.Background()
	enroll(t, enrollments, 7, 10)
	_, err := nav.Load(ctx, 7, 10)
	require.NoError(t, err)

	nav.Evict(7, 10)
	_, err = nav.Navigate(ctx, 7, 10, DirNext)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)

	// 重建后立即清扫：maxAge 为 0 时所有会话都算过期
	_, err = nav.Load(ctx, 7, 10)
	require.NoError(t, err)
	nav.SweepStale(0)
	_, err = nav.Navigate(ctx, 7, 10, DirNext)
	assert.ErrorIs(t, err, util.ErrNotEnrolled)
}
