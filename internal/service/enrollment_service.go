package service

import (
	"context"
	"elearn_backend/internal/model"
	"elearn_backend/internal/util"
	"elearn_backend/pkg/monitoring"
	"errors"
	"time"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// EnrollmentStore 报名记录的双存储门面，ResilientEnrollmentStore 满足它。
// 在消费方定义接口，方便测试时换内存假实现。
type EnrollmentStore interface {
	Create(ctx context.Context, e *model.Enrollment) error
	FindByID(ctx context.Context, id string) (*model.Enrollment, error)
	FindByStudentAndCourse(ctx context.Context, studentID, courseID uint) (*model.Enrollment, error)
	Update(ctx context.Context, e *model.Enrollment) error
	ListByStudent(ctx context.Context, studentID uint, page, limit int) ([]model.Enrollment, int64, error)
}

// EnrollmentService 报名生命周期的唯一拥有者：幂等创建、进度覆盖写、
// 分页查询。completedLessons 是进度事实来源，progress 在每次写入时重算。
type EnrollmentService struct {
	Store EnrollmentStore
}

func NewEnrollmentService(store EnrollmentStore) *EnrollmentService {
	return &EnrollmentService{Store: store}
}

// Create 幂等：已有 (student, course) 记录时返回 ErrAlreadyEnrolled，
// 不产生第二条记录。存在性检查经由双存储（远端优先）。
func (s *EnrollmentService) Create(ctx context.Context, studentID, courseID uint) (*model.Enrollment, error) {
	existing, err := s.Store.FindByStudentAndCourse(ctx, studentID, courseID)
	if err == nil && existing != nil {
		return existing, util.ErrAlreadyEnrolled
	}
	if err != nil && !errors.Is(err, util.ErrEnrollmentNotFound) {
		return nil, err
	}

	now := time.Now()
	enrollment := &model.Enrollment{
		StudentID:        studentID,
		CourseID:         courseID,
		EnrolledAt:       now,
		LastAccessedAt:   now,
		CompletedLessons: model.LessonIDSet{},
		Progress:         0,
	}
	enrollment.ID = model.GenerateUUID()

	if err := s.Store.Create(ctx, enrollment); err != nil {
		return nil, err
	}

	monitoring.EnrollmentsCreated.Inc()
	return enrollment, nil
}

func (s *EnrollmentService) Find(ctx context.Context, studentID, courseID uint) (*model.Enrollment, error) {
	return s.Store.FindByStudentAndCourse(ctx, studentID, courseID)
}

func (s *EnrollmentService) FindByID(ctx context.Context, id string) (*model.Enrollment, error) {
	return s.Store.FindByID(ctx, id)
}

// UpdateProgress 整体覆盖 completedLessons 并从集合重算 progress，
// 调用方传入的百分比一律忽略。certificateIssued 只进不退。
func (s *EnrollmentService) UpdateProgress(ctx context.Context, enrollmentID string, completed model.LessonIDSet, totalLessons int) (*model.Enrollment, error) {
	enrollment, err := s.Store.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	enrollment.CompletedLessons = completed
	enrollment.Progress = Progress(len(completed), totalLessons)
	enrollment.LastAccessedAt = time.Now()
	if IsCourseComplete(enrollment.Progress) {
		enrollment.CertificateIssued = true
	}

	if err := s.Store.Update(ctx, enrollment); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// Touch 更新最近访问时间（学习页加载时调用）
func (s *EnrollmentService) Touch(ctx context.Context, enrollment *model.Enrollment) {
	enrollment.LastAccessedAt = time.Now()
	// 失败无所谓，下次进度写入会带上
	_ = s.Store.Update(ctx, enrollment)
}

// ListForStudent 分页列表；total/hasMore 来自同一个存储。
func (s *EnrollmentService) ListForStudent(ctx context.Context, studentID uint, page, limit int) ([]model.Enrollment, int64, bool, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	enrollments, total, err := s.Store.ListByStudent(ctx, studentID, page, limit)
	if err != nil {
		return nil, 0, false, err
	}
	hasMore := int64(page*limit) < total
	return enrollments, total, hasMore, nil
}
