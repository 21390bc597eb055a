package repository

import (
	"context"
	"elearn_backend/internal/model"
	"elearn_backend/internal/util"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnrollmentRepository 报名记录的存取契约。远端（MySQL）与本地回退（Redis）
// 两个实现都满足它，二者由 ResilientEnrollmentStore 组合。
// “找不到记录”统一返回 util.ErrEnrollmentNotFound，以便与基础设施错误区分：
// 前者是一次成功的存储响应，后者才触发回退路径。
type EnrollmentRepository interface {
	Create(ctx context.Context, e *model.Enrollment) error
	FindByID(ctx context.Context, id string) (*model.Enrollment, error)
	FindByStudentAndCourse(ctx context.Context, studentID, courseID uint) (*model.Enrollment, error)
	Update(ctx context.Context, e *model.Enrollment) error
	ListByStudent(ctx context.Context, studentID uint, page, limit int) ([]model.Enrollment, int64, error)
}

// FallbackEnrollmentRepository 回退存储在 CRUD 之外还要支持整条镜像写
// 与待同步集合的枚举。
type FallbackEnrollmentRepository interface {
	EnrollmentRepository
	Save(ctx context.Context, e *model.Enrollment) error
	PendingIDs(ctx context.Context) ([]string, error)
}

// GormEnrollmentRepository 权威远端存储
type GormEnrollmentRepository struct {
	DB *gorm.DB
}

func NewGormEnrollmentRepository(db *gorm.DB) *GormEnrollmentRepository {
	return &GormEnrollmentRepository{DB: db}
}

func (r *GormEnrollmentRepository) Create(ctx context.Context, e *model.Enrollment) error {
	return r.DB.WithContext(ctx).Create(e).Error
}

func (r *GormEnrollmentRepository) FindByID(ctx context.Context, id string) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *GormEnrollmentRepository) FindByStudentAndCourse(ctx context.Context, studentID, courseID uint) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Update 整条记录覆盖写，completedLessons/progress 永远作为一个整体落库。
func (r *GormEnrollmentRepository) Update(ctx context.Context, e *model.Enrollment) error {
	return r.DB.WithContext(ctx).Save(e).Error
}

// Upsert 同步任务回传回退记录用：存在即整条覆盖，不存在即插入。
func (r *GormEnrollmentRepository) Upsert(ctx context.Context, e *model.Enrollment) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(e).Error
}

func (r *GormEnrollmentRepository) ListByStudent(ctx context.Context, studentID uint, page, limit int) ([]model.Enrollment, int64, error) {
	db := r.DB.WithContext(ctx).Model(&model.Enrollment{}).Where("student_id = ?", studentID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var enrollments []model.Enrollment
	offset := (page - 1) * limit
	err := db.Order("enrolled_at DESC").Offset(offset).Limit(limit).Find(&enrollments).Error
	if err != nil {
		return nil, 0, err
	}
	return enrollments, total, nil
}
