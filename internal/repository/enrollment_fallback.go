package repository

import (
	"context"
	"elearn_backend/internal/model"
	"elearn_backend/internal/util"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
)

const (
	enrollmentKeyPrefix     = "enrollment:"
	enrollmentPairKeyPrefix = "enrollment:pair:"
	enrollmentStudentPrefix = "enrollments:student:"
	enrollmentPendingKey    = "enrollments:pending"
)

// RedisEnrollmentRepository 本地回退存储。仅在远端调用失败时参与读路径；
// 写入一律按报名 ID 整条 JSON 覆盖，不存在字段级竞争。
type RedisEnrollmentRepository struct {
	Redis *redis.Client
}

func NewRedisEnrollmentRepository(rdb *redis.Client) *RedisEnrollmentRepository {
	return &RedisEnrollmentRepository{Redis: rdb}
}

func enrollmentKey(id string) string {
	return enrollmentKeyPrefix + id
}

func pairKey(studentID, courseID uint) string {
	return fmt.Sprintf("%s%d:%d", enrollmentPairKeyPrefix, studentID, courseID)
}

func studentKey(studentID uint) string {
	return fmt.Sprintf("%s%d", enrollmentStudentPrefix, studentID)
}

// Save 整条覆盖写并维护索引。远端写成功后的镜像刷新与远端不可用时的
// 回退写共用这一个入口，区别只在 e.PendingSync。
func (r *RedisEnrollmentRepository) Save(ctx context.Context, e *model.Enrollment) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	pipe := r.Redis.TxPipeline()
	pipe.Set(ctx, enrollmentKey(e.ID), data, 0)
	pipe.Set(ctx, pairKey(e.StudentID, e.CourseID), e.ID, 0)
	pipe.SAdd(ctx, studentKey(e.StudentID), e.ID)
	if e.PendingSync {
		pipe.SAdd(ctx, enrollmentPendingKey, e.ID)
	} else {
		pipe.SRem(ctx, enrollmentPendingKey, e.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisEnrollmentRepository) Create(ctx context.Context, e *model.Enrollment) error {
	return r.Save(ctx, e)
}

func (r *RedisEnrollmentRepository) Update(ctx context.Context, e *model.Enrollment) error {
	return r.Save(ctx, e)
}

func (r *RedisEnrollmentRepository) FindByID(ctx context.Context, id string) (*model.Enrollment, error) {
	val, err := r.Redis.Get(ctx, enrollmentKey(id)).Result()
	if err == redis.Nil {
		return nil, util.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, err
	}
	var e model.Enrollment
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *RedisEnrollmentRepository) FindByStudentAndCourse(ctx context.Context, studentID, courseID uint) (*model.Enrollment, error) {
	id, err := r.Redis.Get(ctx, pairKey(studentID, courseID)).Result()
	if err == redis.Nil {
		return nil, util.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// ListByStudent 内存分页。回退存储里的数据量以单个学员为界，排序与
// 远端一致（enrolledAt 倒序），total 只反映本存储。
func (r *RedisEnrollmentRepository) ListByStudent(ctx context.Context, studentID uint, page, limit int) ([]model.Enrollment, int64, error) {
	ids, err := r.Redis.SMembers(ctx, studentKey(studentID)).Result()
	if err != nil {
		return nil, 0, err
	}

	enrollments := make([]model.Enrollment, 0, len(ids))
	for _, id := range ids {
		e, err := r.FindByID(ctx, id)
		if err != nil {
			continue // 索引里有、记录已失效：跳过而不是让整页失败
		}
		enrollments = append(enrollments, *e)
	}

	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.After(enrollments[j].EnrolledAt)
	})

	total := int64(len(enrollments))
	start := (page - 1) * limit
	if start >= len(enrollments) {
		return []model.Enrollment{}, total, nil
	}
	end := start + limit
	if end > len(enrollments) {
		end = len(enrollments)
	}
	return enrollments[start:end], total, nil
}

// PendingIDs 等待回传远端的报名 ID 集合
func (r *RedisEnrollmentRepository) PendingIDs(ctx context.Context) ([]string, error) {
	return r.Redis.SMembers(ctx, enrollmentPendingKey).Result()
}
