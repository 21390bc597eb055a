package service

import (
	"context"
	"elearn_backend/internal/model"
	"elearn_backend/internal/repository"
	"elearn_backend/internal/util"
	"elearn_backend/pkg/logger"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	courseTreeKeyPrefix = "course:tree:"
	courseTreeCacheTTL  = 10 * time.Minute
)

// ContentService 课程内容模型：一次加载即不可变的 Course→Module→Lesson 树，
// 入口处做结构校验，之后核心逻辑无条件信任它。
type ContentService struct {
	CourseRepo *repository.CourseRepository
	Redis      *redis.Client
}

func NewContentService(courseRepo *repository.CourseRepository, rdb *redis.Client) *ContentService {
	return &ContentService{
		CourseRepo: courseRepo,
		Redis:      rdb,
	}
}

// GetCourse 优先读缓存，未命中回源并校验后写回。
func (s *ContentService) GetCourse(ctx context.Context, id uint) (*model.Course, error) {
	cacheKey := fmt.Sprintf("%s%d", courseTreeKeyPrefix, id)

	if val, err := s.Redis.Get(ctx, cacheKey).Result(); err == nil {
		var course model.Course
		if err := json.Unmarshal([]byte(val), &course); err == nil {
			return &course, nil
		}
	}

	course, err := s.CourseRepo.FindByID(id)
	if err != nil {
		return nil, err
	}

	if err := ValidateCourse(course); err != nil {
		return nil, err
	}

	if data, err := json.Marshal(course); err == nil {
		if err := s.Redis.Set(ctx, cacheKey, data, courseTreeCacheTTL).Err(); err != nil {
			logger.Log.Warn("course cache write failed", zap.Uint("courseId", id), zap.Error(err))
		}
	}

	return course, nil
}

// InvalidateCourse 课时内容变更后清缓存
func (s *ContentService) InvalidateCourse(ctx context.Context, id uint) {
	s.Redis.Del(ctx, fmt.Sprintf("%s%d", courseTreeKeyPrefix, id))
}

// ValidateCourse 入口校验：课时业务 ID 在课程内唯一。
// 模块零课时是合法的，展示照常，只是对计数贡献 0。
func ValidateCourse(course *model.Course) error {
	seen := make(map[string]bool)
	for _, m := range course.Modules {
		for _, l := range m.Lessons {
			if l.LessonID == "" {
				return fmt.Errorf("course %d: lesson %d has empty lesson id", course.ID, l.ID)
			}
			if seen[l.LessonID] {
				return fmt.Errorf("course %d: duplicate lesson id %q", course.ID, l.LessonID)
			}
			seen[l.LessonID] = true
		}
	}
	return nil
}

// Flatten 模块序 + 课时序的扁平课时序列，prev/next 导航的基础。
// 可重复调用，结果确定。
func Flatten(course *model.Course) []model.Lesson {
	var flat []model.Lesson
	for _, m := range course.Modules {
		flat = append(flat, m.Lessons...)
	}
	return flat
}

// TotalLessons 零模块课程返回 0，不报错。
func TotalLessons(course *model.Course) int {
	total := 0
	for _, m := range course.Modules {
		total += len(m.Lessons)
	}
	return total
}

// TotalDuration 按分钟聚合课时时长，非数字时长按 0 计。
func TotalDuration(course *model.Course) int {
	total := 0
	for _, m := range course.Modules {
		for _, l := range m.Lessons {
			total += util.ParseDurationMinutes(l.Duration)
		}
	}
	return total
}

// FindLesson 在课程树里定位课时及其模块下标
func FindLesson(course *model.Course, lessonID string) (*model.Lesson, int, error) {
	for mi := range course.Modules {
		for li := range course.Modules[mi].Lessons {
			if course.Modules[mi].Lessons[li].LessonID == lessonID {
				return &course.Modules[mi].Lessons[li], mi, nil
			}
		}
	}
	return nil, 0, util.ErrLessonNotFound
}

// ModuleIndexOf 扁平序列下标对应的模块下标，找不到返回 0
func ModuleIndexOf(course *model.Course, lessonID string) int {
	_, mi, err := FindLesson(course, lessonID)
	if err != nil {
		return 0
	}
	return mi
}
