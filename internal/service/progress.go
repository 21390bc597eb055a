package service

import (
	"elearn_backend/internal/model"
	"fmt"
	"math"
)

// Progress 完成度百分比：round(100 * 已完成 / 总数)。
// 课程没有任何课时（totalLessons <= 0）时定义为 0，调用方无需防零。
func Progress(completedCount, totalLessons int) int {
	if totalLessons <= 0 {
		return 0
	}
	if completedCount < 0 {
		completedCount = 0
	}
	p := int(math.Round(100 * float64(completedCount) / float64(totalLessons)))
	if p > 100 {
		p = 100
	}
	return p
}

// ModuleProgress 模块维度给 "x/y" 计数，不给百分比。
func ModuleProgress(module *model.CourseModule, completed model.LessonIDSet) string {
	done := 0
	for _, lesson := range module.Lessons {
		if completed.Contains(lesson.LessonID) {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(module.Lessons))
}

// FirstIncomplete 扁平顺序里第一个未完成的课时；全部完成返回 nil，
// 由调用方退回第一课进入复习模式。
func FirstIncomplete(flat []model.Lesson, completed model.LessonIDSet) *model.Lesson {
	for i := range flat {
		if !completed.Contains(flat[i].LessonID) {
			return &flat[i]
		}
	}
	return nil
}

func IsCourseComplete(progress int) bool {
	return progress == 100
}
