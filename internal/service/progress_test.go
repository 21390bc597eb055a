package service

import (
	"elearn_backend/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		total     int
		want      int
	}{
		{"空集合", 0, 4, 0},
		{"零课时课程", 0, 0, 0},
		{"负的总数", 3, -1, 0},
		{"四分之二", 2, 4, 50},
		{"三分之一四舍五入", 1, 3, 33},
		{"三分之二四舍五入", 2, 3, 67},
		{"全部完成", 4, 4, 100},
		{"超出总数钳到一百", 5, 4, 100},
		{"负的完成数按零计", -2, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Progress(tt.completed, tt.total))
		})
	}
}

func TestProgressBounds(t *testing.T) {
	// 任意输入下结果都落在 [0, 100]
	for completed := -3; completed <= 12; completed++ {
		for total := -2; total <= 10; total++ {
			p := Progress(completed, total)
			assert.GreaterOrEqual(t, p, 0)
			assert.LessOrEqual(t, p, 100)
		}
	}
}

func TestModuleProgress(t *testing.T) {
	module := &model.CourseModule{
		Title: "基础",
		Lessons: []model.Lesson{
			{LessonID: "l1"},
			{LessonID: "l2"},
			{LessonID: "l3"},
		},
	}

	assert.Equal(t, "0/3", ModuleProgress(module, model.LessonIDSet{}))
	assert.Equal(t, "2/3", ModuleProgress(module, model.LessonIDSet{"l1", "l3"}))
	assert.Equal(t, "3/3", ModuleProgress(module, model.LessonIDSet{"l1", "l2", "l3"}))

	empty := &model.CourseModule{Title: "空模块"}
	assert.Equal(t, "0/0", ModuleProgress(empty, model.LessonIDSet{"l1"}))
}

func TestFirstIncomplete(t *testing.T) {
	flat := []model.Lesson{
		{LessonID: "l1"},
		{LessonID: "l2"},
		{LessonID: "l3"},
		{LessonID: "l4"},
	}

	// 跳着完成时取顺序上第一个缺口
	next := FirstIncomplete(flat, model.LessonIDSet{"l1", "l3"})
	assert.NotNil(t, next)
	assert.Equal(t, "l2", next.LessonID)

	// 什么都没完成从头开始
	next = FirstIncomplete(flat, model.LessonIDSet{})
	assert.NotNil(t, next)
	assert.Equal(t, "l1", next.LessonID)

	// 全部完成返回 nil，调用方进入复习模式
	assert.Nil(t, FirstIncomplete(flat, model.LessonIDSet{"l1", "l2", "l3", "l4"}))

	// 空课程
	assert.Nil(t, FirstIncomplete(nil, model.LessonIDSet{}))
}

func TestIsCourseComplete(t *testing.T) {
	assert.False(t, IsCourseComplete(0))
	assert.False(t, IsCourseComplete(99))
	assert.True(t, IsCourseComplete(100))
}
