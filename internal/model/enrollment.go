package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// LessonIDSet 已完成课时集合，按 JSON 列整体读写（集合语义，顺序无意义）。
type LessonIDSet []string

func (s LessonIDSet) Value() (driver.Value, error) {
	if s == nil {
		s = LessonIDSet{}
	}
	return json.Marshal(s)
}

func (s *LessonIDSet) Scan(value interface{}) error {
	if value == nil {
		*s = LessonIDSet{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for LessonIDSet")
	}
	if len(data) == 0 {
		*s = LessonIDSet{}
		return nil
	}
	return json.Unmarshal(data, s)
}

func (s LessonIDSet) Contains(lessonID string) bool {
	for _, id := range s {
		if id == lessonID {
			return true
		}
	}
	return false
}

// Add 返回加入 lessonID 后的集合，重复加入不产生副本。
func (s LessonIDSet) Add(lessonID string) LessonIDSet {
	if s.Contains(lessonID) {
		return s
	}
	return append(s, lessonID)
}

// Enrollment 学员与课程的持久绑定。(StudentID, CourseID) 全局唯一，
// 创建幂等；CompletedLessons 是进度的唯一事实来源，Progress 为派生列。
// swagger:model Enrollment
type Enrollment struct {
	UUIDBase
	StudentID         uint        `gorm:"index:idx_student_course,unique;not null" json:"studentId"`
	CourseID          uint        `gorm:"index:idx_student_course,unique;not null" json:"courseId"`
	EnrolledAt        time.Time   `json:"enrolledAt"`
	CompletedLessons  LessonIDSet `gorm:"type:json" json:"completedLessons"`
	Progress          int         `gorm:"default:0" json:"progress"`
	LastAccessedAt    time.Time   `json:"lastAccessedAt"`
	CertificateIssued bool        `gorm:"default:false" json:"certificateIssued"`
	PendingSync       bool        `gorm:"default:false" json:"pendingSync"` // 仅回退存储路径置真
}

func (Enrollment) TableName() string {
	return "enrollments"
}
