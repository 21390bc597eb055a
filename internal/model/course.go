package model

type LessonType string

const (
	LessonVideo   LessonType = "video"
	LessonReading LessonType = "reading"
	LessonQuiz    LessonType = "quiz"
)

// Course 课程树的根。价格以字符串存储，"Free"（或空串）表示免费课程，
// 其余为十进制金额，解析见 util.ParsePrice。
// swagger:model Course
type Course struct {
	BaseModel
	Title    string         `gorm:"size:255;not null" json:"title"`
	Price    string         `gorm:"size:32;not null;default:'Free'" json:"price"`
	Category string         `gorm:"size:64" json:"category"`
	Level    string         `gorm:"size:32" json:"level"`
	Status   string         `gorm:"size:32;not null;default:'published'" json:"status"`
	Modules  []CourseModule `gorm:"foreignKey:CourseID" json:"modules"`
}

func (Course) TableName() string {
	return "courses"
}

// CourseModule 模块按 Position 排序展示与扁平化，顺序不会被隐式调整。
// swagger:model CourseModule
type CourseModule struct {
	BaseModel
	CourseID uint     `gorm:"index;not null" json:"courseId"`
	Title    string   `gorm:"size:255;not null" json:"title"`
	Position int      `gorm:"not null;default:1" json:"position"`
	Lessons  []Lesson `gorm:"foreignKey:ModuleID" json:"lessons"`
}

func (CourseModule) TableName() string {
	return "course_modules"
}

// Lesson 对核心只读，由课程编辑端维护。LessonID 是课程内唯一的业务标识，
// 兼容数字与字符串两种形态。Duration 为展示用字符串（如 "10 min"）。
// swagger:model Lesson
type Lesson struct {
	BaseModel
	ModuleID   uint       `gorm:"index;not null" json:"moduleId"`
	LessonID   string     `gorm:"size:64;not null" json:"lessonId"`
	Title      string     `gorm:"size:255;not null" json:"title"`
	Type       LessonType `gorm:"type:enum('video','reading','quiz');default:'video'" json:"type"`
	Duration   string     `gorm:"size:32" json:"duration"`
	ContentRef string     `gorm:"size:512" json:"contentRef"` // 视频对象名或正文引用
	Position   int        `gorm:"not null;default:1" json:"position"`
}

func (Lesson) TableName() string {
	return "lessons"
}
