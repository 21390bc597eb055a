package service

import (
	"context"
	"elearn_backend/internal/model"
	"elearn_backend/internal/util"
	"elearn_backend/pkg/logger"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Direction string

const (
	DirPrev Direction = "prev"
	DirNext Direction = "next"
)

// CertificateIssuer 课程完成信号的消费方。真正的发证流程在外部系统，
// 核心只负责在进度到 100 时通知一次。
type CertificateIssuer interface {
	CourseCompleted(ctx context.Context, enrollment *model.Enrollment, course *model.Course)
}

// LogCertificateIssuer 默认实现：记日志，交给外部系统轮询领取。
type LogCertificateIssuer struct{}

func (LogCertificateIssuer) CourseCompleted(ctx context.Context, enrollment *model.Enrollment, course *model.Course) {
	logger.Log.Info("course completed, certificate pending issuance",
		zap.String("enrollmentId", enrollment.ID),
		zap.Uint("studentId", enrollment.StudentID),
		zap.Uint("courseId", course.ID))
}

// navigatorSession 单个学习会话的瞬态游标状态。它派生自报名记录，
// 但不拥有它：持久事实永远在 EnrollmentStore。
type navigatorSession struct {
	studentID    uint
	courseID     uint
	enrollmentID string
	course       *model.Course
	flat         []model.Lesson
	currentIndex int // -1 表示课程没有课时
	expanded     map[int]bool
	completed    model.LessonIDSet
	lastAccess   time.Time
	refreshing   bool
}

// NavigatorState 返回给前端的会话视图
type NavigatorState struct {
	CourseID        uint              `json:"courseId"`
	CurrentLesson   *model.Lesson     `json:"currentLesson,omitempty"`
	CurrentIndex    int               `json:"currentIndex"`
	ExpandedModules []int             `json:"expandedModules"`
	Completed       []string          `json:"completed"`
	Progress        int               `json:"progress"`
	TotalLessons    int               `json:"totalLessons"`
	TotalDuration   int               `json:"totalDurationMinutes"`
	ModuleProgress  map[string]string `json:"moduleProgress"` // 模块标题 -> "x/y"
	ReviewMode      bool              `json:"reviewMode"`
	CourseComplete  bool              `json:"courseComplete"`
}

// NavigatorService 持有所有在线学习会话。会话状态只在本进程有效；
// 两个标签页各自刷新时都会重读存储并整体对齐（store 层 last-write-wins）。
type NavigatorService struct {
	Content     CourseLoader
	Enrollments *EnrollmentService
	Issuer      CertificateIssuer

	mu       sync.Mutex
	sessions map[string]*navigatorSession
}

func NewNavigatorService(content CourseLoader, enrollments *EnrollmentService, issuer CertificateIssuer) *NavigatorService {
	return &NavigatorService{
		Content:     content,
		Enrollments: enrollments,
		Issuer:      issuer,
		sessions:    make(map[string]*navigatorSession),
	}
}

func sessionKey(studentID, courseID uint) string {
	return fmt.Sprintf("%d:%d", studentID, courseID)
}

// Load 初始化（或重建）会话：currentLesson 取第一个未完成课时，
// 全部完成则回到第一课进入复习模式；所在模块展开。
func (s *NavigatorService) Load(ctx context.Context, studentID, courseID uint) (*NavigatorState, error) {
	enrollment, err := s.Enrollments.Find(ctx, studentID, courseID)
	if err != nil {
		return nil, util.ErrNotEnrolled
	}

	course, err := s.Content.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	flat := Flatten(course)
	sess := &navigatorSession{
		studentID:    studentID,
		courseID:     courseID,
		enrollmentID: enrollment.ID,
		course:       course,
		flat:         flat,
		currentIndex: -1,
		expanded:     make(map[int]bool),
		completed:    enrollment.CompletedLessons,
		lastAccess:   time.Now(),
	}

	if len(flat) > 0 {
		current := FirstIncomplete(flat, enrollment.CompletedLessons)
		if current == nil {
			current = &flat[0] // 复习模式
		}
		for i := range flat {
			if flat[i].LessonID == current.LessonID {
				sess.currentIndex = i
				break
			}
		}
		sess.expanded[ModuleIndexOf(course, current.LessonID)] = true
	}

	s.mu.Lock()
	s.sessions[sessionKey(studentID, courseID)] = sess
	s.mu.Unlock()

	s.Enrollments.Touch(ctx, enrollment)

	return s.stateOf(sess), nil
}

func (s *NavigatorService) session(studentID, courseID uint) (*navigatorSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKey(studentID, courseID)]
	if !ok {
		return nil, util.ErrNotEnrolled
	}
	sess.lastAccess = time.Now()
	return sess, nil
}

// SelectLesson 切换当前课时并展开其模块；其他模块保持原样，只积累、不回收。
func (s *NavigatorService) SelectLesson(ctx context.Context, studentID, courseID uint, lessonID string) (*NavigatorState, error) {
	sess, err := s.session(studentID, courseID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range sess.flat {
		if sess.flat[i].LessonID == lessonID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, util.ErrLessonNotFound
	}

	sess.currentIndex = idx
	sess.expanded[ModuleIndexOf(sess.course, lessonID)] = true
	return s.stateOf(sess), nil
}

// ToggleModule 对称开合
func (s *NavigatorService) ToggleModule(ctx context.Context, studentID, courseID uint, moduleIndex int) (*NavigatorState, error) {
	sess, err := s.session(studentID, courseID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if moduleIndex < 0 || moduleIndex >= len(sess.course.Modules) {
		return nil, fmt.Errorf("module index %d out of range", moduleIndex)
	}
	if sess.expanded[moduleIndex] {
		delete(sess.expanded, moduleIndex)
	} else {
		sess.expanded[moduleIndex] = true
	}
	return s.stateOf(sess), nil
}

// Navigate 边界上的 prev/next 是空操作，不是错误。
func (s *NavigatorService) Navigate(ctx context.Context, studentID, courseID uint, dir Direction) (*NavigatorState, error) {
	sess, err := s.session(studentID, courseID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch dir {
	case DirPrev:
		if sess.currentIndex > 0 {
			sess.currentIndex--
		}
	case DirNext:
		if sess.currentIndex >= 0 && sess.currentIndex < len(sess.flat)-1 {
			sess.currentIndex++
		}
	default:
		return nil, fmt.Errorf("unknown direction %q", dir)
	}

	if sess.currentIndex >= 0 {
		sess.expanded[ModuleIndexOf(sess.course, sess.flat[sess.currentIndex].LessonID)] = true
	}
	return s.stateOf(sess), nil
}

// MarkComplete 重复完成返回 ErrAlreadyCompleted（提示性质，状态不变）。
// 正常路径：加入集合 → 重算并持久化进度 → 非最后一课自动前进 →
// 进度到 100 发出 CourseCompleted 信号。持久化彻底失败时回滚本地集合，
// 保证会话状态不超前于任何存储。
func (s *NavigatorService) MarkComplete(ctx context.Context, studentID, courseID uint, lessonID string) (*NavigatorState, error) {
	sess, err := s.session(studentID, courseID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()

	if _, _, err := FindLesson(sess.course, lessonID); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	if sess.completed.Contains(lessonID) {
		state := s.stateOf(sess)
		s.mu.Unlock()
		return state, util.ErrAlreadyCompleted
	}

	sess.completed = sess.completed.Add(lessonID)
	completedCopy := make(model.LessonIDSet, len(sess.completed))
	copy(completedCopy, sess.completed)
	total := len(sess.flat)
	enrollmentID := sess.enrollmentID
	s.mu.Unlock()

	enrollment, err := s.Enrollments.UpdateProgress(ctx, enrollmentID, completedCopy, total)
	if err != nil {
		s.mu.Lock()
		sess.completed = removeLesson(sess.completed, lessonID)
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	if sess.currentIndex >= 0 && sess.currentIndex < len(sess.flat)-1 {
		sess.currentIndex++
		sess.expanded[ModuleIndexOf(sess.course, sess.flat[sess.currentIndex].LessonID)] = true
	}
	state := s.stateOf(sess)
	course := sess.course
	s.mu.Unlock()

	if IsCourseComplete(enrollment.Progress) {
		s.Issuer.CourseCompleted(ctx, enrollment, course)
	}

	return state, nil
}

// Refresh 焦点触发的对齐：重读存储并整体替换本地完成集合。
// 同一会话同时只允许一次刷新在途；会话在刷新期间被回收时结果直接丢弃。
func (s *NavigatorService) Refresh(ctx context.Context, studentID, courseID uint) (*NavigatorState, error) {
	sess, err := s.session(studentID, courseID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if sess.refreshing {
		state := s.stateOf(sess)
		s.mu.Unlock()
		return state, util.ErrRefreshInFlight
	}
	sess.refreshing = true
	enrollmentID := sess.enrollmentID
	key := sessionKey(studentID, courseID)
	s.mu.Unlock()

	enrollment, err := s.Enrollments.FindByID(ctx, enrollmentID)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, alive := s.sessions[key]
	if !alive || current != sess {
		return nil, nil // 会话已被回收，丢弃结果
	}
	sess.refreshing = false
	if err != nil {
		return s.stateOf(sess), nil // 刷新失败保持现状，下次再试
	}

	sess.completed = enrollment.CompletedLessons
	return s.stateOf(sess), nil
}

// Evict 消费视图销毁时释放会话
func (s *NavigatorService) Evict(studentID, courseID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(studentID, courseID))
}

// SweepStale 回收长时间未访问的会话，由后台任务周期调用
func (s *NavigatorService) SweepStale(maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sess := range s.sessions {
		if time.Since(sess.lastAccess) > maxAge {
			delete(s.sessions, key)
		}
	}
}

func removeLesson(set model.LessonIDSet, lessonID string) model.LessonIDSet {
	out := make(model.LessonIDSet, 0, len(set))
	for _, id := range set {
		if id != lessonID {
			out = append(out, id)
		}
	}
	return out
}

// stateOf 调用方需持有 s.mu（或会话尚未发布）
func (s *NavigatorService) stateOf(sess *navigatorSession) *NavigatorState {
	expanded := make([]int, 0, len(sess.expanded))
	for idx := range sess.expanded {
		expanded = append(expanded, idx)
	}
	sort.Ints(expanded)

	completed := make([]string, len(sess.completed))
	copy(completed, sess.completed)

	moduleProgress := make(map[string]string, len(sess.course.Modules))
	for i := range sess.course.Modules {
		m := &sess.course.Modules[i]
		moduleProgress[m.Title] = ModuleProgress(m, sess.completed)
	}

	progress := Progress(len(sess.completed), len(sess.flat))

	state := &NavigatorState{
		CourseID:        sess.courseID,
		CurrentIndex:    sess.currentIndex,
		ExpandedModules: expanded,
		Completed:       completed,
		Progress:        progress,
		TotalLessons:    TotalLessons(sess.course),
		TotalDuration:   TotalDuration(sess.course),
		ModuleProgress:  moduleProgress,
		ReviewMode:      len(sess.flat) > 0 && FirstIncomplete(sess.flat, sess.completed) == nil,
		CourseComplete:  IsCourseComplete(progress),
	}
	if sess.currentIndex >= 0 && sess.currentIndex < len(sess.flat) {
		lesson := sess.flat[sess.currentIndex]
		state.CurrentLesson = &lesson
	}
	return state
}
