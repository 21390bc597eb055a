package controller

import (
	"elearn_backend/internal/model"
	"elearn_backend/internal/service"
	"elearn_backend/internal/util"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CourseController struct {
	Content *service.ContentService
	Storage *service.StorageService
}

func NewCourseController(content *service.ContentService, storage *service.StorageService) *CourseController {
	return &CourseController{Content: content, Storage: storage}
}

// GetCourse godoc
// @Summary 获取课程树
// @Description 按模块和课时顺序返回完整课程结构，附带课时总数与总时长
// @Tags 课程
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课程ID"
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/courses/{id} [get]
func (c *CourseController) GetCourse(ctx *gin.Context) {
	courseID := util.MustParseUint(ctx.Param("id"))

	course, err := c.Content.GetCourse(ctx.Request.Context(), courseID)
	if err != nil {
		if errors.Is(err, util.ErrCourseNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{
		"course":               course,
		"totalLessons":         service.TotalLessons(course),
		"totalDurationMinutes": service.TotalDuration(course),
	})
}

// GetLessonVideoURL godoc
// @Summary 获取课时视频播放地址
// @Description 视频课时返回对象存储的播放地址（MinIO 为预签名 URL）
// @Tags 课程
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课程ID"
// @Param   lessonId path string true "课时业务ID"
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/courses/{id}/lessons/{lessonId}/video [get]
func (c *CourseController) GetLessonVideoURL(ctx *gin.Context) {
	courseID := util.MustParseUint(ctx.Param("id"))
	lessonID := ctx.Param("lessonId")

	course, err := c.Content.GetCourse(ctx.Request.Context(), courseID)
	if err != nil {
		util.NotFound(ctx)
		return
	}

	lesson, _, err := service.FindLesson(course, lessonID)
	if err != nil {
		util.NotFound(ctx)
		return
	}
	if lesson.Type != model.LessonVideo || lesson.ContentRef == "" {
		util.BadRequest(ctx, "该课时没有视频内容")
		return
	}

	util.Success(ctx, gin.H{
		"url":      c.Storage.GetURL(ctx.Request.Context(), lesson.ContentRef),
		"duration": lesson.Duration,
	})
}

// UploadLessonVideo godoc
// @Summary 上传课时视频
// @Description 教师上传课时视频，自动探测时长并回填，同时失效课程缓存
// @Tags 课程
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "课程ID"
// @Param   lessonId path string true "课时业务ID"
// @Param   video formData file true "视频文件"
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/courses/{id}/lessons/{lessonId}/video [post]
func (c *CourseController) UploadLessonVideo(ctx *gin.Context) {
	courseID := util.MustParseUint(ctx.Param("id"))
	lessonID := ctx.Param("lessonId")

	course, err := c.Content.GetCourse(ctx.Request.Context(), courseID)
	if err != nil {
		util.NotFound(ctx)
		return
	}
	lesson, _, err := service.FindLesson(course, lessonID)
	if err != nil {
		util.NotFound(ctx)
		return
	}

	file, err := ctx.FormFile("video")
	if err != nil {
		util.BadRequest(ctx, "缺少视频文件")
		return
	}

	// 先落到临时文件，探测时长后再上传对象存储
	tmpPath := filepath.Join(os.TempDir(), uuid.New().String()+filepath.Ext(file.Filename))
	if err := ctx.SaveUploadedFile(file, tmpPath); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer os.Remove(tmpPath)

	info, err := util.ProbeVideo(tmpPath)
	if err != nil {
		util.BadRequest(ctx, "视频文件无法解析")
		return
	}

	objectName := fmt.Sprintf("courses/%d/lessons/%s%s", courseID, lessonID, filepath.Ext(file.Filename))
	if _, err := c.Storage.UploadFile(ctx.Request.Context(), objectName, tmpPath, "video/mp4"); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	lesson.Type = model.LessonVideo
	lesson.ContentRef = objectName
	lesson.Duration = util.DurationLabel(info.Duration)
	if err := c.Content.CourseRepo.UpdateLesson(lesson); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	c.Content.InvalidateCourse(ctx.Request.Context(), courseID)

	util.Success(ctx, gin.H{
		"contentRef": objectName,
		"duration":   lesson.Duration,
		"width":      info.Width,
		"height":     info.Height,
		"size":       info.Size,
	})
}
