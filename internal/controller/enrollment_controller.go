package controller

import (
	"elearn_backend/internal/model"
	"elearn_backend/internal/service"
	"elearn_backend/internal/util"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

type EnrollmentController struct {
	Enrollments *service.EnrollmentService
	Content     *service.ContentService
}

func NewEnrollmentController(enrollments *service.EnrollmentService, content *service.ContentService) *EnrollmentController {
	return &EnrollmentController{Enrollments: enrollments, Content: content}
}

// swagger:model EnrollRequest
type EnrollRequest struct {
	CourseID uint `json:"courseId" binding:"required"`
}

// Enroll godoc
// @Summary 报名课程
// @Description 幂等报名：已报名返回 409 和现有记录，不会产生重复记录
// @Tags 报名
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body EnrollRequest true "报名信息"
// @Success 201 {object} util.Response{data=model.Enrollment} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 409 {object} util.Response "已报名"
// @Failure 503 {object} util.Response "存储不可用"
// @Router /api/enrollments [post]
func (c *EnrollmentController) Enroll(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req EnrollRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	// 课程必须存在且结构合法
	if _, err := c.Content.GetCourse(ctx.Request.Context(), req.CourseID); err != nil {
		if errors.Is(err, util.ErrCourseNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	enrollment, err := c.Enrollments.Create(ctx.Request.Context(), claims.UserID, req.CourseID)
	switch {
	case errors.Is(err, util.ErrAlreadyEnrolled):
		ctx.JSON(409, util.Response{Code: 409, Message: "already enrolled", Data: enrollment})
	case errors.Is(err, util.ErrRemoteUnavailable):
		util.Error(ctx, 503, "存储暂时不可用，请稍后重试")
	case err != nil:
		util.LogInternalError(ctx, err)
	default:
		util.Created(ctx, enrollment)
	}
}

// ListEnrollments godoc
// @Summary 我的报名列表
// @Description 按报名时间倒序分页返回，total 与 hasMore 来自同一存储
// @Tags 报名
// @Produce  json
// @Security ApiKeyAuth
// @Param   page query int false "页码，默认 1"
// @Param   limit query int false "每页条数，默认 10，最大 100"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/enrollments [get]
func (c *EnrollmentController) ListEnrollments(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))

	enrollments, total, hasMore, err := c.Enrollments.ListForStudent(ctx.Request.Context(), claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:    enrollments,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasMore: hasMore,
	})
}

// GetEnrollment godoc
// @Summary 查询单条报名记录
// @Tags 报名
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "报名记录ID"
// @Success 200 {object} util.Response{data=model.Enrollment} "成功"
// @Failure 404 {object} util.Response "记录不存在"
// @Router /api/enrollments/{id} [get]
func (c *EnrollmentController) GetEnrollment(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	enrollment, err := c.Enrollments.FindByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.NotFound(ctx)
		return
	}
	if enrollment.StudentID != claims.UserID {
		util.Forbidden(ctx)
		return
	}

	util.Success(ctx, enrollment)
}

// swagger:model UpdateProgressRequest
type UpdateProgressRequest struct {
	CompletedLessons []string `json:"completedLessons" binding:"required"`
	// 客户端可能带上自己算的百分比，服务端一律忽略并按集合重算
	Progress *int `json:"progress,omitempty"`
}

// UpdateProgress godoc
// @Summary 覆盖更新学习进度
// @Description 整体覆盖 completedLessons 并按集合重算 progress，请求里的百分比被忽略
// @Tags 报名
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "报名记录ID"
// @Param   body body UpdateProgressRequest true "完成课时集合"
// @Success 200 {object} util.Response{data=model.Enrollment} "成功"
// @Failure 404 {object} util.Response "记录不存在"
// @Failure 503 {object} util.Response "存储不可用"
// @Router /api/enrollments/{id} [patch]
func (c *EnrollmentController) UpdateProgress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req UpdateProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	enrollment, err := c.Enrollments.FindByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.NotFound(ctx)
		return
	}
	if enrollment.StudentID != claims.UserID {
		util.Forbidden(ctx)
		return
	}

	course, err := c.Content.GetCourse(ctx.Request.Context(), enrollment.CourseID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	updated, err := c.Enrollments.UpdateProgress(
		ctx.Request.Context(),
		enrollment.ID,
		model.LessonIDSet(req.CompletedLessons),
		service.TotalLessons(course),
	)
	if err != nil {
		if errors.Is(err, util.ErrRemoteUnavailable) {
			util.Error(ctx, 503, "存储暂时不可用，请稍后重试")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, updated)
}
