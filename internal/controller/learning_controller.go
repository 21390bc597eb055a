package controller

import (
	"elearn_backend/internal/service"
	"elearn_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type LearningController struct {
	Navigator *service.NavigatorService
}

func NewLearningController(navigator *service.NavigatorService) *LearningController {
	return &LearningController{Navigator: navigator}
}

// LoadSession godoc
// @Summary 进入学习页
// @Description 初始化学习会话：当前课时定位到第一个未完成课时，全部完成则进入复习模式
// @Tags 学习
// @Produce  json
// @Security ApiKeyAuth
// @Param   courseId path int true "课程ID"
// @Success 200 {object} util.Response{data=service.NavigatorState} "成功"
// @Failure 403 {object} util.Response "未报名"
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/learning/{courseId} [get]
func (c *LearningController) LoadSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	courseID := util.MustParseUint(ctx.Param("courseId"))

	state, err := c.Navigator.Load(ctx.Request.Context(), claims.UserID, courseID)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrNotEnrolled):
			util.Error(ctx, 403, "尚未报名该课程")
		case errors.Is(err, util.ErrCourseNotFound):
			util.NotFound(ctx)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, state)
}

// swagger:model SelectLessonRequest
type SelectLessonRequest struct {
	LessonID string `json:"lessonId" binding:"required"`
}

// SelectLesson godoc
// @Summary 切换当前课时
// @Tags 学习
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   courseId path int true "课程ID"
// @Param   body body SelectLessonRequest true "课时"
// @Success 200 {object} util.Response{data=service.NavigatorState} "成功"
// @Failure 404 {object} util.Response "课时不存在"
// @Router /api/learning/{courseId}/select [post]
func (c *LearningController) SelectLesson(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	courseID := util.MustParseUint(ctx.Param("courseId"))

	var req SelectLessonRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	state, err := c.Navigator.SelectLesson(ctx.Request.Context(), claims.UserID, courseID, req.LessonID)
	if err != nil {
		c.renderNavigatorError(ctx, err)
		return
	}
	util.Success(ctx, state)
}

// swagger:model ToggleModuleRequest
type ToggleModuleRequest struct {
	ModuleIndex *int `json:"moduleIndex" binding:"required"`
}

// ToggleModule godoc
// @Summary 展开/收起模块
// @Tags 学习
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   courseId path int true "课程ID"
// @Param   body body ToggleModuleRequest true "模块下标"
// @Success 200 {object} util.Response{data=service.NavigatorState} "成功"
// @Router /api/learning/{courseId}/toggle-module [post]
func (c *LearningController) ToggleModule(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	courseID := util.MustParseUint(ctx.Param("courseId"))

	var req ToggleModuleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	state, err := c.Navigator.ToggleModule(ctx.Request.Context(), claims.UserID, courseID, *req.ModuleIndex)
	if err != nil {
		if errors.Is(err, util.ErrNotEnrolled) {
			util.Error(ctx, 403, "学习会话不存在，请先进入学习页")
		} else {
			util.BadRequest(ctx, err.Error())
		}
		return
	}
	util.Success(ctx, state)
}

// swagger:model NavigateRequest
type NavigateRequest struct {
	Direction string `json:"direction" binding:"required,oneof=prev next"`
}

// Navigate godoc
// @Summary 上一课/下一课
// @Description 边界上的 prev/next 是空操作，返回当前状态
// @Tags 学习
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   courseId path int true "课程ID"
// @Param   body body NavigateRequest true "方向"
// @Success 200 {object} util.Response{data=service.NavigatorState} "成功"
// @Router /api/learning/{courseId}/navigate [post]
func (c *LearningController) Navigate(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	courseID := util.MustParseUint(ctx.Param("courseId"))

	var req NavigateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	state, err := c.Navigator.Navigate(ctx.Request.Context(), claims.UserID, courseID, service.Direction(req.Direction))
	if err != nil {
		c.renderNavigatorError(ctx, err)
		return
	}
	util.Success(ctx, state)
}

// swagger:model CompleteLessonRequest
type CompleteLessonRequest struct {
	LessonID string `json:"lessonId" binding:"required"`
}

// CompleteLesson godoc
// @Summary 标记课时完成
// @Description 重复完成返回 200 和当前状态（提示性质）；进度到 100 触发发证信号
// @Tags 学习
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   courseId path int true "课程ID"
// @Param   body body CompleteLessonRequest true "课时"
// @Success 200 {object} util.Response{data=service.NavigatorState} "成功"
// @Failure 404 {object} util.Response "课时不存在"
// @Failure 503 {object} util.Response "存储不可用"
// @Router /api/learning/{courseId}/complete [post]
func (c *LearningController) CompleteLesson(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	courseID := util.MustParseUint(ctx.Param("courseId"))

	var req CompleteLessonRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	state, err := c.Navigator.MarkComplete(ctx.Request.Context(), claims.UserID, courseID, req.LessonID)
	if errors.Is(err, util.ErrAlreadyCompleted) {
		// 已完成不是失败，返回当前状态并附带提示
		ctx.JSON(200, util.Response{Code: 200, Message: "lesson already completed", Data: state})
		return
	}
	if err != nil {
		if errors.Is(err, util.ErrRemoteUnavailable) {
			util.Error(ctx, 503, "存储暂时不可用，请稍后重试")
		} else {
			c.renderNavigatorError(ctx, err)
		}
		return
	}
	util.Success(ctx, state)
}

// RefreshSession godoc
// @Summary 会话对齐
// @Description 重读存储并整体替换本地完成集合；已有刷新在途时直接返回当前状态
// @Tags 学习
// @Produce  json
// @Security ApiKeyAuth
// @Param   courseId path int true "课程ID"
// @Success 200 {object} util.Response{data=service.NavigatorState} "成功"
// @Router /api/learning/{courseId}/refresh [post]
func (c *LearningController) RefreshSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	courseID := util.MustParseUint(ctx.Param("courseId"))

	state, err := c.Navigator.Refresh(ctx.Request.Context(), claims.UserID, courseID)
	if errors.Is(err, util.ErrRefreshInFlight) {
		ctx.JSON(200, util.Response{Code: 200, Message: "refresh already in flight", Data: state})
		return
	}
	if err != nil {
		c.renderNavigatorError(ctx, err)
		return
	}
	if state == nil {
		// 会话在刷新期间被回收
		util.Success(ctx, nil)
		return
	}
	util.Success(ctx, state)
}

// CloseSession godoc
// @Summary 离开学习页
// @Tags 学习
// @Produce  json
// @Security ApiKeyAuth
// @Param   courseId path int true "课程ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/learning/{courseId} [delete]
func (c *LearningController) CloseSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	c.Navigator.Evict(claims.UserID, util.MustParseUint(ctx.Param("courseId")))
	util.Success(ctx, nil)
}

func (c *LearningController) renderNavigatorError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrNotEnrolled):
		util.Error(ctx, 403, "学习会话不存在，请先进入学习页")
	case errors.Is(err, util.ErrLessonNotFound):
		util.NotFound(ctx)
	default:
		util.LogInternalError(ctx, err)
	}
}
