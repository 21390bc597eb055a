package controller

import (
	"elearn_backend/internal/service"
	"elearn_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type CheckoutController struct {
	Checkout *service.CheckoutService
}

func NewCheckoutController(checkout *service.CheckoutService) *CheckoutController {
	return &CheckoutController{Checkout: checkout}
}

// GetState godoc
// @Summary 当前结算状态
// @Description 返回结算状态机当前所处阶段 review/payment/success
// @Tags 结算
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/checkout [get]
func (c *CheckoutController) GetState(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	util.Success(ctx, gin.H{"state": c.Checkout.State(claims.UserID)})
}

// Proceed godoc
// @Summary 进入支付阶段
// @Description review → payment，其余状态下调用返回 409
// @Tags 结算
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 409 {object} util.Response "状态不允许"
// @Router /api/checkout/proceed [post]
func (c *CheckoutController) Proceed(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	state, err := c.Checkout.Proceed(claims.UserID)
	if err != nil {
		util.Conflict(ctx, "当前状态不允许进入支付")
		return
	}
	util.Success(ctx, gin.H{"state": state})
}

// Back godoc
// @Summary 返回订单确认
// @Description payment → review，唯一允许的回退
// @Tags 结算
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 409 {object} util.Response "状态不允许"
// @Router /api/checkout/back [post]
func (c *CheckoutController) Back(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	state, err := c.Checkout.Back(claims.UserID)
	if err != nil {
		util.Conflict(ctx, "当前状态不允许回退")
		return
	}
	util.Success(ctx, gin.H{"state": state})
}

// Reset godoc
// @Summary 开启新一轮结算
// @Tags 结算
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/checkout/reset [post]
func (c *CheckoutController) Reset(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	c.Checkout.Reset(claims.UserID)
	util.Success(ctx, gin.H{"state": service.StateReview})
}

// Submit godoc
// @Summary 提交结算
// @Description 校验支付信息后记账并逐项报名；全部失败保留购物车返回 502
// @Tags 结算
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.PaymentInput true "支付信息"
// @Success 200 {object} util.Response{data=service.CheckoutResult} "成功"
// @Failure 400 {object} util.Response "校验失败或购物车为空"
// @Failure 409 {object} util.Response "状态不允许"
// @Failure 502 {object} util.Response "全部报名失败"
// @Failure 503 {object} util.Response "存储不可用"
// @Router /api/checkout/submit [post]
func (c *CheckoutController) Submit(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var input service.PaymentInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.Checkout.Submit(ctx.Request.Context(), claims.UserID, input)
	if err != nil {
		var ve *util.ValidationError
		switch {
		case errors.As(err, &ve):
			ctx.JSON(400, util.Response{Code: 400, Message: ve.Message, Data: gin.H{"field": ve.Field}})
		case errors.Is(err, util.ErrBadTransition):
			util.Conflict(ctx, "当前状态不允许提交")
		case errors.Is(err, util.ErrCartEmpty):
			util.BadRequest(ctx, "购物车是空的")
		case errors.Is(err, util.ErrCheckoutFailed):
			util.Error(ctx, 502, "全部课程报名失败，购物车已保留，请重试")
		case errors.Is(err, util.ErrRemoteUnavailable):
			util.Error(ctx, 503, "存储暂时不可用，请稍后重试")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, result)
}
