package controller

import (
	"elearn_backend/internal/repository"
	"elearn_backend/internal/service"
	"elearn_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type CartController struct {
	Cart    *repository.CartRepository
	Content *service.ContentService
}

func NewCartController(cart *repository.CartRepository, content *service.ContentService) *CartController {
	return &CartController{Cart: cart, Content: content}
}

// swagger:model CartItemRequest
type CartItemRequest struct {
	CourseID uint `json:"courseId" binding:"required"`
}

// GetCart godoc
// @Summary 查看购物车
// @Description 返回购物车内课程及小计（不含税）
// @Tags 购物车
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/cart [get]
func (c *CartController) GetCart(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	courseIDs, err := c.Cart.List(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	items := make([]gin.H, 0, len(courseIDs))
	subtotal := 0.0
	for _, id := range courseIDs {
		course, err := c.Content.GetCourse(ctx.Request.Context(), id)
		if err != nil {
			// 课程被下架后购物车条目自动失效
			continue
		}
		price := util.ParsePrice(course.Price)
		subtotal += price
		items = append(items, gin.H{
			"courseId": course.ID,
			"title":    course.Title,
			"price":    course.Price,
			"amount":   price,
		})
	}

	util.Success(ctx, gin.H{
		"items":    items,
		"subtotal": subtotal,
	})
}

// AddToCart godoc
// @Summary 加入购物车
// @Tags 购物车
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body CartItemRequest true "课程"
// @Success 200 {object} util.Response "成功"
// @Failure 404 {object} util.Response "课程不存在"
// @Router /api/cart [post]
func (c *CartController) AddToCart(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CartItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if _, err := c.Content.GetCourse(ctx.Request.Context(), req.CourseID); err != nil {
		if errors.Is(err, util.ErrCourseNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	if err := c.Cart.Add(ctx.Request.Context(), claims.UserID, req.CourseID); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// RemoveFromCart godoc
// @Summary 从购物车移除
// @Tags 购物车
// @Produce  json
// @Security ApiKeyAuth
// @Param   courseId path int true "课程ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/cart/{courseId} [delete]
func (c *CartController) RemoveFromCart(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	courseID := util.MustParseUint(ctx.Param("courseId"))
	if err := c.Cart.Remove(ctx.Request.Context(), claims.UserID, courseID); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
