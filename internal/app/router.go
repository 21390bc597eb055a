package app

import (
	"elearn_backend/docs"
	"elearn_backend/internal/config"
	"elearn_backend/internal/middleware"
	"elearn_backend/internal/model"
	"elearn_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/profile", c.auth.GetProfile)

		// 课程
		authGroup.GET("/courses/:id", c.course.GetCourse)
		authGroup.GET("/courses/:id/lessons/:lessonId/video", c.course.GetLessonVideoURL)

		// 报名与进度
		authGroup.GET("/enrollments", c.enrollment.ListEnrollments)
		authGroup.POST("/enrollments", c.enrollment.Enroll)
		authGroup.GET("/enrollments/:id", c.enrollment.GetEnrollment)
		authGroup.PATCH("/enrollments/:id", c.enrollment.UpdateProgress)

		// 购物车
		authGroup.GET("/cart", c.cart.GetCart)
		authGroup.POST("/cart", c.cart.AddToCart)
		authGroup.DELETE("/cart/:courseId", c.cart.RemoveFromCart)

		// 结算
		authGroup.GET("/checkout", c.checkout.GetState)
		authGroup.POST("/checkout/proceed", c.checkout.Proceed)
		authGroup.POST("/checkout/back", c.checkout.Back)
		authGroup.POST("/checkout/reset", c.checkout.Reset)
		authGroup.POST("/checkout/submit", c.checkout.Submit)

		// 学习会话
		authGroup.GET("/learning/:courseId", c.learning.LoadSession)
		authGroup.POST("/learning/:courseId/select", c.learning.SelectLesson)
		authGroup.POST("/learning/:courseId/toggle-module", c.learning.ToggleModule)
		authGroup.POST("/learning/:courseId/navigate", c.learning.Navigate)
		authGroup.POST("/learning/:courseId/complete", c.learning.CompleteLesson)
		authGroup.POST("/learning/:courseId/refresh", c.learning.RefreshSession)
		authGroup.DELETE("/learning/:courseId", c.learning.CloseSession)

		// 教师接口
		teacherGroup := authGroup.Group("")
		teacherGroup.Use(middleware.RoleMiddleware(model.Teacher))
		{
			teacherGroup.POST("/courses/:id/lessons/:lessonId/video", c.course.UploadLessonVideo)
		}
	}
}
