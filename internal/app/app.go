package app

import (
	"context"
	"elearn_backend/internal/config"
	"elearn_backend/internal/controller"
	"elearn_backend/internal/repository"
	"elearn_backend/internal/service"
	"elearn_backend/pkg/database"
	"elearn_backend/pkg/logger"
	"elearn_backend/pkg/monitoring"
	"elearn_backend/pkg/security"
	"elearn_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services
}

type repositories struct {
	user               *repository.UserRepository
	course             *repository.CourseRepository
	enrollmentRemote   *repository.GormEnrollmentRepository
	enrollmentFallback *repository.RedisEnrollmentRepository
	enrollmentStore    *repository.ResilientEnrollmentStore
	txRemote           *repository.TransactionRepository
	txFallback         *repository.RedisTransactionRepository
	cart               *repository.CartRepository
}

type services struct {
	auth       *service.AuthService
	storage    *service.StorageService
	content    *service.ContentService
	enrollment *service.EnrollmentService
	navigator  *service.NavigatorService
	checkout   *service.CheckoutService
	sync       *service.SyncService
}

type controllers struct {
	auth       *controller.AuthController
	course     *controller.CourseController
	enrollment *controller.EnrollmentController
	cart       *controller.CartController
	checkout   *controller.CheckoutController
	learning   *controller.LearningController
	health     *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	remote := repository.NewGormEnrollmentRepository(db)
	fallback := repository.NewRedisEnrollmentRepository(rdb)

	return &repositories{
		user:               repository.NewUserRepository(db),
		course:             repository.NewCourseRepository(db),
		enrollmentRemote:   remote,
		enrollmentFallback: fallback,
		enrollmentStore:    repository.NewResilientEnrollmentStore(remote, fallback),
		txRemote:           repository.NewTransactionRepository(db),
		txFallback:         repository.NewRedisTransactionRepository(rdb),
		cart:               repository.NewCartRepository(rdb),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.content = service.NewContentService(repos.course, rdb)
	s.enrollment = service.NewEnrollmentService(repos.enrollmentStore)
	s.navigator = service.NewNavigatorService(s.content, s.enrollment, service.LogCertificateIssuer{})
	s.checkout = service.NewCheckoutService(
		s.content,
		s.enrollment,
		repos.cart,
		repos.txRemote,
		repos.txFallback,
		cfg.Checkout.TaxRate,
	)
	s.sync = service.NewSyncService(
		repos.enrollmentRemote,
		repos.enrollmentFallback,
		repos.txRemote,
		repos.txFallback,
	)

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		course:     controller.NewCourseController(s.content, s.storage),
		enrollment: controller.NewEnrollmentController(s.enrollment, s.content),
		cart:       controller.NewCartController(repos.cart, s.content),
		checkout:   controller.NewCheckoutController(s.checkout),
		learning:   controller.NewLearningController(s.navigator),
		health:     controller.NewHealthController(db, rdb),
	}
}

// ApplyConfig 配置热加载回调，只覆盖运行时可以安全调整的参数
func (a *App) ApplyConfig(cfg *config.Config) {
	if a.services == nil {
		return
	}
	a.services.checkout.SetTaxRate(cfg.Checkout.TaxRate)
	logger.Log.Info("config reloaded", zap.Float64("taxRate", cfg.Checkout.TaxRate))
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services) {
	s.sync.Start(time.Duration(a.Config.Checkout.SyncIntervalSec) * time.Second)

	// 学习会话回收：1 小时无访问则淘汰
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		for range ticker.C {
			s.navigator.SweepStale(time.Hour)
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db, rdb)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, repos, db, rdb)

	// 监控初始化
	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("elearn-platform", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 停止周期同步；在途的一次 flush 结果照常落库
	if a.services != nil && a.services.sync != nil {
		a.services.sync.Stop()
	}

	// 关闭服务
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
