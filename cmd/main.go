// 跨聚合器费用比价服务主程序
// 负责加载配置、初始化缓存和聚合器适配器，并启动HTTP服务
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/superbixnggas/MultiRouteX/internal/handlers"
	"github.com/superbixnggas/MultiRouteX/internal/middleware"
	"github.com/superbixnggas/MultiRouteX/internal/services"
	"github.com/superbixnggas/MultiRouteX/internal/tracing"
	"github.com/superbixnggas/MultiRouteX/internal/types"
	"github.com/superbixnggas/MultiRouteX/pkg/cache"
	"github.com/superbixnggas/MultiRouteX/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Application 费用比价应用程序
type Application struct {
	Config         *types.Config            // 应用配置
	Cache          cache.CacheManager       // 缓存管理器
	CompareService *services.CompareService // 比价服务
	Handler        *handlers.CompareHandler // HTTP处理器
	Server         *http.Server             // HTTP服务器
	Logger         *logrus.Logger           // 日志记录器

	shutdownTracer func()
}

func main() {
	app, err := NewApplication()
	if err != nil {
		logrus.Fatalf("创建比价应用失败: %v", err)
	}

	if err := app.Run(); err != nil {
		logrus.Fatalf("运行比价应用失败: %v", err)
	}
}

// NewApplication 创建比价应用实例
func NewApplication() (*Application, error) {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	// 2. 初始化日志记录器
	logger := initLogger(cfg)
	logger.Infof("启动跨聚合器费用比价服务 - 环境: %s", cfg.Server.Environment)

	// 3. 初始化链路追踪
	shutdownTracer := tracing.InitTracer(cfg.Tracing, logger)

	// 4. 初始化缓存管理器
	logger.Info("初始化缓存...")
	cacheManager := cache.NewCacheManager(cfg.Redis, logger)

	// 5. 初始化比价服务
	logger.Info("初始化比价服务...")
	compareService := services.NewCompareService(cfg, cacheManager, logger)

	// 6. 初始化HTTP处理器
	compareHandler := handlers.NewCompareHandler(compareService, logger)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 7. 创建HTTP路由器和服务器
	router := setupRouter(cfg, compareHandler, logger)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	return &Application{
		Config:         cfg,
		Cache:          cacheManager,
		CompareService: compareService,
		Handler:        compareHandler,
		Server:         server,
		Logger:         logger,
		shutdownTracer: shutdownTracer,
	}, nil
}

// Run 启动应用程序并等待退出信号
func (app *Application) Run() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		app.Logger.Infof("🚀 比价服务启动，监听端口: %s", app.Server.Addr)
		app.Logger.Info("API接口:")
		app.Logger.Infof("  费用比价: GET|POST http://localhost%s/api/v1/fee-compare", app.Server.Addr)
		app.Logger.Infof("  健康检查: GET      http://localhost%s%s", app.Server.Addr, app.Config.Monitoring.HealthCheckPath)
		app.Logger.Infof("  服务指标: GET      http://localhost%s/api/v1/metrics", app.Server.Addr)

		if err := app.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatalf("HTTP服务器启动失败: %v", err)
		}
	}()

	<-quit
	app.Logger.Info("接收到关闭信号，开始优雅关闭...")

	return app.Shutdown()
}

// Shutdown 优雅关闭应用程序
func (app *Application) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app.Logger.Info("正在关闭HTTP服务器...")
	if err := app.Server.Shutdown(ctx); err != nil {
		app.Logger.Errorf("HTTP服务器关闭失败: %v", err)
		return err
	}

	app.Logger.Info("正在关闭缓存连接...")
	if err := app.Cache.Close(); err != nil {
		app.Logger.Errorf("缓存关闭失败: %v", err)
		return err
	}

	app.shutdownTracer()

	app.Logger.Info("比价服务已优雅关闭")
	return nil
}

// initLogger 初始化日志记录器
func initLogger(cfg *types.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Server.Environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		})
	}

	return logger
}

// setupRouter 设置HTTP路由器
func setupRouter(cfg *types.Config, handler *handlers.CompareHandler, logger *logrus.Logger) *gin.Engine {
	router := gin.New()

	// 中间件顺序: 请求ID要在日志和限流之前
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger, &cfg.Monitoring))
	router.Use(middleware.CORS())
	router.Use(middleware.Security())
	if cfg.Monitoring.MetricsEnabled {
		router.Use(middleware.Metrics())
	}
	router.Use(middleware.NewRateLimiter(&cfg.RateLimit, logger).RateLimit())

	router.GET(cfg.Monitoring.HealthCheckPath, handler.HealthCheck)
	if cfg.Monitoring.MetricsEnabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	handler.RegisterRoutes(router)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, types.APIResponse{
			Success: false,
			Error: &types.APIError{
				Code:    types.ErrCodeNotFound,
				Message: "请求的资源不存在",
			},
			Timestamp: time.Now().Unix(),
			RequestID: c.GetString(middleware.ContextKeyRequestID),
		})
	})

	return router
}
