package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/quillstage/quillstage-api/api/swagger"
	"github.com/quillstage/quillstage-api/internal/handler"
	"github.com/quillstage/quillstage-api/internal/middleware"
	"github.com/quillstage/quillstage-api/internal/models"
	"github.com/quillstage/quillstage-api/internal/repository"
	"github.com/quillstage/quillstage-api/internal/service"
	"github.com/quillstage/quillstage-api/pkg/cache"
	"github.com/quillstage/quillstage-api/pkg/config"
	"github.com/quillstage/quillstage-api/pkg/database"
	"github.com/quillstage/quillstage-api/pkg/logger"
	corsmiddleware "github.com/quillstage/quillstage-api/pkg/middleware/cors"
	reqidmiddleware "github.com/quillstage/quillstage-api/pkg/middleware/requestid"
	"github.com/quillstage/quillstage-api/pkg/storage"
)

// @title Quillstage API
// @version 1.0.0
// @description Review and publication workflow engine for authored content.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		if cfg.Publish.Mode == config.PublishModeStream {
			logr.Sugar().Fatalw("redis required for stream publishing", "error", err)
		}
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Review.PolicyCacheTTL, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Review.PolicyCacheTTL, logr, false)
	}

	userRepo := repository.NewUserRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "quillstage-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	policySvc := service.NewPolicyService(policyRepo, cacheSvc, cfg.Review, logr)
	commentSvc := service.NewCommentService(commentRepo, logr)
	publishSvc := service.NewPublishService(cfg.Publish, redisClient, logr)
	workflowSvc := service.NewWorkflowService(
		reviewRepo,
		resourceRepo,
		policySvc,
		commentSvc,
		publishSvc,
		userRepo,
		metricsSvc,
		logr,
		cfg.Review.ConflictRetries,
	)
	resourceSvc := service.NewResourceService(resourceRepo, reviewRepo, logr)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		localStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc = service.NewExportService(
			resourceRepo, reviewRepo, commentRepo,
			localStore, signer,
			service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL},
			logr, nil, nil,
		)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	resourceHandler := handler.NewResourceHandler(resourceSvc)
	reviewHandler := handler.NewReviewHandler(workflowSvc)
	commentHandler := handler.NewCommentHandler(commentSvc)
	policyHandler := handler.NewPolicyHandler(policySvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("", middleware.JWT(authSvc))

	users := protected.Group("/users", middleware.RequireRoles(models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.POST("", middleware.Audit(userRepo, models.AuditActionUserCreate, "user"), userHandler.Create)
		users.GET("/:id", userHandler.Get)
		users.PUT("/:id", middleware.Audit(userRepo, models.AuditActionUserUpdate, "user"), userHandler.Update)
		users.DELETE("/:id", middleware.Audit(userRepo, models.AuditActionUserDelete, "user"), userHandler.Delete)
	}

	resources := protected.Group("/resources")
	{
		resources.POST("", resourceHandler.Create)
		resources.GET("", resourceHandler.List)
		resources.GET("/:id", resourceHandler.Get)
		resources.PUT("/:id", resourceHandler.Update)
		resources.DELETE("/:id", resourceHandler.Delete)

		resources.POST("/:id/submit", reviewHandler.Submit)
		resources.POST("/:id/resubmit", reviewHandler.Resubmit)
		resources.POST("/:id/review/start", reviewHandler.Start)
		resources.POST("/:id/review/approve", reviewHandler.Approve)
		resources.POST("/:id/review/request-changes", reviewHandler.RequestChanges)
		resources.POST("/:id/review/reject", reviewHandler.Reject)
		resources.POST("/:id/review/reject-and-report", reviewHandler.RejectAndReport)

		resources.GET("/:id/reviews", resourceHandler.Ledger)
		resources.GET("/:id/reviewers", resourceHandler.ActiveReviewers)
		resources.GET("/:id/comments", commentHandler.ListByResource)
	}

	protected.GET("/metrics/system", middleware.RequireRoles(models.RoleAdmin), metricsHandler.System)
	protected.GET("/reviews/mine", resourceHandler.MyReviews)
	protected.POST("/comments/:id/resolve", commentHandler.Resolve)

	policies := protected.Group("/policies", middleware.RequireRoles(models.RoleAdmin))
	{
		policies.GET("", policyHandler.List)
		policies.GET("/:type", policyHandler.Get)
		policies.PUT("/:type", middleware.Audit(userRepo, models.AuditActionPolicyChange, "policy"), policyHandler.Upsert)
		policies.DELETE("/:type", middleware.Audit(userRepo, models.AuditActionPolicyChange, "policy"), policyHandler.Delete)
	}

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		resources.POST("/:id/export", exportHandler.Generate)
		api.GET("/exports/:token", exportHandler.Download)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publishSvc.Start(ctx)
	defer publishSvc.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
