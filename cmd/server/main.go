package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/signly/signage-api/api/swagger"
	"github.com/signly/signage-api/internal/handler"
	"github.com/signly/signage-api/internal/middleware"
	"github.com/signly/signage-api/internal/models"
	"github.com/signly/signage-api/internal/repository"
	"github.com/signly/signage-api/internal/service"
	"github.com/signly/signage-api/pkg/broadcast"
	"github.com/signly/signage-api/pkg/cache"
	"github.com/signly/signage-api/pkg/config"
	"github.com/signly/signage-api/pkg/database"
	"github.com/signly/signage-api/pkg/jobs"
	"github.com/signly/signage-api/pkg/logger"
	corsmiddleware "github.com/signly/signage-api/pkg/middleware/cors"
	reqidmiddleware "github.com/signly/signage-api/pkg/middleware/requestid"
	"github.com/signly/signage-api/pkg/storage"
)

// @title Signage API
// @version 1.0.0
// @description Announcement persistence and lifecycle engine for shared display screens
// @BasePath /
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var publisher broadcast.Publisher
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, change notifications disabled", "error", err)
		publisher = broadcast.NopPublisher{}
	} else {
		defer redisClient.Close() //nolint:errcheck
		publisher = broadcast.NewRedisPublisher(redisClient, cfg.Redis.Channel, logr)
	}

	blobs := storage.NewBucketClient(cfg.Storage.BaseURL, cfg.Storage.Bucket, cfg.Storage.ServiceKey)
	localUploads, err := storage.NewLocalStorage(cfg.Storage.LocalUploadDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init local upload storage", "error", err)
	}
	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	exportSigner := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	// The cleanup queue's handler closes over the attachment service,
	// which in turn enqueues onto the queue.
	var attachmentSvc *service.AttachmentService
	cleanupQueue := jobs.NewQueue("attachment_cleanup", func(ctx context.Context, job jobs.Job) error {
		return attachmentSvc.CleanupHandler(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Cleanup.Workers,
		MaxRetries: cfg.Cleanup.MaxRetries,
		RetryDelay: cfg.Cleanup.RetryDelay,
		Logger:     logr,
	})
	cleanupQueue.Start(ctx)
	defer cleanupQueue.Stop()

	attachmentSvc = service.NewAttachmentService(blobs, localUploads, cleanupQueue, logr, service.AttachmentServiceConfig{
		PollAttempts: cfg.Storage.PollAttempts,
		PollDelay:    cfg.Storage.PollDelay,
	})

	writer := repository.NewAdaptiveWriter(db, logr)
	announcementRepo := repository.NewAnnouncementRepository(db, writer, logr)
	historyRepo := repository.NewHistoryRepository(db, writer, logr)
	liveRepo := repository.NewLiveRepository(db, writer, logr)
	categoryRepo := repository.NewCategoryRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)

	metricsSvc := service.NewMetricsService()
	writer.SetMetrics(metricsSvc)
	maintenanceSvc := service.NewMaintenanceService(announcementRepo, historyRepo, publisher, metricsSvc, logr, cfg.Maintenance.Interval)
	if cfg.Maintenance.Enabled {
		maintenanceSvc.Start(ctx)
	}

	linkCfg := service.AnnouncementServiceConfig{
		AllowedProviders: cfg.Live.AllowedProviders,
		MaxLinks:         cfg.Live.MaxLinks,
	}
	validate := validator.New()
	announcementSvc := service.NewAnnouncementService(announcementRepo, historyRepo, attachmentSvc, maintenanceSvc, publisher, validate, logr, linkCfg)
	batchSvc := service.NewBatchService(announcementSvc, announcementRepo, historyRepo, attachmentSvc, publisher, logr)
	liveSvc := service.NewLiveService(liveRepo, historyRepo, publisher, logr, linkCfg)
	categorySvc := service.NewCategoryService(categoryRepo, credentialRepo, historyRepo, logr)
	credentialSvc := service.NewCredentialService(credentialRepo, historyRepo, logr, cfg.JWT.Secret, cfg.JWT.Expiration)
	historySvc := service.NewHistoryService(historyRepo, exportStore, exportSigner, logr)

	announcementHandler := handler.NewAnnouncementHandler(announcementSvc, attachmentSvc)
	batchHandler := handler.NewBatchHandler(batchSvc)
	liveHandler := handler.NewLiveHandler(liveSvc)
	categoryHandler := handler.NewCategoryHandler(categorySvc)
	authHandler := handler.NewAuthHandler(credentialSvc)
	credentialHandler := handler.NewCredentialHandler(credentialSvc)
	historyHandler := handler.NewHistoryHandler(historySvc)
	maintenanceHandler := handler.NewMaintenanceHandler(maintenanceSvc, metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", maintenanceHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.GET("/feed", announcementHandler.Feed)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(credentialSvc))
	{
		authed.POST("/auth/logout", authHandler.Logout)

		authed.GET("/announcements", announcementHandler.List)
		authed.GET("/announcements/:id", announcementHandler.Get)

		admin := authed.Group("")
		admin.Use(middleware.RBAC(models.RoleAdmin))
		{
			admin.POST("/announcements", announcementHandler.Create)
			admin.PUT("/announcements/:id", announcementHandler.Update)
			admin.DELETE("/announcements/:id", announcementHandler.Delete)
			admin.POST("/announcements/uploads/sign", announcementHandler.SignUpload)

			admin.POST("/announcements/batch", batchHandler.Create)
			admin.PUT("/announcements/batch/:id", batchHandler.Update)
			admin.DELETE("/announcements/batch/:id", batchHandler.Delete)

			admin.GET("/categories", categoryHandler.List)
			admin.POST("/categories", categoryHandler.Create)
			admin.DELETE("/categories/:id", categoryHandler.Delete)

			admin.GET("/credentials", credentialHandler.List)
			admin.POST("/credentials", credentialHandler.Create)
			admin.DELETE("/credentials/:id", credentialHandler.Delete)

			admin.GET("/history", historyHandler.List)
			admin.POST("/history/export", historyHandler.Export)

			admin.POST("/maintenance/run", maintenanceHandler.Trigger)
			admin.GET("/maintenance/status", maintenanceHandler.Status)
		}

		authed.GET("/live", liveHandler.Get)
		authed.POST("/live/start", middleware.RBAC(models.RoleAdmin), liveHandler.Start)
		authed.POST("/live/stop", middleware.RBAC(models.RoleAdmin), liveHandler.Stop)
	}

	// Download tokens carry their own signature, no JWT needed.
	api.GET("/history/export/download", historyHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
