package main

import (
	"context"
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

	_ "github.com/classcover/classcover-api/api/swagger"
	"github.com/classcover/classcover-api/internal/handler"
	"github.com/classcover/classcover-api/internal/middleware"
	"github.com/classcover/classcover-api/internal/models"
	"github.com/classcover/classcover-api/internal/repository"
	"github.com/classcover/classcover-api/internal/service"
	"github.com/classcover/classcover-api/pkg/cache"
	"github.com/classcover/classcover-api/pkg/config"
	"github.com/classcover/classcover-api/pkg/database"
	"github.com/classcover/classcover-api/pkg/logger"
	"github.com/classcover/classcover-api/pkg/mail"
	corsmiddleware "github.com/classcover/classcover-api/pkg/middleware/cors"
	reqidmiddleware "github.com/classcover/classcover-api/pkg/middleware/requestid"
	"github.com/classcover/classcover-api/pkg/storage"
	"github.com/classcover/classcover-api/pkg/tasks"
)

// @title ClassCover API
// @version 1.0.0
// @description Booking marketplace connecting school principals with substitute teachers
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
		logr.Sugar().Warnw("redis unavailable, listing cache disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if redisClient != nil && cfg.Listings.CacheEnabled {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Listings.CacheTTL, logr, true)
	}

	docsStorage, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	var mailer mail.Mailer
	switch cfg.Mail.Backend {
	case "sendgrid":
		mailer, err = mail.NewSendgridMailer(cfg.Mail, logr)
		if err != nil {
			logr.Sugar().Fatalw("failed to init sendgrid mailer", "error", err)
		}
	default:
		mailer = mail.NewConsoleMailer(logr)
	}

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	jobRepo := repository.NewJobRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	authService := service.NewAuthService(userRepo, profileRepo, mailer, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		AppOrigin:          cfg.AppOrigin,
	})

	notificationService := service.NewNotificationService(
		notificationRepo, profileRepo, jobRepo, mailer, metricsService,
		validate, logr, cfg.AppOrigin,
		tasks.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			BufferSize: cfg.Notifications.BufferSize,
			MaxRetries: cfg.Notifications.MaxRetries,
			RetryDelay: cfg.Notifications.RetryDelay,
			Logger:     logr,
		},
	)

	var jobService *service.JobService
	if cfg.Notifications.Enabled {
		jobService = service.NewJobService(jobRepo, profileRepo, userRepo, notificationService, cacheService, metricsService, validate, logr)
	} else {
		jobService = service.NewJobService(jobRepo, profileRepo, userRepo, nil, cacheService, metricsService, validate, logr)
	}
	profileService := service.NewProfileService(profileRepo, docsStorage, signer, cacheService, validate, logr, service.UploadPolicy{
		MaxFileSizeBytes: cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Uploads.AllowedMIMEs,
	})
	availabilityService := service.NewAvailabilityService(availabilityRepo, validate, logr)
	exportService := service.NewExportService(jobRepo, profileRepo, docsStorage, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
	}, logr, nil, nil)

	queueCtx, stopQueue := context.WithCancel(context.Background())
	if cfg.Notifications.Enabled {
		notificationService.Queue().Start(queueCtx)
	}

	authHandler := handler.NewAuthHandler(authService)
	jobHandler := handler.NewJobHandler(jobService)
	profileHandler := handler.NewProfileHandler(profileService, docsStorage)
	availabilityHandler := handler.NewAvailabilityHandler(availabilityService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	exportHandler := handler.NewExportHandler(exportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requireAuth := middleware.JWT(authService)
	principalOnly := middleware.RequireRoles(models.RolePrincipal)
	teacherOnly := middleware.RequireRoles(models.RoleTeacher)

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)
			auth.POST("/logout", requireAuth, authHandler.Logout)
			auth.POST("/change-password", requireAuth, authHandler.ChangePassword)
			auth.GET("/me", requireAuth, authHandler.Me)
		}

		jobs := api.Group("/jobs", requireAuth)
		{
			jobs.GET("", jobHandler.List)
			jobs.GET("/:id", jobHandler.Get)
			jobs.POST("", principalOnly, jobHandler.Create)
			jobs.PATCH("/:id", principalOnly, jobHandler.Update)
			jobs.DELETE("/:id", principalOnly, jobHandler.Delete)
			jobs.POST("/:id/request", principalOnly, jobHandler.Request)
			jobs.POST("/:id/reopen", principalOnly, jobHandler.Reopen)
			jobs.POST("/:id/cancel", principalOnly, jobHandler.Cancel)
			jobs.POST("/:id/accept", teacherOnly, jobHandler.Accept)
			jobs.POST("/:id/decline", teacherOnly, jobHandler.Decline)
			jobs.POST("/:id/release", teacherOnly, jobHandler.Release)
		}

		teachers := api.Group("/teachers")
		{
			teachers.GET("", requireAuth, profileHandler.ListTeachers)
			teachers.GET("/available", requireAuth, principalOnly, profileHandler.AvailableTeachers)
			teachers.POST("/me/qualifications", requireAuth, teacherOnly,
				middleware.Audit(userRepo, "upload", "qualifications"), profileHandler.UploadQualifications)
			teachers.GET("/:id/qualifications-link", requireAuth, profileHandler.QualificationsLink)
			// Download is authorized by the signed token itself.
			teachers.GET("/qualifications/:token", profileHandler.DownloadQualifications)
		}

		profiles := api.Group("/profiles", requireAuth)
		{
			profiles.GET("/me", profileHandler.Me)
			profiles.PATCH("/me", profileHandler.UpdateMe)
			profiles.GET("/:id", profileHandler.Get)
		}

		availability := api.Group("/availability", requireAuth)
		{
			availability.GET("/me", availabilityHandler.GetMyWeek)
			availability.PUT("/me", teacherOnly, availabilityHandler.SetMyWeek)
			availability.GET("/me/overrides", availabilityHandler.MyOverrides)
			availability.GET("/:id", principalOnly, availabilityHandler.GetTeacherWeek)
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", requireAuth, notificationHandler.ListMine)
			notifications.POST("/job-request", requireAuth, principalOnly, notificationHandler.NotifyJobRequest)
		}

		exports := api.Group("/exports")
		{
			exports.POST("/bookings", requireAuth,
				middleware.Audit(userRepo, "export", "bookings"), exportHandler.GenerateBookings)
			exports.GET("/:token", exportHandler.Download)
		}

		api.GET("/metrics/summary", requireAuth, metricsHandler.Summary)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}

	stopQueue()
	notificationService.Queue().Stop()
	logr.Sugar().Infow("server stopped")
}
