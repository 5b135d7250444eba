package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/DownMan01/evot4r/api/swagger"
	"github.com/DownMan01/evot4r/internal/handler"
	"github.com/DownMan01/evot4r/internal/middleware"
	"github.com/DownMan01/evot4r/internal/models"
	"github.com/DownMan01/evot4r/internal/repository"
	"github.com/DownMan01/evot4r/internal/service"
	"github.com/DownMan01/evot4r/pkg/cache"
	"github.com/DownMan01/evot4r/pkg/config"
	"github.com/DownMan01/evot4r/pkg/database"
	"github.com/DownMan01/evot4r/pkg/logger"
	corsmiddleware "github.com/DownMan01/evot4r/pkg/middleware/cors"
	reqidmiddleware "github.com/DownMan01/evot4r/pkg/middleware/requestid"
	"github.com/DownMan01/evot4r/pkg/storage"
)

// @title Evotar API
// @version 1.0.0
// @description Voter registration and authentication service
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	documentStore, err := storage.NewDocumentStore(cfg.Registration.StagingDir, cfg.Registration.DocumentDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document store", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Registration.SignedURLSecret, cfg.Registration.SignedURLTTL)

	voterRepo := repository.NewVoterRepository(db)
	sessionRepo := repository.NewWizardSessionRepository(redisClient, cfg.Registration.SessionTTL)
	challengeRepo := repository.NewChallengeRepository(redisClient)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	notifications := service.NewNotificationService(service.LogMailer{Logger: logr}, logr, cfg.Notifications)
	notifications.Start(context.Background())
	defer notifications.Stop()

	metricsSvc := service.NewMetricsService()
	wizardSvc := service.NewWizardService(sessionRepo, documentStore, logr, cfg.Registration)
	registrationSvc := service.NewRegistrationService(voterRepo, sessionRepo, documentStore, logr)
	rosterSvc := service.NewRosterService(voterRepo, cacheRepo, logr)
	documentSvc := service.NewDocumentService(voterRepo, documentStore, signer, logr)
	authSvc := service.NewAuthService(voterRepo, challengeRepo, notifications, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		CodeTTL:            cfg.TwoFactor.CodeTTL,
		ResendCooldown:     cfg.TwoFactor.ResendCooldown,
	})

	registrationHandler := handler.NewRegistrationHandler(wizardSvc, registrationSvc, rosterSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	adminHandler := handler.NewAdminHandler(rosterSvc, documentSvc)
	documentHandler := handler.NewDocumentHandler(documentSvc)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	register := api.Group("/register/sessions")
	{
		register.POST("", registrationHandler.StartSession)
		register.GET("/:id", registrationHandler.GetSession)
		register.PUT("/:id/draft", registrationHandler.SaveDraft)
		register.POST("/:id/document", registrationHandler.UploadDocument)
		register.POST("/:id/advance", registrationHandler.Advance)
		register.POST("/:id/retreat", registrationHandler.Retreat)
		register.POST("/:id/reset", registrationHandler.Reset)
		register.POST("/:id/submit", registrationHandler.Submit)
		register.DELETE("/:id", registrationHandler.CancelSession)
	}

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/2fa/verify", authHandler.VerifyTwoFactor)
		auth.POST("/2fa/resend", authHandler.ResendTwoFactor)
		auth.POST("/2fa/cancel", authHandler.CancelTwoFactor)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/reset-password", authHandler.ResetPassword)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	}

	api.GET("/documents", documentHandler.Fetch)

	admin := api.Group("/admin", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/registrations/pending", middleware.Audit(voterRepo, "ADMIN_LIST_PENDING", "registration"), adminHandler.ListPending)
		if cfg.Exports.Enabled {
			admin.GET("/registrations/pending/export", adminHandler.ExportPending)
		}
		admin.GET("/registrations/:id/document-url", adminHandler.DocumentURL)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
