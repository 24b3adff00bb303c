package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"certCanvas/internal/api/middleware"
	"certCanvas/internal/auth"
	"certCanvas/internal/config"
	"certCanvas/internal/storage"
)

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	storageClient *storage.Client,
) {
	authHandler := NewAuthHandler(
		db,
		authService,
		redisClient,
		logger,
		cfg.Auth.LoginRateLimitPerHour,
		cfg.Auth.LoginLockThreshold,
		time.Duration(cfg.Auth.LoginLockTTLMinutes)*time.Minute,
		cfg.Auth.CookieDomain,
	)
	templateHandler := NewTemplateHandler(db, storageClient, logger, cfg.Upload.ClamdAddr, cfg.Upload.MaxBytes)
	certificateHandler := NewCertificateHandler(db, storageClient, asynqClient, logger)
	renderDataHandler := NewRenderDataHandler(db, storageClient, logger)
	builderWS := NewBuilderWSHandler(db, redisClient, authService, logger, cfg.API.Origins())

	authMiddleware := middleware.AuthMiddleware(authService)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()

	v1 := router.Group("/v1")
	{
		v1.GET("/builder/ws", builderWS.HandleBuilder)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		v1.GET("/merge-fields", authMiddleware, passwordGate, ListMergeFields)

		templateGroup := v1.Group("/templates")
		templateGroup.Use(authMiddleware, passwordGate)
		{
			templateGroup.GET("", templateHandler.ListTemplates)
			templateGroup.POST("", templateHandler.CreateTemplate)
			templateGroup.GET("/:id", templateHandler.GetTemplate)
			templateGroup.PUT("/:id", templateHandler.UpdateTemplate)
			templateGroup.PATCH("/:id/status", templateHandler.ChangeStatus)
			templateGroup.DELETE("/:id", templateHandler.DeleteTemplate)
			templateGroup.GET("/:id/background", templateHandler.GetBackgroundURL)
			templateGroup.POST("/:id/issue", certificateHandler.IssueCertificate)
		}

		certificateGroup := v1.Group("/certificates")
		certificateGroup.Use(authMiddleware, passwordGate)
		{
			certificateGroup.GET("/:id/download-link", certificateHandler.GetDownloadLink)
		}

		internalGroup := v1.Group("/internal")
		internalGroup.Use(middleware.InternalSecretMiddleware(cfg.Render.InternalSecret))
		{
			internalGroup.GET("/certificates/:id/render-data", renderDataHandler.GetRenderData)
		}
	}
}
