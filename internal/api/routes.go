package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"elecmate/internal/api/middleware"
	"elecmate/internal/assessment"
	"elecmate/internal/auth"
	"elecmate/internal/config"
	"elecmate/internal/genai"
	"elecmate/internal/notify"
	"elecmate/internal/storage"
)

// Dependencies bundles everything route handlers need. Keeps the register
// call readable as the handler count grows.
type Dependencies struct {
	Config       *config.Config
	DB           *gorm.DB
	Redis        redis.UniversalClient
	AsynqClient  *asynq.Client
	AuthService  *auth.AuthService
	Storage      *storage.Client
	Notifier     notify.Notifier
	Generator    genai.Generator
	AttemptStore *assessment.Store
	Logger       *slog.Logger
}

// RegisterRoutes registers API routes, without an /api prefix.
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	logger := deps.Logger

	authHandler := NewAuthHandler(
		deps.DB, deps.AuthService, deps.Redis, logger,
		cfg.API.LoginRateLimitPerHour, cfg.API.LoginLockThreshold,
		cfg.API.LoginLockTTL(), cfg.API.CookieDomain,
	)
	quizHandler := NewQuizHandler(deps.DB, deps.AttemptStore, logger)
	vacancyHandler := NewVacancyHandler(deps.DB, deps.Storage, logger)
	applicationHandler := NewApplicationHandler(
		deps.DB, deps.Redis, deps.AsynqClient, deps.Notifier,
		deps.Generator, cfg.Ollama.Timeout(), logger,
	)
	conversationHandler := NewConversationHandler(deps.DB, deps.Notifier, logger)
	elecIDHandler := NewElecIDHandler(deps.DB, deps.Storage, deps.AsynqClient, logger)
	printHandler := NewPrintHandler(deps.DB, deps.Storage, logger)
	assetHandler := NewAssetHandler(deps.DB, deps.Storage, deps.Redis, logger, cfg.API.ClamdAddr)
	wsHandler := NewWsHandler(deps.Redis, deps.AuthService, logger, nil)

	authMiddleware := middleware.AuthMiddleware(deps.AuthService)
	optionalAuth := middleware.OptionalAuthMiddleware(deps.AuthService)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()
	employerOnly := middleware.RequireRole("employer")

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		quizGroup := v1.Group("/quiz")
		{
			quizGroup.GET("/banks", quizHandler.ListBanks)
			quizGroup.GET("/banks/:slug", quizHandler.GetBank)
			quizGroup.POST("/banks/:slug/attempts", quizHandler.BeginAttempt)
			quizGroup.POST("/banks/:slug/attempts/:attemptID/answers", quizHandler.Answer)
			quizGroup.GET("/banks/:slug/attempts/:attemptID/progress", quizHandler.Progress)
			quizGroup.POST("/banks/:slug/attempts/:attemptID/submit", quizHandler.Submit)
		}

		vacancyGroup := v1.Group("/vacancies")
		{
			vacancyGroup.GET("", optionalAuth, vacancyHandler.ListVacancies)
			vacancyGroup.GET("/:id", optionalAuth, vacancyHandler.GetVacancy)
			vacancyGroup.POST("", authMiddleware, passwordGate, employerOnly, vacancyHandler.CreateVacancy)
			vacancyGroup.POST("/:id/close", authMiddleware, passwordGate, employerOnly, vacancyHandler.CloseVacancy)
			vacancyGroup.POST("/:id/apply", authMiddleware, passwordGate, applicationHandler.Apply)
			vacancyGroup.POST("/:id/cover-letter", authMiddleware, passwordGate, applicationHandler.GenerateCoverLetter)
		}

		conversationGroup := v1.Group("/conversations")
		conversationGroup.Use(authMiddleware, passwordGate)
		{
			conversationGroup.GET("", conversationHandler.ListConversations)
			conversationGroup.POST("/message", conversationHandler.SendMessage)
			conversationGroup.POST("/:id/reply", employerOnly, conversationHandler.Reply)
			conversationGroup.GET("/:id/messages", conversationHandler.ListMessages)
		}

		elecIDGroup := v1.Group("/elec-id")
		elecIDGroup.Use(authMiddleware, passwordGate)
		{
			elecIDGroup.GET("", elecIDHandler.GetProfile)
			elecIDGroup.PUT("", elecIDHandler.UpsertProfile)
			elecIDGroup.POST("/share-card", elecIDHandler.RequestShareCard)
			elecIDGroup.GET("/share-card-link", elecIDHandler.ShareCardLink)
		}

		assetGroup := v1.Group("/assets")
		assetGroup.Use(authMiddleware, passwordGate)
		{
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.GET("", assetHandler.ListAssets)
			assetGroup.GET("/view", assetHandler.GetAssetURL)
		}

		internalGroup := v1.Group("/internal")
		internalGroup.Use(middleware.InternalSecretMiddleware(cfg.API.InternalSecret))
		{
			internalGroup.GET("/elec-id/print/:id", printHandler.GetElecIDPrintData)
		}
	}
}
