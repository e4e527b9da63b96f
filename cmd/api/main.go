package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"elecmate/internal/api"
	"elecmate/internal/assessment"
	"elecmate/internal/auth"
	"elecmate/internal/config"
	"elecmate/internal/database"
	"elecmate/internal/genai"
	"elecmate/internal/notify"
	"elecmate/internal/storage"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	log.Printf("api bootstrapped with db host=%s port=%d db=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Printf("database connection ready")

	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	log.Printf("database migrated")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	authService, err := auth.NewAuthService(
		[]byte(cfg.Auth.PrivateKeyPEM),
		[]byte(cfg.Auth.PublicKeyPEM),
		cfg.Auth.AccessTokenTTL(),
		cfg.Auth.RefreshTokenTTL(),
	)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	generator, err := genai.NewClient(cfg.Ollama)
	if err != nil {
		log.Fatalf("init generation client: %v", err)
	}

	router := api.NewRouter(cfg, logger)
	api.RegisterRoutes(router, api.Dependencies{
		Config:       cfg,
		DB:           db,
		Redis:        redisClient,
		AsynqClient:  asynqClient,
		AuthService:  authService,
		Storage:      storageClient,
		Notifier:     notify.NewRedisNotifier(redisClient),
		Generator:    generator,
		AttemptStore: assessment.NewStore(assessment.DefaultAttemptTTL),
		Logger:       logger,
	})

	address := fmt.Sprintf(":%d", cfg.API.Port)
	log.Printf("api listening on %s", address)

	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
