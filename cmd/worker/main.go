package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"elecmate/internal/config"
	"elecmate/internal/database"
	"elecmate/internal/metrics"
	"elecmate/internal/notify"
	"elecmate/internal/storage"
	"elecmate/internal/tasks"
	"elecmate/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
	})

	cardHandler := worker.NewCardTaskHandler(
		db,
		storageClient,
		redisClient,
		logger,
		cfg.API.InternalSecret,
		cfg.Worker.InternalAPIBaseURL,
		cfg.Worker.FrontendBaseURL,
	)
	applicationHandler := worker.NewApplicationNotifyHandler(
		db,
		notify.NewRedisNotifier(redisClient),
		logger,
	)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeElecIDCardGenerate, cardHandler)
	mux.Handle(tasks.TypeApplicationSubmitted, applicationHandler)

	logger.Info("worker service started", slog.String("redis_addr", redisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
