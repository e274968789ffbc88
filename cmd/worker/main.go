package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"beaconattend/internal/audit"
	"beaconattend/internal/config"
	"beaconattend/internal/logger"
	"beaconattend/internal/queue"
	"beaconattend/internal/store"
)

// Worker drains domain events from Redis into the Postgres audit trail.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		log.Fatal("worker needs the redis queue backend; QUEUE_BACKEND=memory keeps events inside the api process")
	}

	db, err := store.NewDB(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	repo := audit.NewRepository(db.Client)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("schema setup failed", zap.Error(err))
	}

	redisClient := store.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.Redis.Addr))
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	log.Info("worker started", zap.String("queue", cfg.QueueKey))

	stored, err := audit.NewConsumer(q, repo, log.Named("audit")).Run(ctx)
	if err != nil {
		log.Fatal("consume failed", zap.Error(err))
	}
	log.Info("worker stopped", zap.Int("stored", stored))
}
