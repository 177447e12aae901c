package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ezmeets/backend/config"
	"github.com/ezmeets/backend/internal/auth"
	"github.com/ezmeets/backend/internal/verify"
	"github.com/ezmeets/backend/internal/worker"
	"github.com/ezmeets/backend/pkg/database"
	"github.com/ezmeets/backend/pkg/queue"
	"github.com/ezmeets/backend/pkg/redis"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer rdb.Close()

	var verifier *verify.Client
	if cfg.Verification.URL != "" {
		verifier = verify.NewClient(cfg.Verification.URL,
			time.Duration(cfg.Verification.TimeoutSec)*time.Second, logger)
	} else {
		logger.Warn("verification service not configured, avatars stay pending manual approval")
	}

	userRepo := auth.NewRepository(pool)
	jobs := queue.NewQueue(rdb.Client, logger)

	processor := worker.NewAvatarVerifier(userRepo, verifier, jobs, logger)
	logger.Info("verification worker started")
	processor.Run(ctx)
	logger.Info("verification worker stopped")
}
