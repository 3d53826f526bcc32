package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"anoa.com/challengescore/internal/bootstrap"
	"anoa.com/challengescore/internal/config"
	"anoa.com/challengescore/internal/server"
	"anoa.com/challengescore/pkg/database"
	"anoa.com/challengescore/pkg/logging"
	"anoa.com/challengescore/pkg/metrics"
	"anoa.com/challengescore/pkg/validator"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Options{
		Service: "challengescore",
		Env:     cfg.AppEnv,
		File:    cfg.LogFile,
		Debug:   cfg.LogDebug,
	})

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := bootstrap.Migrate(db); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SeedFile != "" && cfg.AppEnv == "development" {
		if err := bootstrap.SeedFromFile(ctx, db, cfg.SeedFile); err != nil {
			logger.Error("failed to seed database", "file", cfg.SeedFile, "error", err)
			os.Exit(1)
		}
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opt)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, recomputing inline without cache", "error", err)
			_ = redisClient.Close()
			redisClient = nil
		}
	}

	if err := validator.Register(); err != nil {
		logger.Error("failed to register validators", "error", err)
		os.Exit(1)
	}

	srv := server.NewServer(db, redisClient, server.Options{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.Registry(),
	})
	if err := srv.StartJobs(ctx, cfg); err != nil {
		logger.Error("failed to start jobs", "error", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		_ = srv.Close()
		os.Exit(0)
	}()

	logger.Info("server starting", "port", cfg.Port, "env", cfg.AppEnv, "redis", redisClient != nil)
	if err := srv.Run(":" + cfg.Port); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
