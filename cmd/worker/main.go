package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"muster/api/internal/cache"
	"muster/api/internal/config"
	"muster/api/internal/database"
	"muster/api/internal/log"
	"muster/api/internal/queue"
	"muster/api/internal/repository"
	"muster/api/internal/tasks"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()
	db := database.OpenDB(dbPool)
	defer db.Close()

	client := cache.NewRedisClient(cfg.Redis)
	if err := cache.PingRedis(ctx, client); err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	processor := tasks.NewProcessor(repository.NewTokenRepository(db), cfg.Security.TokenRetention, logger)
	stream := queue.NewRedisStream(client, cfg.Redis.Stream, cfg.Worker.Group, cfg.Worker.Consumer)
	consumer := queue.NewConsumer(stream, cfg.Worker.ClaimInterval, logger, processor)

	logger.Info().
		Str("stream", cfg.Redis.Stream).
		Str("group", cfg.Worker.Group).
		Str("consumer", cfg.Worker.Consumer).
		Msg("worker starting")

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("consumer stopped unexpectedly")
		return
	}
	logger.Info().Msg("worker exited cleanly")
}
