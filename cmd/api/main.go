package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"muster/api/internal/cache"
	"muster/api/internal/config"
	"muster/api/internal/database"
	"muster/api/internal/database/migrations"
	"muster/api/internal/handlers"
	"muster/api/internal/jobs"
	"muster/api/internal/log"
	"muster/api/internal/queue"
	"muster/api/internal/repository"
	"muster/api/internal/server"
	"muster/api/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, "api", cfg.LogLevel)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	db := database.OpenDB(dbPool)

	if cfg.Postgres.AutoMigrate {
		if err := migrations.Migrate(ctx, db); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	redisClient := cache.NewRedisClient(cfg.Redis)
	if err := cache.PingRedis(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, authenticating against the database only until it recovers")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	stores := handlers.Stores{
		Users:       repository.NewUserRepository(db),
		Tokens:      repository.NewTokenRepository(db),
		GameSystems: repository.NewGameSystemRepository(db),
		Factions:    repository.NewFactionRepository(db),
	}
	handlerSet := handlers.NewHandlerSet(logger, cfg, stores, cache.NewRedisBackend(redisClient), objectStore,
		handlers.HealthCheck{Name: "database", Ping: dbPool.Ping},
		handlers.HealthCheck{Name: "cache", Ping: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}},
	)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	maintenance := queue.NewRedisStream(redisClient, cfg.Redis.Stream, cfg.Worker.Group, cfg.Worker.Consumer)
	scheduler := jobs.NewScheduler(maintenance, cfg.Jobs, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, db, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, pool *pgxpool.Pool, db *sql.DB, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduler jobs still running at shutdown")
	}

	if err := db.Close(); err != nil {
		logger.Error().Err(err).Msg("database close error")
	}
	pool.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
