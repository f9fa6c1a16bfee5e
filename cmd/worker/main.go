// Package main - точка входа фонового воркера движка геймификации.
//
// Воркер периодически перестраивает все рейтинги, чтобы недельная
// область не устаревала без входящих отчётов, и раз в сутки подчищает
// журнал начислений XP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alem-hub/alem-gamification/config"
	"github.com/alem-hub/alem-gamification/internal/application"
	"github.com/alem-hub/alem-gamification/internal/domain/gamification"
	"github.com/alem-hub/alem-gamification/internal/domain/leaderboard"
	"github.com/alem-hub/alem-gamification/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/alem-gamification/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/alem-gamification/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/alem-gamification/internal/infrastructure/scheduler"
	"github.com/alem-hub/alem-gamification/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting gamification worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩА
	// ─────────────────────────────────────────────────────────────────────────
	stats, grants, boards, cleanup, err := setupStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. КЭШ РЕЙТИНГОВ (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var lbCache leaderboard.Cache
	if !cfg.Redis.Disabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		cache, err := redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, cache disabled", logger.Err(err))
		} else {
			defer cache.Close()
			lbCache = redis.NewGuardedLeaderboardCache(redis.NewLeaderboardCache(cache), log)
			log.Info("Redis cache connected", logger.String("addr", redisCfg.Addr()))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. СЕРВИС И ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	service := application.NewService(application.Dependencies{
		Stats:        stats,
		Grants:       grants,
		Leaderboards: boards,
		Cache:        lbCache,
		Constants:    gamification.DefaultConstants(),
		Logger:       log,
	})

	sched := scheduler.New(service, scheduler.Config{
		RebuildInterval: cfg.Scheduler.RebuildInterval,
		PruneCron:       cfg.Scheduler.PruneCron,
		JobTimeout:      cfg.Scheduler.JobTimeout,
	}, log)

	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// Первый прогон сразу, чтобы снимки появились до первого интервала.
	if err := sched.RunRebuildNow(ctx); err != nil {
		log.Error("initial leaderboard rebuild failed", logger.Err(err))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ОЖИДАНИЕ СИГНАЛА ЗАВЕРШЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	log.Info("shutdown completed")
	return nil
}

// setupStorage подключает PostgreSQL или, для разработки, хранилище в памяти.
func setupStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (
	gamification.StatsStore, gamification.XPGrantLog, leaderboard.Repository, func(), error,
) {
	if cfg.Database.Disabled || cfg.Database.URL == "" {
		log.Warn("running with in-memory storage, data will not survive restarts")
		store := memory.NewStatsStore()
		return store, store, memory.NewLeaderboardStore(), func() {}, nil
	}

	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	migrator := postgres.NewMigrator(conn)
	if err := migrator.Migrate(ctx); err != nil {
		conn.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	statsRepo := postgres.NewStatsRepository(conn)
	boardRepo := postgres.NewLeaderboardRepository(conn)
	return statsRepo, statsRepo, boardRepo, conn.Close, nil
}

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	return logger.New(opts)
}
