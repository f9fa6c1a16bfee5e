// Package main - точка входа HTTP-сервера движка геймификации.
//
// Сервер принимает отчёты о завершении уроков, начисляет XP, ведёт
// серии и достижения и отдаёт рейтинги по трём областям: глобальной,
// курсовой и недельной.
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
	"github.com/alem-hub/alem-gamification/internal/infrastructure/messaging"
	"github.com/alem-hub/alem-gamification/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/alem-gamification/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/alem-gamification/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/alem-gamification/internal/infrastructure/scheduler"
	httpapi "github.com/alem-hub/alem-gamification/internal/interface/http"
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
	log.Info("starting gamification server",
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
			// Кэш опционален: читатели падают на хранилище снимков.
			log.Warn("failed to connect to Redis, cache disabled", logger.Err(err))
		} else {
			defer cache.Close()
			lbCache = redis.NewGuardedLeaderboardCache(redis.NewLeaderboardCache(cache), log)
			log.Info("Redis cache connected", logger.String("addr", redisCfg.Addr()))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ШИНА СОБЫТИЙ И СЕРВИС
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultEventBusConfig()
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer func() { _ = bus.Close() }()

	service := application.NewService(application.Dependencies{
		Stats:        stats,
		Grants:       grants,
		Leaderboards: boards,
		Cache:        lbCache,
		Bus:          bus,
		Constants:    buildConstants(cfg.XP),
		Logger:       log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ВСТРОЕННЫЙ ПЛАНИРОВЩИК (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	// Для развёртывания одним процессом, без отдельного воркера.
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(service, scheduler.Config{
			RebuildInterval: cfg.Scheduler.RebuildInterval,
			PruneCron:       cfg.Scheduler.PruneCron,
			JobTimeout:      cfg.Scheduler.JobTimeout,
		}, log)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.APIKeyHeader = cfg.HTTP.APIKeyHeader
	serverCfg.APIKeyHashes = cfg.HTTP.APIKeyHashes

	server := httpapi.NewServer(serverCfg, service, log)
	errCh := server.StartAsync()

	log.Info("gamification server is running", logger.String("address", serverCfg.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
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

// buildConstants накладывает переопределения из окружения на константы
// по умолчанию.
func buildConstants(xp config.XPConfig) gamification.Constants {
	constants := gamification.DefaultConstants()
	if xp.LessonComplete > 0 {
		constants.LessonComplete = gamification.XP(xp.LessonComplete)
	}
	if xp.PerfectScoreBonus > 0 {
		constants.PerfectScoreBonus = gamification.XP(xp.PerfectScoreBonus)
	}
	if xp.AchievementBase > 0 {
		constants.AchievementBase = gamification.XP(xp.AchievementBase)
	}
	if xp.StreakMultiplier > 0 {
		constants.StreakMultiplier = xp.StreakMultiplier
	}
	if xp.MaxStreakBonus > 0 {
		constants.MaxStreakBonus = xp.MaxStreakBonus
	}
	return constants
}

func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	return logger.New(opts)
}
