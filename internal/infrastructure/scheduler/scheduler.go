// Package scheduler runs the background jobs of the gamification engine:
// periodic full leaderboard rebuilds and pruning of the XP grant log.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/alem-hub/alem-gamification/internal/application"
	"github.com/alem-hub/alem-gamification/pkg/logger"
	"github.com/alem-hub/alem-gamification/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains scheduler configuration.
type Config struct {
	// RebuildInterval - how often all leaderboard scopes are rebuilt.
	// The HTTP path rebuilds affected scopes after every report; this
	// job catches weekly-window expiry, which happens without reports.
	RebuildInterval time.Duration

	// PruneCron - cron expression for the daily grant log prune.
	PruneCron string

	// JobTimeout - maximum duration of a single job run.
	JobTimeout time.Duration
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		RebuildInterval: 10 * time.Minute,
		PruneCron:       "0 3 * * *", // 03:00 Almaty, quietest hour
		JobTimeout:      5 * time.Minute,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler manages the engine's background jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *application.Service
	config    Config
	log       *logger.Logger
}

// New creates a scheduler around the application service.
// All schedules are evaluated in the engine's timezone so the daily
// prune lines up with the streak calendar.
func New(service *application.Service, config Config, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	if config.RebuildInterval <= 0 {
		config.RebuildInterval = DefaultConfig().RebuildInterval
	}
	if config.PruneCron == "" {
		config.PruneCron = DefaultConfig().PruneCron
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultConfig().JobTimeout
	}

	return &Scheduler{
		scheduler: gocron.NewScheduler(timeutil.AlmatyTZ),
		service:   service,
		config:    config,
		log:       log,
	}
}

// Start registers the jobs and begins running them asynchronously.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.config.RebuildInterval).Do(s.runRebuild); err != nil {
		return err
	}
	if _, err := s.scheduler.Cron(s.config.PruneCron).Do(s.runPrune); err != nil {
		return err
	}

	s.scheduler.StartAsync()

	s.log.Info("scheduler started",
		logger.Duration("rebuild_interval", s.config.RebuildInterval),
		logger.String("prune_cron", s.config.PruneCron),
	)
	return nil
}

// Stop stops all scheduled jobs. Running jobs finish their current run.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.log.Info("scheduler stopped")
}

// RunRebuildNow triggers a full rebuild outside the schedule.
func (s *Scheduler) RunRebuildNow(ctx context.Context) error {
	return s.service.RebuildAll(ctx)
}

func (s *Scheduler) runRebuild() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
	defer cancel()

	start := time.Now()
	if err := s.service.RebuildAll(ctx); err != nil {
		s.log.Error("scheduled rebuild failed", logger.Err(err))
		return
	}

	s.log.Info("scheduled rebuild completed", logger.Latency(time.Since(start)))
}

func (s *Scheduler) runPrune() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.JobTimeout)
	defer cancel()

	pruned, err := s.service.Rebuild.PruneGrantLog(ctx)
	if err != nil {
		s.log.Error("grant log prune failed", logger.Err(err))
		return
	}
	if pruned > 0 {
		s.log.Info("grant log pruned", logger.Int("removed", pruned))
	}
}
