// Package application wires the engine's use cases into a single service
// used by the HTTP interface and the background worker.
package application

import (
	"context"

	"github.com/alem-hub/alem-gamification/internal/application/command"
	"github.com/alem-hub/alem-gamification/internal/application/query"
	"github.com/alem-hub/alem-gamification/internal/domain/gamification"
	"github.com/alem-hub/alem-gamification/internal/domain/leaderboard"
	"github.com/alem-hub/alem-gamification/internal/domain/shared"
	"github.com/alem-hub/alem-gamification/pkg/logger"
)

// Dependencies собирает все порты, нужные сервису геймификации.
type Dependencies struct {
	// Stats - хранилище статистики (обязательно).
	Stats gamification.StatsStore

	// Grants - журнал начислений XP для недельного рейтинга (обязательно).
	Grants gamification.XPGrantLog

	// Leaderboards - хранилище снимков рейтингов (обязательно).
	Leaderboards leaderboard.Repository

	// Cache - быстрый кэш рейтингов (опционально).
	Cache leaderboard.Cache

	// CourseTargets - цели завершения курсов (опционально).
	CourseTargets gamification.CourseTargets

	// Usernames - резолвер отображаемых имён (опционально).
	Usernames command.UsernameResolver

	// Bus - шина доменных событий (опционально).
	Bus shared.EventPublisher

	// Constants - коэффициенты XP. Нулевое значение - DefaultConstants.
	Constants gamification.Constants

	// Logger - структурный логгер. nil - логгер по умолчанию.
	Logger *logger.Logger
}

// Service - фасад движка геймификации: один отчёт об уроке,
// перестроения рейтингов и запросы на чтение.
type Service struct {
	ReportLesson *command.ReportLessonHandler
	Rebuild      *command.RebuildLeaderboardsHandler
	UserStats    *query.GetUserStatsHandler
	Leaderboard  *query.GetLeaderboardHandler
}

// NewService собирает сервис из зависимостей.
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if !deps.Constants.IsValid() || deps.Constants == (gamification.Constants{}) {
		deps.Constants = gamification.DefaultConstants()
	}

	calc := gamification.NewCalculator(deps.Constants)
	evaluator := gamification.NewEvaluator(deps.CourseTargets)
	locks := command.NewUserLocks()

	rebuild := command.NewRebuildLeaderboardsHandler(
		deps.Stats, deps.Grants, deps.Leaderboards, deps.Cache,
		deps.Usernames, deps.Bus, deps.Logger,
	)

	report := command.NewReportLessonHandler(
		deps.Stats, deps.Grants, calc, evaluator,
		deps.Bus, rebuild, locks, deps.Logger,
	)

	return &Service{
		ReportLesson: report,
		Rebuild:      rebuild,
		UserStats:    query.NewGetUserStatsHandler(deps.Stats, deps.Logger),
		Leaderboard:  query.NewGetLeaderboardHandler(deps.Leaderboards, deps.Cache, deps.Logger),
	}
}

// RebuildAll перестраивает все известные области. Точка входа воркера.
func (s *Service) RebuildAll(ctx context.Context) error {
	return s.Rebuild.RebuildAll(ctx)
}
