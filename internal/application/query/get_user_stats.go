// Package query contains read-side use cases of the gamification engine.
// Queries never mutate progress; the only write they perform is the lazy
// creation of an empty stats record on first read.
package query

import (
	"context"
	"time"

	"github.com/alem-hub/alem-gamification/internal/domain/gamification"
	"github.com/alem-hub/alem-gamification/internal/domain/shared"
	"github.com/alem-hub/alem-gamification/pkg/logger"
	"github.com/alem-hub/alem-gamification/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER STATS
// ══════════════════════════════════════════════════════════════════════════════

// GetUserStatsHandler возвращает статистику пользователя.
type GetUserStatsHandler struct {
	store gamification.StatsStore
	log   *logger.Logger
	clock func() time.Time
}

// NewGetUserStatsHandler создаёт обработчик запроса статистики.
func NewGetUserStatsHandler(store gamification.StatsStore, log *logger.Logger) *GetUserStatsHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetUserStatsHandler{
		store: store,
		log:   log,
		clock: timeutil.Now,
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func (h *GetUserStatsHandler) WithClock(clock func() time.Time) *GetUserStatsHandler {
	h.clock = clock
	return h
}

// Handle возвращает снимок статистики пользователя. Для неизвестного
// пользователя создаётся и сохраняется пустая запись: любой валидный
// ID с точки зрения движка существует с нулевой статистикой.
func (h *GetUserStatsHandler) Handle(ctx context.Context, userID string) (*gamification.UserStats, error) {
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}

	stats, err := h.store.Load(ctx, userID)
	if err == nil {
		return stats, nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}

	now := h.clock()
	stats, err = gamification.NewUserStats(userID, now)
	if err != nil {
		return nil, err
	}

	if err := h.store.Save(ctx, stats); err != nil {
		// Конкурентное создание той же записи: перечитываем чужую.
		if shared.IsConflict(err) {
			return h.store.Load(ctx, userID)
		}
		return nil, err
	}

	h.log.Debug("lazily created user stats", logger.UserID(userID))
	return stats.Clone(), nil
}
