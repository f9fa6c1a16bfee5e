// Package command contains write-side use cases of the gamification engine.
// Each handler owns one state-changing operation and publishes the domain
// events that operation produces.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/alem-gamification/internal/domain/gamification"
	"github.com/alem-hub/alem-gamification/internal/domain/leaderboard"
	"github.com/alem-hub/alem-gamification/internal/domain/shared"
	"github.com/alem-hub/alem-gamification/pkg/logger"
	"github.com/alem-hub/alem-gamification/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT LESSON COMPLETION
// ══════════════════════════════════════════════════════════════════════════════

// ReportLessonCommand представляет отчёт о завершении урока.
type ReportLessonCommand struct {
	// UserID - кто завершил урок.
	UserID string

	// CourseID - курс урока.
	CourseID string

	// LessonID - завершённый урок.
	LessonID string

	// BaseScore - доля выполнения [0..1]; больше 1 для бонусных заданий.
	BaseScore float64

	// IsPerfect - урок сдан идеально.
	IsPerfect bool

	// CompletedAt - момент завершения. Нулевое значение - текущее время.
	CompletedAt time.Time
}

// Validate проверяет обязательные поля команды.
func (c ReportLessonCommand) Validate() error {
	if c.UserID == "" {
		return shared.ErrInvalidUserID
	}
	if c.CourseID == "" {
		return shared.ErrInvalidCourseID
	}
	if c.LessonID == "" {
		return shared.ErrInvalidLessonID
	}
	return nil
}

// ReportLessonResult представляет итог обработки отчёта.
type ReportLessonResult struct {
	// TotalXP - суммарно начисленный XP (0 для повторного урока).
	TotalXP gamification.XP

	// Rewards - помеченные начисления, из которых сложился итог.
	Rewards []gamification.Reward

	// Unlocked - достижения, разблокированные этим отчётом.
	Unlocked []gamification.Achievement

	// Streak - результат обновления серии.
	Streak gamification.StreakUpdate

	// IsRepeat - урок уже был пройден раньше: серия обновлена и
	// достижения проверены, но XP и награды не начислены.
	IsRepeat bool

	// Stats - снимок статистики после применения отчёта.
	Stats *gamification.UserStats
}

// Rebuilder перестраивает рейтинги затронутых областей.
// Вынесен в интерфейс, чтобы отчёт не зависел от деталей перестроения.
type Rebuilder interface {
	RebuildScopes(ctx context.Context, scopes []leaderboard.Scope) error
}

// ReportLessonHandler обрабатывает отчёты о завершении уроков.
// Это единственная точка входа для изменения статистики: вся цепочка
// серия - урок - достижения - XP выполняется атомарно под блокировкой
// пользователя.
type ReportLessonHandler struct {
	store     gamification.StatsStore
	grants    gamification.XPGrantLog
	calc      *gamification.Calculator
	evaluator *gamification.Evaluator
	bus       shared.EventPublisher
	rebuilder Rebuilder
	locks     *UserLocks
	log       *logger.Logger
	clock     func() time.Time
}

// NewReportLessonHandler создаёт обработчик отчётов.
// rebuilder может быть nil: тогда рейтинги перестраивает только планировщик.
func NewReportLessonHandler(
	store gamification.StatsStore,
	grants gamification.XPGrantLog,
	calc *gamification.Calculator,
	evaluator *gamification.Evaluator,
	bus shared.EventPublisher,
	rebuilder Rebuilder,
	locks *UserLocks,
	log *logger.Logger,
) *ReportLessonHandler {
	if locks == nil {
		locks = NewUserLocks()
	}
	if log == nil {
		log = logger.Default()
	}
	return &ReportLessonHandler{
		store:     store,
		grants:    grants,
		calc:      calc,
		evaluator: evaluator,
		bus:       bus,
		rebuilder: rebuilder,
		locks:     locks,
		log:       log,
		clock:     timeutil.Now,
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func (h *ReportLessonHandler) WithClock(clock func() time.Time) *ReportLessonHandler {
	h.clock = clock
	return h
}

// Handle применяет отчёт к статистике пользователя.
//
// Порядок фиксирован: сначала обновляется серия (активность засчитывается
// даже за повторный урок), затем урок добавляется в набор пройденных,
// затем проверяются достижения и только потом начисляется XP. Достижения
// видят состояние до начисления XP этого отчёта.
//
// При конфликте версий возвращается shared.ErrStoreConflict; повторная
// отправка - забота транспортного слоя.
func (h *ReportLessonHandler) Handle(ctx context.Context, cmd ReportLessonCommand) (*ReportLessonResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	// Валидация оценки до захвата блокировки.
	if _, err := h.calc.BaseXP(cmd.BaseScore); err != nil {
		return nil, err
	}

	now := cmd.CompletedAt
	if now.IsZero() {
		now = h.clock()
	}

	result, err := h.apply(ctx, cmd, now)
	if err != nil {
		return nil, err
	}

	h.publishEvents(cmd, result)
	h.rebuildAffected(ctx, cmd.CourseID)

	h.log.Info("lesson report processed",
		logger.UserID(cmd.UserID),
		logger.CourseID(cmd.CourseID),
		logger.LessonID(cmd.LessonID),
		logger.XPAmount(int(result.TotalXP)),
		logger.StreakDays(result.Streak.CurrentStreak),
		logger.Bool("is_repeat", result.IsRepeat),
		logger.Int("unlocked", len(result.Unlocked)),
	)

	return result, nil
}

// apply выполняет всю мутацию статистики под блокировкой пользователя.
func (h *ReportLessonHandler) apply(ctx context.Context, cmd ReportLessonCommand, now time.Time) (*ReportLessonResult, error) {
	unlock := h.locks.Lock(cmd.UserID)
	defer unlock()

	stats, err := h.store.Load(ctx, cmd.UserID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, err
		}
		// Ленивое создание: первая активность пользователя.
		stats, err = gamification.NewUserStats(cmd.UserID, now)
		if err != nil {
			return nil, err
		}
	}

	result := &ReportLessonResult{}
	result.Streak = stats.RecordActivity(now)
	// Серия курса ведётся отдельно от общей: активность в одном курсе
	// не продлевает серию другого.
	stats.Course(cmd.CourseID).RecordActivity(now)

	isNew := stats.MarkLessonCompleted(cmd.CourseID, cmd.LessonID)
	if !isNew {
		// Повторный урок: активность засчитана, и веха серии может
		// разблокироваться здесь. XP и наград повтор не приносит.
		result.IsRepeat = true
		result.Unlocked = h.evaluator.CheckAll(stats, now)
		stats.Touch(now)
		if err := h.store.Save(ctx, stats); err != nil {
			return nil, err
		}
		result.Stats = stats.Clone()
		return result, nil
	}

	if cmd.IsPerfect {
		stats.RecordPerfectLesson()
	}

	// Достижения проверяются до начисления XP этого отчёта.
	result.Unlocked = h.evaluator.CheckAll(stats, now)

	rewards, err := h.buildRewards(cmd, stats.CurrentStreak, result.Unlocked, now)
	if err != nil {
		return nil, err
	}
	result.Rewards = rewards
	result.TotalXP = gamification.TotalXP(rewards)

	stats.AddXP(cmd.CourseID, result.TotalXP)
	stats.Touch(now)

	if err := stats.Validate(); err != nil {
		return nil, err
	}
	if err := h.store.Save(ctx, stats); err != nil {
		return nil, err
	}

	if h.grants != nil && result.TotalXP > 0 {
		grant := gamification.XPGrant{UserID: cmd.UserID, Amount: result.TotalXP, GrantedAt: now}
		if err := h.grants.RecordGrant(ctx, grant); err != nil {
			// Недельный рейтинг деградирует, но отчёт уже применён.
			h.log.Warn("failed to record XP grant", logger.UserID(cmd.UserID), logger.Err(err))
		}
	}

	result.Stats = stats.Clone()
	return result, nil
}

// buildRewards собирает помеченные начисления отчёта. Сумма наград
// урока равна формуле XP; каждое достижение добавляет базовую награду
// плюс собственный XPReward из каталога.
func (h *ReportLessonHandler) buildRewards(cmd ReportLessonCommand, currentStreak int, unlocked []gamification.Achievement, now time.Time) ([]gamification.Reward, error) {
	constants := h.calc.Constants()

	base, err := h.calc.BaseXP(cmd.BaseScore)
	if err != nil {
		return nil, err
	}
	streakBonus, err := h.calc.StreakBonusXP(cmd.BaseScore, currentStreak)
	if err != nil {
		return nil, err
	}

	rewards := []gamification.Reward{{
		Type:        gamification.RewardLessonComplete,
		Amount:      base,
		Description: fmt.Sprintf("Завершён урок %s", cmd.LessonID),
		GrantedAt:   now,
	}}

	if streakBonus > 0 {
		rewards = append(rewards, gamification.Reward{
			Type:        gamification.RewardStreakBonus,
			Amount:      streakBonus,
			Description: fmt.Sprintf("Бонус за серию %d дней", currentStreak),
			GrantedAt:   now,
		})
	}

	if cmd.IsPerfect {
		rewards = append(rewards, gamification.Reward{
			Type:        gamification.RewardPerfectScore,
			Amount:      constants.PerfectScoreBonus,
			Description: "Идеальный результат",
			GrantedAt:   now,
		})
	}

	for _, ach := range unlocked {
		rewards = append(rewards, gamification.Reward{
			Type:        gamification.RewardAchievement,
			Amount:      constants.AchievementBase + ach.XPReward,
			Description: ach.Title,
			GrantedAt:   now,
		})
	}

	return rewards, nil
}

// publishEvents публикует события отчёта. Статистика уже сохранена:
// ошибки публикации логируются внутри шины и не откатывают отчёт.
func (h *ReportLessonHandler) publishEvents(cmd ReportLessonCommand, result *ReportLessonResult) {
	if h.bus == nil {
		return
	}

	h.publish(shared.NewLessonCompletedEvent(
		cmd.UserID, cmd.CourseID, cmd.LessonID,
		int(result.TotalXP), cmd.IsPerfect, result.IsRepeat,
	))

	switch result.Streak.Transition {
	case gamification.StreakStarted, gamification.StreakAdvanced:
		h.publish(shared.NewStreakUpdatedEvent(cmd.UserID, result.Streak.CurrentStreak, result.Streak.LongestStreak))
	case gamification.StreakReset:
		if result.Streak.Broken() {
			h.publish(shared.NewStreakBrokenEvent(cmd.UserID, result.Streak.PreviousStreak, result.Streak.DaysMissed))
		}
		h.publish(shared.NewStreakUpdatedEvent(cmd.UserID, result.Streak.CurrentStreak, result.Streak.LongestStreak))
	}

	if result.TotalXP > 0 {
		h.publish(shared.NewXPGainedEvent(
			cmd.UserID, cmd.CourseID,
			int(result.TotalXP), int(result.Stats.TotalXP),
			string(gamification.RewardLessonComplete),
		))
	}

	for _, ach := range result.Unlocked {
		h.publish(shared.NewAchievementUnlockedEvent(cmd.UserID, ach.ID, string(ach.Type), int(ach.XPReward)))
	}
}

func (h *ReportLessonHandler) publish(event shared.Event) {
	if err := h.bus.Publish(event); err != nil {
		h.log.Warn("failed to publish event", logger.String("event_type", string(event.EventType())), logger.Err(err))
	}
}

// rebuildAffected перестраивает области, которые мог изменить отчёт.
// Выполняется после снятия блокировки пользователя: перестроение читает
// снимок хранилища и не нуждается во взаимном исключении.
func (h *ReportLessonHandler) rebuildAffected(ctx context.Context, courseID string) {
	if h.rebuilder == nil {
		return
	}

	scopes := []leaderboard.Scope{
		leaderboard.GlobalScope(),
		leaderboard.CourseScope(courseID),
		leaderboard.WeeklyScope(),
	}
	if err := h.rebuilder.RebuildScopes(ctx, scopes); err != nil {
		h.log.Warn("failed to rebuild leaderboards", logger.CourseID(courseID), logger.Err(err))
	}
}
