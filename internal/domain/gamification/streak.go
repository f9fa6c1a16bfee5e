package gamification

import (
	"time"

	"github.com/alem-hub/alem-gamification/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK (Серия активных дней)
// ══════════════════════════════════════════════════════════════════════════════

// StreakTransition представляет исход обновления серии.
type StreakTransition int

const (
	// StreakSameDay - повторная активность в тот же календарный день.
	StreakSameDay StreakTransition = iota
	// StreakStarted - первая активность пользователя.
	StreakStarted
	// StreakAdvanced - активность на следующий календарный день.
	StreakAdvanced
	// StreakReset - пропущен хотя бы один день, серия начата заново.
	StreakReset
)

// String возвращает строковое представление перехода.
func (t StreakTransition) String() string {
	switch t {
	case StreakSameDay:
		return "same_day"
	case StreakStarted:
		return "started"
	case StreakAdvanced:
		return "advanced"
	case StreakReset:
		return "reset"
	default:
		return "unknown"
	}
}

// StreakUpdate представляет результат применения активности к серии.
type StreakUpdate struct {
	// CurrentStreak - серия после обновления.
	CurrentStreak int

	// LongestStreak - лучшая серия после обновления.
	LongestStreak int

	// LastActivityDate - новая дата последней активности.
	LastActivityDate time.Time

	// Transition - что именно произошло с серией.
	Transition StreakTransition

	// PreviousStreak - серия до обновления (для события о сбросе).
	PreviousStreak int

	// DaysMissed - сколько календарных дней пропущено при сбросе.
	DaysMissed int
}

// Broken возвращает true, если серия была сброшена.
func (u StreakUpdate) Broken() bool {
	return u.Transition == StreakReset && u.PreviousStreak > 1
}

// AdvanceStreak применяет активность к серии и возвращает новое состояние.
// Сравнение идёт по календарным дням в часовом поясе Алматы, а не по
// прошедшим часам: активность в 23:50 и затем в 00:10 следующего дня
// продолжает серию.
//
// Три исхода:
//   - тот же день: серия не меняется, дата активности обновляется;
//   - следующий день: серия увеличивается на 1;
//   - пропуск: серия начинается заново с 1.
//
// LongestStreak только растёт и никогда не уменьшается при сбросе.
func AdvanceStreak(currentStreak, longestStreak int, lastActivity, now time.Time) StreakUpdate {
	update := StreakUpdate{
		LastActivityDate: now,
		PreviousStreak:   currentStreak,
	}

	if lastActivity.IsZero() || currentStreak == 0 {
		update.CurrentStreak = 1
		update.Transition = StreakStarted
		update.LongestStreak = maxInt(longestStreak, 1)
		return update
	}

	daysDiff := timeutil.CalendarDaysBetween(lastActivity, now)

	switch {
	case daysDiff <= 0:
		// Тот же день (или часы назад из-за рассинхрона источников).
		update.CurrentStreak = currentStreak
		update.LongestStreak = longestStreak
		update.Transition = StreakSameDay
	case daysDiff == 1:
		update.CurrentStreak = currentStreak + 1
		update.LongestStreak = maxInt(longestStreak, currentStreak+1)
		update.Transition = StreakAdvanced
	default:
		update.CurrentStreak = 1
		update.LongestStreak = maxInt(longestStreak, 1)
		update.Transition = StreakReset
		update.DaysMissed = daysDiff - 1
	}

	return update
}

// IsStreakAtRisk возвращает true, если последняя активность была вчера:
// без активности сегодня серия сбросится.
func IsStreakAtRisk(lastActivity, now time.Time) bool {
	if lastActivity.IsZero() {
		return false
	}
	return timeutil.CalendarDaysBetween(lastActivity, now) == 1
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
