package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/alem-gamification/pkg/timeutil"
)

func TestAdvanceStreakFirstActivity(t *testing.T) {
	now := timeutil.DateTime(2026, 3, 10, 14, 0, 0)

	update := AdvanceStreak(0, 0, time.Time{}, now)

	assert.Equal(t, StreakStarted, update.Transition)
	assert.Equal(t, 1, update.CurrentStreak)
	assert.Equal(t, 1, update.LongestStreak)
	assert.Equal(t, now, update.LastActivityDate)
}

func TestAdvanceStreakSameDay(t *testing.T) {
	morning := timeutil.DateTime(2026, 3, 10, 9, 0, 0)
	evening := timeutil.DateTime(2026, 3, 10, 21, 30, 0)

	update := AdvanceStreak(4, 6, morning, evening)

	assert.Equal(t, StreakSameDay, update.Transition)
	assert.Equal(t, 4, update.CurrentStreak)
	assert.Equal(t, 6, update.LongestStreak)
	assert.Equal(t, evening, update.LastActivityDate)
}

func TestAdvanceStreakConsecutiveDay(t *testing.T) {
	day1 := timeutil.DateTime(2026, 3, 10, 23, 50, 0)
	day2 := timeutil.DateTime(2026, 3, 11, 0, 10, 0)

	// Календарные дни, а не прошедшие часы: 20 минут через полночь
	// продолжают серию.
	update := AdvanceStreak(2, 2, day1, day2)

	assert.Equal(t, StreakAdvanced, update.Transition)
	assert.Equal(t, 3, update.CurrentStreak)
	assert.Equal(t, 3, update.LongestStreak)
}

func TestAdvanceStreakGapResets(t *testing.T) {
	lastWeek := timeutil.DateTime(2026, 3, 1, 12, 0, 0)
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	update := AdvanceStreak(15, 15, lastWeek, now)

	assert.Equal(t, StreakReset, update.Transition)
	assert.Equal(t, 1, update.CurrentStreak)
	assert.Equal(t, 15, update.LongestStreak, "longest streak survives the reset")
	assert.Equal(t, 15, update.PreviousStreak)
	assert.Equal(t, 8, update.DaysMissed)
	assert.True(t, update.Broken())
}

func TestAdvanceStreakLongestNeverDecreases(t *testing.T) {
	days := []time.Time{
		timeutil.DateTime(2026, 3, 1, 10, 0, 0),
		timeutil.DateTime(2026, 3, 2, 10, 0, 0),
		timeutil.DateTime(2026, 3, 3, 10, 0, 0),
		timeutil.DateTime(2026, 3, 7, 10, 0, 0), // пропуск, сброс
		timeutil.DateTime(2026, 3, 8, 10, 0, 0),
	}

	current, longest := 0, 0
	last := time.Time{}
	prevLongest := 0

	for _, day := range days {
		update := AdvanceStreak(current, longest, last, day)
		assert.GreaterOrEqual(t, update.LongestStreak, prevLongest)
		current, longest, last = update.CurrentStreak, update.LongestStreak, update.LastActivityDate
		prevLongest = update.LongestStreak
	}

	assert.Equal(t, 2, current)
	assert.Equal(t, 3, longest)
}

func TestIsStreakAtRisk(t *testing.T) {
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	assert.False(t, IsStreakAtRisk(time.Time{}, now))
	assert.False(t, IsStreakAtRisk(timeutil.DateTime(2026, 3, 10, 8, 0, 0), now))
	assert.True(t, IsStreakAtRisk(timeutil.DateTime(2026, 3, 9, 23, 0, 0), now))
	assert.False(t, IsStreakAtRisk(timeutil.DateTime(2026, 3, 7, 12, 0, 0), now))
}
