package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-gamification/internal/domain/shared"
	"github.com/alem-hub/alem-gamification/pkg/timeutil"
)

func TestNewUserStats(t *testing.T) {
	now := timeutil.DateTime(2026, 3, 1, 10, 0, 0)

	stats, err := NewUserStats("user-1", now)
	require.NoError(t, err)

	assert.Equal(t, "user-1", stats.UserID)
	assert.Equal(t, XP(0), stats.TotalXP)
	assert.Equal(t, 0, stats.CurrentStreak)
	assert.Len(t, stats.Achievements, len(AllAchievementTypes()))
	assert.Empty(t, stats.CourseProgress)
	require.NoError(t, stats.Validate())

	_, err = NewUserStats("", now)
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestMarkLessonCompletedIdempotent(t *testing.T) {
	stats := newTestStats(t)

	assert.True(t, stats.MarkLessonCompleted("go-basics", "lesson-1"))
	assert.False(t, stats.MarkLessonCompleted("go-basics", "lesson-1"))
	assert.True(t, stats.MarkLessonCompleted("go-basics", "lesson-2"))
	assert.True(t, stats.MarkLessonCompleted("go-advanced", "lesson-1"))

	assert.Equal(t, 2, stats.Course("go-basics").CompletedCount())
	assert.Equal(t, 1, stats.Course("go-advanced").CompletedCount())
	assert.Equal(t, 3, stats.TotalLessonsCompleted())
}

func TestAddXPUpdatesBothCounters(t *testing.T) {
	stats := newTestStats(t)

	stats.AddXP("go-basics", 120)
	stats.AddXP("go-basics", 50)
	stats.AddXP("go-advanced", 30)

	assert.Equal(t, XP(200), stats.TotalXP)
	assert.Equal(t, XP(170), stats.Course("go-basics").XP)
	assert.Equal(t, XP(30), stats.Course("go-advanced").XP)

	// Нулевые и отрицательные начисления игнорируются.
	stats.AddXP("go-basics", 0)
	stats.AddXP("go-basics", -10)
	assert.Equal(t, XP(200), stats.TotalXP)
}

func TestRecordActivityDrivesStreak(t *testing.T) {
	stats := newTestStats(t)

	update := stats.RecordActivity(timeutil.DateTime(2026, 3, 1, 10, 0, 0))
	assert.Equal(t, StreakStarted, update.Transition)
	assert.Equal(t, 1, stats.CurrentStreak)

	update = stats.RecordActivity(timeutil.DateTime(2026, 3, 2, 10, 0, 0))
	assert.Equal(t, StreakAdvanced, update.Transition)
	assert.Equal(t, 2, stats.CurrentStreak)
	assert.Equal(t, 2, stats.LongestStreak)

	update = stats.RecordActivity(timeutil.DateTime(2026, 3, 5, 10, 0, 0))
	assert.Equal(t, StreakReset, update.Transition)
	assert.Equal(t, 1, stats.CurrentStreak)
	assert.Equal(t, 2, stats.LongestStreak)
	require.NoError(t, stats.Validate())
}

func TestCourseStreaksAreIndependent(t *testing.T) {
	stats := newTestStats(t)
	day := timeutil.DateTime(2026, 3, 1, 10, 0, 0)

	stats.Course("go-basics").RecordActivity(day)
	stats.Course("go-basics").RecordActivity(day.AddDate(0, 0, 1))
	stats.Course("go-advanced").RecordActivity(day.AddDate(0, 0, 1))

	assert.Equal(t, 2, stats.Course("go-basics").CurrentStreak)
	assert.Equal(t, 1, stats.Course("go-advanced").CurrentStreak)

	// Пропуск дня сбрасывает серию только этого курса.
	stats.Course("go-advanced").RecordActivity(day.AddDate(0, 0, 3))
	assert.Equal(t, 1, stats.Course("go-advanced").CurrentStreak)
	assert.Equal(t, 2, stats.Course("go-basics").CurrentStreak)
}

func TestCloneIsDeep(t *testing.T) {
	stats := newTestStats(t)
	stats.AddXP("go-basics", 100)
	stats.MarkLessonCompleted("go-basics", "lesson-1")
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)
	require.NoError(t, stats.Achievements[0].Unlock(now))

	clone := stats.Clone()

	// Мутации копии не видны оригиналу.
	clone.AddXP("go-basics", 500)
	clone.MarkLessonCompleted("go-basics", "lesson-2")
	clone.Achievements[1].Progress = 99
	unlockedAt := clone.Achievements[0].UnlockedAt
	*unlockedAt = unlockedAt.Add(time.Hour)

	assert.Equal(t, XP(100), stats.TotalXP)
	assert.Equal(t, 1, stats.Course("go-basics").CompletedCount())
	assert.Equal(t, 0, stats.Achievements[1].Progress)
	assert.Equal(t, now, *stats.Achievements[0].UnlockedAt)
}

func TestValidateCatchesBrokenInvariants(t *testing.T) {
	stats := newTestStats(t)

	stats.CurrentStreak = 5
	stats.LongestStreak = 3
	assert.Error(t, stats.Validate())

	stats.CurrentStreak = 0
	stats.LongestStreak = 0
	stats.TotalXP = -1
	assert.Error(t, stats.Validate())
}
