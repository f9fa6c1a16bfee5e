package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-gamification/internal/domain/shared"
	"github.com/alem-hub/alem-gamification/pkg/timeutil"
)

// stubTargets реализует CourseTargets для тестов.
type stubTargets map[string]int

func (s stubTargets) LessonTarget(courseID string) (int, bool) {
	target, ok := s[courseID]
	return target, ok
}

func newTestStats(t *testing.T) *UserStats {
	t.Helper()
	stats, err := NewUserStats("user-1", timeutil.DateTime(2026, 3, 1, 10, 0, 0))
	require.NoError(t, err)
	return stats
}

func TestNewAchievementSetMatchesCatalog(t *testing.T) {
	set := NewAchievementSet()
	types := AllAchievementTypes()

	require.Len(t, set, len(types))
	for i, ach := range set {
		assert.Equal(t, types[i], ach.Type)
		assert.Equal(t, string(types[i]), ach.ID)
		assert.False(t, ach.IsUnlocked())
	}
}

func TestUnlockIsTerminal(t *testing.T) {
	set := NewAchievementSet()
	ach := &set[0]
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	require.NoError(t, ach.Unlock(now))
	assert.True(t, ach.IsUnlocked())
	assert.Equal(t, ach.Target, ach.Progress)

	err := ach.Unlock(now.Add(time.Hour))
	assert.ErrorIs(t, err, shared.ErrAlreadyUnlocked)
}

func TestCheckAllFirstLesson(t *testing.T) {
	evaluator := NewEvaluator(nil)
	stats := newTestStats(t)
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	unlocked := evaluator.CheckAll(stats, now)
	assert.Empty(t, unlocked)

	stats.MarkLessonCompleted("go-basics", "lesson-1")
	unlocked = evaluator.CheckAll(stats, now)

	types := unlockedTypes(unlocked)
	assert.Contains(t, types, AchievementFirstLesson)
}

func TestCheckAllStreak3UnlocksOnce(t *testing.T) {
	evaluator := NewEvaluator(nil)
	stats := newTestStats(t)
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	stats.CurrentStreak = 3
	stats.LongestStreak = 3

	unlocked := evaluator.CheckAll(stats, now)
	assert.Contains(t, unlockedTypes(unlocked), AchievementStreak3)

	// Серия держится, но повторной разблокировки нет.
	stats.CurrentStreak = 4
	stats.LongestStreak = 4
	unlocked = evaluator.CheckAll(stats, now)
	assert.NotContains(t, unlockedTypes(unlocked), AchievementStreak3)

	// Сброс серии не запирает достижение обратно.
	stats.CurrentStreak = 1
	unlocked = evaluator.CheckAll(stats, now)
	assert.NotContains(t, unlockedTypes(unlocked), AchievementStreak3)
	assert.True(t, findAchievement(t, stats, AchievementStreak3).IsUnlocked())
}

func TestCheckAllStreakLadder(t *testing.T) {
	evaluator := NewEvaluator(nil)
	stats := newTestStats(t)
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	stats.CurrentStreak = 30
	stats.LongestStreak = 30

	unlocked := evaluator.CheckAll(stats, now)
	types := unlockedTypes(unlocked)

	// Длинная серия разблокирует все ступени сразу.
	assert.Contains(t, types, AchievementStreak3)
	assert.Contains(t, types, AchievementStreak7)
	assert.Contains(t, types, AchievementStreak30)
}

func TestCheckAllCourseCompleteWithTarget(t *testing.T) {
	evaluator := NewEvaluator(stubTargets{"go-basics": 3})
	stats := newTestStats(t)
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	stats.MarkLessonCompleted("go-basics", "lesson-1")
	stats.MarkLessonCompleted("go-basics", "lesson-2")
	unlocked := evaluator.CheckAll(stats, now)
	assert.NotContains(t, unlockedTypes(unlocked), AchievementCourseComplete)

	stats.MarkLessonCompleted("go-basics", "lesson-3")
	unlocked = evaluator.CheckAll(stats, now)
	assert.Contains(t, unlockedTypes(unlocked), AchievementCourseComplete)
}

func TestCheckAllCourseCompleteWithoutProvider(t *testing.T) {
	evaluator := NewEvaluator(nil)
	stats := newTestStats(t)
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	// Без каталога курсов первый урок завершает курс.
	stats.MarkLessonCompleted("go-basics", "lesson-1")
	unlocked := evaluator.CheckAll(stats, now)
	assert.Contains(t, unlockedTypes(unlocked), AchievementCourseComplete)
}

func TestCheckAllPerfectScore(t *testing.T) {
	evaluator := NewEvaluator(nil)
	stats := newTestStats(t)
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	unlocked := evaluator.CheckAll(stats, now)
	assert.NotContains(t, unlockedTypes(unlocked), AchievementPerfectScore)

	stats.RecordPerfectLesson()
	unlocked = evaluator.CheckAll(stats, now)
	assert.Contains(t, unlockedTypes(unlocked), AchievementPerfectScore)
}

func TestCheckAllPerfectScoreIgnoresCourseXP(t *testing.T) {
	evaluator := NewEvaluator(nil)
	stats := newTestStats(t)
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	// Условие - идеально сданный урок, а не накопленный XP курса.
	stats.AddXP("go-basics", 500)
	unlocked := evaluator.CheckAll(stats, now)
	assert.NotContains(t, unlockedTypes(unlocked), AchievementPerfectScore)

	stats.RecordPerfectLesson()
	unlocked = evaluator.CheckAll(stats, now)
	assert.Contains(t, unlockedTypes(unlocked), AchievementPerfectScore)
}

func TestCheckAllReservedTypesStayLocked(t *testing.T) {
	evaluator := NewEvaluator(nil)
	stats := newTestStats(t)
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	stats.CurrentStreak = 100
	stats.LongestStreak = 100
	stats.PerfectLessons = 50
	for i := 0; i < 20; i++ {
		stats.MarkLessonCompleted("go-basics", "lesson-"+string(rune('a'+i)))
	}

	evaluator.CheckAll(stats, now)

	for _, reserved := range []AchievementType{AchievementEarlyBird, AchievementNightOwl, AchievementSocialButterfly} {
		assert.False(t, findAchievement(t, stats, reserved).IsUnlocked(), string(reserved))
	}
}

func TestCheckAllUpdatesProgress(t *testing.T) {
	evaluator := NewEvaluator(nil)
	stats := newTestStats(t)
	now := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	stats.CurrentStreak = 2
	stats.LongestStreak = 2
	evaluator.CheckAll(stats, now)

	ach := findAchievement(t, stats, AchievementStreak7)
	assert.Equal(t, 2, ach.Progress)
	assert.False(t, ach.IsUnlocked())
}

func unlockedTypes(achievements []Achievement) []AchievementType {
	types := make([]AchievementType, 0, len(achievements))
	for _, a := range achievements {
		types = append(types, a.Type)
	}
	return types
}

func findAchievement(t *testing.T, stats *UserStats, achType AchievementType) *Achievement {
	t.Helper()
	for i := range stats.Achievements {
		if stats.Achievements[i].Type == achType {
			return &stats.Achievements[i]
		}
	}
	t.Fatalf("achievement %s not found", achType)
	return nil
}
