package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-gamification/internal/application/command"
	"github.com/alem-hub/alem-gamification/internal/application/query"
	"github.com/alem-hub/alem-gamification/internal/domain/gamification"
	"github.com/alem-hub/alem-gamification/internal/domain/leaderboard"
	"github.com/alem-hub/alem-gamification/internal/domain/shared"
	"github.com/alem-hub/alem-gamification/internal/infrastructure/messaging"
	"github.com/alem-hub/alem-gamification/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/alem-gamification/pkg/timeutil"
)

// stubTargets реализует gamification.CourseTargets.
type stubTargets map[string]int

func (s stubTargets) LessonTarget(courseID string) (int, bool) {
	target, ok := s[courseID]
	return target, ok
}

// stubResolver реализует command.UsernameResolver.
type stubResolver map[string]string

func (s stubResolver) Usernames(ctx context.Context, ids []string) (map[string]string, error) {
	return s, nil
}

type fixture struct {
	svc   *Service
	store *memory.StatsStore
	bus   *messaging.InMemoryEventBus
	now   time.Time
	mu    sync.Mutex
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func newFixture(t *testing.T, targets stubTargets) *fixture {
	t.Helper()

	store := memory.NewStatsStore()
	bus := messaging.NewInMemoryEventBus(messaging.EventBusConfig{AsyncMode: false})
	t.Cleanup(func() { bus.Close() })

	f := &fixture{
		store: store,
		bus:   bus,
		now:   timeutil.DateTime(2026, 3, 10, 12, 0, 0),
	}

	f.svc = NewService(Dependencies{
		Stats:         store,
		Grants:        store,
		Leaderboards:  memory.NewLeaderboardStore(),
		CourseTargets: targets,
		Usernames:     stubResolver{"user-1": "Aliya"},
		Bus:           bus,
	})
	f.svc.ReportLesson.WithClock(f.clock)
	f.svc.Rebuild.WithClock(f.clock)
	f.svc.UserStats.WithClock(f.clock)

	return f
}

func report(t *testing.T, f *fixture, userID, lessonID string, perfect bool) *command.ReportLessonResult {
	t.Helper()
	result, err := f.svc.ReportLesson.Handle(context.Background(), command.ReportLessonCommand{
		UserID:    userID,
		CourseID:  "go-basics",
		LessonID:  lessonID,
		BaseScore: 1.0,
		IsPerfect: perfect,
	})
	require.NoError(t, err)
	return result
}

func TestReportFirstLesson(t *testing.T) {
	f := newFixture(t, stubTargets{"go-basics": 10})

	result := report(t, f, "user-1", "lesson-1", false)

	// 100 базовых + 10 за серию в 1 день + first_lesson (25 базовых
	// + 25 собственных).
	assert.Equal(t, gamification.XP(160), result.TotalXP)
	assert.False(t, result.IsRepeat)
	assert.Equal(t, gamification.StreakStarted, result.Streak.Transition)
	assert.Equal(t, 1, result.Streak.CurrentStreak)

	require.Len(t, result.Unlocked, 1)
	assert.Equal(t, gamification.AchievementFirstLesson, result.Unlocked[0].Type)

	require.Len(t, result.Rewards, 3)
	assert.Equal(t, gamification.RewardLessonComplete, result.Rewards[0].Type)
	assert.Equal(t, gamification.XP(100), result.Rewards[0].Amount)
	assert.Equal(t, gamification.RewardStreakBonus, result.Rewards[1].Type)
	assert.Equal(t, gamification.XP(10), result.Rewards[1].Amount)
	assert.Equal(t, gamification.RewardAchievement, result.Rewards[2].Type)
	assert.Equal(t, gamification.XP(50), result.Rewards[2].Amount)
}

func TestReportWithStreakAndPerfectBonus(t *testing.T) {
	f := newFixture(t, stubTargets{"go-basics": 10})

	report(t, f, "user-1", "lesson-1", false)
	f.setNow(timeutil.DateTime(2026, 3, 11, 12, 0, 0))

	result := report(t, f, "user-1", "lesson-2", false)

	// Серия стала 2: 100 базовых + 20 бонуса серии.
	assert.Equal(t, 2, result.Streak.CurrentStreak)
	lessonXP := rewardAmount(result.Rewards, gamification.RewardLessonComplete) +
		rewardAmount(result.Rewards, gamification.RewardStreakBonus)
	assert.Equal(t, gamification.XP(120), lessonXP)

	f.setNow(timeutil.DateTime(2026, 3, 11, 15, 0, 0))
	perfect := report(t, f, "user-1", "lesson-3", true)

	lessonXP = rewardAmount(perfect.Rewards, gamification.RewardLessonComplete) +
		rewardAmount(perfect.Rewards, gamification.RewardStreakBonus) +
		rewardAmount(perfect.Rewards, gamification.RewardPerfectScore)
	assert.Equal(t, gamification.XP(170), lessonXP)
	assert.Contains(t, unlockedTypes(perfect.Unlocked), gamification.AchievementPerfectScore)
}

func TestRepeatLessonGivesNoXP(t *testing.T) {
	f := newFixture(t, stubTargets{"go-basics": 10})

	first := report(t, f, "user-1", "lesson-1", false)
	require.False(t, first.IsRepeat)

	f.setNow(timeutil.DateTime(2026, 3, 11, 12, 0, 0))
	repeat := report(t, f, "user-1", "lesson-1", false)

	assert.True(t, repeat.IsRepeat)
	assert.Equal(t, gamification.XP(0), repeat.TotalXP)
	assert.Empty(t, repeat.Rewards)
	assert.Empty(t, repeat.Unlocked)
	// Активность засчитана: серия продолжилась на следующий день.
	assert.Equal(t, 2, repeat.Streak.CurrentStreak)
	assert.Equal(t, first.Stats.TotalXP, repeat.Stats.TotalXP)
}

func TestRepeatLessonStillUnlocksStreakMilestones(t *testing.T) {
	f := newFixture(t, stubTargets{"go-basics": 10})

	day := timeutil.DateTime(2026, 3, 10, 12, 0, 0)
	report(t, f, "user-1", "lesson-1", false)
	f.setNow(day.AddDate(0, 0, 1))
	report(t, f, "user-1", "lesson-2", false)

	// Третий день активности - повторный урок. Серия доходит до 3
	// и веха разблокируется, хотя XP повтор не приносит.
	f.setNow(day.AddDate(0, 0, 2))
	repeat := report(t, f, "user-1", "lesson-1", false)

	assert.True(t, repeat.IsRepeat)
	assert.Equal(t, 3, repeat.Streak.CurrentStreak)
	assert.Equal(t, gamification.XP(0), repeat.TotalXP)
	assert.Empty(t, repeat.Rewards)
	assert.Contains(t, unlockedTypes(repeat.Unlocked), gamification.AchievementStreak3)

	// Разблокировка сохранена и не повторяется в следующем отчёте.
	f.setNow(day.AddDate(0, 0, 3))
	next := report(t, f, "user-1", "lesson-3", false)
	assert.NotContains(t, unlockedTypes(next.Unlocked), gamification.AchievementStreak3)
}

func TestRewardsCarryGrantTimestamp(t *testing.T) {
	f := newFixture(t, stubTargets{"go-basics": 10})

	result := report(t, f, "user-1", "lesson-1", true)

	require.NotEmpty(t, result.Rewards)
	for _, r := range result.Rewards {
		assert.Equal(t, f.clock(), r.GrantedAt, string(r.Type))
	}
}

func TestCourseStreakFollowsReports(t *testing.T) {
	f := newFixture(t, stubTargets{"go-basics": 10})

	day := timeutil.DateTime(2026, 3, 10, 12, 0, 0)
	report(t, f, "user-1", "lesson-1", false)
	f.setNow(day.AddDate(0, 0, 1))
	result := report(t, f, "user-1", "lesson-2", false)

	require.Contains(t, result.Stats.CourseProgress, "go-basics")
	assert.Equal(t, 2, result.Stats.CourseProgress["go-basics"].CurrentStreak)
	assert.False(t, result.Stats.CourseProgress["go-basics"].LastActivityDate.IsZero())
}

func TestStreakAchievementUnlocksExactlyOnce(t *testing.T) {
	f := newFixture(t, stubTargets{"go-basics": 100})

	day := timeutil.DateTime(2026, 3, 10, 12, 0, 0)
	var allUnlocked []gamification.AchievementType
	for i := 0; i < 5; i++ {
		f.setNow(day.AddDate(0, 0, i))
		result := report(t, f, "user-1", fmt.Sprintf("lesson-%d", i), false)
		allUnlocked = append(allUnlocked, unlockedTypes(result.Unlocked)...)
	}

	count := 0
	for _, tp := range allUnlocked {
		if tp == gamification.AchievementStreak3 {
			count++
		}
	}
	assert.Equal(t, 1, count, "streak_3 разблокируется ровно один раз")
}

func TestLeaderboardsRebuiltAfterReport(t *testing.T) {
	f := newFixture(t, stubTargets{"go-basics": 100})
	ctx := context.Background()

	report(t, f, "user-1", "lesson-1", false)
	report(t, f, "user-2", "lesson-1", true)

	for _, scope := range []leaderboard.Scope{
		leaderboard.GlobalScope(),
		leaderboard.CourseScope("go-basics"),
		leaderboard.WeeklyScope(),
	} {
		view, err := f.svc.Leaderboard.Handle(ctx, query.GetLeaderboardQuery{Scope: scope})
		require.NoError(t, err, scope.Key())
		assert.Equal(t, 2, view.Total, scope.Key())
	}

	// user-2 сдал идеально и получил больше XP.
	view, err := f.svc.Leaderboard.Handle(ctx, query.GetLeaderboardQuery{Scope: leaderboard.GlobalScope(), Limit: 1})
	require.NoError(t, err)
	require.Len(t, view.Entries, 1)
	assert.Equal(t, "user-2", view.Entries[0].UserID)
	assert.Equal(t, 1, view.Entries[0].Rank)
}

func TestWeeklyScopeIgnoresOldGrants(t *testing.T) {
	f := newFixture(t, stubTargets{"go-basics": 100})
	ctx := context.Background()

	// user-1 зарабатывает много, но давно.
	f.setNow(timeutil.DateTime(2026, 2, 1, 12, 0, 0))
	report(t, f, "user-1", "lesson-1", true)
	report(t, f, "user-1", "lesson-2", true)

	// user-2 зарабатывает немного, но на этой неделе.
	f.setNow(timeutil.DateTime(2026, 3, 10, 12, 0, 0))
	report(t, f, "user-2", "lesson-1", false)

	view, err := f.svc.Leaderboard.Handle(ctx, query.GetLeaderboardQuery{Scope: leaderboard.WeeklyScope()})
	require.NoError(t, err)
	require.Equal(t, 2, view.Total)
	assert.Equal(t, "user-2", view.Entries[0].UserID)
	assert.Equal(t, 0, view.Entries[1].XP, "старые начисления вне окна")

	// Глобальная область помнит всё.
	global, err := f.svc.Leaderboard.Handle(ctx, query.GetLeaderboardQuery{Scope: leaderboard.GlobalScope()})
	require.NoError(t, err)
	assert.Equal(t, "user-1", global.Entries[0].UserID)
}

func TestGetLeaderboardBeforeFirstRebuild(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Leaderboard.Handle(context.Background(), query.GetLeaderboardQuery{
		Scope: leaderboard.CourseScope("never-reported"),
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetUserStatsLazyCreation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	stats, err := f.svc.UserStats.Handle(ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, gamification.XP(0), stats.TotalXP)
	assert.Equal(t, 0, stats.CurrentStreak)

	// Запись создана и переживает повторное чтение.
	again, err := f.svc.UserStats.Handle(ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, stats.CreatedAt, again.CreatedAt)

	_, err = f.svc.UserStats.Handle(ctx, "")
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestReportValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.ReportLesson.Handle(ctx, command.ReportLessonCommand{
		CourseID: "go-basics", LessonID: "lesson-1", BaseScore: 1,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = f.svc.ReportLesson.Handle(ctx, command.ReportLessonCommand{
		UserID: "u", CourseID: "go-basics", LessonID: "lesson-1", BaseScore: -1,
	})
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
}

func TestConcurrentReportsSameUser(t *testing.T) {
	f := newFixture(t, stubTargets{"go-basics": 1000})
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.ReportLesson.Handle(ctx, command.ReportLessonCommand{
				UserID:    "user-1",
				CourseID:  "go-basics",
				LessonID:  fmt.Sprintf("lesson-%d", i),
				BaseScore: 1.0,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stats, err := f.svc.UserStats.Handle(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, n, stats.TotalLessonsCompleted(), "потерянных обновлений нет")

	// 16 уроков по 110 (100 базовых + 10 за серию в 1 день)
	// + first_lesson (50).
	assert.Equal(t, gamification.XP(n*110+50), stats.TotalXP)
}

func TestEventsPublishedOnReport(t *testing.T) {
	f := newFixture(t, stubTargets{"go-basics": 10})

	var mu sync.Mutex
	var types []shared.EventType
	require.NoError(t, f.bus.SubscribeAll(func(event shared.Event) error {
		mu.Lock()
		types = append(types, event.EventType())
		mu.Unlock()
		return nil
	}))

	report(t, f, "user-1", "lesson-1", false)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, types, shared.EventLessonCompleted)
	assert.Contains(t, types, shared.EventStreakUpdated)
	assert.Contains(t, types, shared.EventXPGained)
	assert.Contains(t, types, shared.EventAchievementUnlocked)
	assert.Contains(t, types, shared.EventLeaderboardRebuilt)
}

func rewardAmount(rewards []gamification.Reward, rewardType gamification.RewardType) gamification.XP {
	for _, r := range rewards {
		if r.Type == rewardType {
			return r.Amount
		}
	}
	return 0
}

func unlockedTypes(achievements []gamification.Achievement) []gamification.AchievementType {
	types := make([]gamification.AchievementType, 0, len(achievements))
	for _, a := range achievements {
		types = append(types, a.Type)
	}
	return types
}
