package leaderboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-gamification/pkg/timeutil"
)

func TestRebuildStableTieOrder(t *testing.T) {
	// A, B, C добавлены в этом порядке; A и B имеют равный XP.
	sources := []Source{
		{UserID: "a", Username: "Aliya", TotalXP: 300},
		{UserID: "b", Username: "Bekzat", TotalXP: 300},
		{UserID: "c", Username: "Camila", TotalXP: 100},
	}

	lb, err := Rebuild(GlobalScope(), sources, timeutil.DateTime(2026, 3, 10, 12, 0, 0))
	require.NoError(t, err)

	require.Equal(t, 3, lb.Size())
	assert.Equal(t, "a", lb.Entries[0].UserID)
	assert.Equal(t, "b", lb.Entries[1].UserID)
	assert.Equal(t, "c", lb.Entries[2].UserID)

	// Ранги уникальны и идут подряд даже при равном XP.
	assert.Equal(t, 1, lb.Entries[0].Rank)
	assert.Equal(t, 2, lb.Entries[1].Rank)
	assert.Equal(t, 3, lb.Entries[2].Rank)
}

func TestRebuildIdempotent(t *testing.T) {
	sources := []Source{
		{UserID: "a", TotalXP: 300},
		{UserID: "b", TotalXP: 300},
		{UserID: "c", TotalXP: 500},
	}
	at := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	first, err := Rebuild(GlobalScope(), sources, at)
	require.NoError(t, err)
	second, err := Rebuild(GlobalScope(), sources, at)
	require.NoError(t, err)

	require.Equal(t, first.Size(), second.Size())
	for i := range first.Entries {
		assert.Equal(t, first.Entries[i].UserID, second.Entries[i].UserID)
		assert.Equal(t, first.Entries[i].Rank, second.Entries[i].Rank)
	}
}

func TestRebuildCourseScopeFiltersParticipants(t *testing.T) {
	sources := []Source{
		{UserID: "a", TotalXP: 900, CourseXP: map[string]int{"go-basics": 50}},
		{UserID: "b", TotalXP: 100, CourseXP: map[string]int{"go-basics": 200}},
		{UserID: "c", TotalXP: 500}, // не записан на курс
	}

	lb, err := Rebuild(CourseScope("go-basics"), sources, timeutil.DateTime(2026, 3, 10, 12, 0, 0))
	require.NoError(t, err)

	require.Equal(t, 2, lb.Size())
	// Ранжирование по XP курса, а не по суммарному.
	assert.Equal(t, "b", lb.Entries[0].UserID)
	assert.Equal(t, 200, lb.Entries[0].XP)
	assert.Equal(t, "a", lb.Entries[1].UserID)
	assert.Nil(t, lb.Find("c"))
}

func TestRebuildWeeklyScopeUsesWeeklyXP(t *testing.T) {
	sources := []Source{
		{UserID: "a", TotalXP: 9000, WeeklyXP: 10},
		{UserID: "b", TotalXP: 100, WeeklyXP: 300},
	}

	lb, err := Rebuild(WeeklyScope(), sources, timeutil.DateTime(2026, 3, 10, 12, 0, 0))
	require.NoError(t, err)

	assert.Equal(t, "b", lb.Entries[0].UserID)
	assert.Equal(t, 300, lb.Entries[0].XP)
}

func TestRebuildRejectsInvalidScope(t *testing.T) {
	_, err := Rebuild(Scope{Type: "monthly"}, nil, timeutil.Now())
	assert.Error(t, err)
}

func TestRebuildEmptySources(t *testing.T) {
	lb, err := Rebuild(GlobalScope(), nil, timeutil.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, lb.Size())
	assert.Empty(t, lb.Top(10))
}

func TestApplyPreviousComputesRankChange(t *testing.T) {
	at := timeutil.DateTime(2026, 3, 10, 12, 0, 0)

	prev, err := Rebuild(GlobalScope(), []Source{
		{UserID: "a", TotalXP: 300},
		{UserID: "b", TotalXP: 200},
		{UserID: "c", TotalXP: 100},
	}, at)
	require.NoError(t, err)

	// c обгоняет всех, появляется новичок d.
	next, err := Rebuild(GlobalScope(), []Source{
		{UserID: "a", TotalXP: 300},
		{UserID: "b", TotalXP: 200},
		{UserID: "c", TotalXP: 400},
		{UserID: "d", TotalXP: 250},
	}, at.Add(time.Hour))
	require.NoError(t, err)

	moves := next.ApplyPrevious(prev)

	assert.Equal(t, 2, next.Find("c").RankChange) // был 3-м, стал 1-м
	assert.Equal(t, -1, next.Find("a").RankChange)
	assert.Equal(t, -2, next.Find("b").RankChange)
	assert.Equal(t, 0, next.Find("d").RankChange, "новичок без изменения")

	// В moves попадают только реально сместившиеся старожилы.
	moved := make(map[string]RankMove)
	for _, m := range moves {
		moved[m.UserID] = m
	}
	assert.Contains(t, moved, "c")
	assert.Contains(t, moved, "a")
	assert.NotContains(t, moved, "d")
}
