package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-gamification/internal/domain/shared"
	"github.com/alem-hub/alem-gamification/pkg/timeutil"
)

func TestScopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		wantErr error
	}{
		{"global", GlobalScope(), nil},
		{"weekly", WeeklyScope(), nil},
		{"course", CourseScope("go-basics"), nil},
		{"course without id", Scope{Type: ScopeCourse}, shared.ErrInvalidInput},
		{"global with course id", Scope{Type: ScopeGlobal, CourseID: "go-basics"}, shared.ErrInvalidInput},
		{"unknown type", Scope{Type: "monthly"}, shared.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestScopeKey(t *testing.T) {
	assert.Equal(t, "global", GlobalScope().Key())
	assert.Equal(t, "weekly", WeeklyScope().Key())
	assert.Equal(t, "course:go-basics", CourseScope("go-basics").Key())
}

func buildTestLeaderboard(t *testing.T) *Leaderboard {
	t.Helper()
	sources := []Source{
		{UserID: "a", Username: "Aliya", TotalXP: 500},
		{UserID: "b", Username: "Bekzat", TotalXP: 400},
		{UserID: "c", Username: "Camila", TotalXP: 300},
		{UserID: "d", Username: "Dias", TotalXP: 200},
		{UserID: "e", Username: "Erlan", TotalXP: 100},
	}
	lb, err := Rebuild(GlobalScope(), sources, timeutil.DateTime(2026, 3, 10, 12, 0, 0))
	require.NoError(t, err)
	return lb
}

func TestTopClampsToSize(t *testing.T) {
	lb := buildTestLeaderboard(t)

	top := lb.Top(3)
	require.Len(t, top, 3)
	assert.Equal(t, "a", top[0].UserID)
	assert.Equal(t, 1, top[0].Rank)

	assert.Len(t, lb.Top(100), 5)
	assert.Empty(t, lb.Top(0))
}

func TestPage(t *testing.T) {
	lb := buildTestLeaderboard(t)

	page := lb.Page(2, 2)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].UserID)
	assert.Equal(t, 3, page[0].Rank)
	assert.Equal(t, "d", page[1].UserID)

	assert.Empty(t, lb.Page(10, 2))
	assert.Nil(t, lb.Page(0, 2))
}

func TestNeighbors(t *testing.T) {
	lb := buildTestLeaderboard(t)

	around := lb.Neighbors("c", 1)
	require.Len(t, around, 3)
	assert.Equal(t, "b", around[0].UserID)
	assert.Equal(t, "c", around[1].UserID)
	assert.Equal(t, "d", around[2].UserID)

	// Верхняя граница обрезается, а не заворачивается.
	top := lb.Neighbors("a", 2)
	require.Len(t, top, 3)
	assert.Equal(t, "a", top[0].UserID)

	assert.Nil(t, lb.Neighbors("missing", 1))
}

func TestFindAndRank(t *testing.T) {
	lb := buildTestLeaderboard(t)

	rank, ok := lb.Rank("b")
	assert.True(t, ok)
	assert.Equal(t, 2, rank)

	_, ok = lb.Rank("missing")
	assert.False(t, ok)
	assert.Nil(t, lb.Find("missing"))
}

func TestTopReturnsCopies(t *testing.T) {
	lb := buildTestLeaderboard(t)

	top := lb.Top(1)
	top[0].XP = 999999

	assert.Equal(t, 500, lb.Entries[0].XP)
}
