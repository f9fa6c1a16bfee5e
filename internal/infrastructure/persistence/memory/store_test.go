package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-gamification/internal/domain/gamification"
	"github.com/alem-hub/alem-gamification/internal/domain/leaderboard"
	"github.com/alem-hub/alem-gamification/internal/domain/shared"
	"github.com/alem-hub/alem-gamification/pkg/timeutil"
)

func TestStatsStoreLoadMissing(t *testing.T) {
	store := NewStatsStore()

	_, err := store.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStatsStoreSaveAndLoadCopies(t *testing.T) {
	store := NewStatsStore()
	ctx := context.Background()
	now := timeutil.DateTime(2026, 3, 1, 10, 0, 0)

	stats, err := gamification.NewUserStats("user-1", now)
	require.NoError(t, err)
	stats.AddXP("go-basics", 100)
	require.NoError(t, store.Save(ctx, stats))

	loaded, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, gamification.XP(100), loaded.TotalXP)

	// Мутации загруженной копии не протекают в хранилище.
	loaded.AddXP("go-basics", 500)
	again, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, gamification.XP(100), again.TotalXP)
}

func TestStatsStoreOptimisticLock(t *testing.T) {
	store := NewStatsStore()
	ctx := context.Background()
	now := timeutil.DateTime(2026, 3, 1, 10, 0, 0)

	stats, err := gamification.NewUserStats("user-1", now)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, stats))

	first, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	second, err := store.Load(ctx, "user-1")
	require.NoError(t, err)

	first.AddXP("", 10)
	require.NoError(t, store.Save(ctx, first))

	second.AddXP("", 20)
	err = store.Save(ctx, second)
	assert.ErrorIs(t, err, shared.ErrOptimisticLock)

	// Последовательные сохранения одной копии не конфликтуют.
	first.AddXP("", 5)
	assert.NoError(t, store.Save(ctx, first))
}

func TestStatsStoreListPreservesInsertionOrder(t *testing.T) {
	store := NewStatsStore()
	ctx := context.Background()
	now := timeutil.DateTime(2026, 3, 1, 10, 0, 0)

	for _, id := range []string{"c", "a", "b"} {
		stats, err := gamification.NewUserStats(id, now)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, stats))
	}

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].UserID)
	assert.Equal(t, "a", all[1].UserID)
	assert.Equal(t, "b", all[2].UserID)
}

func TestGrantLogWindow(t *testing.T) {
	store := NewStatsStore()
	ctx := context.Background()

	grants := []gamification.XPGrant{
		{UserID: "u1", Amount: 100, GrantedAt: timeutil.DateTime(2026, 3, 1, 12, 0, 0)},
		{UserID: "u1", Amount: 50, GrantedAt: timeutil.DateTime(2026, 3, 5, 12, 0, 0)},
		{UserID: "u1", Amount: 30, GrantedAt: timeutil.DateTime(2026, 3, 9, 12, 0, 0)},
		{UserID: "u2", Amount: 999, GrantedAt: timeutil.DateTime(2026, 3, 5, 12, 0, 0)},
	}
	for _, g := range grants {
		require.NoError(t, store.RecordGrant(ctx, g))
	}

	// Окно за 7 дней до 10 марта: попадают начисления 5-го и 9-го.
	from := timeutil.Date(2026, 3, 4)
	to := timeutil.DateTime(2026, 3, 10, 23, 59, 59)

	total, err := store.XPInWindow(ctx, "u1", from, to)
	require.NoError(t, err)
	assert.Equal(t, gamification.XP(80), total)

	pruned, err := store.PruneBefore(ctx, from)
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	total, err = store.XPInWindow(ctx, "u1", timeutil.Date(2026, 1, 1), to)
	require.NoError(t, err)
	assert.Equal(t, gamification.XP(80), total, "старые записи удалены")
}

func TestLeaderboardStoreRoundTrip(t *testing.T) {
	store := NewLeaderboardStore()
	ctx := context.Background()

	_, err := store.Get(ctx, leaderboard.GlobalScope())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	lb, err := leaderboard.Rebuild(leaderboard.GlobalScope(), []leaderboard.Source{
		{UserID: "a", TotalXP: 100},
	}, timeutil.Now())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, lb))

	got, err := store.Get(ctx, leaderboard.GlobalScope())
	require.NoError(t, err)
	assert.Equal(t, 1, got.Size())

	scopes, err := store.Scopes(ctx)
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, leaderboard.ScopeGlobal, scopes[0].Type)
}

func TestLeaderboardStoreRejectsInvalidScope(t *testing.T) {
	store := NewLeaderboardStore()

	_, err := store.Get(context.Background(), leaderboard.Scope{Type: "monthly"})
	assert.Error(t, err)
}
