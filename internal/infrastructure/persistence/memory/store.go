// Package memory provides in-memory implementations of the persistence
// ports. Used for tests and single-process deployments without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/alem-gamification/internal/domain/gamification"
	"github.com/alem-hub/alem-gamification/internal/domain/leaderboard"
	"github.com/alem-hub/alem-gamification/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS STORE
// ══════════════════════════════════════════════════════════════════════════════

// StatsStore is an in-memory gamification.StatsStore and XPGrantLog.
// All reads return deep copies; writes go through optimistic version checks,
// mirroring the PostgreSQL implementation's semantics.
type StatsStore struct {
	mu     sync.RWMutex
	stats  map[string]*gamification.UserStats
	order  []string // insertion order, keeps List deterministic for ranking ties
	grants []gamification.XPGrant
}

// NewStatsStore creates an empty in-memory stats store.
func NewStatsStore() *StatsStore {
	return &StatsStore{
		stats: make(map[string]*gamification.UserStats),
	}
}

// Load returns a deep copy of the user's stats.
func (s *StatsStore) Load(ctx context.Context, userID string) (*gamification.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.stats[userID]
	if !ok {
		return nil, shared.ErrUserStatsNotFound
	}
	return stats.Clone(), nil
}

// Save persists the stats with an optimistic version check: the incoming
// version must match the stored one, otherwise the record was modified
// concurrently and the caller has to reload and retry.
func (s *StatsStore) Save(ctx context.Context, stats *gamification.UserStats) error {
	if stats == nil || stats.UserID == "" {
		return shared.ErrInvalidUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.stats[stats.UserID]
	if ok && existing.Version != stats.Version {
		return shared.ErrStoreConflict
	}

	stored := stats.Clone()
	stored.Version++
	s.stats[stats.UserID] = stored
	if !ok {
		s.order = append(s.order, stats.UserID)
	}

	// Caller sees the new version so a follow-up Save does not conflict.
	stats.Version = stored.Version
	return nil
}

// List returns deep copies of all stats in insertion order.
func (s *StatsStore) List(ctx context.Context) ([]*gamification.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*gamification.UserStats, 0, len(s.order))
	for _, userID := range s.order {
		all = append(all, s.stats[userID].Clone())
	}
	return all, nil
}

// RecordGrant appends an XP grant to the log.
func (s *StatsStore) RecordGrant(ctx context.Context, grant gamification.XPGrant) error {
	if grant.UserID == "" {
		return shared.ErrInvalidUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants = append(s.grants, grant)
	return nil
}

// XPInWindow sums the user's grants in [from, to).
func (s *StatsStore) XPInWindow(ctx context.Context, userID string, from, to time.Time) (gamification.XP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total gamification.XP
	for _, g := range s.grants {
		if g.UserID != userID {
			continue
		}
		if g.GrantedAt.Before(from) || !g.GrantedAt.Before(to) {
			continue
		}
		total += g.Amount
	}
	return total, nil
}

// PruneBefore drops grants older than cutoff.
func (s *StatsStore) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.grants[:0]
	pruned := 0
	for _, g := range s.grants {
		if g.GrantedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, g)
	}
	s.grants = kept
	return pruned, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD STORE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardStore is an in-memory leaderboard.Repository.
type LeaderboardStore struct {
	mu     sync.RWMutex
	boards map[string]*leaderboard.Leaderboard
}

// NewLeaderboardStore creates an empty in-memory leaderboard store.
func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{
		boards: make(map[string]*leaderboard.Leaderboard),
	}
}

// Save replaces the stored snapshot for the leaderboard's scope.
func (s *LeaderboardStore) Save(ctx context.Context, lb *leaderboard.Leaderboard) error {
	if err := lb.Scope.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[lb.Scope.Key()] = lb.Clone()
	return nil
}

// Get returns a deep copy of the scope's latest snapshot.
func (s *LeaderboardStore) Get(ctx context.Context, scope leaderboard.Scope) (*leaderboard.Leaderboard, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lb, ok := s.boards[scope.Key()]
	if !ok {
		return nil, shared.ErrLeaderboardNotBuilt
	}
	return lb.Clone(), nil
}

// Scopes returns all scopes with stored snapshots, sorted by key.
func (s *LeaderboardStore) Scopes(ctx context.Context) ([]leaderboard.Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.boards))
	for key := range s.boards {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	scopes := make([]leaderboard.Scope, 0, len(keys))
	for _, key := range keys {
		scopes = append(scopes, s.boards[key].Scope)
	}
	return scopes, nil
}
