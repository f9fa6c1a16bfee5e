package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/alem-gamification/internal/domain/leaderboard"
	"github.com/alem-hub/alem-gamification/pkg/circuitbreaker"
	"github.com/alem-hub/alem-gamification/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GUARDED CACHE
// ══════════════════════════════════════════════════════════════════════════════

// GuardedLeaderboardCache wraps a leaderboard cache with a circuit
// breaker. When Redis starts failing, the breaker opens and every call
// returns ErrCacheMiss immediately, so readers fall through to the
// snapshot repository instead of waiting out Redis timeouts on each
// request.
//
// Cache misses are not failures: only transport errors trip the breaker.
type GuardedLeaderboardCache struct {
	inner   leaderboard.Cache
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedLeaderboardCache wraps inner with a breaker tuned for the
// leaderboard read path.
func NewGuardedLeaderboardCache(inner leaderboard.Cache, log *logger.Logger) *GuardedLeaderboardCache {
	if log == nil {
		log = logger.Default()
	}

	breaker := circuitbreaker.New(
		"leaderboard-cache",
		circuitbreaker.WithFailureThreshold(3),
		circuitbreaker.WithSuccessThreshold(1),
		circuitbreaker.WithTimeout(15*time.Second),
		circuitbreaker.WithMaxHalfOpenRequests(1),
		circuitbreaker.WithIsFailure(isTransportFailure),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("cache circuit state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	)

	return &GuardedLeaderboardCache{inner: inner, breaker: breaker}
}

// isTransportFailure reports whether the error indicates Redis itself
// is unhealthy. Misses and validation errors pass through untouched.
func isTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrCacheKeyEmpty) {
		return false
	}
	return true
}

// Store writes the leaderboard through the breaker. An open circuit is
// reported as a plain error; rebuild keeps the snapshot authoritative.
func (g *GuardedLeaderboardCache) Store(ctx context.Context, lb *leaderboard.Leaderboard) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.inner.Store(ctx, lb)
	})
}

// Top reads the top n entries through the breaker.
func (g *GuardedLeaderboardCache) Top(ctx context.Context, scope leaderboard.Scope, n int) ([]*leaderboard.Entry, error) {
	var entries []*leaderboard.Entry
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		entries, innerErr = g.inner.Top(ctx, scope, n)
		return innerErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return entries, nil
}

// Rank reads the user's cached position through the breaker.
func (g *GuardedLeaderboardCache) Rank(ctx context.Context, scope leaderboard.Scope, userID string) (int, error) {
	var rank int
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		rank, innerErr = g.inner.Rank(ctx, scope, userID)
		return innerErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return 0, ErrCacheMiss
		}
		return 0, err
	}
	return rank, nil
}

// Info reads the cached scope metadata through the breaker.
func (g *GuardedLeaderboardCache) Info(ctx context.Context, scope leaderboard.Scope) (int, time.Time, error) {
	var (
		total       int
		generatedAt time.Time
	)
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		total, generatedAt, innerErr = g.inner.Info(ctx, scope)
		return innerErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return 0, time.Time{}, ErrCacheMiss
		}
		return 0, time.Time{}, err
	}
	return total, generatedAt, nil
}

// Invalidate drops the scope through the breaker.
func (g *GuardedLeaderboardCache) Invalidate(ctx context.Context, scope leaderboard.Scope) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.inner.Invalidate(ctx, scope)
	})
}

// State exposes the breaker state for health reporting.
func (g *GuardedLeaderboardCache) State() circuitbreaker.State {
	return g.breaker.State()
}
