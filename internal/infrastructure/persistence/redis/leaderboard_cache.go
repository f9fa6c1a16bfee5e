package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/alem-gamification/internal/domain/leaderboard"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache implements leaderboard.Cache on Redis sorted sets.
//
// Layout per scope:
//   - Sorted set "leaderboard:xp:{scope}" maps userID -> XP for rank lookups
//   - Hash "leaderboard:info:{scope}" maps userID -> entry JSON
//
// Rank lookups are O(log N), top-N queries O(log N + M). The cache is a
// read accelerator only: the repository snapshot stays authoritative and
// rebuilds replace the cached scope wholesale.
type LeaderboardCache struct {
	cache *Cache
}

const (
	keyLeaderboardXP   = PrefixLeaderboard + "xp:"
	keyLeaderboardInfo = PrefixLeaderboard + "info:"
	keyLeaderboardMeta = PrefixLeaderboard + "meta:"
)

// NewLeaderboardCache creates a new LeaderboardCache instance.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

type cachedEntry struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username,omitempty"`
	XP           int    `json:"xp"`
	Streak       int    `json:"streak"`
	Achievements int    `json:"achievements"`
	Rank         int    `json:"rank"`
	RankChange   int    `json:"rank_change"`
}

type cachedMeta struct {
	Total       int       `json:"total"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Store replaces the cached scope with the leaderboard's entries.
// The delete and the inserts run in one transaction so readers never
// observe a half-replaced scope.
func (l *LeaderboardCache) Store(ctx context.Context, lb *leaderboard.Leaderboard) error {
	if err := lb.Scope.Validate(); err != nil {
		return err
	}

	scopeKey := lb.Scope.Key()
	xpKey := keyLeaderboardXP + scopeKey
	infoKey := keyLeaderboardInfo + scopeKey
	metaKey := keyLeaderboardMeta + scopeKey

	meta, err := json.Marshal(cachedMeta{Total: lb.Size(), GeneratedAt: lb.GeneratedAt})
	if err != nil {
		return fmt.Errorf("cache: failed to marshal meta: %w", err)
	}

	pipe := l.cache.Client().TxPipeline()
	pipe.Del(ctx, xpKey, infoKey)
	pipe.Set(ctx, metaKey, meta, TTLLeaderboardCache)

	if len(lb.Entries) > 0 {
		zMembers := make([]redis.Z, 0, len(lb.Entries))
		hashData := make(map[string]interface{}, len(lb.Entries))

		for _, e := range lb.Entries {
			zMembers = append(zMembers, redis.Z{
				Score:  float64(e.XP),
				Member: e.UserID,
			})

			data, err := json.Marshal(cachedEntry{
				UserID:       e.UserID,
				Username:     e.Username,
				XP:           e.XP,
				Streak:       e.Streak,
				Achievements: e.Achievements,
				Rank:         e.Rank,
				RankChange:   e.RankChange,
			})
			if err != nil {
				return fmt.Errorf("cache: failed to marshal entry: %w", err)
			}
			hashData[e.UserID] = data
		}

		pipe.ZAdd(ctx, xpKey, zMembers...)
		pipe.HSet(ctx, infoKey, hashData)
		pipe.Expire(ctx, xpKey, TTLLeaderboardCache)
		pipe.Expire(ctx, infoKey, TTLLeaderboardCache)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// Top returns the first n entries of the cached scope.
// Ranks come from the stored entries, not from sorted-set positions, so
// ties keep the repository's stable order.
func (l *LeaderboardCache) Top(ctx context.Context, scope leaderboard.Scope, n int) ([]*leaderboard.Entry, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []*leaderboard.Entry{}, nil
	}

	scopeKey := scope.Key()
	xpKey := keyLeaderboardXP + scopeKey

	userIDs, err := l.cache.Client().ZRevRange(ctx, xpKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return nil, ErrCacheMiss
	}

	data, err := l.cache.Client().HMGet(ctx, keyLeaderboardInfo+scopeKey, userIDs...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]*leaderboard.Entry, 0, len(data))
	for _, v := range data {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec cachedEntry
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			continue
		}
		entries = append(entries, &leaderboard.Entry{
			UserID:       rec.UserID,
			Username:     rec.Username,
			XP:           rec.XP,
			Streak:       rec.Streak,
			Achievements: rec.Achievements,
			Rank:         rec.Rank,
			RankChange:   rec.RankChange,
		})
	}

	// Entries arrive keyed by XP order; restore rank order for ties.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].Rank > entries[j].Rank; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}

	return entries, nil
}

// Rank returns the user's position in the cached scope, 0 if absent.
func (l *LeaderboardCache) Rank(ctx context.Context, scope leaderboard.Scope, userID string) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	if userID == "" {
		return 0, ErrCacheKeyEmpty
	}

	data, err := l.cache.Client().HGet(ctx, keyLeaderboardInfo+scope.Key(), userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, err
	}

	var rec cachedEntry
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, err
	}
	return rec.Rank, nil
}

// Info returns the cached scope's size and build time.
func (l *LeaderboardCache) Info(ctx context.Context, scope leaderboard.Scope) (int, time.Time, error) {
	if err := scope.Validate(); err != nil {
		return 0, time.Time{}, err
	}

	data, err := l.cache.Client().Get(ctx, keyLeaderboardMeta+scope.Key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, time.Time{}, ErrCacheMiss
		}
		return 0, time.Time{}, err
	}

	var meta cachedMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return 0, time.Time{}, err
	}
	return meta.Total, meta.GeneratedAt, nil
}

// Invalidate removes the scope from the cache.
func (l *LeaderboardCache) Invalidate(ctx context.Context, scope leaderboard.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	scopeKey := scope.Key()
	return l.cache.Delete(ctx,
		keyLeaderboardXP+scopeKey,
		keyLeaderboardInfo+scopeKey,
		keyLeaderboardMeta+scopeKey,
	)
}
