package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alem-hub/alem-gamification/internal/domain/leaderboard"
	"github.com/alem-hub/alem-gamification/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRepository implements leaderboard.Repository for PostgreSQL.
// Each scope keeps exactly one row holding the latest snapshot.
type LeaderboardRepository struct {
	conn *Connection
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(conn *Connection) *LeaderboardRepository {
	return &LeaderboardRepository{conn: conn}
}

type entryRecord struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username,omitempty"`
	XP           int    `json:"xp"`
	Streak       int    `json:"streak"`
	Achievements int    `json:"achievements"`
	Rank         int    `json:"rank"`
	RankChange   int    `json:"rank_change"`
}

// Save replaces the stored snapshot for the leaderboard's scope.
func (r *LeaderboardRepository) Save(ctx context.Context, lb *leaderboard.Leaderboard) error {
	if err := lb.Scope.Validate(); err != nil {
		return err
	}

	records := make([]entryRecord, 0, len(lb.Entries))
	for _, e := range lb.Entries {
		records = append(records, entryRecord{
			UserID:       e.UserID,
			Username:     e.Username,
			XP:           e.XP,
			Streak:       e.Streak,
			Achievements: e.Achievements,
			Rank:         e.Rank,
			RankChange:   e.RankChange,
		})
	}
	entriesJSON, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal leaderboard entries: %w", err)
	}

	query := `
		INSERT INTO leaderboards (scope_key, scope_type, course_id, entries, generated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope_key) DO UPDATE SET
			entries = EXCLUDED.entries,
			generated_at = EXCLUDED.generated_at
	`

	_, err = r.conn.Exec(ctx, query,
		lb.Scope.Key(),
		string(lb.Scope.Type),
		lb.Scope.CourseID,
		entriesJSON,
		lb.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save leaderboard: %w", err)
	}
	return nil
}

// Get returns the scope's latest snapshot.
func (r *LeaderboardRepository) Get(ctx context.Context, scope leaderboard.Scope) (*leaderboard.Leaderboard, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT entries, generated_at FROM leaderboards WHERE scope_key = $1`

	var (
		entriesJSON []byte
		generatedAt time.Time
	)
	err := r.conn.QueryRow(ctx, query, scope.Key()).Scan(&entriesJSON, &generatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLeaderboardNotBuilt
		}
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	var records []entryRecord
	if err := json.Unmarshal(entriesJSON, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal leaderboard entries: %w", err)
	}

	entries := make([]*leaderboard.Entry, 0, len(records))
	for _, rec := range records {
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

	return leaderboard.Restore(scope, entries, generatedAt), nil
}

// Scopes returns all scopes with stored snapshots.
func (r *LeaderboardRepository) Scopes(ctx context.Context) ([]leaderboard.Scope, error) {
	query := `SELECT scope_type, course_id FROM leaderboards ORDER BY scope_key`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard scopes: %w", err)
	}
	defer rows.Close()

	var scopes []leaderboard.Scope
	for rows.Next() {
		var scopeType, courseID string
		if err := rows.Scan(&scopeType, &courseID); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard scope: %w", err)
		}
		scopes = append(scopes, leaderboard.Scope{
			Type:     leaderboard.ScopeType(scopeType),
			CourseID: courseID,
		})
	}
	return scopes, rows.Err()
}
