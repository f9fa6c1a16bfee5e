package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/alem-gamification/internal/domain/gamification"
	"github.com/alem-hub/alem-gamification/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StatsRepository implements gamification.StatsStore and gamification.XPGrantLog
// for PostgreSQL. Optimistic locking rides on the version column: a save
// whose version no longer matches the stored row returns shared.ErrStoreConflict.
type StatsRepository struct {
	conn *Connection
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(conn *Connection) *StatsRepository {
	return &StatsRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// JSONB records
// ─────────────────────────────────────────────────────────────────────────────

type achievementRecord struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	XPReward    int        `json:"xp_reward"`
	Progress    int        `json:"progress"`
	Target      int        `json:"target"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

type courseRecord struct {
	XP            int        `json:"xp"`
	Lessons       []string   `json:"lessons"`
	CurrentStreak int        `json:"current_streak,omitempty"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
}

func marshalAchievements(achievements []gamification.Achievement) ([]byte, error) {
	records := make([]achievementRecord, 0, len(achievements))
	for i := range achievements {
		a := &achievements[i]
		records = append(records, achievementRecord{
			ID:          a.ID,
			Type:        string(a.Type),
			Title:       a.Title,
			Description: a.Description,
			Icon:        a.Icon,
			XPReward:    int(a.XPReward),
			Progress:    a.Progress,
			Target:      a.Target,
			UnlockedAt:  a.UnlockedAt,
		})
	}
	return json.Marshal(records)
}

func unmarshalAchievements(raw []byte) ([]gamification.Achievement, error) {
	var records []achievementRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal achievements: %w", err)
	}

	achievements := make([]gamification.Achievement, 0, len(records))
	for _, r := range records {
		achievements = append(achievements, gamification.Achievement{
			ID:          r.ID,
			Type:        gamification.AchievementType(r.Type),
			Title:       r.Title,
			Description: r.Description,
			Icon:        r.Icon,
			XPReward:    gamification.XP(r.XPReward),
			Progress:    r.Progress,
			Target:      r.Target,
			UnlockedAt:  r.UnlockedAt,
		})
	}
	return achievements, nil
}

func marshalCourseProgress(progress map[string]*gamification.CourseProgress) ([]byte, error) {
	records := make(map[string]courseRecord, len(progress))
	for courseID, cp := range progress {
		lessons := make([]string, 0, len(cp.CompletedLessons))
		for lessonID := range cp.CompletedLessons {
			lessons = append(lessons, lessonID)
		}
		record := courseRecord{XP: int(cp.XP), Lessons: lessons, CurrentStreak: cp.CurrentStreak}
		if !cp.LastActivityDate.IsZero() {
			last := cp.LastActivityDate
			record.LastActivity = &last
		}
		records[courseID] = record
	}
	return json.Marshal(records)
}

func unmarshalCourseProgress(raw []byte) (map[string]*gamification.CourseProgress, error) {
	var records map[string]courseRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal course progress: %w", err)
	}

	progress := make(map[string]*gamification.CourseProgress, len(records))
	for courseID, r := range records {
		cp := gamification.NewCourseProgress(courseID)
		cp.XP = gamification.XP(r.XP)
		cp.CurrentStreak = r.CurrentStreak
		if r.LastActivity != nil {
			cp.LastActivityDate = *r.LastActivity
		}
		for _, lessonID := range r.Lessons {
			cp.CompletedLessons[lessonID] = struct{}{}
		}
		progress[courseID] = cp
	}
	return progress, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// StatsStore implementation
// ─────────────────────────────────────────────────────────────────────────────

const statsColumns = `
	user_id, total_xp, current_streak, longest_streak, last_activity,
	perfect_lessons, achievements, course_progress, version, created_at, updated_at
`

// Load returns the user's stats.
func (r *StatsRepository) Load(ctx context.Context, userID string) (*gamification.UserStats, error) {
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}

	query := `SELECT ` + statsColumns + ` FROM user_stats WHERE user_id = $1`

	row := r.conn.QueryRow(ctx, query, userID)
	stats, err := scanStats(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrUserStatsNotFound
		}
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}
	return stats, nil
}

// Save persists the stats with an optimistic version check. Version 0 means
// the record has never been saved and is inserted; a concurrent insert of
// the same user surfaces as a unique violation and maps to a conflict too.
func (r *StatsRepository) Save(ctx context.Context, stats *gamification.UserStats) error {
	if stats == nil || stats.UserID == "" {
		return shared.ErrInvalidUserID
	}

	achievementsJSON, err := marshalAchievements(stats.Achievements)
	if err != nil {
		return fmt.Errorf("failed to marshal achievements: %w", err)
	}
	progressJSON, err := marshalCourseProgress(stats.CourseProgress)
	if err != nil {
		return fmt.Errorf("failed to marshal course progress: %w", err)
	}

	var lastActivity *time.Time
	if !stats.LastActivityDate.IsZero() {
		lastActivity = &stats.LastActivityDate
	}

	newVersion := stats.Version + 1

	if stats.Version == 0 {
		query := `
			INSERT INTO user_stats (
				user_id, total_xp, current_streak, longest_streak, last_activity,
				perfect_lessons, achievements, course_progress, version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`
		_, err = r.conn.Exec(ctx, query,
			stats.UserID,
			int64(stats.TotalXP),
			stats.CurrentStreak,
			stats.LongestStreak,
			lastActivity,
			stats.PerfectLessons,
			achievementsJSON,
			progressJSON,
			newVersion,
			stats.CreatedAt,
			stats.UpdatedAt,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrStoreConflict
			}
			return fmt.Errorf("failed to insert user stats: %w", err)
		}
		stats.Version = newVersion
		return nil
	}

	query := `
		UPDATE user_stats SET
			total_xp = $1,
			current_streak = $2,
			longest_streak = $3,
			last_activity = $4,
			perfect_lessons = $5,
			achievements = $6,
			course_progress = $7,
			version = $8,
			updated_at = $9
		WHERE user_id = $10 AND version = $11
	`
	tag, err := r.conn.Exec(ctx, query,
		int64(stats.TotalXP),
		stats.CurrentStreak,
		stats.LongestStreak,
		lastActivity,
		stats.PerfectLessons,
		achievementsJSON,
		progressJSON,
		newVersion,
		stats.UpdatedAt,
		stats.UserID,
		stats.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrStoreConflict
	}

	stats.Version = newVersion
	return nil
}

// List returns all stats ordered by registration time. The stable order
// keeps leaderboard ties deterministic between rebuilds.
func (r *StatsRepository) List(ctx context.Context) ([]*gamification.UserStats, error) {
	query := `SELECT ` + statsColumns + ` FROM user_stats ORDER BY created_at, user_id`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list user stats: %w", err)
	}
	defer rows.Close()

	var all []*gamification.UserStats
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user stats: %w", err)
		}
		all = append(all, stats)
	}
	return all, rows.Err()
}

// scanStats reads one user_stats row.
func scanStats(row pgx.Row) (*gamification.UserStats, error) {
	var (
		stats            gamification.UserStats
		totalXP          int64
		lastActivity     *time.Time
		achievementsJSON []byte
		progressJSON     []byte
	)

	err := row.Scan(
		&stats.UserID,
		&totalXP,
		&stats.CurrentStreak,
		&stats.LongestStreak,
		&lastActivity,
		&stats.PerfectLessons,
		&achievementsJSON,
		&progressJSON,
		&stats.Version,
		&stats.CreatedAt,
		&stats.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	stats.TotalXP = gamification.XP(totalXP)
	if lastActivity != nil {
		stats.LastActivityDate = *lastActivity
	}

	stats.Achievements, err = unmarshalAchievements(achievementsJSON)
	if err != nil {
		return nil, err
	}
	stats.CourseProgress, err = unmarshalCourseProgress(progressJSON)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// XPGrantLog implementation
// ─────────────────────────────────────────────────────────────────────────────

// RecordGrant appends an XP grant to the log.
func (r *StatsRepository) RecordGrant(ctx context.Context, grant gamification.XPGrant) error {
	if grant.UserID == "" {
		return shared.ErrInvalidUserID
	}

	query := `INSERT INTO xp_grants (user_id, amount, granted_at) VALUES ($1, $2, $3)`

	_, err := r.conn.Exec(ctx, query, grant.UserID, int(grant.Amount), grant.GrantedAt)
	if err != nil {
		return fmt.Errorf("failed to record XP grant: %w", err)
	}
	return nil
}

// XPInWindow sums the user's grants in [from, to).
func (r *StatsRepository) XPInWindow(ctx context.Context, userID string, from, to time.Time) (gamification.XP, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM xp_grants
		WHERE user_id = $1 AND granted_at >= $2 AND granted_at < $3
	`

	var total int64
	if err := r.conn.QueryRow(ctx, query, userID, from, to).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum XP grants: %w", err)
	}
	return gamification.XP(total), nil
}

// PruneBefore drops grants older than cutoff and returns how many were removed.
func (r *StatsRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `DELETE FROM xp_grants WHERE granted_at < $1`

	tag, err := r.conn.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune XP grants: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
