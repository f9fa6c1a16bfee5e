package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_user_stats",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_xp_grants",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_leaderboards",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// Migration 1: user statistics aggregate.
// Achievements and per-course progress live in JSONB: the engine always
// loads and saves the whole aggregate, so there is nothing to query
// inside them. The version column backs optimistic locking.
const migration001Up = `
CREATE TABLE IF NOT EXISTS user_stats (
	user_id         TEXT PRIMARY KEY,
	total_xp        BIGINT NOT NULL DEFAULT 0 CHECK (total_xp >= 0),
	current_streak  INTEGER NOT NULL DEFAULT 0 CHECK (current_streak >= 0),
	longest_streak  INTEGER NOT NULL DEFAULT 0 CHECK (longest_streak >= current_streak),
	last_activity   TIMESTAMP WITH TIME ZONE,
	perfect_lessons INTEGER NOT NULL DEFAULT 0,
	achievements    JSONB NOT NULL DEFAULT '[]'::jsonb,
	course_progress JSONB NOT NULL DEFAULT '{}'::jsonb,
	version         BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_user_stats_total_xp ON user_stats (total_xp DESC);
CREATE INDEX IF NOT EXISTS idx_user_stats_created_at ON user_stats (created_at);
`

const migration001Down = `
DROP TABLE IF EXISTS user_stats;
`

// Migration 2: append-only XP grant log.
// The weekly leaderboard sums grants over a rolling window; old rows
// are pruned by the scheduler once they fall out of every window.
const migration002Up = `
CREATE TABLE IF NOT EXISTS xp_grants (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL,
	amount     INTEGER NOT NULL CHECK (amount > 0),
	granted_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_xp_grants_user_time ON xp_grants (user_id, granted_at);
CREATE INDEX IF NOT EXISTS idx_xp_grants_time ON xp_grants (granted_at);
`

const migration002Down = `
DROP TABLE IF EXISTS xp_grants;
`

// Migration 3: leaderboard snapshots, one row per scope.
// Entries are stored as an ordered JSONB array; rebuilds replace the
// whole snapshot.
const migration003Up = `
CREATE TABLE IF NOT EXISTS leaderboards (
	scope_key    TEXT PRIMARY KEY,
	scope_type   TEXT NOT NULL,
	course_id    TEXT NOT NULL DEFAULT '',
	entries      JSONB NOT NULL DEFAULT '[]'::jsonb,
	generated_at TIMESTAMP WITH TIME ZONE NOT NULL
);
`

const migration003Down = `
DROP TABLE IF EXISTS leaderboards;
`
