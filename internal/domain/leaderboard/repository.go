package leaderboard

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES (Порты хранилища рейтингов)
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет порт хранилища построенных рейтингов.
// Хранится всегда последний снимок каждой области.
type Repository interface {
	// Save сохраняет рейтинг области, замещая прошлый снимок.
	Save(ctx context.Context, lb *Leaderboard) error

	// Get возвращает глубокую копию последнего рейтинга области.
	// Возвращает shared.ErrLeaderboardNotBuilt, если область ещё
	// ни разу не перестраивалась.
	Get(ctx context.Context, scope Scope) (*Leaderboard, error)

	// Scopes возвращает все области, для которых есть снимки.
	Scopes(ctx context.Context) ([]Scope, error)
}

// Cache определяет порт быстрого кэша рейтингов (Redis sorted sets).
// Кэш опционален: его недоступность не должна ломать перестроение.
type Cache interface {
	// Store кладёт рейтинг области в кэш.
	Store(ctx context.Context, lb *Leaderboard) error

	// Top возвращает первые n строк области из кэша.
	Top(ctx context.Context, scope Scope, n int) ([]*Entry, error)

	// Rank возвращает позицию пользователя в области из кэша.
	Rank(ctx context.Context, scope Scope, userID string) (int, error)

	// Info возвращает размер области и время построения из кэша.
	Info(ctx context.Context, scope Scope) (total int, generatedAt time.Time, err error)

	// Invalidate удаляет область из кэша.
	Invalidate(ctx context.Context, scope Scope) error
}
