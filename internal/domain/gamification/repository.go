package gamification

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES (Порты хранилища)
// ══════════════════════════════════════════════════════════════════════════════

// StatsStore определяет порт хранилища статистики пользователей.
// Реализации: in-memory для тестов и одиночного процесса, PostgreSQL
// для продакшена.
type StatsStore interface {
	// Load возвращает глубокую копию статистики пользователя.
	// Возвращает shared.ErrUserStatsNotFound, если записи нет.
	Load(ctx context.Context, userID string) (*UserStats, error)

	// Save сохраняет статистику с проверкой версии.
	// Возвращает shared.ErrStoreConflict, если запись была изменена
	// конкурентно с момента загрузки.
	Save(ctx context.Context, stats *UserStats) error

	// List возвращает глубокие копии статистики всех пользователей
	// как согласованный снимок для перестроения рейтингов.
	List(ctx context.Context) ([]*UserStats, error)
}

// XPGrant представляет одно начисление XP с отметкой времени.
// Журнал начислений питает недельный рейтинг.
type XPGrant struct {
	// UserID - кому начислено.
	UserID string

	// Amount - сколько XP.
	Amount XP

	// GrantedAt - когда начислено.
	GrantedAt time.Time
}

// XPGrantLog определяет порт журнала начислений XP.
type XPGrantLog interface {
	// RecordGrant добавляет запись о начислении.
	RecordGrant(ctx context.Context, grant XPGrant) error

	// XPInWindow возвращает суммарный XP пользователя в интервале [from, to).
	XPInWindow(ctx context.Context, userID string, from, to time.Time) (XP, error)

	// PruneBefore удаляет записи старше cutoff и возвращает их количество.
	// Журнал нужен только для скользящего окна, история не хранится вечно.
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}
