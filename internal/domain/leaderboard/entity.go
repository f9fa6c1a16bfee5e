// Package leaderboard содержит доменную модель рейтингов: области
// ранжирования, построение таблиц и сравнение снимков между перестроениями.
package leaderboard

import (
	"time"

	"github.com/alem-hub/alem-gamification/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCOPE (Область ранжирования)
// ══════════════════════════════════════════════════════════════════════════════

// ScopeType представляет тип области ранжирования.
type ScopeType string

const (
	// ScopeGlobal - все пользователи по суммарному XP.
	ScopeGlobal ScopeType = "global"
	// ScopeCourse - участники одного курса по XP курса.
	ScopeCourse ScopeType = "course"
	// ScopeWeekly - все пользователи по XP за последние 7 дней.
	ScopeWeekly ScopeType = "weekly"
)

// Scope однозначно определяет один рейтинг.
type Scope struct {
	// Type - тип области.
	Type ScopeType

	// CourseID - идентификатор курса. Обязателен для ScopeCourse
	// и запрещён для остальных типов.
	CourseID string
}

// GlobalScope возвращает глобальную область.
func GlobalScope() Scope {
	return Scope{Type: ScopeGlobal}
}

// CourseScope возвращает область курса.
func CourseScope(courseID string) Scope {
	return Scope{Type: ScopeCourse, CourseID: courseID}
}

// WeeklyScope возвращает недельную область.
func WeeklyScope() Scope {
	return Scope{Type: ScopeWeekly}
}

// Validate проверяет корректность области.
func (s Scope) Validate() error {
	switch s.Type {
	case ScopeGlobal, ScopeWeekly:
		if s.CourseID != "" {
			return shared.ErrUnexpectedCourseID
		}
		return nil
	case ScopeCourse:
		if s.CourseID == "" {
			return shared.ErrMissingCourseID
		}
		return nil
	default:
		return shared.ErrInvalidScope
	}
}

// Key возвращает стабильный строковый ключ области для хранилища и кэша.
func (s Scope) Key() string {
	if s.Type == ScopeCourse {
		return string(ScopeCourse) + ":" + s.CourseID
	}
	return string(s.Type)
}

// String реализует fmt.Stringer.
func (s Scope) String() string {
	return s.Key()
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ENTRIES
// ══════════════════════════════════════════════════════════════════════════════

// Entry представляет одну строку рейтинга.
type Entry struct {
	// UserID - идентификатор пользователя.
	UserID string

	// Username - отображаемое имя на момент перестроения.
	Username string

	// XP - значение, по которому ранжируется область.
	XP int

	// Streak - текущая серия пользователя.
	Streak int

	// Achievements - число разблокированных достижений.
	Achievements int

	// Rank - позиция в рейтинге, начиная с 1. Ранги уникальны:
	// при равном XP порядок определяется стабильной сортировкой.
	Rank int

	// RankChange - изменение позиции с прошлого перестроения.
	// Положительное значение - пользователь поднялся.
	RankChange int
}

// Clone возвращает копию строки.
func (e *Entry) Clone() *Entry {
	clone := *e
	return &clone
}

// Leaderboard представляет построенный рейтинг одной области.
type Leaderboard struct {
	// Scope - область рейтинга.
	Scope Scope

	// Entries - строки в порядке рангов (Rank == индекс + 1).
	Entries []*Entry

	// GeneratedAt - когда рейтинг был построен.
	GeneratedAt time.Time

	// byUser - индекс строк по ID пользователя.
	byUser map[string]*Entry
}

// newLeaderboard создаёт рейтинг и строит индекс по пользователям.
func newLeaderboard(scope Scope, entries []*Entry, generatedAt time.Time) *Leaderboard {
	lb := &Leaderboard{
		Scope:       scope,
		Entries:     entries,
		GeneratedAt: generatedAt,
		byUser:      make(map[string]*Entry, len(entries)),
	}
	for _, e := range entries {
		lb.byUser[e.UserID] = e
	}
	return lb
}

// Restore восстанавливает рейтинг из сохранённого снимка.
// Строки должны идти в порядке рангов. Используется хранилищами.
func Restore(scope Scope, entries []*Entry, generatedAt time.Time) *Leaderboard {
	return newLeaderboard(scope, entries, generatedAt)
}

// Size возвращает число строк рейтинга.
func (lb *Leaderboard) Size() int {
	return len(lb.Entries)
}

// Find возвращает строку пользователя или nil, если его нет в области.
func (lb *Leaderboard) Find(userID string) *Entry {
	return lb.byUser[userID]
}

// Rank возвращает позицию пользователя и true, если он есть в рейтинге.
func (lb *Leaderboard) Rank(userID string) (int, bool) {
	if e := lb.byUser[userID]; e != nil {
		return e.Rank, true
	}
	return 0, false
}

// Top возвращает копии первых n строк.
func (lb *Leaderboard) Top(n int) []*Entry {
	if n < 0 {
		n = 0
	}
	if n > len(lb.Entries) {
		n = len(lb.Entries)
	}
	return cloneEntries(lb.Entries[:n])
}

// Page возвращает копии строк страницы. Страницы нумеруются с 1.
// Страница за пределами рейтинга возвращает пустой срез.
func (lb *Leaderboard) Page(page, perPage int) []*Entry {
	if page < 1 || perPage < 1 {
		return nil
	}
	start := (page - 1) * perPage
	if start >= len(lb.Entries) {
		return []*Entry{}
	}
	end := start + perPage
	if end > len(lb.Entries) {
		end = len(lb.Entries)
	}
	return cloneEntries(lb.Entries[start:end])
}

// Neighbors возвращает копии строк вокруг пользователя: radius строк
// выше и ниже его позиции. Возвращает nil, если пользователя нет.
func (lb *Leaderboard) Neighbors(userID string, radius int) []*Entry {
	entry := lb.byUser[userID]
	if entry == nil {
		return nil
	}
	if radius < 0 {
		radius = 0
	}
	idx := entry.Rank - 1
	start := idx - radius
	if start < 0 {
		start = 0
	}
	end := idx + radius + 1
	if end > len(lb.Entries) {
		end = len(lb.Entries)
	}
	return cloneEntries(lb.Entries[start:end])
}

// Clone возвращает глубокую копию рейтинга.
func (lb *Leaderboard) Clone() *Leaderboard {
	return newLeaderboard(lb.Scope, cloneEntries(lb.Entries), lb.GeneratedAt)
}

func cloneEntries(entries []*Entry) []*Entry {
	clones := make([]*Entry, len(entries))
	for i, e := range entries {
		clones[i] = e.Clone()
	}
	return clones
}
