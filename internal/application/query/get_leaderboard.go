package query

import (
	"context"

	"github.com/alem-hub/alem-gamification/internal/domain/leaderboard"
	"github.com/alem-hub/alem-gamification/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery представляет запрос рейтинга.
type GetLeaderboardQuery struct {
	// Scope - запрашиваемая область.
	Scope leaderboard.Scope

	// Limit - сколько верхних строк вернуть (0 - весь рейтинг).
	Limit int

	// Page и PerPage - постраничный доступ. Page считается с 1
	// и имеет приоритет над Limit.
	Page    int
	PerPage int

	// AroundUserID - вернуть окрестность пользователя вместо топа.
	AroundUserID string

	// Radius - ширина окрестности в строках в каждую сторону.
	Radius int
}

// LeaderboardView представляет ответ на запрос рейтинга.
type LeaderboardView struct {
	// Scope - область рейтинга.
	Scope leaderboard.Scope

	// Entries - запрошенный срез строк.
	Entries []*leaderboard.Entry

	// Total - полный размер рейтинга.
	Total int

	// GeneratedAt - когда рейтинг был построен.
	GeneratedAt string
}

// GetLeaderboardHandler возвращает срезы построенных рейтингов.
// Читает последний сохранённый снимок: запрос никогда не запускает
// перестроение. Горячие пути (топ области, позиция пользователя)
// сначала пробуют кэш; любая ошибка кэша ведёт к чтению снимка.
type GetLeaderboardHandler struct {
	repo  leaderboard.Repository
	cache leaderboard.Cache
	log   *logger.Logger
}

// NewGetLeaderboardHandler создаёт обработчик запроса рейтинга.
// Кэш опционален, nil отключает быстрый путь.
func NewGetLeaderboardHandler(repo leaderboard.Repository, cache leaderboard.Cache, log *logger.Logger) *GetLeaderboardHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetLeaderboardHandler{repo: repo, cache: cache, log: log}
}

// Handle возвращает срез рейтинга области.
// Возвращает shared.ErrLeaderboardNotBuilt, если область ещё не строилась.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*LeaderboardView, error) {
	if err := q.Scope.Validate(); err != nil {
		return nil, err
	}

	if view, ok := h.fromCache(ctx, q); ok {
		return view, nil
	}

	lb, err := h.repo.Get(ctx, q.Scope)
	if err != nil {
		return nil, err
	}

	var entries []*leaderboard.Entry
	switch {
	case q.AroundUserID != "":
		radius := q.Radius
		if radius <= 0 {
			radius = 2
		}
		entries = lb.Neighbors(q.AroundUserID, radius)
		if entries == nil {
			entries = []*leaderboard.Entry{}
		}
	case q.Page > 0:
		perPage := q.PerPage
		if perPage <= 0 {
			perPage = 20
		}
		entries = lb.Page(q.Page, perPage)
	case q.Limit > 0:
		entries = lb.Top(q.Limit)
	default:
		entries = lb.Top(lb.Size())
	}

	return &LeaderboardView{
		Scope:       lb.Scope,
		Entries:     entries,
		Total:       lb.Size(),
		GeneratedAt: lb.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"),
	}, nil
}

// fromCache пробует собрать ответ из кэша. Кэш обслуживает только
// запрос топа: страницы и окрестности читают полный снимок.
func (h *GetLeaderboardHandler) fromCache(ctx context.Context, q GetLeaderboardQuery) (*LeaderboardView, bool) {
	if h.cache == nil || q.AroundUserID != "" || q.Page > 0 || q.Limit <= 0 {
		return nil, false
	}

	total, generatedAt, err := h.cache.Info(ctx, q.Scope)
	if err != nil {
		return nil, false
	}

	entries, err := h.cache.Top(ctx, q.Scope, q.Limit)
	if err != nil {
		return nil, false
	}

	return &LeaderboardView{
		Scope:       q.Scope,
		Entries:     entries,
		Total:       total,
		GeneratedAt: generatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}, true
}

// Rank возвращает позицию пользователя в области.
func (h *GetLeaderboardHandler) Rank(ctx context.Context, scope leaderboard.Scope, userID string) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	if h.cache != nil {
		if rank, err := h.cache.Rank(ctx, scope, userID); err == nil {
			return rank, nil
		}
	}

	lb, err := h.repo.Get(ctx, scope)
	if err != nil {
		return 0, err
	}

	rank, ok := lb.Rank(userID)
	if !ok {
		return 0, nil
	}
	return rank, nil
}
