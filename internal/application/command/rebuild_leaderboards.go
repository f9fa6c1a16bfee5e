package command

import (
	"context"
	"time"

	"github.com/alem-hub/alem-gamification/internal/domain/gamification"
	"github.com/alem-hub/alem-gamification/internal/domain/leaderboard"
	"github.com/alem-hub/alem-gamification/internal/domain/shared"
	"github.com/alem-hub/alem-gamification/pkg/logger"
	"github.com/alem-hub/alem-gamification/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARDS
// ══════════════════════════════════════════════════════════════════════════════

// weeklyWindowDays - ширина скользящего окна недельного рейтинга.
const weeklyWindowDays = 7

// UsernameResolver возвращает отображаемые имена пользователей.
// Движок не владеет профилями: имена приходят от внешнего сервиса
// идентичности и фиксируются в строках рейтинга на момент перестроения.
type UsernameResolver interface {
	Usernames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// RebuildLeaderboardsHandler перестраивает рейтинги из снимка статистики.
// Один обработчик обслуживает и отчёты об уроках, и плановые перестроения.
type RebuildLeaderboardsHandler struct {
	store    gamification.StatsStore
	grants   gamification.XPGrantLog
	repo     leaderboard.Repository
	cache    leaderboard.Cache
	resolver UsernameResolver
	bus      shared.EventPublisher
	log      *logger.Logger
	clock    func() time.Time
}

// NewRebuildLeaderboardsHandler создаёт обработчик перестроений.
// cache и resolver могут быть nil: без кэша рейтинги живут только в
// хранилище, без резолвера имена пустые.
func NewRebuildLeaderboardsHandler(
	store gamification.StatsStore,
	grants gamification.XPGrantLog,
	repo leaderboard.Repository,
	cache leaderboard.Cache,
	resolver UsernameResolver,
	bus shared.EventPublisher,
	log *logger.Logger,
) *RebuildLeaderboardsHandler {
	if log == nil {
		log = logger.Default()
	}
	return &RebuildLeaderboardsHandler{
		store:    store,
		grants:   grants,
		repo:     repo,
		cache:    cache,
		resolver: resolver,
		bus:      bus,
		log:      log,
		clock:    timeutil.Now,
	}
}

// WithClock подменяет источник времени. Используется в тестах.
func (h *RebuildLeaderboardsHandler) WithClock(clock func() time.Time) *RebuildLeaderboardsHandler {
	h.clock = clock
	return h
}

// RebuildScopes перестраивает перечисленные области на одном снимке
// статистики. Реализует Rebuilder.
func (h *RebuildLeaderboardsHandler) RebuildScopes(ctx context.Context, scopes []leaderboard.Scope) error {
	if len(scopes) == 0 {
		return nil
	}

	now := h.clock()
	sources, err := h.collectSources(ctx, scopes, now)
	if err != nil {
		return err
	}

	for _, scope := range scopes {
		if err := h.rebuildOne(ctx, scope, sources, now); err != nil {
			return err
		}
	}
	return nil
}

// RebuildAll перестраивает глобальную, недельную и все известные
// областные рейтинги курсов. Используется планировщиком.
func (h *RebuildLeaderboardsHandler) RebuildAll(ctx context.Context) error {
	scopes := []leaderboard.Scope{
		leaderboard.GlobalScope(),
		leaderboard.WeeklyScope(),
	}

	// Курсы берутся из прогресса пользователей: рейтинг курса существует,
	// как только в нём кто-то заработал запись.
	all, err := h.store.List(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, stats := range all {
		for courseID := range stats.CourseProgress {
			if !seen[courseID] {
				seen[courseID] = true
				scopes = append(scopes, leaderboard.CourseScope(courseID))
			}
		}
	}

	return h.RebuildScopes(ctx, scopes)
}

// collectSources строит материал ранжирования из одного снимка хранилища.
// Недельный XP считается из журнала начислений только когда он нужен.
func (h *RebuildLeaderboardsHandler) collectSources(ctx context.Context, scopes []leaderboard.Scope, now time.Time) ([]leaderboard.Source, error) {
	all, err := h.store.List(ctx)
	if err != nil {
		return nil, err
	}

	needWeekly := false
	for _, scope := range scopes {
		if scope.Type == leaderboard.ScopeWeekly {
			needWeekly = true
			break
		}
	}

	usernames := h.resolveUsernames(ctx, all)

	windowStart := timeutil.TrailingWindowStart(now, weeklyWindowDays)
	sources := make([]leaderboard.Source, 0, len(all))

	for _, stats := range all {
		src := leaderboard.Source{
			UserID:       stats.UserID,
			Username:     usernames[stats.UserID],
			TotalXP:      int(stats.TotalXP),
			Streak:       stats.CurrentStreak,
			Achievements: stats.UnlockedCount(),
			CourseXP:     make(map[string]int, len(stats.CourseProgress)),
		}
		for courseID, cp := range stats.CourseProgress {
			src.CourseXP[courseID] = int(cp.XP)
		}

		if needWeekly && h.grants != nil {
			weekly, err := h.grants.XPInWindow(ctx, stats.UserID, windowStart, now.Add(time.Nanosecond))
			if err != nil {
				h.log.Warn("failed to compute weekly XP", logger.UserID(stats.UserID), logger.Err(err))
			} else {
				src.WeeklyXP = int(weekly)
			}
		}

		sources = append(sources, src)
	}

	return sources, nil
}

// resolveUsernames запрашивает имена у сервиса идентичности.
// Недоступность резолвера не срывает перестроение: имена остаются пустыми.
func (h *RebuildLeaderboardsHandler) resolveUsernames(ctx context.Context, all []*gamification.UserStats) map[string]string {
	if h.resolver == nil || len(all) == 0 {
		return nil
	}

	ids := make([]string, 0, len(all))
	for _, stats := range all {
		ids = append(ids, stats.UserID)
	}

	usernames, err := h.resolver.Usernames(ctx, ids)
	if err != nil {
		h.log.Warn("failed to resolve usernames", logger.Err(err))
		return nil
	}
	return usernames
}

// rebuildOne перестраивает одну область: строит рейтинг, сравнивает
// с прошлым снимком, сохраняет, прогревает кэш и публикует события.
func (h *RebuildLeaderboardsHandler) rebuildOne(ctx context.Context, scope leaderboard.Scope, sources []leaderboard.Source, now time.Time) error {
	lb, err := leaderboard.Rebuild(scope, sources, now)
	if err != nil {
		return err
	}

	prev, err := h.repo.Get(ctx, scope)
	if err != nil && !shared.IsNotFound(err) {
		return err
	}
	moves := lb.ApplyPrevious(prev)

	if err := h.repo.Save(ctx, lb); err != nil {
		return err
	}

	if h.cache != nil {
		if err := h.cache.Store(ctx, lb); err != nil {
			// Кэш опционален: читатели упадут на хранилище.
			h.log.Warn("failed to warm leaderboard cache", logger.ScopeKey(scope.Key()), logger.Err(err))
		}
	}

	h.publishRebuilt(scope, lb, moves)

	h.log.Debug("leaderboard rebuilt",
		logger.ScopeKey(scope.Key()),
		logger.Int("entries", lb.Size()),
		logger.Int("rank_moves", len(moves)),
	)
	return nil
}

func (h *RebuildLeaderboardsHandler) publishRebuilt(scope leaderboard.Scope, lb *leaderboard.Leaderboard, moves []leaderboard.RankMove) {
	if h.bus == nil {
		return
	}

	event := shared.NewLeaderboardRebuiltEvent(scope.Key(), string(scope.Type), scope.CourseID, lb.Size())
	if err := h.bus.Publish(event); err != nil {
		h.log.Warn("failed to publish rebuild event", logger.ScopeKey(scope.Key()), logger.Err(err))
	}

	for _, move := range moves {
		rankEvent := shared.NewRankChangedEvent(move.UserID, string(scope.Type), scope.CourseID, move.OldRank, move.NewRank)
		if err := h.bus.Publish(rankEvent); err != nil {
			h.log.Warn("failed to publish rank change", logger.UserID(move.UserID), logger.Err(err))
		}
	}
}

// PruneGrantLog удаляет записи журнала начислений за пределами недельного
// окна. Вызывается планировщиком раз в сутки.
func (h *RebuildLeaderboardsHandler) PruneGrantLog(ctx context.Context) (int, error) {
	if h.grants == nil {
		return 0, nil
	}
	cutoff := timeutil.TrailingWindowStart(h.clock(), weeklyWindowDays)
	return h.grants.PruneBefore(ctx, cutoff)
}
