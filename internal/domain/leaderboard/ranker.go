package leaderboard

import (
	"sort"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKER (Построение рейтингов)
// ══════════════════════════════════════════════════════════════════════════════

// Source представляет материал для ранжирования одного пользователя:
// снимок его статистики, сведённый к числам, по которым строятся области.
type Source struct {
	// UserID - идентификатор пользователя.
	UserID string

	// Username - отображаемое имя.
	Username string

	// TotalXP - суммарный XP (ключ глобальной области).
	TotalXP int

	// WeeklyXP - XP за скользящие 7 дней (ключ недельной области).
	WeeklyXP int

	// CourseXP - XP по курсам. Пользователь входит в рейтинг курса,
	// только если у него есть запись по этому курсу.
	CourseXP map[string]int

	// Streak - текущая серия.
	Streak int

	// Achievements - число разблокированных достижений.
	Achievements int
}

// Rebuild строит рейтинг области из снимка источников.
// Сортировка стабильная: при равном XP сохраняется порядок источников,
// поэтому вызывающая сторона передаёт их в детерминированном порядке
// (по времени регистрации). Ранги уникальны и идут подряд с 1.
//
// Перестроение идемпотентно: повторный вызов на том же снимке даёт
// идентичный рейтинг.
func Rebuild(scope Scope, sources []Source, generatedAt time.Time) (*Leaderboard, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(sources))
	for _, src := range sources {
		xp, include := scopeKey(scope, src)
		if !include {
			continue
		}
		entries = append(entries, &Entry{
			UserID:       src.UserID,
			Username:     src.Username,
			XP:           xp,
			Streak:       src.Streak,
			Achievements: src.Achievements,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].XP > entries[j].XP
	})

	for i, e := range entries {
		e.Rank = i + 1
	}

	return newLeaderboard(scope, entries, generatedAt), nil
}

// scopeKey возвращает значение XP для области и признак участия
// пользователя в ней. Глобальная и недельная области включают всех,
// область курса - только записавшихся на курс.
func scopeKey(scope Scope, src Source) (int, bool) {
	switch scope.Type {
	case ScopeGlobal:
		return src.TotalXP, true
	case ScopeWeekly:
		return src.WeeklyXP, true
	case ScopeCourse:
		xp, enrolled := src.CourseXP[scope.CourseID]
		return xp, enrolled
	default:
		return 0, false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT DIFF (Сравнение с прошлым перестроением)
// ══════════════════════════════════════════════════════════════════════════════

// RankMove описывает смещение одного пользователя между перестроениями.
type RankMove struct {
	// UserID - идентификатор пользователя.
	UserID string

	// OldRank - позиция в прошлом рейтинге (0 для новичка).
	OldRank int

	// NewRank - позиция в новом рейтинге.
	NewRank int
}

// Delta возвращает изменение позиции. Положительное - поднялся.
func (m RankMove) Delta() int {
	if m.OldRank == 0 {
		return 0
	}
	return m.OldRank - m.NewRank
}

// ApplyPrevious проставляет RankChange строкам нового рейтинга,
// сравнивая его с прошлым снимком той же области, и возвращает
// список смещений. Новички получают RankChange 0.
func (lb *Leaderboard) ApplyPrevious(prev *Leaderboard) []RankMove {
	var moves []RankMove

	for _, e := range lb.Entries {
		oldRank := 0
		if prev != nil {
			if prevEntry := prev.Find(e.UserID); prevEntry != nil {
				oldRank = prevEntry.Rank
			}
		}

		move := RankMove{UserID: e.UserID, OldRank: oldRank, NewRank: e.Rank}
		e.RankChange = move.Delta()

		if oldRank != 0 && oldRank != e.Rank {
			moves = append(moves, move)
		}
	}

	return moves
}
