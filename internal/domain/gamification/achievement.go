package gamification

import (
	"time"

	"github.com/alem-hub/alem-gamification/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS (Достижения)
// ══════════════════════════════════════════════════════════════════════════════

// AchievementType представляет тип достижения. Набор типов закрытый:
// новые достижения добавляются изменением кода, а не конфигурацией.
type AchievementType string

const (
	// AchievementFirstLesson - первый завершённый урок.
	AchievementFirstLesson AchievementType = "first_lesson"
	// AchievementStreak3 - 3 дня подряд.
	AchievementStreak3 AchievementType = "streak_3"
	// AchievementStreak7 - 7 дней подряд.
	AchievementStreak7 AchievementType = "streak_7"
	// AchievementStreak30 - 30 дней подряд.
	AchievementStreak30 AchievementType = "streak_30"
	// AchievementCourseComplete - полностью пройден курс.
	AchievementCourseComplete AchievementType = "course_complete"
	// AchievementPerfectScore - идеальный результат на уроке.
	AchievementPerfectScore AchievementType = "perfect_score"
	// AchievementEarlyBird - зарезервировано: активность ранним утром.
	AchievementEarlyBird AchievementType = "early_bird"
	// AchievementNightOwl - зарезервировано: активность поздней ночью.
	AchievementNightOwl AchievementType = "night_owl"
	// AchievementSocialButterfly - зарезервировано: социальная активность.
	AchievementSocialButterfly AchievementType = "social_butterfly"
)

// AllAchievementTypes возвращает все типы достижений в каноническом порядке.
// Порядок стабилен: он определяет порядок достижений у каждого пользователя.
func AllAchievementTypes() []AchievementType {
	return []AchievementType{
		AchievementFirstLesson,
		AchievementStreak3,
		AchievementStreak7,
		AchievementStreak30,
		AchievementCourseComplete,
		AchievementPerfectScore,
		AchievementEarlyBird,
		AchievementNightOwl,
		AchievementSocialButterfly,
	}
}

// IsValid проверяет, что тип достижения известен движку.
func (t AchievementType) IsValid() bool {
	switch t {
	case AchievementFirstLesson, AchievementStreak3, AchievementStreak7,
		AchievementStreak30, AchievementCourseComplete, AchievementPerfectScore,
		AchievementEarlyBird, AchievementNightOwl, AchievementSocialButterfly:
		return true
	}
	return false
}

// Achievement представляет достижение пользователя.
// Разблокировка терминальна: UnlockedAt выставляется один раз и
// никогда не сбрасывается, даже если условие перестало выполняться.
type Achievement struct {
	// ID - стабильный идентификатор (совпадает с типом).
	ID string

	// Type - тип достижения.
	Type AchievementType

	// Title - название.
	Title string

	// Description - описание условия.
	Description string

	// Icon - эмодзи для UI.
	Icon string

	// XPReward - собственная награда достижения сверх базовой.
	XPReward XP

	// Progress - текущий прогресс к цели.
	Progress int

	// Target - целевое значение для разблокировки.
	Target int

	// UnlockedAt - когда разблокировано (nil, если ещё нет).
	UnlockedAt *time.Time
}

// IsUnlocked возвращает true, если достижение разблокировано.
func (a *Achievement) IsUnlocked() bool {
	return a.UnlockedAt != nil
}

// Unlock помечает достижение разблокированным. Повторная разблокировка
// запрещена.
func (a *Achievement) Unlock(at time.Time) error {
	if a.IsUnlocked() {
		return shared.NewDomainError("gamification", "Unlock", shared.ErrAlreadyUnlocked,
			"achievement "+a.ID+" is already unlocked")
	}
	unlockedAt := at
	a.UnlockedAt = &unlockedAt
	a.Progress = a.Target
	return nil
}

// Clone возвращает глубокую копию достижения.
func (a *Achievement) Clone() Achievement {
	clone := *a
	if a.UnlockedAt != nil {
		at := *a.UnlockedAt
		clone.UnlockedAt = &at
	}
	return clone
}

// AchievementDefinition описывает достижение каталога.
type AchievementDefinition struct {
	Type        AchievementType
	Title       string
	Description string
	Icon        string
	XPReward    XP
	Target      int
}

// AchievementCatalog возвращает определения всех достижений.
func AchievementCatalog() []AchievementDefinition {
	return []AchievementDefinition{
		{AchievementFirstLesson, "Первый шаг", "Завершён первый урок", "🎯", 25, 1},
		{AchievementStreak3, "Разгон", "3 дня подряд", "✨", 50, 3},
		{AchievementStreak7, "Неделя огня", "7 дней подряд", "🔥", 100, 7},
		{AchievementStreak30, "Железная воля", "30 дней подряд", "💪", 500, 30},
		{AchievementCourseComplete, "Финишер", "Полностью пройден курс", "🏆", 200, 1},
		{AchievementPerfectScore, "Перфекционист", "Идеальный результат на уроке", "⭐", 75, 1},
		{AchievementEarlyBird, "Ранняя пташка", "Активность до 7 утра", "🐦", 25, 1},
		{AchievementNightOwl, "Ночная сова", "Активность после полуночи", "🦉", 25, 1},
		{AchievementSocialButterfly, "Душа компании", "Помощь другим студентам", "🤝", 50, 1},
	}
}

// NewAchievementSet создаёт полный набор заблокированных достижений
// для нового пользователя в каноническом порядке каталога.
func NewAchievementSet() []Achievement {
	defs := AchievementCatalog()
	achievements := make([]Achievement, 0, len(defs))
	for _, def := range defs {
		achievements = append(achievements, Achievement{
			ID:          string(def.Type),
			Type:        def.Type,
			Title:       def.Title,
			Description: def.Description,
			Icon:        def.Icon,
			XPReward:    def.XPReward,
			Progress:    0,
			Target:      def.Target,
		})
	}
	return achievements
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// CourseTargets сообщает, сколько уроков нужно пройти для завершения курса.
// Движок геймификации не владеет каталогом курсов, поэтому цель приходит
// от внешнего коллаборатора.
type CourseTargets interface {
	// LessonTarget возвращает количество уроков курса и true, если курс известен.
	LessonTarget(courseID string) (int, bool)
}

// Evaluator проверяет условия достижений по снимку статистики пользователя.
// Проверка идемпотентна: уже разблокированные достижения никогда не
// разблокируются повторно.
type Evaluator struct {
	targets CourseTargets
}

// NewEvaluator создаёт проверщик достижений.
// targets может быть nil: тогда курс считается завершённым после
// первого же пройденного урока.
func NewEvaluator(targets CourseTargets) *Evaluator {
	return &Evaluator{targets: targets}
}

// CheckAll проверяет все достижения пользователя, обновляет прогресс
// и разблокирует те, чьи условия выполнены. Возвращает копии только что
// разблокированных достижений в каноническом порядке каталога.
func (e *Evaluator) CheckAll(stats *UserStats, now time.Time) []Achievement {
	var unlocked []Achievement

	for i := range stats.Achievements {
		ach := &stats.Achievements[i]

		satisfied, progress := e.evaluate(ach, stats)
		if !ach.IsUnlocked() {
			ach.Progress = minInt(progress, ach.Target)
		}

		if satisfied && !ach.IsUnlocked() {
			if err := ach.Unlock(now); err != nil {
				continue
			}
			unlocked = append(unlocked, ach.Clone())
		}
	}

	return unlocked
}

// evaluate возвращает выполнение условия и текущий прогресс для одного
// достижения. Switch исчерпывающий: каждый тип каталога обрабатывается
// явно, зарезервированные типы всегда возвращают false до подключения
// внешних сигналов.
func (e *Evaluator) evaluate(ach *Achievement, stats *UserStats) (bool, int) {
	switch ach.Type {
	case AchievementFirstLesson:
		total := stats.TotalLessonsCompleted()
		return total >= 1, total

	case AchievementStreak3:
		return stats.CurrentStreak >= 3, stats.CurrentStreak

	case AchievementStreak7:
		return stats.CurrentStreak >= 7, stats.CurrentStreak

	case AchievementStreak30:
		return stats.CurrentStreak >= 30, stats.CurrentStreak

	case AchievementCourseComplete:
		return e.evaluateCourseComplete(stats)

	case AchievementPerfectScore:
		return stats.PerfectLessons >= 1, stats.PerfectLessons

	case AchievementEarlyBird, AchievementNightOwl, AchievementSocialButterfly:
		// Зарезервировано: внешние сигналы ещё не подключены.
		return false, 0

	default:
		return false, 0
	}
}

// evaluateCourseComplete проверяет, пройден ли полностью хотя бы один курс.
// Без провайдера целей курс считается завершённым после первого урока.
func (e *Evaluator) evaluateCourseComplete(stats *UserStats) (bool, int) {
	best := 0
	for _, cp := range stats.CourseProgress {
		completed := cp.CompletedCount()
		if completed == 0 {
			continue
		}

		target := 1
		if e.targets != nil {
			if t, ok := e.targets.LessonTarget(cp.CourseID); ok && t > 0 {
				target = t
			}
		}

		if completed >= target {
			return true, 1
		}
	}
	return false, best
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
