// Package gamification содержит ядро геймификации: начисление XP,
// серии активных дней и достижения студентов.
package gamification

import (
	"math"
	"time"

	"github.com/alem-hub/alem-gamification/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// XP представляет количество очков опыта. Всегда неотрицательно.
type XP int

// IsValid проверяет, что значение XP корректно.
func (xp XP) IsValid() bool {
	return xp >= 0
}

// Add возвращает сумму двух значений XP.
func (xp XP) Add(other XP) XP {
	return xp + other
}

// Diff возвращает разницу между значениями XP (может быть отрицательной).
func (xp XP) Diff(other XP) XP {
	return xp - other
}

// Constants задаёт коэффициенты формулы начисления XP.
// Значения фиксируются при старте процесса и не меняются на лету:
// ретроактивный пересчёт уже начисленного XP не производится.
type Constants struct {
	// LessonComplete - базовый XP за полностью пройденный урок.
	LessonComplete XP

	// PerfectScoreBonus - фиксированный бонус за идеальный результат.
	PerfectScoreBonus XP

	// StreakMultiplier - прирост бонуса за каждый день серии.
	StreakMultiplier float64

	// MaxStreakBonus - потолок бонуса серии как доля базового XP.
	MaxStreakBonus float64

	// AchievementBase - базовый XP за каждое разблокированное достижение.
	AchievementBase XP
}

// DefaultConstants возвращает стандартные коэффициенты движка.
func DefaultConstants() Constants {
	return Constants{
		LessonComplete:    100,
		PerfectScoreBonus: 50,
		StreakMultiplier:  0.1,
		MaxStreakBonus:    1.0,
		AchievementBase:   25,
	}
}

// IsValid проверяет согласованность коэффициентов.
func (c Constants) IsValid() bool {
	return c.LessonComplete >= 0 &&
		c.PerfectScoreBonus >= 0 &&
		c.AchievementBase >= 0 &&
		c.StreakMultiplier >= 0 &&
		c.MaxStreakBonus >= 0 &&
		!math.IsNaN(c.StreakMultiplier) &&
		!math.IsNaN(c.MaxStreakBonus)
}

// ══════════════════════════════════════════════════════════════════════════════
// XP REWARDS
// ══════════════════════════════════════════════════════════════════════════════

// RewardType представляет источник начисления XP.
type RewardType string

const (
	// RewardLessonComplete - базовое начисление за урок.
	RewardLessonComplete RewardType = "lesson_complete"
	// RewardStreakBonus - бонус за серию активных дней.
	RewardStreakBonus RewardType = "streak_bonus"
	// RewardPerfectScore - бонус за идеальный результат.
	RewardPerfectScore RewardType = "perfect_score"
	// RewardAchievement - награда за разблокированное достижение.
	RewardAchievement RewardType = "achievement"
)

// Reward представляет одно помеченное начисление XP.
// Список наград объясняет студенту, из чего сложился итог.
type Reward struct {
	// Type - источник начисления.
	Type RewardType

	// Amount - количество XP.
	Amount XP

	// Description - человекочитаемое описание.
	Description string

	// GrantedAt - момент начисления. Награда неизменяема после выдачи.
	GrantedAt time.Time
}

// TotalXP возвращает сумму наград.
func TotalXP(rewards []Reward) XP {
	var total XP
	for _, r := range rewards {
		total += r.Amount
	}
	return total
}

// ══════════════════════════════════════════════════════════════════════════════
// XP CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// Calculator вычисляет XP за завершение урока. Чистая функция без состояния:
// одинаковые входы всегда дают одинаковый результат.
type Calculator struct {
	constants Constants
}

// NewCalculator создаёт калькулятор XP с заданными коэффициентами.
func NewCalculator(constants Constants) *Calculator {
	return &Calculator{constants: constants}
}

// Constants возвращает коэффициенты калькулятора.
func (c *Calculator) Constants() Constants {
	return c.constants
}

// BaseXP возвращает базовый XP за урок: LessonComplete * baseScore,
// округлённый арифметически (0.5 вверх).
func (c *Calculator) BaseXP(baseScore float64) (XP, error) {
	if err := validateScore(baseScore); err != nil {
		return 0, err
	}
	return roundHalfUp(float64(c.constants.LessonComplete) * baseScore), nil
}

// StreakBonusXP возвращает бонус серии: базовый XP, умноженный на
// min(streak * StreakMultiplier, MaxStreakBonus). Серия в 10+ дней
// упирается в потолок и дальше бонус не растёт.
func (c *Calculator) StreakBonusXP(baseScore float64, currentStreak int) (XP, error) {
	if err := validateScore(baseScore); err != nil {
		return 0, err
	}
	if currentStreak < 0 {
		return 0, shared.NewDomainError("gamification", "ComputeXP", shared.ErrNegativeValue, "streak cannot be negative")
	}
	factor := math.Min(float64(currentStreak)*c.constants.StreakMultiplier, c.constants.MaxStreakBonus)
	return roundHalfUp(float64(c.constants.LessonComplete) * baseScore * factor), nil
}

// ComputeLessonXP вычисляет полный XP за завершение урока:
//
//	base        = LessonComplete * baseScore
//	streakBonus = base * min(streak * StreakMultiplier, MaxStreakBonus)
//	perfect     = PerfectScoreBonus (если isPerfect)
//	achievement = unlockedCount * AchievementBase
//
// Компоненты округляются по отдельности, чтобы итог всегда совпадал
// с суммой помеченных наград, которые видит студент.
func (c *Calculator) ComputeLessonXP(baseScore float64, currentStreak int, isPerfect bool, unlockedCount int) (XP, error) {
	base, err := c.BaseXP(baseScore)
	if err != nil {
		return 0, err
	}
	streakBonus, err := c.StreakBonusXP(baseScore, currentStreak)
	if err != nil {
		return 0, err
	}
	if unlockedCount < 0 {
		return 0, shared.NewDomainError("gamification", "ComputeXP", shared.ErrNegativeValue, "unlocked count cannot be negative")
	}

	total := base + streakBonus
	if isPerfect {
		total += c.constants.PerfectScoreBonus
	}
	total += XP(unlockedCount) * c.constants.AchievementBase

	return total, nil
}

// validateScore проверяет долю выполнения урока.
// Отрицательные значения и NaN отклоняются; значения больше 1.0
// допускаются как бонусные задания.
func validateScore(baseScore float64) error {
	if math.IsNaN(baseScore) {
		return shared.ErrScoreNotANumber
	}
	if baseScore < 0 {
		return shared.ErrNegativeScore
	}
	return nil
}

// roundHalfUp округляет арифметически: 0.5 всегда вверх.
func roundHalfUp(v float64) XP {
	return XP(math.Floor(v + 0.5))
}
