package gamification

import (
	"time"

	"github.com/alem-hub/alem-gamification/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER STATS (Агрегат статистики пользователя)
// ══════════════════════════════════════════════════════════════════════════════

// UserStats представляет полную статистику геймификации пользователя.
// Это корень агрегата: весь XP, серии, достижения и прогресс по курсам
// меняются только через него под блокировкой пользователя.
type UserStats struct {
	// UserID - идентификатор пользователя.
	UserID string

	// TotalXP - суммарный XP за всё время. Только растёт.
	TotalXP XP

	// CurrentStreak - текущая серия активных дней.
	CurrentStreak int

	// LongestStreak - лучшая серия за всё время. Никогда не уменьшается.
	LongestStreak int

	// LastActivityDate - время последней засчитанной активности.
	LastActivityDate time.Time

	// PerfectLessons - сколько уроков сдано с идеальным результатом.
	PerfectLessons int

	// Achievements - все достижения в каноническом порядке каталога.
	Achievements []Achievement

	// CourseProgress - прогресс по курсам, ключ - ID курса.
	CourseProgress map[string]*CourseProgress

	// Version - версия для оптимистичной блокировки в хранилище.
	Version int64

	// CreatedAt - когда создана запись.
	CreatedAt time.Time

	// UpdatedAt - когда запись менялась в последний раз.
	UpdatedAt time.Time
}

// NewUserStats создаёт статистику для нового пользователя: нулевой XP,
// пустая серия и полный набор заблокированных достижений.
func NewUserStats(userID string, now time.Time) (*UserStats, error) {
	if userID == "" {
		return nil, shared.ErrInvalidUserID
	}
	return &UserStats{
		UserID:         userID,
		Achievements:   NewAchievementSet(),
		CourseProgress: make(map[string]*CourseProgress),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Course возвращает прогресс по курсу, создавая пустую запись при первом
// обращении.
func (s *UserStats) Course(courseID string) *CourseProgress {
	cp, ok := s.CourseProgress[courseID]
	if !ok {
		cp = NewCourseProgress(courseID)
		s.CourseProgress[courseID] = cp
	}
	return cp
}

// AddXP начисляет XP в общий счёт и в счёт курса.
// Оба счётчика независимы: XP курса не является частью разбивки TotalXP.
func (s *UserStats) AddXP(courseID string, amount XP) {
	if amount <= 0 {
		return
	}
	s.TotalXP += amount
	if courseID != "" {
		s.Course(courseID).XP += amount
	}
}

// ApplyStreak применяет результат обновления серии к статистике.
func (s *UserStats) ApplyStreak(update StreakUpdate) {
	s.CurrentStreak = update.CurrentStreak
	s.LongestStreak = update.LongestStreak
	s.LastActivityDate = update.LastActivityDate
}

// RecordActivity прогоняет машину состояний серии для момента now
// и применяет результат. Серия обновляется даже для повторного урока:
// студент был активен сегодня независимо от того, новый это урок или нет.
func (s *UserStats) RecordActivity(now time.Time) StreakUpdate {
	update := AdvanceStreak(s.CurrentStreak, s.LongestStreak, s.LastActivityDate, now)
	s.ApplyStreak(update)
	return update
}

// MarkLessonCompleted добавляет урок в набор пройденных уроков курса.
// Возвращает false, если урок уже был пройден: повторное прохождение
// не даёт ни XP, ни наград.
func (s *UserStats) MarkLessonCompleted(courseID, lessonID string) bool {
	return s.Course(courseID).MarkLesson(lessonID)
}

// RecordPerfectLesson увеличивает счётчик идеально сданных уроков.
func (s *UserStats) RecordPerfectLesson() {
	s.PerfectLessons++
}

// TotalLessonsCompleted возвращает число пройденных уроков по всем курсам.
func (s *UserStats) TotalLessonsCompleted() int {
	total := 0
	for _, cp := range s.CourseProgress {
		total += cp.CompletedCount()
	}
	return total
}

// UnlockedAchievements возвращает копии разблокированных достижений.
func (s *UserStats) UnlockedAchievements() []Achievement {
	var unlocked []Achievement
	for i := range s.Achievements {
		if s.Achievements[i].IsUnlocked() {
			unlocked = append(unlocked, s.Achievements[i].Clone())
		}
	}
	return unlocked
}

// UnlockedCount возвращает число разблокированных достижений.
func (s *UserStats) UnlockedCount() int {
	count := 0
	for i := range s.Achievements {
		if s.Achievements[i].IsUnlocked() {
			count++
		}
	}
	return count
}

// Touch обновляет UpdatedAt.
func (s *UserStats) Touch(now time.Time) {
	s.UpdatedAt = now
}

// Clone возвращает глубокую копию агрегата. Хранилище отдаёт наружу
// только копии: мутации читателя не должны протекать в общее состояние.
func (s *UserStats) Clone() *UserStats {
	clone := *s

	clone.Achievements = make([]Achievement, len(s.Achievements))
	for i := range s.Achievements {
		clone.Achievements[i] = s.Achievements[i].Clone()
	}

	clone.CourseProgress = make(map[string]*CourseProgress, len(s.CourseProgress))
	for id, cp := range s.CourseProgress {
		clone.CourseProgress[id] = cp.Clone()
	}

	return &clone
}

// Validate проверяет инварианты агрегата.
func (s *UserStats) Validate() error {
	if s.UserID == "" {
		return shared.ErrInvalidUserID
	}
	if s.TotalXP < 0 {
		return shared.NewDomainError("gamification", "Validate", shared.ErrNegativeValue, "total XP cannot be negative")
	}
	if s.CurrentStreak < 0 || s.LongestStreak < 0 {
		return shared.NewDomainError("gamification", "Validate", shared.ErrNegativeValue, "streak cannot be negative")
	}
	if s.LongestStreak < s.CurrentStreak {
		return shared.NewDomainError("gamification", "Validate", shared.ErrInvalidState, "longest streak is below current streak")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COURSE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// CourseProgress представляет прогресс пользователя в одном курсе.
type CourseProgress struct {
	// CourseID - идентификатор курса.
	CourseID string

	// XP - заработанный в курсе XP.
	XP XP

	// CurrentStreak - текущая серия активных дней внутри курса.
	// Идёт параллельно общей серии и не влияет на бонусы XP.
	CurrentStreak int

	// LastActivityDate - последняя засчитанная активность в курсе.
	LastActivityDate time.Time

	// CompletedLessons - множество ID пройденных уроков.
	CompletedLessons map[string]struct{}
}

// NewCourseProgress создаёт пустой прогресс по курсу.
func NewCourseProgress(courseID string) *CourseProgress {
	return &CourseProgress{
		CourseID:         courseID,
		CompletedLessons: make(map[string]struct{}),
	}
}

// RecordActivity обновляет серию курса той же машиной состояний, что и
// общая серия. Лучшая серия на уровне курса не отслеживается, поэтому
// текущее значение подставляется и вместо лучшего.
func (cp *CourseProgress) RecordActivity(now time.Time) StreakUpdate {
	update := AdvanceStreak(cp.CurrentStreak, cp.CurrentStreak, cp.LastActivityDate, now)
	cp.CurrentStreak = update.CurrentStreak
	cp.LastActivityDate = update.LastActivityDate
	return update
}

// MarkLesson добавляет урок в множество пройденных.
// Возвращает true, если урок засчитан впервые.
func (cp *CourseProgress) MarkLesson(lessonID string) bool {
	if _, exists := cp.CompletedLessons[lessonID]; exists {
		return false
	}
	cp.CompletedLessons[lessonID] = struct{}{}
	return true
}

// HasLesson проверяет, пройден ли урок.
func (cp *CourseProgress) HasLesson(lessonID string) bool {
	_, exists := cp.CompletedLessons[lessonID]
	return exists
}

// CompletedCount возвращает число пройденных уроков курса.
func (cp *CourseProgress) CompletedCount() int {
	return len(cp.CompletedLessons)
}

// Clone возвращает глубокую копию прогресса.
func (cp *CourseProgress) Clone() *CourseProgress {
	clone := &CourseProgress{
		CourseID:         cp.CourseID,
		XP:               cp.XP,
		CurrentStreak:    cp.CurrentStreak,
		LastActivityDate: cp.LastActivityDate,
		CompletedLessons: make(map[string]struct{}, len(cp.CompletedLessons)),
	}
	for lesson := range cp.CompletedLessons {
		clone.CompletedLessons[lesson] = struct{}{}
	}
	return clone
}
