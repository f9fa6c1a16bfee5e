package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/alem-hub/alem-gamification/internal/application/command"
	"github.com/alem-hub/alem-gamification/internal/application/query"
	"github.com/alem-hub/alem-gamification/internal/domain/gamification"
	"github.com/alem-hub/alem-gamification/internal/domain/leaderboard"
	"github.com/alem-hub/alem-gamification/internal/domain/shared"
	"github.com/alem-hub/alem-gamification/pkg/logger"
	"github.com/alem-hub/alem-gamification/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// reportLessonRequest is the body of POST /api/v1/lessons/completions.
type reportLessonRequest struct {
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	LessonID    string    `json:"lesson_id"`
	BaseScore   float64   `json:"base_score"`
	IsPerfect   bool      `json:"is_perfect"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// rewardDTO is one labeled XP grant in the report response.
type rewardDTO struct {
	Type        string    `json:"type"`
	Amount      int       `json:"amount"`
	Description string    `json:"description"`
	GrantedAt   time.Time `json:"granted_at"`
}

// achievementDTO describes an achievement in API responses.
type achievementDTO struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	XPReward    int        `json:"xp_reward"`
	Progress    int        `json:"progress"`
	Target      int        `json:"target"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

// reportLessonResponse is the result of a processed lesson report.
type reportLessonResponse struct {
	TotalXP       int              `json:"total_xp"`
	Rewards       []rewardDTO      `json:"rewards"`
	Unlocked      []achievementDTO `json:"unlocked"`
	CurrentStreak int              `json:"current_streak"`
	LongestStreak int              `json:"longest_streak"`
	IsRepeat      bool             `json:"is_repeat"`
}

// courseProgressDTO is per-course progress in the stats response.
type courseProgressDTO struct {
	CourseID         string     `json:"course_id"`
	XP               int        `json:"xp"`
	CompletedLessons int        `json:"completed_lessons"`
	CurrentStreak    int        `json:"current_streak"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
}

// userStatsResponse is the body of GET /api/v1/users/{id}/stats.
type userStatsResponse struct {
	UserID        string              `json:"user_id"`
	TotalXP       int                 `json:"total_xp"`
	CurrentStreak int                 `json:"current_streak"`
	LongestStreak int                 `json:"longest_streak"`
	LastActivity  *time.Time          `json:"last_activity,omitempty"`
	Lessons       int                 `json:"lessons_completed"`
	Achievements  []achievementDTO    `json:"achievements"`
	Courses       []courseProgressDTO `json:"courses"`
}

// leaderboardEntryDTO is one row of a leaderboard response.
type leaderboardEntryDTO struct {
	Rank         int    `json:"rank"`
	UserID       string `json:"user_id"`
	Username     string `json:"username,omitempty"`
	XP           int    `json:"xp"`
	Streak       int    `json:"streak"`
	Achievements int    `json:"achievements"`
	RankChange   int    `json:"rank_change"`
}

// leaderboardResponse is the body of GET /api/v1/leaderboard.
type leaderboardResponse struct {
	Scope       string                `json:"scope"`
	CourseID    string                `json:"course_id,omitempty"`
	Entries     []leaderboardEntryDTO `json:"entries"`
	Total       int                   `json:"total"`
	GeneratedAt string                `json:"generated_at"`
}

// rankResponse is the body of GET /api/v1/users/{id}/rank.
type rankResponse struct {
	UserID string `json:"user_id"`
	Scope  string `json:"scope"`
	Rank   int    `json:"rank"`
	Ranked bool   `json:"ranked"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Resource not found")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{
		"service": "alem-gamification",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": s.Uptime().String(),
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSON COMPLETION REPORT
// ══════════════════════════════════════════════════════════════════════════════

// handleReportLesson processes a lesson completion report.
// Version conflicts from concurrent writers to the same user are retried
// here: the domain layer reports them, the transport decides the policy.
func (s *Server) handleReportLesson(w http.ResponseWriter, r *http.Request) {
	var req reportLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}

	cmd := command.ReportLessonCommand{
		UserID:      req.UserID,
		CourseID:    req.CourseID,
		LessonID:    req.LessonID,
		BaseScore:   req.BaseScore,
		IsPerfect:   req.IsPerfect,
		CompletedAt: req.CompletedAt,
	}

	result, err := retry.DoWithData(r.Context(),
		func(ctx context.Context) (*command.ReportLessonResult, error) {
			return s.service.ReportLesson.Handle(ctx, cmd)
		},
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(20*time.Millisecond),
		retry.WithRetryIf(shared.IsRetryable),
	)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toReportResponse(result))
}

func toReportResponse(result *command.ReportLessonResult) reportLessonResponse {
	resp := reportLessonResponse{
		TotalXP:       int(result.TotalXP),
		Rewards:       make([]rewardDTO, 0, len(result.Rewards)),
		Unlocked:      make([]achievementDTO, 0, len(result.Unlocked)),
		CurrentStreak: result.Streak.CurrentStreak,
		LongestStreak: result.Streak.LongestStreak,
		IsRepeat:      result.IsRepeat,
	}
	for _, reward := range result.Rewards {
		resp.Rewards = append(resp.Rewards, rewardDTO{
			Type:        string(reward.Type),
			Amount:      int(reward.Amount),
			Description: reward.Description,
			GrantedAt:   reward.GrantedAt,
		})
	}
	for i := range result.Unlocked {
		resp.Unlocked = append(resp.Unlocked, toAchievementDTO(&result.Unlocked[i]))
	}
	return resp
}

func toAchievementDTO(a *gamification.Achievement) achievementDTO {
	return achievementDTO{
		ID:          a.ID,
		Type:        string(a.Type),
		Title:       a.Title,
		Description: a.Description,
		Icon:        a.Icon,
		XPReward:    int(a.XPReward),
		Progress:    a.Progress,
		Target:      a.Target,
		UnlockedAt:  a.UnlockedAt,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// USER STATS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetUserStats(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	stats, err := s.service.UserStats.Handle(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toStatsResponse(stats))
}

func toStatsResponse(stats *gamification.UserStats) userStatsResponse {
	resp := userStatsResponse{
		UserID:        stats.UserID,
		TotalXP:       int(stats.TotalXP),
		CurrentStreak: stats.CurrentStreak,
		LongestStreak: stats.LongestStreak,
		Lessons:       stats.TotalLessonsCompleted(),
		Achievements:  make([]achievementDTO, 0, len(stats.Achievements)),
		Courses:       make([]courseProgressDTO, 0, len(stats.CourseProgress)),
	}
	if !stats.LastActivityDate.IsZero() {
		last := stats.LastActivityDate
		resp.LastActivity = &last
	}
	for i := range stats.Achievements {
		resp.Achievements = append(resp.Achievements, toAchievementDTO(&stats.Achievements[i]))
	}
	for _, cp := range stats.CourseProgress {
		dto := courseProgressDTO{
			CourseID:         cp.CourseID,
			XP:               int(cp.XP),
			CompletedLessons: cp.CompletedCount(),
			CurrentStreak:    cp.CurrentStreak,
		}
		if !cp.LastActivityDate.IsZero() {
			last := cp.LastActivityDate
			dto.LastActivity = &last
		}
		resp.Courses = append(resp.Courses, dto)
	}
	return resp
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

// parseScope builds a Scope from the "scope" and "course_id" query params.
// Missing scope defaults to global.
func parseScope(r *http.Request) leaderboard.Scope {
	scopeType := r.URL.Query().Get("scope")
	courseID := r.URL.Query().Get("course_id")

	switch scopeType {
	case "", string(leaderboard.ScopeGlobal):
		return leaderboard.GlobalScope()
	case string(leaderboard.ScopeWeekly):
		return leaderboard.WeeklyScope()
	case string(leaderboard.ScopeCourse):
		return leaderboard.CourseScope(courseID)
	default:
		return leaderboard.Scope{Type: leaderboard.ScopeType(scopeType), CourseID: courseID}
	}
}

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := query.GetLeaderboardQuery{
		Scope:        parseScope(r),
		Limit:        getQueryParamInt(r, "limit", 0),
		Page:         getQueryParamInt(r, "page", 0),
		PerPage:      getQueryParamInt(r, "per_page", 0),
		AroundUserID: r.URL.Query().Get("around"),
		Radius:       getQueryParamInt(r, "radius", 0),
	}

	view, err := s.service.Leaderboard.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := leaderboardResponse{
		Scope:       string(view.Scope.Type),
		CourseID:    view.Scope.CourseID,
		Entries:     make([]leaderboardEntryDTO, 0, len(view.Entries)),
		Total:       view.Total,
		GeneratedAt: view.GeneratedAt,
	}
	for _, e := range view.Entries {
		resp.Entries = append(resp.Entries, leaderboardEntryDTO{
			Rank:         e.Rank,
			UserID:       e.UserID,
			Username:     e.Username,
			XP:           e.XP,
			Streak:       e.Streak,
			Achievements: e.Achievements,
			RankChange:   e.RankChange,
		})
	}

	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleGetUserRank(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_user_id", "User ID is required")
		return
	}
	scope := parseScope(r)

	rank, err := s.service.Leaderboard.Rank(r.Context(), scope, userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, rankResponse{
		UserID: userID,
		Scope:  scope.Key(),
		Rank:   rank,
		Ranked: rank > 0,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain errors to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, shared.ErrLeaderboardNotBuilt):
		writeJSONError(w, http.StatusNotFound, "leaderboard_not_built", "Leaderboard has not been built yet")
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsConflict(err):
		writeJSONError(w, http.StatusConflict, "conflict", "Concurrent update detected, please retry")
	default:
		s.logger.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
