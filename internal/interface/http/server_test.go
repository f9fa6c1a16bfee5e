package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/alem-gamification/internal/application"
	"github.com/alem-hub/alem-gamification/internal/infrastructure/persistence/memory"
)

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()

	store := memory.NewStatsStore()
	boards := memory.NewLeaderboardStore()

	service := application.NewService(application.Dependencies{
		Stats:        store,
		Grants:       store,
		Leaderboards: boards,
	})

	config := DefaultConfig()
	config.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(&config)
	}

	return NewServer(config, service, nil)
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *APIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "expected success envelope, got error: %+v", envelope.Error)
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func reportBody(userID string) reportLessonRequest {
	return reportLessonRequest{
		UserID:    userID,
		CourseID:  "go-basics",
		LessonID:  "lesson-1",
		BaseScore: 1.0,
	}
}

func TestReportLessonEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/lessons/completions", reportBody("user-1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp reportLessonResponse
	decodeData(t, rec, &resp)

	// 100 base + 10 streak bonus for day one + 50 for the first achievement.
	assert.Equal(t, 160, resp.TotalXP)
	assert.Equal(t, 1, resp.CurrentStreak)
	assert.False(t, resp.IsRepeat)
	require.Len(t, resp.Unlocked, 1)
	assert.Equal(t, "first_lesson", resp.Unlocked[0].Type)
	assert.Len(t, resp.Rewards, 3)
}

func TestReportLessonRepeatGivesNoXP(t *testing.T) {
	s := newTestServer(t, nil)

	first := doRequest(t, s, http.MethodPost, "/api/v1/lessons/completions", reportBody("user-1"), nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(t, s, http.MethodPost, "/api/v1/lessons/completions", reportBody("user-1"), nil)
	require.Equal(t, http.StatusOK, second.Code)

	var resp reportLessonResponse
	decodeData(t, second, &resp)
	assert.True(t, resp.IsRepeat)
	assert.Equal(t, 0, resp.TotalXP)
	assert.Empty(t, resp.Rewards)
}

func TestReportLessonValidation(t *testing.T) {
	s := newTestServer(t, nil)

	body := reportBody("")
	rec := doRequest(t, s, http.MethodPost, "/api/v1/lessons/completions", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	negative := reportBody("user-1")
	negative.BaseScore = -0.5
	rec = doRequest(t, s, http.MethodPost, "/api/v1/lessons/completions", negative, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportLessonRejectsBadJSON(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lessons/completions", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeaderboardEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	require.Equal(t, http.StatusOK,
		doRequest(t, s, http.MethodPost, "/api/v1/lessons/completions", reportBody("user-1"), nil).Code)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/leaderboard", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp leaderboardResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "global", resp.Scope)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "user-1", resp.Entries[0].UserID)
	assert.Equal(t, 1, resp.Entries[0].Rank)
	assert.Equal(t, 160, resp.Entries[0].XP)

	course := doRequest(t, s, http.MethodGet, "/api/v1/leaderboard?scope=course&course_id=go-basics", nil, nil)
	require.Equal(t, http.StatusOK, course.Code)

	decodeData(t, course, &resp)
	assert.Equal(t, "course", resp.Scope)
	assert.Equal(t, "go-basics", resp.CourseID)
	require.Len(t, resp.Entries, 1)
}

func TestLeaderboardNotBuilt(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/leaderboard", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLeaderboardInvalidScope(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/leaderboard?scope=galactic", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/leaderboard?scope=course", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserStatsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	require.Equal(t, http.StatusOK,
		doRequest(t, s, http.MethodPost, "/api/v1/lessons/completions", reportBody("user-1"), nil).Code)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/users/user-1/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp userStatsResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, 160, resp.TotalXP)
	assert.Equal(t, 1, resp.Lessons)
	assert.Len(t, resp.Achievements, 9)
	require.Len(t, resp.Courses, 1)
	assert.Equal(t, "go-basics", resp.Courses[0].CourseID)
}

func TestUserStatsLazyCreation(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/users/new-user/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp userStatsResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "new-user", resp.UserID)
	assert.Equal(t, 0, resp.TotalXP)
	assert.Equal(t, 0, resp.CurrentStreak)
	assert.Nil(t, resp.LastActivity)
}

func TestUserRankEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	require.Equal(t, http.StatusOK,
		doRequest(t, s, http.MethodPost, "/api/v1/lessons/completions", reportBody("user-1"), nil).Code)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/users/user-1/rank", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp rankResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, 1, resp.Rank)
	assert.True(t, resp.Ranked)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/users/ghost/rank", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &resp)
	assert.Equal(t, 0, resp.Rank)
	assert.False(t, resp.Ranked)
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-key"), bcrypt.MinCost)
	require.NoError(t, err)

	s := newTestServer(t, func(c *Config) {
		c.APIKeyHashes = []string{string(hash)}
	})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/lessons/completions", reportBody("user-1"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/lessons/completions", reportBody("user-1"),
		map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/v1/lessons/completions", reportBody("user-1"),
		map[string]string{"X-API-Key": "secret-key"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Read endpoints stay open.
	rec = doRequest(t, s, http.MethodGet, "/api/v1/users/user-1/stats", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/live", nil, nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/", nil, nil).Code)
}

func TestRateLimiting(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimitPerMinute = 2
	})

	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/health", nil, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(t, s, http.MethodGet, "/health", nil, nil).Code)
}

func TestRequestIDPropagation(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/health", nil,
		map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = doRequest(t, s, http.MethodGet, "/health", nil, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
