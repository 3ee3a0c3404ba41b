package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-ledger/internal/config"
	"paper-ledger/internal/errors"
	"paper-ledger/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeQueries struct {
	lastFilter models.TradeFilter
	lastWindow int
}

func (f *fakeQueries) GetTrades(_ context.Context, filter models.TradeFilter) ([]models.Trade, error) {
	f.lastFilter = filter
	return []models.Trade{{ID: "t1", Symbol: "AAPL", Status: models.TradeOpen}}, nil
}

func (f *fakeQueries) GetAnalytics(_ context.Context, tradeID string) (*models.TradeAnalytics, error) {
	if tradeID != "t1" {
		return nil, errors.Wrapf(errors.ErrNotFound, "analytics for trade %s", tradeID)
	}
	return &models.TradeAnalytics{TradeID: "t1", Complete: true}, nil
}

func (f *fakeQueries) GetSessionSummary(_ context.Context, sessionID string) (*models.SessionSummary, error) {
	return &models.SessionSummary{Session: models.TradingSession{ID: sessionID}, DurationSeconds: 60}, nil
}

func (f *fakeQueries) GetLearningProgress(_ context.Context, userID string, windowDays int) (*models.LearningProgress, error) {
	f.lastWindow = windowDays
	if windowDays <= 0 {
		return nil, errors.NewValidationError("window_days", windowDays, "window must be at least one day")
	}
	return &models.LearningProgress{UserID: userID, WindowDays: windowDays, Trend: "stable"}, nil
}

func (f *fakeQueries) DetectPatterns(_ context.Context, userID string) (*models.PatternReport, error) {
	return nil, errors.ErrDatabaseError
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(q Queries, health Pinger) *Server {
	cfg := config.Default().Server
	return NewServer(cfg, q, health, zerolog.Nop())
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealth(t *testing.T) {
	w, body := get(t, newTestServer(&fakeQueries{}, fakePinger{}), "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, _ = get(t, newTestServer(&fakeQueries{}, fakePinger{err: errors.ErrDatabaseError}), "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListTradesFilters(t *testing.T) {
	q := &fakeQueries{}
	s := newTestServer(q, nil)

	w, body := get(t, s, "/api/trades?user_id=u1&status=open&limit=5&from=2024-03-01T00:00:00Z")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["data"], 1)
	assert.Equal(t, "u1", q.lastFilter.UserID)
	assert.Equal(t, models.TradeOpen, q.lastFilter.Status)
	assert.Equal(t, 5, q.lastFilter.Limit)
	assert.True(t, q.lastFilter.StartDate.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	w, _ = get(t, s, "/api/trades?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = get(t, s, "/api/trades?to=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTradeAnalytics(t *testing.T) {
	s := newTestServer(&fakeQueries{}, nil)

	w, body := get(t, s, "/api/trades/t1/analytics")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "t1", data["trade_id"])

	w, body = get(t, s, "/api/trades/missing/analytics")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, true, body["error"])
}

func TestLearningProgressWindow(t *testing.T) {
	q := &fakeQueries{}
	s := newTestServer(q, nil)

	w, _ := get(t, s, "/api/users/u1/progress")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30, q.lastWindow)

	w, _ = get(t, s, "/api/users/u1/progress?window_days=7")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, q.lastWindow)

	w, _ = get(t, s, "/api/users/u1/progress?window_days=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = get(t, s, "/api/users/u1/progress?window_days=x")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionSummaryAndPatterns(t *testing.T) {
	s := newTestServer(&fakeQueries{}, nil)

	w, body := get(t, s, "/api/sessions/s1/summary")
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 60, data["duration_seconds"])

	w, _ = get(t, s, "/api/users/u1/patterns")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakeQueries{}, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errors.Wrap(errors.ErrNotFound, "trade x"), http.StatusNotFound},
		{errors.ErrConflict, http.StatusConflict},
		{errors.NewValidationError("quantity", 0, "must be positive"), http.StatusBadRequest},
		{errors.NewTradeError("t1", "AAPL", "close", "not open", errors.ErrNotOpen), http.StatusUnprocessableEntity},
		{errors.NewSessionError("s1", "pause", "completed", errors.ErrInvalidTransition), http.StatusUnprocessableEntity},
		{errors.ErrNotQualified, http.StatusForbidden},
		{errors.ErrDatabaseError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), tc.err.Error())
	}
}
