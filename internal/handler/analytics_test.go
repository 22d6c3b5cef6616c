package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quricedev/alice-ai/internal/handler"
	"github.com/quricedev/alice-ai/internal/models"
	"github.com/quricedev/alice-ai/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLogStore is an in-memory service.LogStore over a flat log slice.
type memLogStore struct {
	logs []models.RequestLog
}

func (m *memLogStore) FindByKeyName(_ context.Context, keyName string, from, to time.Time, limit, offset int) ([]models.RequestLog, error) {
	var matched []models.RequestLog
	for _, l := range m.logs {
		if l.KeyName == keyName && !l.Timestamp.Before(from) && !l.Timestamp.After(to) {
			matched = append(matched, l)
		}
	}

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *memLogStore) CountByTimeRange(_ context.Context, from, to time.Time) (int64, error) {
	var count int64
	for _, l := range m.logs {
		if !l.Timestamp.Before(from) && !l.Timestamp.After(to) {
			count++
		}
	}
	return count, nil
}

func (m *memLogStore) GetAverageResponseTime(_ context.Context, from, to time.Time) (float64, error) {
	var sum, count int
	for _, l := range m.logs {
		if !l.Timestamp.Before(from) && !l.Timestamp.After(to) {
			sum += l.ResponseTimeMs
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return float64(sum) / float64(count), nil
}

func (m *memLogStore) CountByStatusCodeRange(_ context.Context, minStatusCode, maxStatusCode int, from, to time.Time) (int64, error) {
	var count int64
	for _, l := range m.logs {
		if l.StatusCode >= minStatusCode && l.StatusCode <= maxStatusCode &&
			!l.Timestamp.Before(from) && !l.Timestamp.After(to) {
			count++
		}
	}
	return count, nil
}

func (m *memLogStore) GetTopEndpoints(_ context.Context, from, to time.Time, limit int) ([]map[string]interface{}, error) {
	counts := make(map[string]int64)
	for _, l := range m.logs {
		if !l.Timestamp.Before(from) && !l.Timestamp.After(to) {
			counts[l.Path]++
		}
	}

	var results []map[string]interface{}
	for path, count := range counts {
		results = append(results, map[string]interface{}{"path": path, "count": count})
	}
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

func (m *memLogStore) DeleteOldLogs(_ context.Context, before time.Time) (int64, error) {
	var kept []models.RequestLog
	var deleted int64
	for _, l := range m.logs {
		if l.Timestamp.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	m.logs = kept
	return deleted, nil
}

func newAnalyticsRouter(store service.LogStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := handler.NewAnalyticsHandler(service.NewAnalyticsService(store))

	router := gin.New()
	router.GET("/admin/analytics/summary", h.Summary)
	router.GET("/admin/analytics/keys/:name", h.KeyLogs)
	router.DELETE("/admin/logs", h.Cleanup)
	return router
}

func sampleLogs(now time.Time) []models.RequestLog {
	return []models.RequestLog{
		{Timestamp: now.Add(-time.Hour), KeyName: "alice", Path: "/ai", StatusCode: 200, ResponseTimeMs: 100},
		{Timestamp: now.Add(-2 * time.Hour), KeyName: "alice", Path: "/ai", StatusCode: 401, ResponseTimeMs: 10},
		{Timestamp: now.Add(-3 * time.Hour), KeyName: "bob", Path: "/ai", StatusCode: 200, ResponseTimeMs: 50},
		{Timestamp: now.Add(-90 * 24 * time.Hour), KeyName: "alice", Path: "/ai", StatusCode: 200, ResponseTimeMs: 80},
	}
}

func TestKeyLogsFiltersByName(t *testing.T) {
	now := time.Now().UTC()
	router := newAnalyticsRouter(&memLogStore{logs: sampleLogs(now)})

	req := httptest.NewRequest(http.MethodGet, "/admin/analytics/keys/alice", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		KeyName string              `json:"key_name"`
		Count   int                 `json:"count"`
		Logs    []models.RequestLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	// Default range is the last 24h, so the 90-day-old entry and bob's
	// traffic both stay out.
	assert.Equal(t, "alice", body.KeyName)
	assert.Equal(t, 2, body.Count)
	for _, l := range body.Logs {
		assert.Equal(t, "alice", l.KeyName)
	}
}

func TestKeyLogsPagination(t *testing.T) {
	now := time.Now().UTC()
	router := newAnalyticsRouter(&memLogStore{logs: sampleLogs(now)})

	req := httptest.NewRequest(http.MethodGet, "/admin/analytics/keys/alice?limit=1&offset=1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestKeyLogsRejectsBadRange(t *testing.T) {
	router := newAnalyticsRouter(&memLogStore{})

	for _, target := range []string{
		"/admin/analytics/keys/alice?from=yesterday",
		"/admin/analytics/keys/alice?limit=0",
		"/admin/analytics/keys/alice?offset=-1",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestSummaryAggregates(t *testing.T) {
	now := time.Now().UTC()
	router := newAnalyticsRouter(&memLogStore{logs: sampleLogs(now)})

	req := httptest.NewRequest(http.MethodGet, "/admin/analytics/summary", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var summary service.AnalyticsSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))

	assert.Equal(t, int64(3), summary.TotalRequests)
	assert.InDelta(t, 100.0/3.0, summary.ErrorRate, 0.01)
	assert.InDelta(t, 200.0/3.0, summary.SuccessRate, 0.01)
	require.Len(t, summary.TopEndpoints, 1)
}

func TestCleanupDeletesOldLogs(t *testing.T) {
	now := time.Now().UTC()
	store := &memLogStore{logs: sampleLogs(now)}
	router := newAnalyticsRouter(store)

	req := httptest.NewRequest(http.MethodDelete, "/admin/logs?retention_days=30", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":1}`, w.Body.String())
	assert.Len(t, store.logs, 3)
}
