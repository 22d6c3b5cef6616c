package service

import (
	"context"
	"time"

	"github.com/quricedev/alice-ai/internal/models"
)

// LogStore is the request-log query surface the analytics service reads
// from. *repository.RequestLogRepository satisfies it; tests substitute
// an in-memory fake.
type LogStore interface {
	FindByKeyName(ctx context.Context, keyName string, from, to time.Time, limit, offset int) ([]models.RequestLog, error)
	CountByTimeRange(ctx context.Context, from, to time.Time) (int64, error)
	GetAverageResponseTime(ctx context.Context, from, to time.Time) (float64, error)
	CountByStatusCodeRange(ctx context.Context, minStatusCode, maxStatusCode int, from, to time.Time) (int64, error)
	GetTopEndpoints(ctx context.Context, from, to time.Time, limit int) ([]map[string]interface{}, error)
	DeleteOldLogs(ctx context.Context, before time.Time) (int64, error)
}

type AnalyticsService struct {
	store LogStore
}

func NewAnalyticsService(store LogStore) *AnalyticsService {
	return &AnalyticsService{
		store: store,
	}
}

// Holds analytics summary data
type AnalyticsSummary struct {
	TotalRequests   int64                    `json:"total_requests"`
	AvgResponseTime float64                  `json:"avg_response_time_ms"`
	ErrorRate       float64                  `json:"error_rate"`
	SuccessRate     float64                  `json:"success_rate"`
	ClientErrorRate float64                  `json:"client_error_rate"`
	ServerErrorRate float64                  `json:"server_error_rate"`
	TopEndpoints    []map[string]interface{} `json:"top_endpoints"`
}

// Retrieves analytics summary for a time range
func (s *AnalyticsService) GetSummary(ctx context.Context, from, to time.Time) (*AnalyticsSummary, error) {
	summary := &AnalyticsSummary{}

	totalRequests, err := s.store.CountByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.TotalRequests = totalRequests

	if totalRequests == 0 {
		return summary, nil
	}

	avgResponseTime, err := s.store.GetAverageResponseTime(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.AvgResponseTime = avgResponseTime

	clientErrors, err := s.store.CountByStatusCodeRange(ctx, 400, 499, from, to)
	if err != nil {
		return nil, err
	}

	serverErrors, err := s.store.CountByStatusCodeRange(ctx, 500, 599, from, to)
	if err != nil {
		return nil, err
	}

	totalErrors := clientErrors + serverErrors
	summary.ErrorRate = (float64(totalErrors) / float64(totalRequests)) * 100
	summary.SuccessRate = 100 - summary.ErrorRate
	summary.ClientErrorRate = (float64(clientErrors) / float64(totalRequests)) * 100
	summary.ServerErrorRate = (float64(serverErrors) / float64(totalRequests)) * 100

	topEndpoints, err := s.store.GetTopEndpoints(ctx, from, to, 10)
	if err != nil {
		return nil, err
	}
	summary.TopEndpoints = topEndpoints

	return summary, nil
}

// Retrieves request logs for a key name with pagination
func (s *AnalyticsService) GetKeyLogs(ctx context.Context, keyName string, from, to time.Time, limit, offset int) ([]models.RequestLog, error) {
	return s.store.FindByKeyName(ctx, keyName, from, to, limit, offset)
}

// Deletes logs older than specified retention period
func (s *AnalyticsService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutOffDate := time.Now().AddDate(0, 0, -retentionDays)
	return s.store.DeleteOldLogs(ctx, cutOffDate)
}
