package usage

import (
	"context"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/database"
)

// Service records per-request token accounting and serves usage rollups.
// With no database configured every operation is a no-op.
type Service struct {
	db *database.DB
}

func NewService(db *database.DB) *Service {
	return &Service{db: db}
}

// RecordRequest persists one request log row. Failures are logged and
// swallowed; accounting must never fail a request that already succeeded.
func (s *Service) RecordRequest(ctx context.Context, log *models.RequestLog) {
	if s.db == nil || log == nil {
		return
	}
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		fiberlog.Errorf("failed to record request log: %v", err)
	}
}

// StatsForUser aggregates request logs for one user.
func (s *Service) StatsForUser(ctx context.Context, userID uint) (*models.UsageStats, error) {
	if s.db == nil {
		return &models.UsageStats{}, nil
	}

	var stats models.UsageStats
	err := s.db.WithContext(ctx).
		Model(&models.RequestLog{}).
		Where("user_id = ?", userID).
		Select(`COUNT(*) AS total_requests,
			COALESCE(SUM(total_tokens), 0) AS total_tokens,
			COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
			COALESCE(SUM(completion_tokens), 0) AS completion_tokens,
			COALESCE(SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END), 0) AS cache_hits`).
		Scan(&stats).Error
	if err != nil {
		return nil, models.NewInternalError("failed to aggregate usage", err)
	}
	return &stats, nil
}

// RecentLogs returns the newest request logs for a user, newest first.
func (s *Service) RecentLogs(ctx context.Context, userID uint, limit int) ([]models.RequestLog, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var logs []models.RequestLog
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, models.NewInternalError("failed to load request logs", err)
	}
	return logs, nil
}
