package repository

import (
	"context"

	"anoa.com/challengescore/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityRepository has no update or delete: logs are append-only.
type ActivityRepository interface {
	Create(ctx context.Context, log *entity.ActivityLog) error
	FindByParticipantMetric(ctx context.Context, participantID, metricID uuid.UUID) ([]entity.ActivityLog, error)
	FindByMetrics(ctx context.Context, metricIDs []uuid.UUID) ([]entity.ActivityLog, error)
}

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, log *entity.ActivityLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *activityRepository) FindByParticipantMetric(ctx context.Context, participantID, metricID uuid.UUID) ([]entity.ActivityLog, error) {
	var logs []entity.ActivityLog
	err := r.db.WithContext(ctx).
		Where("participant_id = ? AND metric_id = ?", participantID, metricID).
		Order("date ASC").
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *activityRepository) FindByMetrics(ctx context.Context, metricIDs []uuid.UUID) ([]entity.ActivityLog, error) {
	if len(metricIDs) == 0 {
		return nil, nil
	}
	var logs []entity.ActivityLog
	err := r.db.WithContext(ctx).
		Where("metric_id IN ?", metricIDs).
		Order("date ASC").
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
