package repository

import (
	"context"

	"anoa.com/challengescore/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LeaderboardRepository interface {
	// FindLatestSnapshots returns, per (participant, metric), the snapshot with the latest
	// period start.
	FindLatestSnapshots(ctx context.Context, challengeID uuid.UUID) ([]entity.ScoreSnapshot, error)
}

type leaderboardRepository struct {
	db *gorm.DB
}

func NewLeaderboardRepository(db *gorm.DB) LeaderboardRepository {
	return &leaderboardRepository{db: db}
}

type pairKey struct {
	participantID uuid.UUID
	metricID      uuid.UUID
}

func (r *leaderboardRepository) FindLatestSnapshots(ctx context.Context, challengeID uuid.UUID) ([]entity.ScoreSnapshot, error) {
	var snapshots []entity.ScoreSnapshot
	err := r.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Find(&snapshots).Error
	if err != nil {
		return nil, err
	}

	latest := make(map[pairKey]int, len(snapshots))
	order := make([]pairKey, 0)
	for i, snap := range snapshots {
		key := pairKey{snap.ParticipantID, snap.MetricID}
		cur, ok := latest[key]
		if !ok {
			order = append(order, key)
			latest[key] = i
			continue
		}
		if snap.PeriodStart.After(snapshots[cur].PeriodStart) {
			latest[key] = i
		}
	}

	res := make([]entity.ScoreSnapshot, 0, len(order))
	for _, key := range order {
		res = append(res, snapshots[latest[key]])
	}
	return res, nil
}
