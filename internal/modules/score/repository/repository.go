package repository

import (
	"context"
	"errors"
	"fmt"

	"anoa.com/challengescore/internal/entity"
	"anoa.com/challengescore/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotBuilder turns a pair's current logs into its complete snapshot set.
type SnapshotBuilder func(logs []entity.ActivityLog) ([]entity.ScoreSnapshot, error)

type ScoreRepository interface {
	ReplaceSnapshots(ctx context.Context, participantID, metricID uuid.UUID, build SnapshotBuilder) error
	FindSnapshots(ctx context.Context, participantID, metricID uuid.UUID) ([]entity.ScoreSnapshot, error)
}

type scoreRepository struct {
	db *gorm.DB
}

func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &scoreRepository{db: db}
}

// ReplaceSnapshots locks the participant row, reads the pair's logs, and swaps the stored
// snapshots for the set build returns, all in one transaction. Recomputes of the same
// participant queue on the row lock, so whichever commits last has read every log committed
// before it.
func (r *scoreRepository) ReplaceSnapshots(ctx context.Context, participantID, metricID uuid.UUID, build SnapshotBuilder) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var participant entity.Participant
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", participantID).
			Take(&participant).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("participant %s: %w", participantID, apperror.ErrNotFound)
			}
			return err
		}

		var logs []entity.ActivityLog
		err = tx.Where("participant_id = ? AND metric_id = ?", participantID, metricID).
			Order("date ASC").
			Order("created_at ASC").
			Find(&logs).Error
		if err != nil {
			return err
		}

		snapshots, err := build(logs)
		if err != nil {
			return err
		}

		err = tx.Where("participant_id = ? AND metric_id = ?", participantID, metricID).
			Delete(&entity.ScoreSnapshot{}).Error
		if err != nil {
			return err
		}
		if len(snapshots) == 0 {
			return nil
		}
		return tx.CreateInBatches(&snapshots, 200).Error
	})
}

func (r *scoreRepository) FindSnapshots(ctx context.Context, participantID, metricID uuid.UUID) ([]entity.ScoreSnapshot, error) {
	var snapshots []entity.ScoreSnapshot
	err := r.db.WithContext(ctx).
		Where("participant_id = ? AND metric_id = ?", participantID, metricID).
		Order("period_start ASC").
		Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
