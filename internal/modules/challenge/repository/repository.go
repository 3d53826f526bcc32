package repository

import (
	"context"
	"errors"
	"fmt"

	"anoa.com/challengescore/internal/entity"
	"anoa.com/challengescore/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChallengeRepository interface {
	Create(ctx context.Context, challenge *entity.Challenge) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Challenge, error)
	FindAll(ctx context.Context) ([]entity.Challenge, error)

	CreateMetric(ctx context.Context, metric *entity.ChallengeMetric) error
	FindMetricByID(ctx context.Context, id uuid.UUID) (*entity.ChallengeMetric, error)
	FindMetricsByChallenge(ctx context.Context, challengeID uuid.UUID) ([]entity.ChallengeMetric, error)
	UpdateMetricConfig(ctx context.Context, metric *entity.ChallengeMetric) error

	FindUserByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	FindUserByEmail(ctx context.Context, email string) (*entity.User, error)
	CreateUser(ctx context.Context, user *entity.User) error

	CreateParticipant(ctx context.Context, participant *entity.Participant) error
	FindParticipantByID(ctx context.Context, id uuid.UUID) (*entity.Participant, error)
	FindParticipant(ctx context.Context, challengeID, userID uuid.UUID) (*entity.Participant, error)
	FindParticipants(ctx context.Context, challengeID uuid.UUID) ([]entity.Participant, error)
}

type challengeRepository struct {
	db *gorm.DB
}

func NewChallengeRepository(db *gorm.DB) ChallengeRepository {
	return &challengeRepository{db: db}
}

func orderedRules(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, apperror.ErrNotFound)
	}
	return err
}

func (r *challengeRepository) Create(ctx context.Context, challenge *entity.Challenge) error {
	return r.db.WithContext(ctx).Create(challenge).Error
}

func (r *challengeRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Challenge, error) {
	var challenge entity.Challenge
	err := r.db.WithContext(ctx).
		Preload("Metrics", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Metrics.Rules", orderedRules).
		Preload("Metrics.Qualifiers").
		First(&challenge, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "challenge", id)
	}
	return &challenge, nil
}

func (r *challengeRepository) FindAll(ctx context.Context) ([]entity.Challenge, error) {
	var challenges []entity.Challenge
	if err := r.db.WithContext(ctx).Order("start_date ASC").Find(&challenges).Error; err != nil {
		return nil, err
	}
	return challenges, nil
}

// CreateMetric inserts the metric together with its qualifiers and rules.
func (r *challengeRepository) CreateMetric(ctx context.Context, metric *entity.ChallengeMetric) error {
	return r.db.WithContext(ctx).Create(metric).Error
}

func (r *challengeRepository) FindMetricByID(ctx context.Context, id uuid.UUID) (*entity.ChallengeMetric, error) {
	var metric entity.ChallengeMetric
	err := r.db.WithContext(ctx).
		Preload("Rules", orderedRules).
		Preload("Qualifiers").
		First(&metric, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "metric", id)
	}
	return &metric, nil
}

func (r *challengeRepository) FindMetricsByChallenge(ctx context.Context, challengeID uuid.UUID) ([]entity.ChallengeMetric, error) {
	var metrics []entity.ChallengeMetric
	err := r.db.WithContext(ctx).
		Preload("Rules", orderedRules).
		Where("challenge_id = ?", challengeID).
		Order("created_at ASC").
		Find(&metrics).Error
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

// UpdateMetricConfig writes the live config columns and history, and swaps the rule rows, in
// one transaction.
func (r *challengeRepository) UpdateMetricConfig(ctx context.Context, metric *entity.ChallengeMetric) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&entity.ChallengeMetric{}).
			Where("id = ?", metric.ID).
			Updates(map[string]interface{}{
				"points_per_unit":       metric.PointsPerUnit,
				"max_points_per_period": metric.MaxPointsPerPeriod,
				"max_points_total":      metric.MaxPointsTotal,
				"config_effective_from": metric.ConfigEffectiveFrom,
				"config_history":        metric.ConfigHistory,
			}).Error
		if err != nil {
			return err
		}

		if err := tx.Where("metric_id = ?", metric.ID).Delete(&entity.ScoringRule{}).Error; err != nil {
			return err
		}
		if len(metric.Rules) == 0 {
			return nil
		}
		for i := range metric.Rules {
			metric.Rules[i].ID = 0
			metric.Rules[i].MetricID = metric.ID
		}
		return tx.Create(&metric.Rules).Error
	})
}

func (r *challengeRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	var user entity.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}

func (r *challengeRepository) FindUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	var user entity.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err, "user with email", email)
	}
	return &user, nil
}

func (r *challengeRepository) CreateUser(ctx context.Context, user *entity.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *challengeRepository) CreateParticipant(ctx context.Context, participant *entity.Participant) error {
	return r.db.WithContext(ctx).Omit("User").Create(participant).Error
}

func (r *challengeRepository) FindParticipantByID(ctx context.Context, id uuid.UUID) (*entity.Participant, error) {
	var participant entity.Participant
	if err := r.db.WithContext(ctx).Preload("User").First(&participant, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "participant", id)
	}
	return &participant, nil
}

func (r *challengeRepository) FindParticipant(ctx context.Context, challengeID, userID uuid.UUID) (*entity.Participant, error) {
	var participant entity.Participant
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("challenge_id = ? AND user_id = ?", challengeID, userID).
		First(&participant).Error
	if err != nil {
		return nil, notFound(err, "participant for user", userID)
	}
	return &participant, nil
}

func (r *challengeRepository) FindParticipants(ctx context.Context, challengeID uuid.UUID) ([]entity.Participant, error) {
	var participants []entity.Participant
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("challenge_id = ?", challengeID).
		Order("joined_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}
