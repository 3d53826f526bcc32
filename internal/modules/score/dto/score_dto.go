package dto

import (
	"time"

	"github.com/google/uuid"
)

type SnapshotResponse struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	MetricID      uuid.UUID `json:"metric_id"`
	DisplayName   string    `json:"display_name"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	RawPoints     float64   `json:"raw_points"`
	CappedPoints  float64   `json:"capped_points"`
	TotalPoints   float64   `json:"total_points"`
}

type RecomputeResult struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	MetricID      uuid.UUID `json:"metric_id"`
	TotalPoints   float64   `json:"total_points"`
	Periods       int       `json:"periods"`
}

type ChallengeRecomputeResult struct {
	ChallengeID uuid.UUID `json:"challenge_id"`
	Pairs       int       `json:"pairs"`
}
