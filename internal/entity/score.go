package entity

import (
	"time"

	"anoa.com/challengescore/internal/scoring"
	"github.com/google/uuid"
)

// ScoreSnapshot is a derived row: the full set for a (participant, metric) pair is replaced
// on every recompute.
type ScoreSnapshot struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ParticipantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_snapshot_participant_metric,priority:1" json:"participant_id"`
	MetricID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_snapshot_participant_metric,priority:2" json:"metric_id"`
	ChallengeID   uuid.UUID `gorm:"type:uuid;not null;index" json:"challenge_id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null" json:"user_id"`
	DisplayName   string    `gorm:"size:100" json:"display_name"`
	PeriodStart   time.Time `gorm:"not null;uniqueIndex:idx_snapshot_participant_metric,priority:3" json:"period_start"`
	PeriodEnd     time.Time `gorm:"not null" json:"period_end"`
	RawPoints     float64   `gorm:"not null" json:"raw_points"`
	CappedPoints  float64   `gorm:"not null" json:"capped_points"`
	TotalPoints   float64   `gorm:"not null" json:"total_points"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func SnapshotFromScoring(s scoring.ScoreSnapshot) ScoreSnapshot {
	return ScoreSnapshot{
		ParticipantID: s.ParticipantID,
		MetricID:      s.MetricID,
		ChallengeID:   s.ChallengeID,
		UserID:        s.UserID,
		DisplayName:   s.DisplayName,
		PeriodStart:   s.PeriodStart,
		PeriodEnd:     s.PeriodEnd,
		RawPoints:     s.RawPoints,
		CappedPoints:  s.CappedPoints,
		TotalPoints:   s.TotalPoints,
	}
}
