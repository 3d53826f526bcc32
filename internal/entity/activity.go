package entity

import (
	"time"

	"anoa.com/challengescore/internal/scoring"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityLog rows are append-only. A correction is a new row for the same day and
// qualifier; the newest CreatedAt wins at scoring time.
type ActivityLog struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantID uuid.UUID     `gorm:"type:uuid;not null;index:idx_log_participant_metric,priority:1" json:"participant_id"`
	MetricID      uuid.UUID     `gorm:"type:uuid;not null;index:idx_log_participant_metric,priority:2" json:"metric_id"`
	QualifierID   uuid.NullUUID `gorm:"type:uuid" json:"qualifier_id"`
	Value         float64       `gorm:"not null" json:"value"`
	Date          time.Time     `gorm:"not null;index" json:"date"`
	Note          string        `gorm:"size:280" json:"note,omitempty"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func (l *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (l ActivityLog) ToScoring() scoring.ActivityLog {
	return scoring.ActivityLog{
		ID:            l.ID,
		ParticipantID: l.ParticipantID,
		MetricID:      l.MetricID,
		QualifierID:   l.QualifierID,
		Value:         l.Value,
		Date:          l.Date,
		CreatedAt:     l.CreatedAt,
	}
}
