package dto

import (
	"time"

	"github.com/google/uuid"
)

// SubmitLogRequest.Date accepts RFC 3339 or a bare YYYY-MM-DD, which is read as local
// midnight in the challenge's time zone.
type SubmitLogRequest struct {
	ParticipantID string  `json:"participant_id" binding:"required,uuid"`
	MetricID      string  `json:"metric_id" binding:"required,uuid"`
	QualifierID   string  `json:"qualifier_id" binding:"omitempty,uuid"`
	Value         float64 `json:"value"`
	Date          string  `json:"date" binding:"required"`
	Note          string  `json:"note" binding:"max=280"`
}

type LogResponse struct {
	ID            uuid.UUID  `json:"id"`
	ParticipantID uuid.UUID  `json:"participant_id"`
	MetricID      uuid.UUID  `json:"metric_id"`
	QualifierID   *uuid.UUID `json:"qualifier_id"`
	Value         float64    `json:"value"`
	Date          time.Time  `json:"date"`
	Note          string     `json:"note,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
