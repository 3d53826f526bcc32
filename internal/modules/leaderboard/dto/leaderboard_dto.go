package dto

import "github.com/google/uuid"

type MetricScore struct {
	MetricID   uuid.UUID `json:"metric_id"`
	MetricName string    `json:"metric_name"`
	Points     float64   `json:"points"`
}

// LeaderboardEntry is one participant's standing. Position is the 1-based list position;
// equal totals keep join order and get consecutive positions.
type LeaderboardEntry struct {
	Position      int           `json:"position"`
	ParticipantID uuid.UUID     `json:"participant_id"`
	Name          string        `json:"name"`
	TotalScore    float64       `json:"total_score"`
	MetricScores  []MetricScore `json:"metric_scores"`
}
