package dto

import (
	"time"

	"anoa.com/challengescore/internal/scoring"
	"github.com/google/uuid"
)

type CreateChallengeRequest struct {
	Name      string     `json:"name" binding:"required,min=3,max=120"`
	StartDate time.Time  `json:"start_date" binding:"required"`
	EndDate   *time.Time `json:"end_date" binding:"omitempty,gtefield=StartDate"`
	Timezone  string     `json:"timezone" binding:"omitempty,timezone"`
}

// RuleRequest refers to qualifiers by name; names resolve against the metric's qualifiers.
type RuleRequest struct {
	ComparisonType string   `json:"comparison_type" binding:"required,oneof=RANGE GREATER_THAN GREATER_THAN_EQUAL"`
	MinValue       *float64 `json:"min_value"`
	MaxValue       *float64 `json:"max_value"`
	Points         float64  `json:"points"`
	Qualifier      string   `json:"qualifier"`
}

type MetricConfigRequest struct {
	PointsPerUnit      *float64      `json:"points_per_unit" binding:"omitempty,gt=0"`
	MaxPointsPerPeriod *float64      `json:"max_points_per_period" binding:"omitempty,min=0"`
	MaxPointsTotal     *float64      `json:"max_points_total" binding:"omitempty,min=0"`
	Rules              []RuleRequest `json:"scoring_rules" binding:"dive"`
}

type AddMetricRequest struct {
	Name              string   `json:"name" binding:"required,max=100"`
	Unit              string   `json:"unit" binding:"max=30"`
	AggregationMethod string   `json:"aggregation_method" binding:"required,oneof=SUM COUNT MAX MIN AVERAGE"`
	ScoringFrequency  string   `json:"scoring_frequency" binding:"required,oneof=DAILY WEEKLY MONTHLY"`
	Qualifiers        []string `json:"qualifiers" binding:"dive,required,max=60"`
	MetricConfigRequest
}

// UpdateMetricConfigRequest replaces the live config. Unless Retroactive is set the previous
// config keeps applying to activity before EffectiveFrom (default: now).
type UpdateMetricConfigRequest struct {
	MetricConfigRequest
	EffectiveFrom *time.Time `json:"effective_from"`
	Retroactive   bool       `json:"retroactive"`
}

type JoinChallengeRequest struct {
	UserID      string `json:"user_id" binding:"omitempty,uuid"`
	Name        string `json:"name" binding:"required_without=UserID,max=100"`
	Email       string `json:"email" binding:"omitempty,email"`
	DisplayName string `json:"display_name" binding:"max=60"`
}

type QualifierResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type RuleResponse struct {
	ComparisonType string     `json:"comparison_type"`
	MinValue       *float64   `json:"min_value"`
	MaxValue       *float64   `json:"max_value"`
	Points         float64    `json:"points"`
	QualifierID    *uuid.UUID `json:"qualifier_id"`
	Qualifier      string     `json:"qualifier,omitempty"`
}

type MetricResponse struct {
	ID                  uuid.UUID                `json:"id"`
	ChallengeID         uuid.UUID                `json:"challenge_id"`
	Name                string                   `json:"name"`
	Unit                string                   `json:"unit"`
	AggregationMethod   string                   `json:"aggregation_method"`
	ScoringFrequency    string                   `json:"scoring_frequency"`
	PointsPerUnit       *float64                 `json:"points_per_unit"`
	MaxPointsPerPeriod  *float64                 `json:"max_points_per_period"`
	MaxPointsTotal      *float64                 `json:"max_points_total"`
	ConfigEffectiveFrom *time.Time               `json:"config_effective_from,omitempty"`
	Qualifiers          []QualifierResponse      `json:"qualifiers"`
	ScoringRules        []RuleResponse           `json:"scoring_rules"`
	ConfigHistory       []scoring.ConfigSnapshot `json:"config_history"`
}

type ChallengeResponse struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	StartDate time.Time        `json:"start_date"`
	EndDate   *time.Time       `json:"end_date,omitempty"`
	Timezone  string           `json:"timezone"`
	Metrics   []MetricResponse `json:"metrics"`
}

type ParticipantResponse struct {
	ID          uuid.UUID `json:"id"`
	ChallengeID uuid.UUID `json:"challenge_id"`
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	DisplayName *string   `json:"display_name,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}
