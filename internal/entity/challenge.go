package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"anoa.com/challengescore/internal/scoring"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Challenge struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string            `gorm:"size:120;not null" json:"name"`
	StartDate time.Time         `gorm:"not null" json:"start_date"`
	EndDate   *time.Time        `json:"end_date,omitempty"`
	Timezone  string            `gorm:"size:64;not null;default:UTC" json:"timezone"`
	Metrics   []ChallengeMetric `gorm:"constraint:OnDelete:CASCADE" json:"metrics,omitempty"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (c *Challenge) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Location loads the challenge's IANA time zone.
func (c *Challenge) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: challenge %s has unknown timezone %q", scoring.ErrInvalidConfig, c.ID, c.Timezone)
	}
	return loc, nil
}

// ChallengeMetric holds the live scoring config columns plus the frozen history of earlier
// configs. ConfigEffectiveFrom is when the live config took over (nil = since the start).
type ChallengeMetric struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ChallengeID         uuid.UUID       `gorm:"type:uuid;index;not null" json:"challenge_id"`
	Name                string          `gorm:"size:100;not null" json:"name"`
	Unit                string          `gorm:"size:30" json:"unit"`
	AggregationMethod   string          `gorm:"size:20;not null" json:"aggregation_method"`
	ScoringFrequency    string          `gorm:"size:20;not null" json:"scoring_frequency"`
	PointsPerUnit       *float64        `json:"points_per_unit"`
	MaxPointsPerPeriod  *float64        `json:"max_points_per_period"`
	MaxPointsTotal      *float64        `json:"max_points_total"`
	ConfigEffectiveFrom *time.Time      `json:"config_effective_from,omitempty"`
	ConfigHistory       json.RawMessage `gorm:"type:jsonb" json:"config_history,omitempty"`
	Rules               []ScoringRule   `gorm:"foreignKey:MetricID;constraint:OnDelete:CASCADE" json:"scoring_rules"`
	Qualifiers          []Qualifier     `gorm:"foreignKey:MetricID;constraint:OnDelete:CASCADE" json:"qualifiers"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *ChallengeMetric) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// LiveConfig is the scoring-relevant part of the live columns.
func (m *ChallengeMetric) LiveConfig() scoring.MetricConfig {
	cfg := scoring.MetricConfig{
		PointsPerUnit:      m.PointsPerUnit,
		MaxPointsPerPeriod: m.MaxPointsPerPeriod,
		MaxPointsTotal:     m.MaxPointsTotal,
	}
	for _, r := range m.Rules {
		cfg.Rules = append(cfg.Rules, r.ToScoring())
	}
	return cfg
}

// History parses and validates the stored config history.
func (m *ChallengeMetric) History() ([]scoring.ConfigSnapshot, error) {
	history, err := scoring.ParseConfigHistory(m.ConfigHistory)
	if err != nil {
		return nil, fmt.Errorf("metric %s: %w", m.ID, err)
	}
	return history, nil
}

// SetHistory validates and stores history.
func (m *ChallengeMetric) SetHistory(history []scoring.ConfigSnapshot) error {
	if err := scoring.ValidateHistory(history); err != nil {
		return err
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode config history: %w", err)
	}
	m.ConfigHistory = raw
	return nil
}

// ToScoring converts the row (with Rules loaded) into the engine's metric.
func (m *ChallengeMetric) ToScoring() (scoring.Metric, error) {
	history, err := m.History()
	if err != nil {
		return scoring.Metric{}, err
	}
	metric := scoring.Metric{
		ID:           m.ID,
		ChallengeID:  m.ChallengeID,
		Name:         m.Name,
		Aggregation:  scoring.Aggregation(m.AggregationMethod),
		Frequency:    scoring.Frequency(m.ScoringFrequency),
		MetricConfig: m.LiveConfig(),
		History:      history,
	}
	if err := metric.Validate(); err != nil {
		return scoring.Metric{}, fmt.Errorf("metric %s: %w", m.ID, err)
	}
	return metric, nil
}

type Qualifier struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MetricID uuid.UUID `gorm:"type:uuid;index;not null" json:"metric_id"`
	Name     string    `gorm:"size:60;not null" json:"name"`
}

func (q *Qualifier) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

type ScoringRule struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	MetricID       uuid.UUID     `gorm:"type:uuid;index;not null" json:"metric_id"`
	Position       int           `gorm:"not null;default:0" json:"position"`
	ComparisonType string        `gorm:"size:30;not null" json:"comparison_type"`
	MinValue       *float64      `json:"min_value"`
	MaxValue       *float64      `json:"max_value"`
	Points         float64       `gorm:"not null" json:"points"`
	QualifierID    uuid.NullUUID `gorm:"type:uuid" json:"qualifier_id"`
}

func (r ScoringRule) ToScoring() scoring.ScoringRule {
	return scoring.ScoringRule{
		Comparison:  scoring.Comparison(r.ComparisonType),
		MinValue:    r.MinValue,
		MaxValue:    r.MaxValue,
		Points:      r.Points,
		QualifierID: r.QualifierID,
	}
}

// RulesFromScoring turns engine rules into rows for metricID, keeping their order.
func RulesFromScoring(metricID uuid.UUID, rules []scoring.ScoringRule) []ScoringRule {
	rows := make([]ScoringRule, 0, len(rules))
	for i, r := range rules {
		rows = append(rows, ScoringRule{
			MetricID:       metricID,
			Position:       i,
			ComparisonType: string(r.Comparison),
			MinValue:       r.MinValue,
			MaxValue:       r.MaxValue,
			Points:         r.Points,
			QualifierID:    r.QualifierID,
		})
	}
	return rows
}

type Participant struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChallengeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_participant_challenge_user,priority:1" json:"challenge_id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_participant_challenge_user,priority:2" json:"user_id"`
	User        User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user"`
	DisplayName *string   `gorm:"size:60" json:"display_name,omitempty"`
	JoinedAt    time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ToScoring needs User preloaded for the name fallback.
func (p *Participant) ToScoring() scoring.Participant {
	sp := scoring.Participant{ID: p.ID, UserID: p.UserID, Name: p.User.Name}
	if p.DisplayName != nil {
		sp.DisplayName = *p.DisplayName
	}
	return sp
}
