package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidConfig is returned when a metric carries a value the engine cannot score with.
// Scoring never substitutes a default for a bad value.
var ErrInvalidConfig = errors.New("invalid metric configuration")

type Aggregation string

const (
	AggregationSum     Aggregation = "SUM"
	AggregationCount   Aggregation = "COUNT"
	AggregationMax     Aggregation = "MAX"
	AggregationMin     Aggregation = "MIN"
	AggregationAverage Aggregation = "AVERAGE"
)

func (a Aggregation) Valid() bool {
	switch a {
	case AggregationSum, AggregationCount, AggregationMax, AggregationMin, AggregationAverage:
		return true
	}
	return false
}

type Frequency string

const (
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

type Comparison string

const (
	ComparisonRange            Comparison = "RANGE"
	ComparisonGreaterThan      Comparison = "GREATER_THAN"
	ComparisonGreaterThanEqual Comparison = "GREATER_THAN_EQUAL"
)

func (c Comparison) Valid() bool {
	switch c {
	case ComparisonRange, ComparisonGreaterThan, ComparisonGreaterThanEqual:
		return true
	}
	return false
}

// ActivityLog is one submitted value. A qualifier with Valid=false is the default qualifier.
type ActivityLog struct {
	ID            uuid.UUID
	ParticipantID uuid.UUID
	MetricID      uuid.UUID
	QualifierID   uuid.NullUUID
	Value         float64
	Date          time.Time
	CreatedAt     time.Time
}

type ScoringRule struct {
	Comparison  Comparison    `json:"comparison_type"`
	MinValue    *float64      `json:"min_value"`
	MaxValue    *float64      `json:"max_value"`
	Points      float64       `json:"points"`
	QualifierID uuid.NullUUID `json:"qualifier_id"`
}

// Matches reports whether value satisfies the rule. Open range bounds are 0 and +Inf.
func (r ScoringRule) Matches(value float64) bool {
	lower := 0.0
	if r.MinValue != nil {
		lower = *r.MinValue
	}

	switch r.Comparison {
	case ComparisonRange:
		if value < lower {
			return false
		}
		return r.MaxValue == nil || value <= *r.MaxValue
	case ComparisonGreaterThan:
		return value > lower
	case ComparisonGreaterThanEqual:
		return value >= lower
	}
	return false
}

// MetricConfig is the scoring-relevant subset of a metric: what gets versioned.
type MetricConfig struct {
	PointsPerUnit      *float64      `json:"points_per_unit"`
	MaxPointsPerPeriod *float64      `json:"max_points_per_period"`
	MaxPointsTotal     *float64      `json:"max_points_total"`
	Rules              []ScoringRule `json:"scoring_rules"`
}

type Metric struct {
	ID          uuid.UUID
	ChallengeID uuid.UUID
	Name        string
	Aggregation Aggregation
	Frequency   Frequency
	MetricConfig
	History []ConfigSnapshot
}

// Validate checks every enum the calculator switches on.
func (m Metric) Validate() error {
	if !m.Aggregation.Valid() {
		return fmt.Errorf("%w: unsupported aggregation method %q", ErrInvalidConfig, m.Aggregation)
	}
	if !m.Frequency.Valid() {
		return fmt.Errorf("%w: unsupported scoring frequency %q", ErrInvalidConfig, m.Frequency)
	}
	if err := validateRules(m.Rules); err != nil {
		return err
	}
	for i, snap := range m.History {
		if err := validateRules(snap.Rules); err != nil {
			return fmt.Errorf("config history entry %d: %w", i, err)
		}
	}
	return nil
}

func validateRules(rules []ScoringRule) error {
	for i, rule := range rules {
		if !rule.Comparison.Valid() {
			return fmt.Errorf("%w: rule %d has unsupported comparison type %q", ErrInvalidConfig, i, rule.Comparison)
		}
		if rule.Comparison == ComparisonRange && rule.MinValue != nil && rule.MaxValue != nil && *rule.MinValue > *rule.MaxValue {
			return fmt.Errorf("%w: rule %d has min_value greater than max_value", ErrInvalidConfig, i)
		}
	}
	return nil
}

// OptionalFloat separates a field that was never written (inherit the live value) from one
// written as null (explicitly disabled).
type OptionalFloat struct {
	Set   bool
	Value *float64
}

func Unset() OptionalFloat { return OptionalFloat{} }

func Disabled() OptionalFloat { return OptionalFloat{Set: true} }

func Float(v float64) OptionalFloat { return OptionalFloat{Set: true, Value: &v} }

// Or returns the stored value when set, else live.
func (o OptionalFloat) Or(live *float64) *float64 {
	if !o.Set {
		return live
	}
	return o.Value
}

func (o OptionalFloat) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// ConfigSnapshot is a frozen copy of a metric's scoring config for an effective range.
// Nil bounds are open. Rules == nil inherits the live rules.
type ConfigSnapshot struct {
	EffectiveFrom      *time.Time    `json:"effective_from"`
	EffectiveTo        *time.Time    `json:"effective_to"`
	PointsPerUnit      OptionalFloat `json:"points_per_unit,omitzero"`
	MaxPointsPerPeriod OptionalFloat `json:"max_points_per_period,omitzero"`
	MaxPointsTotal     OptionalFloat `json:"max_points_total,omitzero"`
	Rules              []ScoringRule `json:"scoring_rules"`
}

// Freeze captures cfg as a history entry covering [from, to].
func Freeze(cfg MetricConfig, from, to *time.Time) ConfigSnapshot {
	snap := ConfigSnapshot{
		EffectiveFrom:      from,
		EffectiveTo:        to,
		PointsPerUnit:      OptionalFloat{Set: true, Value: cloneFloat(cfg.PointsPerUnit)},
		MaxPointsPerPeriod: OptionalFloat{Set: true, Value: cloneFloat(cfg.MaxPointsPerPeriod)},
		MaxPointsTotal:     OptionalFloat{Set: true, Value: cloneFloat(cfg.MaxPointsTotal)},
		Rules:              make([]ScoringRule, len(cfg.Rules)),
	}
	copy(snap.Rules, cfg.Rules)
	return snap
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

type Participant struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	DisplayName string
}

type ScoreSnapshot struct {
	ParticipantID uuid.UUID
	MetricID      uuid.UUID
	ChallengeID   uuid.UUID
	UserID        uuid.UUID
	DisplayName   string
	PeriodStart   time.Time
	PeriodEnd     time.Time
	RawPoints     float64
	CappedPoints  float64
	TotalPoints   float64
}

type Result struct {
	TotalPoints float64
	Snapshots   []ScoreSnapshot
}
