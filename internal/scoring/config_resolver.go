package scoring

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"
)

// ConfigForPeriod returns the first history entry whose effective range overlaps
// [start, end], or nil when the live config governs the period.
func ConfigForPeriod(history []ConfigSnapshot, start, end time.Time) *ConfigSnapshot {
	for i := range history {
		snap := &history[i]
		if snap.EffectiveFrom != nil && snap.EffectiveFrom.After(end) {
			continue
		}
		if snap.EffectiveTo != nil && snap.EffectiveTo.Before(start) {
			continue
		}
		return snap
	}
	return nil
}

// HasConfigChanged deep-compares the scoring-relevant fields of two configs.
func HasConfigChanged(a, b MetricConfig) bool {
	return !reflect.DeepEqual(normalizeConfig(a), normalizeConfig(b))
}

func normalizeConfig(cfg MetricConfig) MetricConfig {
	if len(cfg.Rules) == 0 {
		cfg.Rules = nil
	}
	return cfg
}

// Resolve merges a history entry over the live config field by field. A nil snapshot
// yields the live config unchanged.
func Resolve(live MetricConfig, snap *ConfigSnapshot) MetricConfig {
	if snap == nil {
		return live
	}
	cfg := MetricConfig{
		PointsPerUnit:      snap.PointsPerUnit.Or(live.PointsPerUnit),
		MaxPointsPerPeriod: snap.MaxPointsPerPeriod.Or(live.MaxPointsPerPeriod),
		MaxPointsTotal:     snap.MaxPointsTotal.Or(live.MaxPointsTotal),
		Rules:              live.Rules,
	}
	if snap.Rules != nil {
		cfg.Rules = snap.Rules
	}
	return cfg
}

// ValidateHistory rejects entries with inverted ranges and any two entries whose ranges
// overlap. It is meant for the write path; ConfigForPeriod assumes it has been run.
func ValidateHistory(history []ConfigSnapshot) error {
	for i, snap := range history {
		if snap.EffectiveFrom != nil && snap.EffectiveTo != nil && snap.EffectiveFrom.After(*snap.EffectiveTo) {
			return fmt.Errorf("%w: config history entry %d ends before it starts", ErrInvalidConfig, i)
		}
		if err := validateRules(snap.Rules); err != nil {
			return fmt.Errorf("config history entry %d: %w", i, err)
		}
	}

	order := make([]int, len(history))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rangeStartsBefore(history[order[a]].EffectiveFrom, history[order[b]].EffectiveFrom)
	})

	for k := 1; k < len(order); k++ {
		prev, cur := history[order[k-1]], history[order[k]]
		if prev.EffectiveTo == nil || cur.EffectiveFrom == nil || !cur.EffectiveFrom.After(*prev.EffectiveTo) {
			return fmt.Errorf("%w: config history entries %d and %d overlap", ErrInvalidConfig, order[k-1], order[k])
		}
	}
	return nil
}

func rangeStartsBefore(a, b *time.Time) bool {
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	default:
		return a.Before(*b)
	}
}

// ParseConfigHistory decodes stored history and validates it. Empty input is an empty history.
func ParseConfigHistory(raw []byte) ([]ConfigSnapshot, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var history []ConfigSnapshot
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("%w: malformed config history: %v", ErrInvalidConfig, err)
	}
	if err := ValidateHistory(history); err != nil {
		return nil, err
	}
	return history, nil
}
