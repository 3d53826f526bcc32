package scoring

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

type dedupKey struct {
	day       string
	qualifier uuid.NullUUID
}

type aggregate struct {
	value float64
	count int
}

// CalculateScoreFromLogs scores one participant on one metric. It deduplicates logs so the
// latest submission per (local day, qualifier) wins, buckets them into periods, and walks the
// periods in order applying the config in force for each, the period cap and the lifetime cap.
// Periods without logs produce no snapshot. Neither logs nor metric is modified.
func CalculateScoreFromLogs(logs []ActivityLog, metric Metric, participant Participant, loc *time.Location, challengeStart time.Time) (Result, error) {
	if loc == nil {
		return Result{}, fmt.Errorf("%w: missing challenge timezone", ErrInvalidConfig)
	}
	if err := metric.Validate(); err != nil {
		return Result{}, err
	}

	latest := make(map[dedupKey]ActivityLog, len(logs))
	for _, l := range logs {
		key := dedupKey{day: DayKey(l.Date, loc), qualifier: l.QualifierID}
		if cur, ok := latest[key]; !ok || supersedes(l, cur) {
			latest[key] = l
		}
	}

	buckets := make(map[int64][]ActivityLog)
	periods := make(map[int64]Period)
	for _, l := range latest {
		p := PeriodInterval(l.Date, metric.Frequency, loc, &challengeStart)
		key := p.Start.UnixMilli()
		buckets[key] = append(buckets[key], l)
		periods[key] = p
	}

	starts := make([]int64, 0, len(periods))
	for s := range periods {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	result := Result{Snapshots: make([]ScoreSnapshot, 0, len(starts))}
	displayName := participant.DisplayName
	if displayName == "" {
		displayName = participant.Name
	}

	var total float64
	for _, start := range starts {
		period := periods[start]
		cfg := Resolve(metric.MetricConfig, ConfigForPeriod(metric.History, period.Start, period.End))

		groups := aggregateByQualifier(buckets[start], metric.Aggregation)
		raw := periodPoints(groups, cfg)

		capped := raw
		if cfg.MaxPointsPerPeriod != nil {
			capped = math.Min(raw, *cfg.MaxPointsPerPeriod)
		}

		total += capped
		if cfg.MaxPointsTotal != nil {
			total = math.Min(total, *cfg.MaxPointsTotal)
		}

		result.Snapshots = append(result.Snapshots, ScoreSnapshot{
			ParticipantID: participant.ID,
			MetricID:      metric.ID,
			ChallengeID:   metric.ChallengeID,
			UserID:        participant.UserID,
			DisplayName:   displayName,
			PeriodStart:   period.Start,
			PeriodEnd:     period.End,
			RawPoints:     raw,
			CappedPoints:  capped,
			TotalPoints:   total,
		})
	}

	result.TotalPoints = total
	return result, nil
}

// supersedes orders corrections by submission time, then by ID so equal timestamps resolve
// the same way whatever the input order.
func supersedes(candidate, current ActivityLog) bool {
	if !candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.CreatedAt.After(current.CreatedAt)
	}
	return bytes.Compare(candidate.ID[:], current.ID[:]) > 0
}

type qualifierAggregate struct {
	qualifier uuid.NullUUID
	value     float64
}

// aggregateByQualifier combines values per qualifier. The result is ordered (default
// qualifier first, then by ID) so float sums are reproducible.
func aggregateByQualifier(logs []ActivityLog, method Aggregation) []qualifierAggregate {
	sorted := make([]ActivityLog, len(logs))
	copy(sorted, logs)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0
	})

	acc := make(map[uuid.NullUUID]*aggregate)
	for _, l := range sorted {
		a, seen := acc[l.QualifierID]
		if !seen {
			a = &aggregate{}
			acc[l.QualifierID] = a
		}
		switch method {
		case AggregationSum, AggregationAverage:
			a.value += l.Value
		case AggregationCount:
			a.value++
		case AggregationMax:
			if !seen || l.Value > a.value {
				a.value = l.Value
			}
		case AggregationMin:
			if !seen || l.Value < a.value {
				a.value = l.Value
			}
		}
		a.count++
	}

	out := make([]qualifierAggregate, 0, len(acc))
	for q, a := range acc {
		v := a.value
		if method == AggregationAverage && a.count > 0 {
			v = a.value / float64(a.count)
		}
		out = append(out, qualifierAggregate{qualifier: q, value: v})
	}
	sort.Slice(out, func(i, j int) bool { return qualifierLess(out[i].qualifier, out[j].qualifier) })
	return out
}

func qualifierLess(a, b uuid.NullUUID) bool {
	if a.Valid != b.Valid {
		return !a.Valid
	}
	return bytes.Compare(a.UUID[:], b.UUID[:]) < 0
}

func periodPoints(groups []qualifierAggregate, cfg MetricConfig) float64 {
	if cfg.PointsPerUnit != nil {
		var sum float64
		for _, g := range groups {
			sum += g.value
		}
		return sum * *cfg.PointsPerUnit
	}

	var points float64
	for _, g := range groups {
		for _, rule := range rulesFor(cfg.Rules, g.qualifier) {
			if rule.Matches(g.value) {
				points += rule.Points
			}
		}
	}
	return points
}

// rulesFor picks the rules written for qualifier, falling back to the default rules when
// the qualifier has none of its own.
func rulesFor(rules []ScoringRule, qualifier uuid.NullUUID) []ScoringRule {
	var specific, defaults []ScoringRule
	for _, r := range rules {
		switch {
		case !r.QualifierID.Valid:
			defaults = append(defaults, r)
		case qualifier.Valid && r.QualifierID.UUID == qualifier.UUID:
			specific = append(specific, r)
		}
	}
	if len(specific) > 0 {
		return specific
	}
	return defaults
}
