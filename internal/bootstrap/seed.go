package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"anoa.com/challengescore/internal/entity"
	"anoa.com/challengescore/internal/scoring"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.Challenge{},
		&entity.ChallengeMetric{},
		&entity.Qualifier{},
		&entity.ScoringRule{},
		&entity.Participant{},
		&entity.ActivityLog{},
		&entity.ScoreSnapshot{},
	)
}

// Seed is the YAML fixture format used to bootstrap a development database.
type Seed struct {
	Challenges []SeedChallenge `yaml:"challenges"`
}

type SeedChallenge struct {
	Name         string            `yaml:"name"`
	StartDate    string            `yaml:"start_date"`
	EndDate      string            `yaml:"end_date"`
	Timezone     string            `yaml:"timezone"`
	Metrics      []SeedMetric      `yaml:"metrics"`
	Participants []SeedParticipant `yaml:"participants"`
	Logs         []SeedLog         `yaml:"logs"`
}

type SeedMetric struct {
	Name               string     `yaml:"name"`
	Unit               string     `yaml:"unit"`
	Aggregation        string     `yaml:"aggregation"`
	Frequency          string     `yaml:"frequency"`
	PointsPerUnit      *float64   `yaml:"points_per_unit"`
	MaxPointsPerPeriod *float64   `yaml:"max_points_per_period"`
	MaxPointsTotal     *float64   `yaml:"max_points_total"`
	Qualifiers         []string   `yaml:"qualifiers"`
	Rules              []SeedRule `yaml:"rules"`
	// ConfigEffectiveFrom is the first day the live config above applies.
	ConfigEffectiveFrom string        `yaml:"config_effective_from"`
	History             []SeedHistory `yaml:"history"`
}

// SeedHistory is a retired config. Dates are whole days in the challenge time zone and
// effective_to is inclusive. Omitted fields, rules included, inherit the live value.
type SeedHistory struct {
	EffectiveFrom      string     `yaml:"effective_from"`
	EffectiveTo        string     `yaml:"effective_to"`
	PointsPerUnit      *float64   `yaml:"points_per_unit"`
	MaxPointsPerPeriod *float64   `yaml:"max_points_per_period"`
	MaxPointsTotal     *float64   `yaml:"max_points_total"`
	Rules              []SeedRule `yaml:"rules"`
}

type SeedRule struct {
	Comparison string   `yaml:"comparison"`
	Min        *float64 `yaml:"min"`
	Max        *float64 `yaml:"max"`
	Points     float64  `yaml:"points"`
	Qualifier  string   `yaml:"qualifier"`
}

type SeedParticipant struct {
	Name        string `yaml:"name"`
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
}

// SeedLog references its participant and metric by name.
type SeedLog struct {
	Participant string  `yaml:"participant"`
	Metric      string  `yaml:"metric"`
	Qualifier   string  `yaml:"qualifier"`
	Value       float64 `yaml:"value"`
	Date        string  `yaml:"date"`
}

func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// SeedFromFile loads fixtures from path. Challenges that already exist by name are skipped,
// so running it on every boot is safe.
func SeedFromFile(ctx context.Context, db *gorm.DB, path string) error {
	seed, err := LoadSeed(path)
	if err != nil {
		return err
	}

	for _, sc := range seed.Challenges {
		var count int64
		if err := db.WithContext(ctx).Model(&entity.Challenge{}).
			Where("name = ?", sc.Name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			slog.Info("seed challenge already exists, skipping", "challenge", sc.Name)
			continue
		}

		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return seedChallenge(tx, sc)
		})
		if err != nil {
			return fmt.Errorf("seed challenge %q: %w", sc.Name, err)
		}
		slog.Info("seeded challenge", "challenge", sc.Name,
			"metrics", len(sc.Metrics), "participants", len(sc.Participants), "logs", len(sc.Logs))
	}
	return nil
}

type seededMetric struct {
	entity.ChallengeMetric
	qualifiers map[string]uuid.UUID
}

func seedChallenge(tx *gorm.DB, sc SeedChallenge) error {
	tz := sc.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", tz, err)
	}
	start, err := time.ParseInLocation(time.DateOnly, sc.StartDate, loc)
	if err != nil {
		return fmt.Errorf("start_date: %w", err)
	}

	challenge := entity.Challenge{Name: sc.Name, StartDate: start.UTC(), Timezone: tz}
	if sc.EndDate != "" {
		end, err := dayEnd(sc.EndDate, loc)
		if err != nil {
			return fmt.Errorf("end_date: %w", err)
		}
		challenge.EndDate = end
	}
	if err := tx.Create(&challenge).Error; err != nil {
		return err
	}

	metrics := make(map[string]seededMetric, len(sc.Metrics))
	for _, sm := range sc.Metrics {
		metric, err := buildMetric(challenge.ID, sm, loc)
		if err != nil {
			return fmt.Errorf("metric %q: %w", sm.Name, err)
		}
		if err := tx.Create(&metric.ChallengeMetric).Error; err != nil {
			return err
		}
		metrics[sm.Name] = metric
	}

	participants := make(map[string]entity.Participant, len(sc.Participants))
	for _, sp := range sc.Participants {
		var user entity.User
		if sp.Email != "" {
			email := sp.Email
			if err := tx.Where(entity.User{Email: &email}).Attrs(entity.User{Name: sp.Name}).FirstOrCreate(&user).Error; err != nil {
				return err
			}
		} else {
			user.Name = sp.Name
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
		}

		participant := entity.Participant{ChallengeID: challenge.ID, UserID: user.ID}
		if sp.DisplayName != "" {
			name := sp.DisplayName
			participant.DisplayName = &name
		}
		if err := tx.Create(&participant).Error; err != nil {
			return err
		}
		participants[sp.Name] = participant
	}

	for i, sl := range sc.Logs {
		entry, err := buildLog(sl, participants, metrics, loc)
		if err != nil {
			return fmt.Errorf("log %d: %w", i, err)
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
	}
	return nil
}

func buildMetric(challengeID uuid.UUID, sm SeedMetric, loc *time.Location) (seededMetric, error) {
	metric := seededMetric{
		ChallengeMetric: entity.ChallengeMetric{
			ID:                 uuid.New(),
			ChallengeID:        challengeID,
			Name:               sm.Name,
			Unit:               sm.Unit,
			AggregationMethod:  sm.Aggregation,
			ScoringFrequency:   sm.Frequency,
			PointsPerUnit:      sm.PointsPerUnit,
			MaxPointsPerPeriod: sm.MaxPointsPerPeriod,
			MaxPointsTotal:     sm.MaxPointsTotal,
		},
		qualifiers: make(map[string]uuid.UUID, len(sm.Qualifiers)),
	}

	for _, name := range sm.Qualifiers {
		q := entity.Qualifier{ID: uuid.New(), MetricID: metric.ID, Name: name}
		metric.qualifiers[name] = q.ID
		metric.Qualifiers = append(metric.Qualifiers, q)
	}

	rules, err := buildRules(sm.Rules, metric.qualifiers)
	if err != nil {
		return metric, err
	}
	metric.Rules = entity.RulesFromScoring(metric.ID, rules)

	if sm.ConfigEffectiveFrom != "" {
		from, err := dayStart(sm.ConfigEffectiveFrom, loc)
		if err != nil {
			return metric, fmt.Errorf("config_effective_from: %w", err)
		}
		metric.ConfigEffectiveFrom = from
	}

	if len(sm.History) > 0 {
		history := make([]scoring.ConfigSnapshot, 0, len(sm.History))
		for i, sh := range sm.History {
			snap, err := buildHistory(sh, metric.qualifiers, loc)
			if err != nil {
				return metric, fmt.Errorf("history entry %d: %w", i, err)
			}
			history = append(history, snap)
		}
		if err := metric.SetHistory(history); err != nil {
			return metric, err
		}
	}

	if _, err := metric.ToScoring(); err != nil {
		return metric, err
	}
	return metric, nil
}

func buildRules(seeded []SeedRule, qualifiers map[string]uuid.UUID) ([]scoring.ScoringRule, error) {
	var rules []scoring.ScoringRule
	for _, sr := range seeded {
		rule := scoring.ScoringRule{
			Comparison: scoring.Comparison(sr.Comparison),
			MinValue:   sr.Min,
			MaxValue:   sr.Max,
			Points:     sr.Points,
		}
		if sr.Qualifier != "" {
			id, ok := qualifiers[sr.Qualifier]
			if !ok {
				return nil, fmt.Errorf("rule references unknown qualifier %q", sr.Qualifier)
			}
			rule.QualifierID = uuid.NullUUID{UUID: id, Valid: true}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func buildHistory(sh SeedHistory, qualifiers map[string]uuid.UUID, loc *time.Location) (scoring.ConfigSnapshot, error) {
	var snap scoring.ConfigSnapshot
	rules, err := buildRules(sh.Rules, qualifiers)
	if err != nil {
		return snap, err
	}
	snap.Rules = rules

	if sh.EffectiveFrom != "" {
		if snap.EffectiveFrom, err = dayStart(sh.EffectiveFrom, loc); err != nil {
			return snap, fmt.Errorf("effective_from: %w", err)
		}
	}
	if sh.EffectiveTo != "" {
		if snap.EffectiveTo, err = dayEnd(sh.EffectiveTo, loc); err != nil {
			return snap, fmt.Errorf("effective_to: %w", err)
		}
	}
	if sh.PointsPerUnit != nil {
		snap.PointsPerUnit = scoring.Float(*sh.PointsPerUnit)
	}
	if sh.MaxPointsPerPeriod != nil {
		snap.MaxPointsPerPeriod = scoring.Float(*sh.MaxPointsPerPeriod)
	}
	if sh.MaxPointsTotal != nil {
		snap.MaxPointsTotal = scoring.Float(*sh.MaxPointsTotal)
	}
	return snap, nil
}

func buildLog(sl SeedLog, participants map[string]entity.Participant, metrics map[string]seededMetric, loc *time.Location) (entity.ActivityLog, error) {
	var entry entity.ActivityLog
	p, ok := participants[sl.Participant]
	if !ok {
		return entry, fmt.Errorf("unknown participant %q", sl.Participant)
	}
	m, ok := metrics[sl.Metric]
	if !ok {
		return entry, fmt.Errorf("unknown metric %q", sl.Metric)
	}
	date, err := dayStart(sl.Date, loc)
	if err != nil {
		return entry, fmt.Errorf("date: %w", err)
	}

	entry = entity.ActivityLog{
		ParticipantID: p.ID,
		MetricID:      m.ID,
		Value:         sl.Value,
		Date:          *date,
	}
	if sl.Qualifier != "" {
		id, ok := m.qualifiers[sl.Qualifier]
		if !ok {
			return entry, fmt.Errorf("metric %q has no qualifier %q", sl.Metric, sl.Qualifier)
		}
		entry.QualifierID = uuid.NullUUID{UUID: id, Valid: true}
	}
	return entry, nil
}

func dayStart(raw string, loc *time.Location) (*time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

// dayEnd is the last millisecond of the day.
func dayEnd(raw string, loc *time.Location) (*time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return nil, err
	}
	t = t.AddDate(0, 0, 1).Add(-time.Millisecond).UTC()
	return &t, nil
}
