package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"anoa.com/challengescore/internal/entity"
	"anoa.com/challengescore/internal/modules/challenge/dto"
	"anoa.com/challengescore/internal/modules/challenge/repository"
	"anoa.com/challengescore/internal/scoring"
	"anoa.com/challengescore/pkg/apperror"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// Recomputer schedules a score rebuild for one participant on one metric.
type Recomputer interface {
	Enqueue(ctx context.Context, participantID, metricID uuid.UUID) error
}

type ChallengeService interface {
	CreateChallenge(ctx context.Context, req dto.CreateChallengeRequest) (*dto.ChallengeResponse, error)
	GetChallenge(ctx context.Context, id uuid.UUID) (*dto.ChallengeResponse, error)
	AddMetric(ctx context.Context, challengeID uuid.UUID, req dto.AddMetricRequest) (*dto.MetricResponse, error)
	UpdateMetricConfig(ctx context.Context, metricID uuid.UUID, req dto.UpdateMetricConfigRequest) (*dto.MetricResponse, error)
	JoinChallenge(ctx context.Context, challengeID uuid.UUID, req dto.JoinChallengeRequest) (*dto.ParticipantResponse, error)
	ListParticipants(ctx context.Context, challengeID uuid.UUID) ([]dto.ParticipantResponse, error)
}

type challengeService struct {
	repo       repository.ChallengeRepository
	recomputer Recomputer
	sanitizer  *bluemonday.Policy
	now        func() time.Time
}

func NewChallengeService(repo repository.ChallengeRepository, recomputer Recomputer) ChallengeService {
	return &challengeService{
		repo:       repo,
		recomputer: recomputer,
		sanitizer:  bluemonday.StrictPolicy(),
		now:        time.Now,
	}
}

func (s *challengeService) CreateChallenge(ctx context.Context, req dto.CreateChallengeRequest) (*dto.ChallengeResponse, error) {
	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, apperror.ErrInvalidInput)
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return nil, fmt.Errorf("end date is before start date: %w", apperror.ErrInvalidInput)
	}

	challenge := &entity.Challenge{
		Name:      strings.TrimSpace(req.Name),
		StartDate: req.StartDate.UTC(),
		Timezone:  tz,
	}
	if req.EndDate != nil {
		end := req.EndDate.UTC()
		challenge.EndDate = &end
	}

	if err := s.repo.Create(ctx, challenge); err != nil {
		return nil, err
	}
	return toChallengeResponse(challenge)
}

func (s *challengeService) GetChallenge(ctx context.Context, id uuid.UUID) (*dto.ChallengeResponse, error) {
	challenge, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toChallengeResponse(challenge)
}

func (s *challengeService) AddMetric(ctx context.Context, challengeID uuid.UUID, req dto.AddMetricRequest) (*dto.MetricResponse, error) {
	if _, err := s.repo.FindByID(ctx, challengeID); err != nil {
		return nil, err
	}

	metric := &entity.ChallengeMetric{
		ID:                 uuid.New(),
		ChallengeID:        challengeID,
		Name:               strings.TrimSpace(req.Name),
		Unit:               strings.TrimSpace(req.Unit),
		AggregationMethod:  req.AggregationMethod,
		ScoringFrequency:   req.ScoringFrequency,
		PointsPerUnit:      req.PointsPerUnit,
		MaxPointsPerPeriod: req.MaxPointsPerPeriod,
		MaxPointsTotal:     req.MaxPointsTotal,
	}

	seen := make(map[string]bool, len(req.Qualifiers))
	for _, name := range req.Qualifiers {
		name = strings.TrimSpace(name)
		if seen[name] {
			return nil, fmt.Errorf("duplicate qualifier %q: %w", name, apperror.ErrInvalidInput)
		}
		seen[name] = true
		metric.Qualifiers = append(metric.Qualifiers, entity.Qualifier{ID: uuid.New(), MetricID: metric.ID, Name: name})
	}

	rules, err := resolveRules(metric.Qualifiers, req.Rules)
	if err != nil {
		return nil, err
	}
	metric.Rules = entity.RulesFromScoring(metric.ID, rules)

	if _, err := metric.ToScoring(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateMetric(ctx, metric); err != nil {
		return nil, err
	}
	return toMetricResponse(metric)
}

// UpdateMetricConfig swaps the live config. A real change freezes the outgoing config into
// history for [its start, effectiveFrom) so periods already scored keep their rules, then
// every participant is queued for recompute.
func (s *challengeService) UpdateMetricConfig(ctx context.Context, metricID uuid.UUID, req dto.UpdateMetricConfigRequest) (*dto.MetricResponse, error) {
	metric, err := s.repo.FindMetricByID(ctx, metricID)
	if err != nil {
		return nil, err
	}

	rules, err := resolveRules(metric.Qualifiers, req.Rules)
	if err != nil {
		return nil, err
	}
	next := scoring.MetricConfig{
		PointsPerUnit:      req.PointsPerUnit,
		MaxPointsPerPeriod: req.MaxPointsPerPeriod,
		MaxPointsTotal:     req.MaxPointsTotal,
		Rules:              rules,
	}

	live := metric.LiveConfig()
	if !scoring.HasConfigChanged(live, next) {
		return toMetricResponse(metric)
	}

	if !req.Retroactive {
		effectiveFrom := s.now().UTC()
		if req.EffectiveFrom != nil {
			effectiveFrom = req.EffectiveFrom.UTC()
		}
		if metric.ConfigEffectiveFrom != nil && !effectiveFrom.After(*metric.ConfigEffectiveFrom) {
			return nil, fmt.Errorf("effective_from must be after %s: %w", metric.ConfigEffectiveFrom.Format(time.RFC3339), apperror.ErrInvalidInput)
		}

		history, err := metric.History()
		if err != nil {
			return nil, err
		}
		frozenTo := effectiveFrom.Add(-time.Millisecond)
		history = append(history, scoring.Freeze(live, metric.ConfigEffectiveFrom, &frozenTo))
		if err := metric.SetHistory(history); err != nil {
			return nil, err
		}
		metric.ConfigEffectiveFrom = &effectiveFrom
	}

	metric.PointsPerUnit = next.PointsPerUnit
	metric.MaxPointsPerPeriod = next.MaxPointsPerPeriod
	metric.MaxPointsTotal = next.MaxPointsTotal
	metric.Rules = entity.RulesFromScoring(metric.ID, next.Rules)

	if _, err := metric.ToScoring(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateMetricConfig(ctx, metric); err != nil {
		return nil, err
	}

	s.queueMetric(ctx, metric)
	return toMetricResponse(metric)
}

func (s *challengeService) queueMetric(ctx context.Context, metric *entity.ChallengeMetric) {
	if s.recomputer == nil {
		return
	}
	participants, err := s.repo.FindParticipants(ctx, metric.ChallengeID)
	if err != nil {
		slog.WarnContext(ctx, "list participants for recompute", "metric_id", metric.ID, "error", err)
		return
	}
	for _, p := range participants {
		if err := s.recomputer.Enqueue(ctx, p.ID, metric.ID); err != nil {
			slog.WarnContext(ctx, "queue recompute after config change",
				"participant_id", p.ID, "metric_id", metric.ID, "error", err)
		}
	}
}

func (s *challengeService) JoinChallenge(ctx context.Context, challengeID uuid.UUID, req dto.JoinChallengeRequest) (*dto.ParticipantResponse, error) {
	if _, err := s.repo.FindByID(ctx, challengeID); err != nil {
		return nil, err
	}

	user, err := s.resolveUser(ctx, req)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.FindParticipant(ctx, challengeID, user.ID); err == nil {
		return nil, fmt.Errorf("user %s already joined this challenge: %w", user.ID, apperror.ErrConflict)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	participant := &entity.Participant{ChallengeID: challengeID, UserID: user.ID}
	if name := strings.TrimSpace(s.sanitizer.Sanitize(req.DisplayName)); name != "" {
		participant.DisplayName = &name
	}
	if err := s.repo.CreateParticipant(ctx, participant); err != nil {
		return nil, err
	}
	participant.User = *user

	res := toParticipantResponse(*participant)
	return &res, nil
}

func (s *challengeService) resolveUser(ctx context.Context, req dto.JoinChallengeRequest) (*entity.User, error) {
	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			return nil, fmt.Errorf("invalid user_id: %w", apperror.ErrInvalidInput)
		}
		return s.repo.FindUserByID(ctx, id)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("name or user_id is required: %w", apperror.ErrInvalidInput)
	}

	user := &entity.User{Name: name}
	if email := strings.TrimSpace(strings.ToLower(req.Email)); email != "" {
		existing, err := s.repo.FindUserByEmail(ctx, email)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		user.Email = &email
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *challengeService) ListParticipants(ctx context.Context, challengeID uuid.UUID) ([]dto.ParticipantResponse, error) {
	if _, err := s.repo.FindByID(ctx, challengeID); err != nil {
		return nil, err
	}
	participants, err := s.repo.FindParticipants(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	res := make([]dto.ParticipantResponse, 0, len(participants))
	for _, p := range participants {
		res = append(res, toParticipantResponse(p))
	}
	return res, nil
}

func resolveRules(qualifiers []entity.Qualifier, reqs []dto.RuleRequest) ([]scoring.ScoringRule, error) {
	byName := make(map[string]uuid.UUID, len(qualifiers))
	for _, q := range qualifiers {
		byName[q.Name] = q.ID
	}

	rules := make([]scoring.ScoringRule, 0, len(reqs))
	for i, r := range reqs {
		rule := scoring.ScoringRule{
			Comparison: scoring.Comparison(r.ComparisonType),
			MinValue:   r.MinValue,
			MaxValue:   r.MaxValue,
			Points:     r.Points,
		}
		if name := strings.TrimSpace(r.Qualifier); name != "" {
			id, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("rule %d references unknown qualifier %q: %w", i, name, apperror.ErrInvalidInput)
			}
			rule.QualifierID = uuid.NullUUID{UUID: id, Valid: true}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func toChallengeResponse(c *entity.Challenge) (*dto.ChallengeResponse, error) {
	res := &dto.ChallengeResponse{
		ID:        c.ID,
		Name:      c.Name,
		StartDate: c.StartDate,
		EndDate:   c.EndDate,
		Timezone:  c.Timezone,
		Metrics:   make([]dto.MetricResponse, 0, len(c.Metrics)),
	}
	for i := range c.Metrics {
		m, err := toMetricResponse(&c.Metrics[i])
		if err != nil {
			return nil, err
		}
		res.Metrics = append(res.Metrics, *m)
	}
	return res, nil
}

func toMetricResponse(m *entity.ChallengeMetric) (*dto.MetricResponse, error) {
	history, err := m.History()
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []scoring.ConfigSnapshot{}
	}

	res := &dto.MetricResponse{
		ID:                  m.ID,
		ChallengeID:         m.ChallengeID,
		Name:                m.Name,
		Unit:                m.Unit,
		AggregationMethod:   m.AggregationMethod,
		ScoringFrequency:    m.ScoringFrequency,
		PointsPerUnit:       m.PointsPerUnit,
		MaxPointsPerPeriod:  m.MaxPointsPerPeriod,
		MaxPointsTotal:      m.MaxPointsTotal,
		ConfigEffectiveFrom: m.ConfigEffectiveFrom,
		Qualifiers:          make([]dto.QualifierResponse, 0, len(m.Qualifiers)),
		ScoringRules:        make([]dto.RuleResponse, 0, len(m.Rules)),
		ConfigHistory:       history,
	}

	names := make(map[uuid.UUID]string, len(m.Qualifiers))
	for _, q := range m.Qualifiers {
		names[q.ID] = q.Name
		res.Qualifiers = append(res.Qualifiers, dto.QualifierResponse{ID: q.ID, Name: q.Name})
	}
	for _, r := range m.Rules {
		rule := dto.RuleResponse{
			ComparisonType: r.ComparisonType,
			MinValue:       r.MinValue,
			MaxValue:       r.MaxValue,
			Points:         r.Points,
		}
		if r.QualifierID.Valid {
			id := r.QualifierID.UUID
			rule.QualifierID = &id
			rule.Qualifier = names[id]
		}
		res.ScoringRules = append(res.ScoringRules, rule)
	}
	return res, nil
}

func toParticipantResponse(p entity.Participant) dto.ParticipantResponse {
	return dto.ParticipantResponse{
		ID:          p.ID,
		ChallengeID: p.ChallengeID,
		UserID:      p.UserID,
		Name:        p.User.Name,
		DisplayName: p.DisplayName,
		JoinedAt:    p.JoinedAt,
	}
}
