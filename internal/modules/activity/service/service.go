package activity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"anoa.com/challengescore/internal/entity"
	"anoa.com/challengescore/internal/modules/activity/dto"
	"anoa.com/challengescore/internal/modules/activity/repository"
	challengeRepo "anoa.com/challengescore/internal/modules/challenge/repository"
	"anoa.com/challengescore/internal/scoring"
	"anoa.com/challengescore/pkg/apperror"
	"anoa.com/challengescore/pkg/metrics"
	"github.com/google/uuid"
)

type Recomputer interface {
	Enqueue(ctx context.Context, participantID, metricID uuid.UUID) error
}

type ActivityService interface {
	SubmitLog(ctx context.Context, req dto.SubmitLogRequest) (*dto.LogResponse, error)
	ListLogs(ctx context.Context, participantID, metricID uuid.UUID) ([]dto.LogResponse, error)
}

type activityService struct {
	repo          repository.ActivityRepository
	challengeRepo challengeRepo.ChallengeRepository
	recomputer    Recomputer
	metrics       *metrics.Scoring
}

func NewActivityService(repo repository.ActivityRepository, challengeRepo challengeRepo.ChallengeRepository, recomputer Recomputer, m *metrics.Scoring) ActivityService {
	return &activityService{
		repo:          repo,
		challengeRepo: challengeRepo,
		recomputer:    recomputer,
		metrics:       m,
	}
}

// SubmitLog stores a new log. Submitting again for the same day and qualifier is how a value
// gets corrected; nothing is overwritten.
func (s *activityService) SubmitLog(ctx context.Context, req dto.SubmitLogRequest) (*dto.LogResponse, error) {
	participantID, err := uuid.Parse(req.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("invalid participant_id: %w", apperror.ErrInvalidInput)
	}
	metricID, err := uuid.Parse(req.MetricID)
	if err != nil {
		return nil, fmt.Errorf("invalid metric_id: %w", apperror.ErrInvalidInput)
	}

	participant, err := s.challengeRepo.FindParticipantByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	metric, err := s.challengeRepo.FindMetricByID(ctx, metricID)
	if err != nil {
		return nil, err
	}
	if metric.ChallengeID != participant.ChallengeID {
		return nil, fmt.Errorf("metric %s is not part of the participant's challenge: %w", metricID, apperror.ErrInvalidInput)
	}

	var qualifier uuid.NullUUID
	if req.QualifierID != "" {
		qid, err := uuid.Parse(req.QualifierID)
		if err != nil {
			return nil, fmt.Errorf("invalid qualifier_id: %w", apperror.ErrInvalidInput)
		}
		if !hasQualifier(metric, qid) {
			return nil, fmt.Errorf("qualifier %s does not belong to metric %s: %w", qid, metricID, apperror.ErrInvalidInput)
		}
		qualifier = uuid.NullUUID{UUID: qid, Valid: true}
	}

	challenge, err := s.challengeRepo.FindByID(ctx, participant.ChallengeID)
	if err != nil {
		return nil, err
	}
	loc, err := challenge.Location()
	if err != nil {
		return nil, err
	}
	date, err := parseLogDate(req.Date, loc)
	if err != nil {
		return nil, err
	}

	day := scoring.DayKey(date, loc)
	if day < scoring.DayKey(challenge.StartDate, loc) {
		return nil, fmt.Errorf("date %s is before the challenge starts: %w", day, apperror.ErrInvalidInput)
	}
	if challenge.EndDate != nil && day > scoring.DayKey(*challenge.EndDate, loc) {
		return nil, fmt.Errorf("date %s is after the challenge ends: %w", day, apperror.ErrInvalidInput)
	}

	entry := &entity.ActivityLog{
		ParticipantID: participant.ID,
		MetricID:      metric.ID,
		QualifierID:   qualifier,
		Value:         req.Value,
		Date:          date.UTC(),
		Note:          strings.TrimSpace(req.Note),
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	s.metrics.LogsSubmitted.Inc()

	if err := s.recomputer.Enqueue(ctx, participant.ID, metric.ID); err != nil {
		slog.WarnContext(ctx, "recompute after log submission failed",
			"participant_id", participant.ID, "metric_id", metric.ID, "error", err)
	}

	res := toLogResponse(*entry)
	return &res, nil
}

func (s *activityService) ListLogs(ctx context.Context, participantID, metricID uuid.UUID) ([]dto.LogResponse, error) {
	if _, err := s.challengeRepo.FindParticipantByID(ctx, participantID); err != nil {
		return nil, err
	}
	logs, err := s.repo.FindByParticipantMetric(ctx, participantID, metricID)
	if err != nil {
		return nil, err
	}

	res := make([]dto.LogResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, toLogResponse(l))
	}
	return res, nil
}

func hasQualifier(metric *entity.ChallengeMetric, id uuid.UUID) bool {
	for _, q := range metric.Qualifiers {
		if q.ID == id {
			return true
		}
	}
	return false
}

func parseLogDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, raw, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("date %q must be RFC 3339 or YYYY-MM-DD: %w", raw, apperror.ErrInvalidInput)
}

func toLogResponse(l entity.ActivityLog) dto.LogResponse {
	res := dto.LogResponse{
		ID:            l.ID,
		ParticipantID: l.ParticipantID,
		MetricID:      l.MetricID,
		Value:         l.Value,
		Date:          l.Date,
		Note:          l.Note,
		CreatedAt:     l.CreatedAt,
	}
	if l.QualifierID.Valid {
		id := l.QualifierID.UUID
		res.QualifierID = &id
	}
	return res
}
