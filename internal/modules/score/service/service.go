package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"anoa.com/challengescore/internal/entity"
	challengeRepo "anoa.com/challengescore/internal/modules/challenge/repository"
	"anoa.com/challengescore/internal/modules/score/dto"
	"anoa.com/challengescore/internal/modules/score/repository"
	"anoa.com/challengescore/internal/scoring"
	"anoa.com/challengescore/pkg/apperror"
	"anoa.com/challengescore/pkg/metrics"
	"anoa.com/challengescore/pkg/ratelimiter"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	PendingKey = "score:pending"
	drainBatch = 100

	recomputeScope = "recompute"
)

// CacheInvalidator drops cached views built from a challenge's snapshots.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, challengeID uuid.UUID) error
}

type ScoreService interface {
	RecomputeParticipantMetric(ctx context.Context, participantID, metricID uuid.UUID) (*dto.RecomputeResult, error)
	RecomputeChallenge(ctx context.Context, challengeID uuid.UUID) (*dto.ChallengeRecomputeResult, error)
	// TriggerRecompute is RecomputeChallenge behind a per-challenge cooldown.
	TriggerRecompute(ctx context.Context, challengeID uuid.UUID) (*dto.ChallengeRecomputeResult, error)
	RecomputeActive(ctx context.Context) error
	// Enqueue marks a pair for recompute. Without Redis the recompute runs inline.
	Enqueue(ctx context.Context, participantID, metricID uuid.UUID) error
	DrainPending(ctx context.Context) (int, error)
	GetSnapshots(ctx context.Context, participantID, metricID uuid.UUID) ([]dto.SnapshotResponse, error)
}

type scoreService struct {
	repo          repository.ScoreRepository
	challengeRepo challengeRepo.ChallengeRepository
	redisClient   *redis.Client
	invalidator   CacheInvalidator
	metrics       *metrics.Scoring
	concurrency   int
	cooldown      time.Duration
	now           func() time.Time
}

func NewScoreService(
	repo repository.ScoreRepository,
	challengeRepo challengeRepo.ChallengeRepository,
	redisClient *redis.Client,
	invalidator CacheInvalidator,
	m *metrics.Scoring,
	concurrency int,
	cooldown time.Duration,
) ScoreService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &scoreService{
		repo:          repo,
		challengeRepo: challengeRepo,
		redisClient:   redisClient,
		invalidator:   invalidator,
		metrics:       m,
		concurrency:   concurrency,
		cooldown:      cooldown,
		now:           time.Now,
	}
}

func (s *scoreService) RecomputeParticipantMetric(ctx context.Context, participantID, metricID uuid.UUID) (res *dto.RecomputeResult, err error) {
	started := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metrics.Recomputes.WithLabelValues(outcome).Inc()
		s.metrics.RecomputeDuration.Observe(time.Since(started).Seconds())
	}()

	participant, err := s.challengeRepo.FindParticipantByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	metricRow, err := s.challengeRepo.FindMetricByID(ctx, metricID)
	if err != nil {
		return nil, err
	}
	if metricRow.ChallengeID != participant.ChallengeID {
		return nil, fmt.Errorf("metric %s is not part of participant %s's challenge: %w", metricID, participantID, apperror.ErrInvalidInput)
	}
	challenge, err := s.challengeRepo.FindByID(ctx, participant.ChallengeID)
	if err != nil {
		return nil, err
	}

	loc, err := challenge.Location()
	if err != nil {
		return nil, err
	}
	metric, err := metricRow.ToScoring()
	if err != nil {
		return nil, err
	}

	var result scoring.Result
	err = s.repo.ReplaceSnapshots(ctx, participantID, metricID, func(rows []entity.ActivityLog) ([]entity.ScoreSnapshot, error) {
		logs := make([]scoring.ActivityLog, 0, len(rows))
		for _, l := range rows {
			logs = append(logs, l.ToScoring())
		}
		r, err := scoring.CalculateScoreFromLogs(logs, metric, participant.ToScoring(), loc, challenge.StartDate)
		if err != nil {
			return nil, err
		}
		result = r
		snapshots := make([]entity.ScoreSnapshot, 0, len(r.Snapshots))
		for _, snap := range r.Snapshots {
			snapshots = append(snapshots, entity.SnapshotFromScoring(snap))
		}
		return snapshots, nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace snapshots: %w", err)
	}
	s.metrics.SnapshotsWritten.Add(float64(len(result.Snapshots)))

	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, challenge.ID); err != nil {
			slog.WarnContext(ctx, "invalidate leaderboard cache", "challenge_id", challenge.ID, "error", err)
		}
	}

	return &dto.RecomputeResult{
		ParticipantID: participantID,
		MetricID:      metricID,
		TotalPoints:   result.TotalPoints,
		Periods:       len(result.Snapshots),
	}, nil
}

// RecomputeChallenge rebuilds every (participant, metric) pair of the challenge, at most
// s.concurrency at a time. The first failure cancels the rest.
func (s *scoreService) RecomputeChallenge(ctx context.Context, challengeID uuid.UUID) (*dto.ChallengeRecomputeResult, error) {
	if _, err := s.challengeRepo.FindByID(ctx, challengeID); err != nil {
		return nil, err
	}
	metricRows, err := s.challengeRepo.FindMetricsByChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	participants, err := s.challengeRepo.FindParticipants(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range participants {
		for _, m := range metricRows {
			g.Go(func() error {
				if _, err := s.RecomputeParticipantMetric(gctx, p.ID, m.ID); err != nil {
					return fmt.Errorf("participant %s metric %s: %w", p.ID, m.ID, err)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &dto.ChallengeRecomputeResult{
		ChallengeID: challengeID,
		Pairs:       len(participants) * len(metricRows),
	}, nil
}

func (s *scoreService) TriggerRecompute(ctx context.Context, challengeID uuid.UUID) (*dto.ChallengeRecomputeResult, error) {
	id := challengeID.String()
	allowed, err := ratelimiter.CheckAndSetRateLimit(ctx, s.redisClient, recomputeScope, id, s.cooldown)
	if err != nil {
		return nil, err
	}
	if !allowed {
		ttl, _ := ratelimiter.GetRateLimitTTL(ctx, s.redisClient, recomputeScope, id)
		return nil, &ratelimiter.RateLimitError{
			Message:    fmt.Sprintf("challenge was recomputed recently, retry in %.0f seconds", ttl.Seconds()),
			RetryAfter: ttl,
		}
	}

	res, err := s.RecomputeChallenge(ctx, challengeID)
	if err != nil {
		_ = ratelimiter.ClearRateLimit(ctx, s.redisClient, recomputeScope, id)
		return nil, err
	}
	return res, nil
}

// RecomputeActive rebuilds every challenge running today. A failing challenge does not stop
// the others.
func (s *scoreService) RecomputeActive(ctx context.Context) error {
	challenges, err := s.challengeRepo.FindAll(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	var errs []error
	for _, c := range challenges {
		if !isActive(c, now) {
			continue
		}
		res, err := s.RecomputeChallenge(ctx, c.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("challenge %s: %w", c.ID, err))
			continue
		}
		slog.InfoContext(ctx, "recomputed challenge", "challenge_id", c.ID, "pairs", res.Pairs)
	}
	return errors.Join(errs...)
}

// isActive allows a day of grace after the end date so late corrections still land.
func isActive(c entity.Challenge, now time.Time) bool {
	if now.Before(c.StartDate) {
		return false
	}
	return c.EndDate == nil || now.Before(c.EndDate.Add(24*time.Hour))
}

func (s *scoreService) Enqueue(ctx context.Context, participantID, metricID uuid.UUID) error {
	if s.redisClient == nil {
		_, err := s.RecomputeParticipantMetric(ctx, participantID, metricID)
		return err
	}
	if err := s.redisClient.SAdd(ctx, PendingKey, pendingMember(participantID, metricID)).Err(); err != nil {
		return fmt.Errorf("failed to queue recompute: %w", err)
	}
	return nil
}

// DrainPending pops queued pairs and recomputes them. Pairs that fail for a reason a retry
// could fix go back on the queue for the next run.
func (s *scoreService) DrainPending(ctx context.Context) (int, error) {
	if s.redisClient == nil {
		return 0, nil
	}

	var drained int
	var retry []interface{}
	for {
		members, err := s.redisClient.SPopN(ctx, PendingKey, drainBatch).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return drained, fmt.Errorf("failed to pop pending recomputes: %w", err)
		}
		if len(members) == 0 {
			break
		}

		for _, member := range members {
			participantID, metricID, err := parsePendingMember(member)
			if err != nil {
				slog.WarnContext(ctx, "dropping malformed pending recompute", "member", member, "error", err)
				continue
			}
			drained++
			if _, err := s.RecomputeParticipantMetric(ctx, participantID, metricID); err != nil {
				slog.ErrorContext(ctx, "pending recompute failed",
					"participant_id", participantID, "metric_id", metricID, "error", err)
				if retryable(err) {
					retry = append(retry, member)
				}
			}
		}
	}
	s.metrics.PendingDrained.Add(float64(drained))

	if len(retry) > 0 {
		if err := s.redisClient.SAdd(ctx, PendingKey, retry...).Err(); err != nil {
			return drained, fmt.Errorf("failed to requeue recomputes: %w", err)
		}
	}
	return drained, nil
}

func retryable(err error) bool {
	return !errors.Is(err, apperror.ErrNotFound) &&
		!errors.Is(err, apperror.ErrInvalidInput) &&
		!errors.Is(err, apperror.ErrInvalidConfig)
}

func pendingMember(participantID, metricID uuid.UUID) string {
	return participantID.String() + ":" + metricID.String()
}

func parsePendingMember(member string) (uuid.UUID, uuid.UUID, error) {
	p, m, ok := strings.Cut(member, ":")
	if !ok {
		return uuid.Nil, uuid.Nil, fmt.Errorf("missing separator")
	}
	participantID, err := uuid.Parse(p)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	metricID, err := uuid.Parse(m)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return participantID, metricID, nil
}

func (s *scoreService) GetSnapshots(ctx context.Context, participantID, metricID uuid.UUID) ([]dto.SnapshotResponse, error) {
	if _, err := s.challengeRepo.FindParticipantByID(ctx, participantID); err != nil {
		return nil, err
	}
	if _, err := s.challengeRepo.FindMetricByID(ctx, metricID); err != nil {
		return nil, err
	}
	snapshots, err := s.repo.FindSnapshots(ctx, participantID, metricID)
	if err != nil {
		return nil, err
	}

	res := make([]dto.SnapshotResponse, 0, len(snapshots))
	for _, snap := range snapshots {
		res = append(res, dto.SnapshotResponse{
			ParticipantID: snap.ParticipantID,
			MetricID:      snap.MetricID,
			DisplayName:   snap.DisplayName,
			PeriodStart:   snap.PeriodStart,
			PeriodEnd:     snap.PeriodEnd,
			RawPoints:     snap.RawPoints,
			CappedPoints:  snap.CappedPoints,
			TotalPoints:   snap.TotalPoints,
		})
	}
	return res, nil
}
