package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"anoa.com/challengescore/internal/entity"
	activityRepo "anoa.com/challengescore/internal/modules/activity/repository"
	challengeRepo "anoa.com/challengescore/internal/modules/challenge/repository"
	leaderboardDto "anoa.com/challengescore/internal/modules/leaderboard/dto"
	leaderboardRepo "anoa.com/challengescore/internal/modules/leaderboard/repository"
	"anoa.com/challengescore/internal/scoring"
	"anoa.com/challengescore/pkg/metrics"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, challengeID uuid.UUID) ([]leaderboardDto.LeaderboardEntry, error)
	// Invalidate drops the cached leaderboard of a challenge.
	Invalidate(ctx context.Context, challengeID uuid.UUID) error
}

type leaderboardService struct {
	repo          leaderboardRepo.LeaderboardRepository
	challengeRepo challengeRepo.ChallengeRepository
	activityRepo  activityRepo.ActivityRepository
	redisClient   *redis.Client
	cacheTTL      time.Duration
	metrics       *metrics.Scoring
}

func NewLeaderboardService(repo leaderboardRepo.LeaderboardRepository, challengeRepo challengeRepo.ChallengeRepository, activityRepo activityRepo.ActivityRepository, redisClient *redis.Client, cacheTTL time.Duration, m *metrics.Scoring) LeaderboardService {
	return &leaderboardService{
		repo:          repo,
		challengeRepo: challengeRepo,
		activityRepo:  activityRepo,
		redisClient:   redisClient,
		cacheTTL:      cacheTTL,
		metrics:       m,
	}
}

func CacheKey(challengeID uuid.UUID) string {
	return fmt.Sprintf("leaderboard:%s", challengeID)
}

// GetLeaderboard scores every (participant, metric) pair from the stored logs, so the ranking
// never lags behind queued recomputes.
func (s *leaderboardService) GetLeaderboard(ctx context.Context, challengeID uuid.UUID) ([]leaderboardDto.LeaderboardEntry, error) {
	if entries, ok := s.cached(ctx, challengeID); ok {
		return entries, nil
	}

	challenge, err := s.challengeRepo.FindByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	loc, err := challenge.Location()
	if err != nil {
		return nil, err
	}
	participants, err := s.challengeRepo.FindParticipants(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	metricIDs := make([]uuid.UUID, 0, len(challenge.Metrics))
	for _, m := range challenge.Metrics {
		metricIDs = append(metricIDs, m.ID)
	}
	logs, err := s.activityRepo.FindByMetrics(ctx, metricIDs)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.repo.FindLatestSnapshots(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	points, err := scorePairs(challenge, loc, participants, logs)
	if err != nil {
		return nil, err
	}
	standings := buildStandings(challenge.Metrics, participants, points, snapshots)
	ranked := scoring.RankParticipants(standings)

	entries := make([]leaderboardDto.LeaderboardEntry, 0, len(ranked))
	for i, st := range ranked {
		entry := leaderboardDto.LeaderboardEntry{
			Position:      i + 1,
			ParticipantID: st.ParticipantID,
			Name:          st.Name,
			TotalScore:    st.TotalScore,
			MetricScores:  make([]leaderboardDto.MetricScore, 0, len(st.MetricScores)),
		}
		for _, ms := range st.MetricScores {
			entry.MetricScores = append(entry.MetricScores, leaderboardDto.MetricScore{
				MetricID:   ms.MetricID,
				MetricName: ms.MetricName,
				Points:     ms.Points,
			})
		}
		entries = append(entries, entry)
	}

	s.store(ctx, challengeID, entries)
	return entries, nil
}

type pairKey struct {
	participantID uuid.UUID
	metricID      uuid.UUID
}

// scorePairs runs the calculator once per (participant, metric) pair that has logs and
// returns the totals keyed by participant, then metric.
func scorePairs(challenge *entity.Challenge, loc *time.Location, participants []entity.Participant, logs []entity.ActivityLog) (map[uuid.UUID]map[uuid.UUID]float64, error) {
	grouped := make(map[pairKey][]scoring.ActivityLog)
	for _, l := range logs {
		key := pairKey{l.ParticipantID, l.MetricID}
		grouped[key] = append(grouped[key], l.ToScoring())
	}

	points := make(map[uuid.UUID]map[uuid.UUID]float64, len(participants))
	for i := range challenge.Metrics {
		metric, err := challenge.Metrics[i].ToScoring()
		if err != nil {
			return nil, err
		}
		for j := range participants {
			p := &participants[j]
			pairLogs := grouped[pairKey{p.ID, metric.ID}]
			if len(pairLogs) == 0 {
				continue
			}
			res, err := scoring.CalculateScoreFromLogs(pairLogs, metric, p.ToScoring(), loc, challenge.StartDate)
			if err != nil {
				return nil, err
			}
			if points[p.ID] == nil {
				points[p.ID] = make(map[uuid.UUID]float64)
			}
			points[p.ID][metric.ID] = res.TotalPoints
		}
	}
	return points, nil
}

// buildStandings lists participants in join order with one score per metric. A metric with
// no logs scores 0. The display name comes from the participant, then from their most
// recent snapshot, then from the user.
func buildStandings(metricRows []entity.ChallengeMetric, participants []entity.Participant, points map[uuid.UUID]map[uuid.UUID]float64, snapshots []entity.ScoreSnapshot) []scoring.Standing {
	latest := make(map[uuid.UUID]entity.ScoreSnapshot, len(participants))
	for _, snap := range snapshots {
		cur, ok := latest[snap.ParticipantID]
		if !ok || snap.PeriodStart.After(cur.PeriodStart) {
			latest[snap.ParticipantID] = snap
		}
	}

	standings := make([]scoring.Standing, 0, len(participants))
	for _, p := range participants {
		var display string
		if p.DisplayName != nil {
			display = *p.DisplayName
		}
		st := scoring.Standing{
			ParticipantID: p.ID,
			Name:          scoring.ResolveDisplayName(display, latest[p.ID].DisplayName, p.User.Name),
			MetricScores:  make([]scoring.MetricScore, 0, len(metricRows)),
		}
		for _, m := range metricRows {
			st.MetricScores = append(st.MetricScores, scoring.MetricScore{
				MetricID:   m.ID,
				MetricName: m.Name,
				Points:     points[p.ID][m.ID],
			})
		}
		standings = append(standings, st)
	}
	return standings
}

func (s *leaderboardService) cached(ctx context.Context, challengeID uuid.UUID) ([]leaderboardDto.LeaderboardEntry, bool) {
	if s.redisClient == nil {
		return nil, false
	}
	raw, err := s.redisClient.Get(ctx, CacheKey(challengeID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "read leaderboard cache", "challenge_id", challengeID, "error", err)
		}
		s.metrics.LeaderboardCache.WithLabelValues("miss").Inc()
		return nil, false
	}

	var entries []leaderboardDto.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.metrics.LeaderboardCache.WithLabelValues("miss").Inc()
		return nil, false
	}
	s.metrics.LeaderboardCache.WithLabelValues("hit").Inc()
	return entries, true
}

func (s *leaderboardService) store(ctx context.Context, challengeID uuid.UUID, entries []leaderboardDto.LeaderboardEntry) {
	if s.redisClient == nil || s.cacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := s.redisClient.Set(ctx, CacheKey(challengeID), raw, s.cacheTTL).Err(); err != nil {
		slog.WarnContext(ctx, "write leaderboard cache", "challenge_id", challengeID, "error", err)
	}
}

func (s *leaderboardService) Invalidate(ctx context.Context, challengeID uuid.UUID) error {
	if s.redisClient == nil {
		return nil
	}
	if err := s.redisClient.Del(ctx, CacheKey(challengeID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate leaderboard cache: %w", err)
	}
	return nil
}
