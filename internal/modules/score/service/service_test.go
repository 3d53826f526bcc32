package score

import (
	"context"
	"sync"
	"testing"
	"time"

	"anoa.com/challengescore/internal/entity"
	activityRepo "anoa.com/challengescore/internal/modules/activity/repository"
	challengeRepo "anoa.com/challengescore/internal/modules/challenge/repository"
	"anoa.com/challengescore/internal/modules/score/repository"
	"anoa.com/challengescore/internal/scoring"
	"anoa.com/challengescore/internal/testdb"
	"anoa.com/challengescore/pkg/apperror"
	"anoa.com/challengescore/pkg/metrics"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[uuid.UUID]int
}

func (c *countingInvalidator) Invalidate(_ context.Context, challengeID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[uuid.UUID]int)
	}
	c.calls[challengeID]++
	return nil
}

func f(v float64) *float64 { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

type fixture struct {
	db          *gorm.DB
	svc         *scoreService
	invalidator *countingInvalidator
	metrics     *metrics.Scoring
	challenges  challengeRepo.ChallengeRepository
	logs        activityRepo.ActivityRepository
	challenge   entity.Challenge
	steps       entity.ChallengeMetric
	mr          *miniredis.Miniredis
}

// setup builds the Steps metric: live rule >= 5000 -> 1pt, with a historical rule
// >= 1000 -> 1pt in force until the end of 2026-02-10.
func setup(t *testing.T) *fixture {
	t.Helper()
	return setupWith(t, nil)
}

// setupRedis is setup backed by an in-process Redis, so Enqueue queues and
// TriggerRecompute is throttled.
func setupRedis(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fx := setupWith(t, rdb)
	fx.mr = mr
	return fx
}

func setupWith(t *testing.T, rdb *redis.Client) *fixture {
	t.Helper()
	ctx := context.Background()
	db := testdb.Open(t)

	fx := &fixture{
		db:          db,
		invalidator: &countingInvalidator{},
		metrics:     metrics.New(nil),
		challenges:  challengeRepo.NewChallengeRepository(db),
		logs:        activityRepo.NewActivityRepository(db),
		challenge: entity.Challenge{
			Name:      "February Steps",
			StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			Timezone:  "UTC",
		},
	}
	require.NoError(t, fx.challenges.Create(ctx, &fx.challenge))

	metricID := uuid.New()
	switchover := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)
	historyEnd := switchover.Add(-time.Millisecond)
	fx.steps = entity.ChallengeMetric{
		ID:                  metricID,
		ChallengeID:         fx.challenge.ID,
		Name:                "Steps",
		AggregationMethod:   "SUM",
		ScoringFrequency:    "DAILY",
		ConfigEffectiveFrom: &switchover,
		Rules: entity.RulesFromScoring(metricID, []scoring.ScoringRule{
			{Comparison: scoring.ComparisonGreaterThanEqual, MinValue: f(5000), Points: 1},
		}),
	}
	require.NoError(t, fx.steps.SetHistory([]scoring.ConfigSnapshot{{
		EffectiveTo: &historyEnd,
		Rules:       []scoring.ScoringRule{{Comparison: scoring.ComparisonGreaterThanEqual, MinValue: f(1000), Points: 1}},
	}}))
	require.NoError(t, fx.challenges.CreateMetric(ctx, &fx.steps))

	fx.svc = NewScoreService(
		repository.NewScoreRepository(db), fx.challenges, rdb, fx.invalidator, fx.metrics, 4, time.Minute,
	).(*scoreService)
	return fx
}

func (fx *fixture) join(t *testing.T, name string) entity.Participant {
	t.Helper()
	ctx := context.Background()
	user := entity.User{Name: name}
	require.NoError(t, fx.challenges.CreateUser(ctx, &user))
	p := entity.Participant{ChallengeID: fx.challenge.ID, UserID: user.ID}
	require.NoError(t, fx.challenges.CreateParticipant(ctx, &p))
	return p
}

func (fx *fixture) log(t *testing.T, p entity.Participant, date time.Time, value float64) {
	t.Helper()
	require.NoError(t, fx.logs.Create(context.Background(), &entity.ActivityLog{
		ParticipantID: p.ID,
		MetricID:      fx.steps.ID,
		Value:         value,
		Date:          date,
	}))
}

func TestStepsScenario(t *testing.T) {
	ctx := context.Background()

	t.Run("historical period uses historical rule", func(t *testing.T) {
		fx := setup(t)
		p := fx.join(t, "Alice")
		fx.log(t, p, day(2026, 2, 5), 2000)

		res, err := fx.svc.RecomputeParticipantMetric(ctx, p.ID, fx.steps.ID)
		require.NoError(t, err)
		assert.Equal(t, 1.0, res.TotalPoints)
	})

	t.Run("current period uses live rule", func(t *testing.T) {
		fx := setup(t)
		p := fx.join(t, "Alice")
		fx.log(t, p, day(2026, 2, 15), 2000)

		res, err := fx.svc.RecomputeParticipantMetric(ctx, p.ID, fx.steps.ID)
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.TotalPoints)
	})

	t.Run("mixed", func(t *testing.T) {
		fx := setup(t)
		p := fx.join(t, "Alice")
		fx.log(t, p, day(2026, 2, 5), 2000)
		fx.log(t, p, day(2026, 2, 15), 6000)

		res, err := fx.svc.RecomputeParticipantMetric(ctx, p.ID, fx.steps.ID)
		require.NoError(t, err)
		assert.Equal(t, 2.0, res.TotalPoints)
		assert.Equal(t, 2, res.Periods)

		snaps, err := fx.svc.GetSnapshots(ctx, p.ID, fx.steps.ID)
		require.NoError(t, err)
		require.Len(t, snaps, 2)
		assert.Equal(t, time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), snaps[0].PeriodStart.UTC())
		assert.Equal(t, 1.0, snaps[0].TotalPoints)
		assert.Equal(t, 2.0, snaps[1].TotalPoints)
		assert.Equal(t, "Alice", snaps[1].DisplayName)
	})
}

func TestRecomputeReplacesSnapshots(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	p := fx.join(t, "Alice")
	fx.log(t, p, day(2026, 2, 5), 2000)
	fx.log(t, p, day(2026, 2, 6), 2500)

	first, err := fx.svc.RecomputeParticipantMetric(ctx, p.ID, fx.steps.ID)
	require.NoError(t, err)
	second, err := fx.svc.RecomputeParticipantMetric(ctx, p.ID, fx.steps.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var count int64
	require.NoError(t, fx.db.Model(&entity.ScoreSnapshot{}).Where("participant_id = ?", p.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	// A correction for Feb 6 below every threshold drops that day to zero points.
	require.NoError(t, fx.logs.Create(ctx, &entity.ActivityLog{
		ParticipantID: p.ID,
		MetricID:      fx.steps.ID,
		Value:         10,
		Date:          day(2026, 2, 6),
		CreatedAt:     time.Now().Add(time.Minute),
	}))
	corrected, err := fx.svc.RecomputeParticipantMetric(ctx, p.ID, fx.steps.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, corrected.TotalPoints)

	assert.Equal(t, 3, fx.invalidator.calls[fx.challenge.ID])
	assert.Equal(t, 3.0, testutil.ToFloat64(fx.metrics.Recomputes.WithLabelValues("ok")))
	assert.Equal(t, 6.0, testutil.ToFloat64(fx.metrics.SnapshotsWritten))
}

func TestRecomputeWithoutLogsClearsSnapshots(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	p := fx.join(t, "Alice")

	require.NoError(t, fx.db.Create(&entity.ScoreSnapshot{
		ParticipantID: p.ID,
		MetricID:      fx.steps.ID,
		ChallengeID:   fx.challenge.ID,
		UserID:        p.UserID,
		PeriodStart:   day(2026, 2, 1),
		PeriodEnd:     day(2026, 2, 2),
		TotalPoints:   9,
	}).Error)

	res, err := fx.svc.RecomputeParticipantMetric(ctx, p.ID, fx.steps.ID)
	require.NoError(t, err)
	assert.Zero(t, res.TotalPoints)

	snaps, err := fx.svc.GetSnapshots(ctx, p.ID, fx.steps.ID)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestRecomputeRejectsMismatchedPairs(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	p := fx.join(t, "Alice")

	other := entity.Challenge{Name: "Other", StartDate: fx.challenge.StartDate, Timezone: "UTC"}
	require.NoError(t, fx.challenges.Create(ctx, &other))
	sleep := entity.ChallengeMetric{ChallengeID: other.ID, Name: "Sleep", AggregationMethod: "AVERAGE", ScoringFrequency: "DAILY"}
	require.NoError(t, fx.challenges.CreateMetric(ctx, &sleep))

	_, err := fx.svc.RecomputeParticipantMetric(ctx, p.ID, sleep.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = fx.svc.RecomputeParticipantMetric(ctx, uuid.New(), fx.steps.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, 2.0, testutil.ToFloat64(fx.metrics.Recomputes.WithLabelValues("error")))
}

func TestRecomputeSurfacesInvalidConfig(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	p := fx.join(t, "Alice")

	require.NoError(t, fx.db.Model(&entity.ChallengeMetric{}).
		Where("id = ?", fx.steps.ID).
		Update("aggregation_method", "MEDIAN").Error)

	_, err := fx.svc.RecomputeParticipantMetric(ctx, p.ID, fx.steps.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidConfig)
	assert.False(t, retryable(err))
}

func TestRecomputeChallengeCoversEveryPair(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	water := entity.ChallengeMetric{
		ChallengeID:       fx.challenge.ID,
		Name:              "Water",
		AggregationMethod: "MAX",
		ScoringFrequency:  "WEEKLY",
		PointsPerUnit:     f(0.5),
	}
	require.NoError(t, fx.challenges.CreateMetric(ctx, &water))

	var participants []entity.Participant
	for _, name := range []string{"Alice", "Bayu", "Citra"} {
		p := fx.join(t, name)
		participants = append(participants, p)
		fx.log(t, p, day(2026, 2, 15), 7000)
		require.NoError(t, fx.logs.Create(ctx, &entity.ActivityLog{
			ParticipantID: p.ID, MetricID: water.ID, Value: 8, Date: day(2026, 2, 3),
		}))
	}

	res, err := fx.svc.RecomputeChallenge(ctx, fx.challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Pairs)

	for _, p := range participants {
		steps, err := fx.svc.GetSnapshots(ctx, p.ID, fx.steps.ID)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, 1.0, steps[0].TotalPoints)

		drinks, err := fx.svc.GetSnapshots(ctx, p.ID, water.ID)
		require.NoError(t, err)
		require.Len(t, drinks, 1)
		assert.Equal(t, 4.0, drinks[0].TotalPoints)
	}

	_, err = fx.svc.RecomputeChallenge(ctx, uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestTriggerRecomputeWithoutRedisIsUnthrottled(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	fx.join(t, "Alice")

	for i := 0; i < 2; i++ {
		res, err := fx.svc.TriggerRecompute(ctx, fx.challenge.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Pairs)
	}
}

func TestRecomputeActiveSkipsFinishedChallenges(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	p := fx.join(t, "Alice")
	fx.log(t, p, day(2026, 2, 5), 2000)

	ended := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	past := entity.Challenge{Name: "January", StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: &ended, Timezone: "UTC"}
	require.NoError(t, fx.challenges.Create(ctx, &past))

	fx.svc.now = func() time.Time { return day(2026, 2, 20) }
	require.NoError(t, fx.svc.RecomputeActive(ctx))

	snaps, err := fx.svc.GetSnapshots(ctx, p.ID, fx.steps.ID)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
	assert.Zero(t, fx.invalidator.calls[past.ID])
}

func TestIsActive(t *testing.T) {
	end := time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)
	c := entity.Challenge{StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), EndDate: &end}

	assert.False(t, isActive(c, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)))
	assert.True(t, isActive(c, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)))
	assert.True(t, isActive(c, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.False(t, isActive(c, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))

	c.EndDate = nil
	assert.True(t, isActive(c, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestEnqueueWithoutRedisRecomputesInline(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()
	p := fx.join(t, "Alice")
	fx.log(t, p, day(2026, 2, 5), 2000)

	require.NoError(t, fx.svc.Enqueue(ctx, p.ID, fx.steps.ID))

	snaps, err := fx.svc.GetSnapshots(ctx, p.ID, fx.steps.ID)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)

	n, err := fx.svc.DrainPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPendingMemberRoundTrip(t *testing.T) {
	p, m := uuid.New(), uuid.New()
	gotP, gotM, err := parsePendingMember(pendingMember(p, m))
	require.NoError(t, err)
	assert.Equal(t, p, gotP)
	assert.Equal(t, m, gotM)

	_, _, err = parsePendingMember("garbage")
	assert.Error(t, err)
	_, _, err = parsePendingMember(p.String() + ":nope")
	assert.Error(t, err)
}
