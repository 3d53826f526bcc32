package challenge

import (
	"context"
	"sync"
	"testing"
	"time"

	"anoa.com/challengescore/internal/modules/challenge/dto"
	"anoa.com/challengescore/internal/modules/challenge/repository"
	"anoa.com/challengescore/internal/scoring"
	"anoa.com/challengescore/internal/testdb"
	"anoa.com/challengescore/pkg/apperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRecomputer struct {
	mu    sync.Mutex
	pairs [][2]uuid.UUID
}

func (r *recordingRecomputer) Enqueue(_ context.Context, participantID, metricID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs = append(r.pairs, [2]uuid.UUID{participantID, metricID})
	return nil
}

func f(v float64) *float64 { return &v }

func newTestService(t *testing.T) (*challengeService, *recordingRecomputer) {
	t.Helper()
	rec := &recordingRecomputer{}
	svc := NewChallengeService(repository.NewChallengeRepository(testdb.Open(t)), rec).(*challengeService)
	return svc, rec
}

func createChallenge(t *testing.T, svc ChallengeService) *dto.ChallengeResponse {
	t.Helper()
	res, err := svc.CreateChallenge(context.Background(), dto.CreateChallengeRequest{
		Name:      "February Steps",
		StartDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Timezone:  "Asia/Jakarta",
	})
	require.NoError(t, err)
	return res
}

func addStepsMetric(t *testing.T, svc ChallengeService, challengeID uuid.UUID) *dto.MetricResponse {
	t.Helper()
	metric, err := svc.AddMetric(context.Background(), challengeID, dto.AddMetricRequest{
		Name:              "Steps",
		Unit:              "steps",
		AggregationMethod: "SUM",
		ScoringFrequency:  "DAILY",
		MetricConfigRequest: dto.MetricConfigRequest{
			MaxPointsTotal: f(30),
			Rules: []dto.RuleRequest{
				{ComparisonType: "GREATER_THAN_EQUAL", MinValue: f(1000), Points: 1},
			},
		},
	})
	require.NoError(t, err)
	return metric
}

func TestCreateChallengeDefaultsTimezone(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.CreateChallenge(context.Background(), dto.CreateChallengeRequest{
		Name:      "Hydration",
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "UTC", res.Timezone)
	assert.Empty(t, res.Metrics)

	got, err := svc.GetChallenge(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hydration", got.Name)
}

func TestCreateChallengeRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)

	_, err := svc.CreateChallenge(context.Background(), dto.CreateChallengeRequest{Name: "Backwards", StartDate: start, EndDate: &end})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	_, err = svc.CreateChallenge(context.Background(), dto.CreateChallengeRequest{Name: "Nowhere", StartDate: start, Timezone: "Mars/Olympus"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
}

func TestGetChallengeNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetChallenge(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAddMetricResolvesQualifierRules(t *testing.T) {
	svc, _ := newTestService(t)
	challenge := createChallenge(t, svc)

	metric, err := svc.AddMetric(context.Background(), challenge.ID, dto.AddMetricRequest{
		Name:              "Workouts",
		AggregationMethod: "SUM",
		ScoringFrequency:  "WEEKLY",
		Qualifiers:        []string{"cardio", "strength"},
		MetricConfigRequest: dto.MetricConfigRequest{
			Rules: []dto.RuleRequest{
				{ComparisonType: "GREATER_THAN_EQUAL", MinValue: f(30), Points: 2},
				{ComparisonType: "RANGE", MinValue: f(45), MaxValue: f(90), Points: 5, Qualifier: "strength"},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, metric.Qualifiers, 2)
	require.Len(t, metric.ScoringRules, 2)

	assert.Nil(t, metric.ScoringRules[0].QualifierID)
	require.NotNil(t, metric.ScoringRules[1].QualifierID)
	assert.Equal(t, "strength", metric.ScoringRules[1].Qualifier)

	got, err := svc.GetChallenge(context.Background(), challenge.ID)
	require.NoError(t, err)
	require.Len(t, got.Metrics, 1)
	assert.Equal(t, metric.ScoringRules, got.Metrics[0].ScoringRules)
	assert.Empty(t, got.Metrics[0].ConfigHistory)
}

func TestAddMetricRejectsInvalidConfig(t *testing.T) {
	svc, _ := newTestService(t)
	challenge := createChallenge(t, svc)
	base := dto.AddMetricRequest{Name: "Water", AggregationMethod: "SUM", ScoringFrequency: "DAILY"}

	unknownQualifier := base
	unknownQualifier.Rules = []dto.RuleRequest{{ComparisonType: "GREATER_THAN", MinValue: f(1), Points: 1, Qualifier: "sparkling"}}
	_, err := svc.AddMetric(context.Background(), challenge.ID, unknownQualifier)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	duplicate := base
	duplicate.Qualifiers = []string{"still", "still"}
	_, err = svc.AddMetric(context.Background(), challenge.ID, duplicate)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	badFrequency := base
	badFrequency.ScoringFrequency = "HOURLY"
	_, err = svc.AddMetric(context.Background(), challenge.ID, badFrequency)
	assert.ErrorIs(t, err, apperror.ErrInvalidConfig)

	invertedRange := base
	invertedRange.Rules = []dto.RuleRequest{{ComparisonType: "RANGE", MinValue: f(10), MaxValue: f(5), Points: 1}}
	_, err = svc.AddMetric(context.Background(), challenge.ID, invertedRange)
	assert.ErrorIs(t, err, apperror.ErrInvalidConfig)

	_, err = svc.AddMetric(context.Background(), uuid.New(), base)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdateMetricConfigVersionsPreviousConfig(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	challenge := createChallenge(t, svc)
	metric := addStepsMetric(t, svc, challenge.ID)

	alice, err := svc.JoinChallenge(ctx, challenge.ID, dto.JoinChallengeRequest{Name: "Alice"})
	require.NoError(t, err)
	bob, err := svc.JoinChallenge(ctx, challenge.ID, dto.JoinChallengeRequest{Name: "Bob"})
	require.NoError(t, err)

	switchover := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return switchover }

	updated, err := svc.UpdateMetricConfig(ctx, metric.ID, dto.UpdateMetricConfigRequest{
		MetricConfigRequest: dto.MetricConfigRequest{
			MaxPointsTotal: f(30),
			Rules:          []dto.RuleRequest{{ComparisonType: "GREATER_THAN_EQUAL", MinValue: f(5000), Points: 1}},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, updated.ConfigEffectiveFrom)
	assert.True(t, switchover.Equal(*updated.ConfigEffectiveFrom))
	require.Len(t, updated.ScoringRules, 1)
	assert.Equal(t, 5000.0, *updated.ScoringRules[0].MinValue)

	require.Len(t, updated.ConfigHistory, 1)
	frozen := updated.ConfigHistory[0]
	assert.Nil(t, frozen.EffectiveFrom)
	require.NotNil(t, frozen.EffectiveTo)
	assert.True(t, switchover.Add(-time.Millisecond).Equal(*frozen.EffectiveTo))
	require.Len(t, frozen.Rules, 1)
	assert.Equal(t, 1000.0, *frozen.Rules[0].MinValue)
	assert.Equal(t, 30.0, *frozen.MaxPointsTotal.Value)

	assert.ElementsMatch(t, [][2]uuid.UUID{{alice.ID, metric.ID}, {bob.ID, metric.ID}}, rec.pairs)

	// The stored row round-trips through the history parser.
	stored, err := svc.repo.FindMetricByID(ctx, metric.ID)
	require.NoError(t, err)
	scored, err := stored.ToScoring()
	require.NoError(t, err)
	require.Len(t, scored.History, 1)
	snap := scoring.ConfigForPeriod(scored.History, time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 5, 23, 59, 0, 0, time.UTC))
	require.NotNil(t, snap)
	assert.Equal(t, 1000.0, *snap.Rules[0].MinValue)
}

func TestUpdateMetricConfigWithoutChangeKeepsHistory(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	challenge := createChallenge(t, svc)
	metric := addStepsMetric(t, svc, challenge.ID)
	_, err := svc.JoinChallenge(ctx, challenge.ID, dto.JoinChallengeRequest{Name: "Alice"})
	require.NoError(t, err)

	same, err := svc.UpdateMetricConfig(ctx, metric.ID, dto.UpdateMetricConfigRequest{
		MetricConfigRequest: dto.MetricConfigRequest{
			MaxPointsTotal: f(30),
			Rules:          []dto.RuleRequest{{ComparisonType: "GREATER_THAN_EQUAL", MinValue: f(1000), Points: 1}},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, same.ConfigHistory)
	assert.Nil(t, same.ConfigEffectiveFrom)
	assert.Empty(t, rec.pairs)
}

func TestUpdateMetricConfigRetroactiveSkipsHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	challenge := createChallenge(t, svc)
	metric := addStepsMetric(t, svc, challenge.ID)

	updated, err := svc.UpdateMetricConfig(ctx, metric.ID, dto.UpdateMetricConfigRequest{
		MetricConfigRequest: dto.MetricConfigRequest{PointsPerUnit: f(0.001)},
		Retroactive:         true,
	})
	require.NoError(t, err)
	assert.Empty(t, updated.ConfigHistory)
	assert.Empty(t, updated.ScoringRules)
	assert.Nil(t, updated.MaxPointsTotal)
	assert.Equal(t, 0.001, *updated.PointsPerUnit)
}

func TestUpdateMetricConfigRejectsEffectiveFromBeforeCurrent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	challenge := createChallenge(t, svc)
	metric := addStepsMetric(t, svc, challenge.ID)

	first := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)
	_, err := svc.UpdateMetricConfig(ctx, metric.ID, dto.UpdateMetricConfigRequest{
		MetricConfigRequest: dto.MetricConfigRequest{MaxPointsPerPeriod: f(1)},
		EffectiveFrom:       &first,
	})
	require.NoError(t, err)

	earlier := first.AddDate(0, 0, -3)
	_, err = svc.UpdateMetricConfig(ctx, metric.ID, dto.UpdateMetricConfigRequest{
		MetricConfigRequest: dto.MetricConfigRequest{MaxPointsPerPeriod: f(2)},
		EffectiveFrom:       &earlier,
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	later := first.AddDate(0, 0, 5)
	second, err := svc.UpdateMetricConfig(ctx, metric.ID, dto.UpdateMetricConfigRequest{
		MetricConfigRequest: dto.MetricConfigRequest{MaxPointsPerPeriod: f(2)},
		EffectiveFrom:       &later,
	})
	require.NoError(t, err)
	require.Len(t, second.ConfigHistory, 2)
	assert.True(t, first.Equal(*second.ConfigHistory[1].EffectiveFrom))
	assert.Equal(t, 1.0, *second.ConfigHistory[1].MaxPointsPerPeriod.Value)
	// The replaced config had no rules.
	assert.Len(t, second.ConfigHistory[1].Rules, 0)
}

func TestJoinChallenge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	challenge := createChallenge(t, svc)

	p, err := svc.JoinChallenge(ctx, challenge.ID, dto.JoinChallengeRequest{
		Name:        "Rina Putri",
		Email:       "Rina@Example.com",
		DisplayName: "<script>alert(1)</script><b>rina</b>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Rina Putri", p.Name)
	require.NotNil(t, p.DisplayName)
	assert.Equal(t, "rina", *p.DisplayName)

	_, err = svc.JoinChallenge(ctx, challenge.ID, dto.JoinChallengeRequest{Name: "Rina again", Email: "rina@example.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = svc.JoinChallenge(ctx, challenge.ID, dto.JoinChallengeRequest{UserID: uuid.NewString()})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	other := createChallenge(t, svc)
	again, err := svc.JoinChallenge(ctx, other.ID, dto.JoinChallengeRequest{UserID: p.UserID.String()})
	require.NoError(t, err)
	assert.Equal(t, p.UserID, again.UserID)
	assert.Nil(t, again.DisplayName)

	list, err := svc.ListParticipants(ctx, challenge.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)
}
