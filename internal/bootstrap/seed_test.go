package bootstrap_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"anoa.com/challengescore/internal/bootstrap"
	"anoa.com/challengescore/internal/entity"
	"anoa.com/challengescore/internal/scoring"
	"anoa.com/challengescore/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSeedFromFileLoadsBundledFixture(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()

	require.NoError(t, bootstrap.SeedFromFile(ctx, db, "../../seeds/challenge.yaml"))

	var challenge entity.Challenge
	require.NoError(t, db.Preload("Metrics.Rules").Preload("Metrics.Qualifiers").
		First(&challenge, "name = ?", "Spring Wellness 2026").Error)
	assert.Equal(t, "America/New_York", challenge.Timezone)
	assert.Equal(t, time.Date(2026, 2, 1, 5, 0, 0, 0, time.UTC), challenge.StartDate.UTC())
	require.NotNil(t, challenge.EndDate)
	assert.Equal(t, time.Date(2026, 5, 1, 4, 0, 0, 0, time.UTC).Add(-time.Millisecond), challenge.EndDate.UTC())
	require.Len(t, challenge.Metrics, 3)

	for _, m := range challenge.Metrics {
		_, err := m.ToScoring()
		assert.NoError(t, err, m.Name)
		if m.Name == "Workouts" {
			assert.Len(t, m.Qualifiers, 2)
			assert.Len(t, m.Rules, 3)
		}
	}

	var participants int64
	require.NoError(t, db.Model(&entity.Participant{}).Where("challenge_id = ?", challenge.ID).Count(&participants).Error)
	assert.Equal(t, int64(3), participants)

	// Seeding again is a no-op.
	require.NoError(t, bootstrap.SeedFromFile(ctx, db, "../../seeds/challenge.yaml"))
	var challenges, users int64
	require.NoError(t, db.Model(&entity.Challenge{}).Count(&challenges).Error)
	require.NoError(t, db.Model(&entity.User{}).Count(&users).Error)
	assert.Equal(t, int64(2), challenges)
	assert.Equal(t, int64(4), users)
}

func TestSeedReplaysConfigHistoryAndLogs(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()
	require.NoError(t, bootstrap.SeedFromFile(ctx, db, "../../seeds/challenge.yaml"))

	var challenge entity.Challenge
	require.NoError(t, db.Preload("Metrics.Rules").First(&challenge, "name = ?", "February Steps 2026").Error)
	require.Len(t, challenge.Metrics, 1)
	steps := challenge.Metrics[0]
	require.NotNil(t, steps.ConfigEffectiveFrom)
	assert.Equal(t, time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC), steps.ConfigEffectiveFrom.UTC())

	history, err := steps.History()
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].EffectiveFrom)
	require.NotNil(t, history[0].EffectiveTo)
	assert.Equal(t, time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC).Add(-time.Millisecond), history[0].EffectiveTo.UTC())
	assert.False(t, history[0].PointsPerUnit.Set)

	var participant entity.Participant
	require.NoError(t, db.Preload("User").First(&participant, "challenge_id = ?", challenge.ID).Error)
	var rows []entity.ActivityLog
	require.NoError(t, db.Where("participant_id = ?", participant.ID).Order("date ASC").Find(&rows).Error)
	require.Len(t, rows, 2)

	logs := make([]scoring.ActivityLog, 0, len(rows))
	for _, l := range rows {
		logs = append(logs, l.ToScoring())
	}
	metric, err := steps.ToScoring()
	require.NoError(t, err)
	loc, err := challenge.Location()
	require.NoError(t, err)

	// Feb 5 clears the retired 1000 bar, Feb 15 the live 5000 bar.
	res, err := scoring.CalculateScoreFromLogs(logs, metric, participant.ToScoring(), loc, challenge.StartDate)
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.TotalPoints)
	require.Len(t, res.Snapshots, 2)
	assert.Equal(t, 1.0, res.Snapshots[0].TotalPoints)
}

func TestSeedReusesUsersByEmail(t *testing.T) {
	db := testdb.Open(t)
	path := writeSeed(t, `
challenges:
  - name: One
    start_date: "2026-03-01"
    metrics:
      - {name: Steps, aggregation: SUM, frequency: DAILY, points_per_unit: 0.001}
    participants:
      - {name: Rina, email: rina@example.com}
  - name: Two
    start_date: "2026-04-01"
    participants:
      - {name: Rina P, email: rina@example.com}
`)
	require.NoError(t, bootstrap.SeedFromFile(context.Background(), db, path))

	var users []entity.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "Rina", users[0].Name)

	var two entity.Challenge
	require.NoError(t, db.First(&two, "name = ?", "Two").Error)
	assert.Equal(t, "UTC", two.Timezone)
	assert.Nil(t, two.EndDate)
}

func TestSeedRejectsBrokenFixtures(t *testing.T) {
	cases := map[string]string{
		"unknown qualifier": `
challenges:
  - name: Broken
    start_date: "2026-03-01"
    metrics:
      - name: Workouts
        aggregation: SUM
        frequency: WEEKLY
        rules:
          - {comparison: GREATER_THAN, min: 1, points: 1, qualifier: yoga}
`,
		"bad aggregation": `
challenges:
  - name: Broken
    start_date: "2026-03-01"
    metrics:
      - {name: Sleep, aggregation: MEDIAN, frequency: DAILY, points_per_unit: 1}
`,
		"log for unknown participant": `
challenges:
  - name: Broken
    start_date: "2026-03-01"
    metrics:
      - {name: Steps, aggregation: SUM, frequency: DAILY, points_per_unit: 1}
    logs:
      - {participant: Nobody, metric: Steps, value: 1, date: "2026-03-02"}
`,
		"log with unknown qualifier": `
challenges:
  - name: Broken
    start_date: "2026-03-01"
    metrics:
      - {name: Workouts, aggregation: SUM, frequency: WEEKLY, points_per_unit: 1, qualifiers: [cardio]}
    participants:
      - {name: Rina}
    logs:
      - {participant: Rina, metric: Workouts, qualifier: yoga, value: 30, date: "2026-03-02"}
`,
		"overlapping history": `
challenges:
  - name: Broken
    start_date: "2026-03-01"
    metrics:
      - name: Steps
        aggregation: SUM
        frequency: DAILY
        points_per_unit: 1
        history:
          - {effective_to: "2026-03-10", points_per_unit: 2}
          - {effective_from: "2026-03-05", effective_to: "2026-03-12", points_per_unit: 3}
`,
		"bad date": `
challenges:
  - name: Broken
    start_date: "March 1st"
`,
		"bad timezone": `
challenges:
  - name: Broken
    start_date: "2026-03-01"
    timezone: Mars/Olympus
`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			db := testdb.Open(t)
			err := bootstrap.SeedFromFile(context.Background(), db, writeSeed(t, body))
			require.Error(t, err)

			var count int64
			require.NoError(t, db.Model(&entity.Challenge{}).Count(&count).Error)
			assert.Zero(t, count)
		})
	}
}

func TestLoadSeedErrors(t *testing.T) {
	_, err := bootstrap.LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = bootstrap.LoadSeed(writeSeed(t, "challenges: {not: [a list"))
	assert.Error(t, err)
}
