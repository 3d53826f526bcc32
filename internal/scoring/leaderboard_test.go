package scoring

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankParticipantsSumsAndKeepsTieOrder(t *testing.T) {
	steps, water := uuid.New(), uuid.New()
	a := Standing{ParticipantID: uuid.New(), Name: "a", MetricScores: []MetricScore{{MetricID: steps, Points: 3}, {MetricID: water, Points: 2}}}
	b := Standing{ParticipantID: uuid.New(), Name: "b", MetricScores: []MetricScore{{MetricID: steps, Points: 7}}}
	c := Standing{ParticipantID: uuid.New(), Name: "c", MetricScores: []MetricScore{{MetricID: water, Points: 5}}}
	d := Standing{ParticipantID: uuid.New(), Name: "d"}

	ranked := RankParticipants([]Standing{a, b, c, d})
	require.Len(t, ranked, 4)

	names := []string{ranked[0].Name, ranked[1].Name, ranked[2].Name, ranked[3].Name}
	assert.Equal(t, []string{"b", "a", "c", "d"}, names)
	assert.Equal(t, 5.0, ranked[1].TotalScore)
	assert.Equal(t, 5.0, ranked[2].TotalScore)
	assert.Zero(t, ranked[3].TotalScore)
}

func TestResolveDisplayNamePriority(t *testing.T) {
	assert.Equal(t, "rina", ResolveDisplayName("rina", "Rina P", "Rina Putri"))
	assert.Equal(t, "Rina P", ResolveDisplayName("", "Rina P", "Rina Putri"))
	assert.Equal(t, "Rina Putri", ResolveDisplayName("", "", "Rina Putri"))
	assert.Equal(t, "Anonymous", ResolveDisplayName("", "", ""))
}
