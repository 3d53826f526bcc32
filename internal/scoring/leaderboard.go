package scoring

import (
	"sort"

	"github.com/google/uuid"
)

const anonymousName = "Anonymous"

type MetricScore struct {
	MetricID   uuid.UUID
	MetricName string
	Points     float64
}

type Standing struct {
	ParticipantID uuid.UUID
	Name          string
	TotalScore    float64
	MetricScores  []MetricScore
}

// RankParticipants sums metric scores per participant and orders standings by total,
// highest first. Equal totals keep their input order.
func RankParticipants(standings []Standing) []Standing {
	ranked := make([]Standing, len(standings))
	for i, s := range standings {
		var total float64
		for _, ms := range s.MetricScores {
			total += ms.Points
		}
		s.TotalScore = total
		ranked[i] = s
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalScore > ranked[j].TotalScore
	})
	return ranked
}

// ResolveDisplayName picks the first non-empty of the participant's display name, the name
// stored on their latest snapshot, and the user's name.
func ResolveDisplayName(participantDisplay, snapshotDisplay, userName string) string {
	for _, name := range []string{participantDisplay, snapshotDisplay, userName} {
		if name != "" {
			return name
		}
	}
	return anonymousName
}
