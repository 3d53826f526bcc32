package scoring

import (
	"fmt"
	"time"
)

// Period is an inclusive pair of UTC instants.
type Period struct {
	Start time.Time
	End   time.Time
}

// periodResolution is the gap between one period's End and the next period's Start.
const periodResolution = time.Millisecond

// PeriodInterval returns the period of the given frequency containing instant. Boundaries
// are local midnights in loc. With an anchor, weekly periods are 7-day blocks counted from
// the anchor's local calendar day instead of ISO weeks.
//
// Frequencies must be validated beforehand; an unknown one panics.
func PeriodInterval(instant time.Time, freq Frequency, loc *time.Location, anchor *time.Time) Period {
	local := instant.In(loc)
	y, m, d := local.Date()

	var start, next time.Time
	switch freq {
	case FrequencyDaily:
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		next = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	case FrequencyWeekly:
		if anchor != nil {
			ay, am, ad := anchor.In(loc).Date()
			week := floorDiv(daysBetween(ay, am, ad, y, m, d), 7)
			start = time.Date(ay, am, ad+week*7, 0, 0, 0, 0, loc)
			next = time.Date(ay, am, ad+week*7+7, 0, 0, 0, 0, loc)
		} else {
			offset := (int(local.Weekday()) + 6) % 7
			start = time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
			next = time.Date(y, m, d-offset+7, 0, 0, 0, 0, loc)
		}
	case FrequencyMonthly:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		next = time.Date(y, m+1, 1, 0, 0, 0, 0, loc)
	default:
		panic(fmt.Sprintf("scoring: unsupported frequency %q", freq))
	}

	return Period{
		Start: start.UTC(),
		End:   next.Add(-periodResolution).UTC(),
	}
}

// DayKey is the local calendar date of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

// daysBetween counts calendar days, so DST transitions never shift the result.
func daysBetween(y1 int, m1 time.Month, d1 int, y2 int, m2 time.Month, d2 int) int {
	from := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	to := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
