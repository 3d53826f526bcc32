package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Scoring holds the collectors for recompute work and the HTTP surface.
type Scoring struct {
	Recomputes        *prometheus.CounterVec
	RecomputeDuration prometheus.Histogram
	SnapshotsWritten  prometheus.Counter
	PendingDrained    prometheus.Counter
	LogsSubmitted     prometheus.Counter
	LeaderboardCache  *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

var (
	once     sync.Once
	registry *Scoring
)

// Registry returns the process-wide collectors, registering them on first use.
func Registry() *Scoring {
	once.Do(func() {
		registry = New(prometheus.DefaultRegisterer)
	})
	return registry
}

// New builds and registers a fresh set of collectors on reg.
func New(reg prometheus.Registerer) *Scoring {
	s := &Scoring{
		Recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "challengescore",
			Name:      "recomputes_total",
			Help:      "Participant/metric score recomputations by outcome.",
		}, []string{"outcome"}),
		RecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "challengescore",
			Name:      "recompute_duration_seconds",
			Help:      "Time to load logs, score and replace snapshots for one participant/metric.",
			Buckets:   prometheus.DefBuckets,
		}),
		SnapshotsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "challengescore",
			Name:      "snapshots_written_total",
			Help:      "Score snapshots written.",
		}),
		PendingDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "challengescore",
			Name:      "pending_recomputes_drained_total",
			Help:      "Queued recomputations taken off the pending set.",
		}),
		LogsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "challengescore",
			Name:      "activity_logs_submitted_total",
			Help:      "Activity logs accepted.",
		}),
		LeaderboardCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "challengescore",
			Name:      "leaderboard_cache_total",
			Help:      "Leaderboard cache lookups by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "challengescore",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "challengescore",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	if reg != nil {
		reg.MustRegister(
			s.Recomputes,
			s.RecomputeDuration,
			s.SnapshotsWritten,
			s.PendingDrained,
			s.LogsSubmitted,
			s.LeaderboardCache,
			s.HTTPRequests,
			s.HTTPDuration,
		)
	}
	return s
}
