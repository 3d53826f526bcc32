package score

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

type SchedulerConfig struct {
	DrainInterval time.Duration
	NightlyHour   uint
	NightlyMinute uint
}

// StartScheduler runs the pending-queue drain on an interval and a full recompute of active
// challenges once a day. Neither job overlaps itself. Call Shutdown on the result to stop it.
func StartScheduler(ctx context.Context, svc ScoreService, cfg SchedulerConfig) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(cfg.DrainInterval),
		gocron.NewTask(func() {
			n, err := svc.DrainPending(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "drain pending recomputes", "error", err)
			}
			if n > 0 {
				slog.InfoContext(ctx, "drained pending recomputes", "count", n)
			}
		}),
		gocron.WithName("drain-pending-recomputes"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule drain job: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(cfg.NightlyHour, cfg.NightlyMinute, 0))),
		gocron.NewTask(func() {
			slog.InfoContext(ctx, "nightly recompute started")
			if err := svc.RecomputeActive(ctx); err != nil {
				slog.ErrorContext(ctx, "nightly recompute", "error", err)
				return
			}
			slog.InfoContext(ctx, "nightly recompute finished")
		}),
		gocron.WithName("nightly-recompute"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule nightly job: %w", err)
	}

	sched.Start()
	return sched, nil
}
