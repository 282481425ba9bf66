package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	cronv3 "github.com/robfig/cron/v3"
)

const checkinRunTimeout = 5 * time.Minute

var scheduleParser = cronv3.NewParser(
	cronv3.SecondOptional | cronv3.Minute | cronv3.Hour | cronv3.Dom | cronv3.Month | cronv3.Dow | cronv3.Descriptor,
)

// ParseSchedule validates a cron expression such as "0 */2 * * *" or "@hourly".
func ParseSchedule(expr string) (cronv3.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty check-in schedule")
	}
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid check-in schedule %q: %w", expr, err)
	}
	return sched, nil
}

// StartScheduler runs check-in batches on expr until ctx is canceled.
// Overlapping runs are skipped.
func StartScheduler(ctx context.Context, svc *Service, expr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}

	c := cronv3.New(
		cronv3.WithLocation(time.UTC),
		cronv3.WithChain(cronv3.Recover(cronv3.DiscardLogger), cronv3.SkipIfStillRunning(cronv3.DiscardLogger)),
	)
	c.Schedule(sched, cronv3.FuncJob(func() { runScheduledCheckins(ctx, svc, logger) }))
	c.Start()
	logger.Info("Check-in scheduler started", "schedule", expr, "next_run", sched.Next(time.Now().UTC()))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		logger.Info("Check-in scheduler shutting down", "reason", ctx.Err())
	}()
	return nil
}

func runScheduledCheckins(ctx context.Context, svc *Service, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, checkinRunTimeout)
	defer cancel()

	res, err := svc.RunCheckins(runCtx)
	if err != nil {
		logger.Error("Scheduled check-in run failed", "error", err)
		return
	}
	logger.Debug("Scheduled check-in run finished", "emailed", res.Emailed, "considered", res.Considered)
}
