package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dev-tams/deployprune/internal/config"
)

// RunDaemon runs a cleanup pass every time spec (standard 5-field cron) fires until ctx is done.
// A failed pass is logged and reported; the daemon keeps going because the next pass starts from
// a fresh listing.
func RunDaemon(ctx context.Context, r *Runner, spec string, runTimeout time.Duration) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return fmt.Errorf("%w: daemon needs a non-empty schedule", config.ErrConfiguration)
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("%w: invalid schedule %q: %w", config.ErrConfiguration, spec, err)
	}
	return runSchedule(ctx, r, sched, runTimeout)
}

func runSchedule(ctx context.Context, r *Runner, sched cron.Schedule, runTimeout time.Duration) error {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("daemon started", zap.String("bucket", r.Bucket), zap.Duration("run_timeout", runTimeout))

	for {
		next := sched.Next(time.Now())
		logger.Debug("next cleanup scheduled", zap.Time("at", next))
		if !sleepUntil(ctx, next) {
			logger.Info("daemon shutdown requested")
			return nil
		}

		runCtx := ctx
		cancel := func() {}
		if runTimeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, runTimeout)
		}

		report, err := r.Run(runCtx)
		cancel()
		switch {
		case err == nil:
			logger.Info("scheduled cleanup finished",
				zap.Int("deleted", len(report.Deleted)),
				zap.Int("objects", report.ObjectsDeleted),
			)
		case ctx.Err() != nil:
			logger.Info("daemon shutdown requested")
			return nil
		case runTimeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded):
			logger.Error("scheduled cleanup timed out", zap.Duration("run_timeout", runTimeout), zap.Error(err))
		default:
			logger.Error("scheduled cleanup failed", zap.Error(err))
		}
	}
}

func sleepUntil(ctx context.Context, at time.Time) bool {
	t := time.NewTimer(time.Until(at))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
