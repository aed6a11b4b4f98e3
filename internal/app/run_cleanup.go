package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dev-tams/deployprune/internal/config"
	"github.com/dev-tams/deployprune/internal/metrics"
	"github.com/dev-tams/deployprune/internal/notify"
	"github.com/dev-tams/deployprune/internal/storage"
	"github.com/dev-tams/deployprune/internal/storage/prunable"
)

const notificationTimeout = 5 * time.Second

type CleanupReport struct {
	RunID          string
	Storage        string
	RetainCount    int
	Discovered     int
	Retained       []DeploymentGroup
	Deleted        []DeploymentGroup
	ObjectsDeleted int
	// FailedPrefix is the group whose delete failed, possibly after removing some of its objects.
	FailedPrefix string
	Duration     time.Duration
}

// RunCleanup discovers the deployment groups, then deletes every group outside the retention
// window one at a time, newest first. It stops at the first error; the report describes
// what happened up to that point.
func RunCleanup(ctx context.Context, st prunable.Prunable, policy RetentionPolicy, logger *zap.Logger) (CleanupReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	started := time.Now()
	report := CleanupReport{Storage: st.Name(), RetainCount: policy.RetainCount}

	groups, err := DiscoverGroups(ctx, st)
	if err != nil {
		logger.Error("deployment listing failed", zap.String("storage", st.Name()), zap.Error(err))
		report.Duration = time.Since(started)
		return report, err
	}
	report.Discovered = len(groups)
	report.Retained = retained(RankGroups(groups), policy)

	logger.Info("deployments discovered",
		zap.String("storage", st.Name()),
		zap.Int("groups", len(groups)),
		zap.Int("retain", policy.RetainCount),
	)
	for _, g := range report.Retained {
		logger.Debug("deployment retained",
			zap.String("prefix", g.Prefix),
			zap.Time("last_modified", g.Timestamp),
		)
	}

	rank := len(report.Retained)
	for g := range SelectForDeletion(groups, policy) {
		rank++
		logger.Info("deployment considered for deletion",
			zap.String("prefix", g.Prefix),
			zap.String("representative", g.RepresentativeKey),
			zap.Time("last_modified", g.Timestamp),
			zap.Int("rank", rank),
		)

		n, err := DeleteGroup(ctx, st, g)
		report.ObjectsDeleted += n
		if err != nil {
			report.FailedPrefix = g.Prefix
			logger.Error("deployment delete failed",
				zap.String("prefix", g.Prefix),
				zap.Int("objects", n),
				zap.Error(err),
			)
			report.Duration = time.Since(started)
			return report, err
		}

		report.Deleted = append(report.Deleted, g)
		logger.Info("deployment deleted", zap.String("prefix", g.Prefix), zap.Int("objects", n))
	}

	report.Duration = time.Since(started)
	return report, nil
}

// Runner carries everything a cleanup pass needs beyond the storage handle, so the daemon can
// reuse one set of clients across runs.
type Runner struct {
	Store           prunable.Prunable
	Policy          RetentionPolicy
	Bucket          string
	Logger          *zap.Logger
	Metrics         *metrics.Recorder
	MetricsTextfile string
	Notifier        *notify.Dispatcher
}

func NewRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := NewRetentionPolicy(cfg.Retention)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	st, err := storage.FromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	dispatcher, err := notify.NewDispatcher(cfg.Notifications)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	var rec *metrics.Recorder
	if cfg.Metrics.Textfile != "" {
		if rec, err = metrics.New(cfg.Bucket); err != nil {
			return nil, err
		}
	}

	return &Runner{
		Store:           st,
		Policy:          policy,
		Bucket:          cfg.Bucket,
		Logger:          logger,
		Metrics:         rec,
		MetricsTextfile: cfg.Metrics.Textfile,
		Notifier:        dispatcher,
	}, nil
}

// Run performs one cleanup pass and reports it to metrics and notifications.
func (r *Runner) Run(ctx context.Context) (CleanupReport, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID), zap.String("bucket", r.Bucket))

	report, err := RunCleanup(ctx, r.Store, r.Policy, logger)
	report.RunID = runID

	status := notify.StatusSuccess
	if err != nil {
		status = notify.StatusFailure
	}

	r.Metrics.ObserveRun(metrics.Run{
		Status:         status,
		Discovered:     report.Discovered,
		Retained:       len(report.Retained),
		GroupsDeleted:  len(report.Deleted),
		ObjectsDeleted: report.ObjectsDeleted,
		Duration:       report.Duration,
		FinishedAt:     time.Now(),
	})
	if werr := r.Metrics.WriteTextfile(r.MetricsTextfile); werr != nil {
		logger.Warn("metrics export failed", zap.Error(werr))
	}

	notifyResult(ctx, r.Notifier, r.Bucket, report, err, logger)
	return report, err
}

// RunCleanupWithConfig builds the storage client and reporting from cfg and runs one pass.
func RunCleanupWithConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (CleanupReport, error) {
	r, err := NewRunner(ctx, cfg, logger)
	if err != nil {
		return CleanupReport{}, err
	}
	return r.Run(ctx)
}

func notifyResult(ctx context.Context, dispatcher *notify.Dispatcher, bucket string, report CleanupReport, runErr error, logger *zap.Logger) {
	event := notify.Event{
		RunID:        report.RunID,
		Bucket:       bucket,
		Status:       notify.StatusSuccess,
		Discovered:   report.Discovered,
		Retained:     len(report.Retained),
		Objects:      report.ObjectsDeleted,
		Duration:     report.Duration.Round(time.Millisecond).String(),
		FailedPrefix: report.FailedPrefix,
	}
	for _, g := range report.Deleted {
		event.Deleted = append(event.Deleted, g.Prefix)
	}
	if runErr != nil {
		event.Status = notify.StatusFailure
		event.Error = runErr.Error()
	}

	notifyCtx, cancel := notificationContext(ctx)
	defer cancel()

	if err := dispatcher.Notify(notifyCtx, event); err != nil {
		logger.Warn("notification failed", zap.String("status", event.Status), zap.Error(err))
	}
}

func notificationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), notificationTimeout)
	}
	return context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
}

// IsDeletionFailure reports whether err left a group partially deleted.
func IsDeletionFailure(err error) bool {
	var dfe *DeletionFailedError
	return errors.As(err, &dfe)
}
