package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dev-tams/deployprune/internal/app"
	"github.com/dev-tams/deployprune/internal/config"
	"github.com/dev-tams/deployprune/internal/logging"
	"github.com/dev-tams/deployprune/internal/storage"
)

const (
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(exitCode(err))
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "deployprune",
		Usage: "keep the newest N deployments in a bucket and delete the rest",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "delete every deployment outside the retention window",
				Flags: commonFlags(),
				Action: func(c *cli.Context) error {
					cfg, logger, err := setup(c)
					if err != nil {
						return err
					}
					defer func() { _ = logger.Sync() }()

					report, err := app.RunCleanupWithConfig(c.Context, cfg, logger)
					if err != nil {
						if app.IsDeletionFailure(err) {
							return fmt.Errorf("cleanup aborted after deleting %d deployment(s), %s may be partially deleted: %w",
								len(report.Deleted), report.FailedPrefix, err)
						}
						return err
					}

					fmt.Fprintf(out,
						"cleanup OK: bucket=%s discovered=%d retained=%d deleted=%d objects=%d duration=%s\n",
						cfg.Bucket,
						report.Discovered,
						len(report.Retained),
						len(report.Deleted),
						report.ObjectsDeleted,
						report.Duration.Round(time.Millisecond),
					)
					return nil
				},
			},
			{
				Name:  "plan",
				Usage: "list which deployments a run would keep and delete",
				Flags: commonFlags(),
				Action: func(c *cli.Context) error {
					cfg, logger, err := setup(c)
					if err != nil {
						return err
					}
					defer func() { _ = logger.Sync() }()

					st, err := storage.FromConfig(c.Context, cfg)
					if err != nil {
						return fmt.Errorf("%w: %w", config.ErrConfiguration, err)
					}
					plan, err := app.PlanCleanup(c.Context, st, app.RetentionPolicy{RetainCount: cfg.Retention})
					if err != nil {
						return err
					}

					for _, g := range plan.Retained {
						fmt.Fprintf(out, "keep    %s\t%s\t%s\n", g.Prefix, g.Timestamp.UTC().Format(time.RFC3339), g.RepresentativeKey)
					}
					for _, g := range plan.Delete {
						fmt.Fprintf(out, "delete  %s\t%s\t%s\n", g.Prefix, g.Timestamp.UTC().Format(time.RFC3339), g.RepresentativeKey)
					}
					return nil
				},
			},
			{
				Name:  "daemon",
				Usage: "run cleanups on a cron schedule",
				Flags: append(
					commonFlags(),
					&cli.StringFlag{
						Name:  "schedule",
						Usage: "5-field cron expression (overrides config schedule)",
					},
					&cli.DurationFlag{
						Name:  "run-timeout",
						Usage: "abort a single cleanup pass after this long (0 disables)",
					},
				),
				Action: func(c *cli.Context) error {
					cfg, logger, err := setup(c)
					if err != nil {
						return err
					}
					defer func() { _ = logger.Sync() }()

					r, err := app.NewRunner(c.Context, cfg, logger)
					if err != nil {
						return err
					}
					return app.RunDaemon(c.Context, r, cfg.Schedule, c.Duration("run-timeout"))
				},
			},
		},
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to config yaml (optional; environment is enough)",
		},
		&cli.IntFlag{
			Name:  "retention",
			Usage: "number of newest deployments to keep (default $" + config.EnvRetention + ")",
		},
		&cli.StringFlag{
			Name:  "bucket",
			Usage: "bucket holding the deployments (default $" + config.EnvBucket + ")",
		},
		&cli.StringFlag{
			Name:  "storage",
			Usage: "storage backend: s3, minio or local",
		},
		&cli.BoolFlag{
			Name:  "allow-zero",
			Usage: "permit retention=0, which deletes every deployment",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable debug logging",
		},
	}
}

// setup loads and validates the configuration before any storage client exists.
func setup(c *cli.Context) (*config.Config, *zap.Logger, error) {
	overrides := map[string]any{}
	if c.IsSet("retention") {
		overrides["retention"] = c.Int("retention")
	}
	if c.IsSet("bucket") {
		overrides["bucket"] = c.String("bucket")
	}
	if c.IsSet("storage") {
		overrides["storage.type"] = c.String("storage")
	}
	if c.IsSet("allow-zero") {
		overrides["allow_zero_retention"] = c.Bool("allow-zero")
	}
	if c.IsSet("schedule") {
		overrides["schedule"] = c.String("schedule")
	}

	cfg, err := config.LoadConfig(c.String("config"), overrides)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Log, c.Bool("verbose"))
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func exitCode(err error) int {
	if errors.Is(err, config.ErrConfiguration) {
		return exitConfig
	}
	return exitFailure
}
