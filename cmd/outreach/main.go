package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	_ "github.com/mattn/go-sqlite3"
	"github.com/urfave/cli/v3"

	"github.com/jordanlanch/outreach/config"
	"github.com/jordanlanch/outreach/pkg/auth"
	"github.com/jordanlanch/outreach/pkg/database"
	"github.com/jordanlanch/outreach/pkg/logger"
	"github.com/jordanlanch/outreach/pkg/testdata"
)

func main() {
	cmd := &cli.Command{
		Name:                  "outreach",
		Usage:                 "Multi-tenant outreach sequencing engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "db-driver",
				Usage:   "Database driver (postgres, sqlite3)",
				Sources: cli.EnvVars("DB_DRIVER"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for job locks and the redis throttle backend",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "with-scheduler",
						Usage:   "Also run the cron schedule in this process",
						Sources: cli.EnvVars("SERVE_WITH_SCHEDULER"),
					},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					return serve(ctx, a, cmd.Bool("with-scheduler"))
				}),
			},
			{
				Name:  "tick",
				Usage: "Run one scheduler pass and print its counts",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					res, err := a.runner.Tick(ctx, time.Now())
					if err != nil {
						sentry.CaptureException(err)
						return err
					}
					return printJSON(res)
				}),
			},
			{
				Name:  "sync",
				Usage: "Pull prospects from the tenant's configured providers",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Usage: "Tenant id", Required: true},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					res, err := a.intake.Sync(ctx, cmd.String("tenant"))
					if perr := printJSON(res); perr != nil {
						return perr
					}
					return err
				}),
			},
			{
				Name:  "schedule",
				Usage: "Run the tick and sync jobs on their cron schedules",
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
					defer stop()

					cm := a.cronManager()
					if err := cm.SetupJobs(); err != nil {
						return err
					}
					if cm.Entries() == 0 {
						return errors.New("no jobs scheduled, set TICK_SCHEDULE or SYNC_SCHEDULE with SYNC_TENANTS")
					}
					cm.Start()
					<-ctx.Done()
					<-cm.Stop().Done()
					a.log.Info("scheduler stopped")
					return nil
				}),
			},
			{
				Name:  "migrate",
				Usage: "Create or update the database schema",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, log, err := setup(cmd)
					if err != nil {
						return err
					}
					db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL, database.DefaultPoolConfig(), cfg.SSL(), log)
					if err != nil {
						return err
					}
					defer db.Close()
					if err := db.Migrate(ctx); err != nil {
						return err
					}
					log.Info("migrations applied")
					return nil
				},
			},
			{
				Name:  "seed",
				Usage: "Insert fake prospects for a tenant",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Usage: "Tenant id", Required: true},
					&cli.IntFlag{Name: "count", Usage: "Number of prospects", Value: 100},
					&cli.IntFlag{Name: "seed", Usage: "Random seed, 0 for a random one"},
				},
				Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
					gen := testdata.DefaultProspectConfig(int(cmd.Int("count")))
					gen.Seed = int64(cmd.Int("seed"))

					tenantID := cmd.String("tenant")
					filters, err := a.filters.Get(ctx, tenantID)
					if err != nil {
						return err
					}
					res, err := a.intake.Ingest(ctx, tenantID, filters, testdata.GenerateProspects(gen))
					if err != nil {
						return err
					}
					return printJSON(res)
				}),
			},
			{
				Name:  "hash-secret",
				Usage: "Print the bcrypt hash to use as RUNNER_SECRET_HASH",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret", Required: true, Sources: cli.EnvVars("RUNNER_SECRET")},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					hash, err := auth.HashSecret(cmd.String("secret"))
					if err != nil {
						return err
					}
					fmt.Println(hash)
					return nil
				},
			},
			{
				Name:  "token",
				Usage: "Issue an operator token for a tenant",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Usage: "Tenant id", Required: true},
					&cli.StringFlag{Name: "subject", Usage: "Operator id", Value: "cli"},
					&cli.StringFlag{Name: "role", Usage: "operator or admin", Value: auth.RoleOperator},
					&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime", Value: 24 * time.Hour},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, _, err := setup(cmd)
					if err != nil {
						return err
					}
					role := cmd.String("role")
					if role != auth.RoleOperator && role != auth.RoleAdmin {
						return fmt.Errorf("unknown role %q", role)
					}
					token, err := auth.GenerateJWT(cmd.String("subject"), cmd.String("tenant"), role, cfg.JWTSecret, cmd.Duration("ttl"))
					if err != nil {
						return err
					}
					fmt.Println(token)
					return nil
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the environment configuration and applies the global flags.
func setup(cmd *cli.Command) (*config.Config, logger.Logger, error) {
	cfg := config.Load()
	if v := cmd.String("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := cmd.String("db-driver"); v != "" {
		cfg.DBDriver = v
	}
	if v := cmd.String("redis-url"); v != "" {
		cfg.RedisURL = v
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.LogLevel = v
	}

	log := logger.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, log, nil
}

// withApp builds the full dependency graph around a command action.
func withApp(fn func(ctx context.Context, cmd *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, log, err := setup(cmd)
		if err != nil {
			return err
		}
		flush := initSentry(cfg, log)
		defer flush()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			sentry.CaptureException(err)
			return err
		}
		defer a.Close()

		return fn(ctx, cmd, a)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
