package main

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jordanlanch/outreach/config"
	"github.com/jordanlanch/outreach/pkg/cache"
	"github.com/jordanlanch/outreach/pkg/compliance"
	"github.com/jordanlanch/outreach/pkg/database"
	"github.com/jordanlanch/outreach/pkg/delivery"
	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/email"
	"github.com/jordanlanch/outreach/pkg/enrollment"
	"github.com/jordanlanch/outreach/pkg/jobs"
	"github.com/jordanlanch/outreach/pkg/logger"
	"github.com/jordanlanch/outreach/pkg/metrics"
	"github.com/jordanlanch/outreach/pkg/prospects"
	"github.com/jordanlanch/outreach/pkg/providers"
	"github.com/jordanlanch/outreach/pkg/providers/apollo"
	"github.com/jordanlanch/outreach/pkg/providers/fake"
	"github.com/jordanlanch/outreach/pkg/runner"
	"github.com/jordanlanch/outreach/pkg/secrets"
	"github.com/jordanlanch/outreach/pkg/sequences"
	"github.com/jordanlanch/outreach/pkg/sms"
	"github.com/jordanlanch/outreach/pkg/stats"
	"github.com/jordanlanch/outreach/pkg/suppression"
	"github.com/jordanlanch/outreach/pkg/templates"
	"github.com/jordanlanch/outreach/pkg/throttle"
)

// app holds every long-lived dependency shared by the commands.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	db      *database.Client
	cache   *cache.Client
	metrics *metrics.Metrics

	templates   *templates.Store
	sequences   *sequences.Store
	prospects   *prospects.Store
	filters     *prospects.FilterStore
	enrollments *enrollment.Store
	ledger      *suppression.Ledger
	suppressor  *suppression.Suppressor
	registry    *providers.Registry
	intake      *prospects.Intake
	adapter     *delivery.Adapter
	attempts    *delivery.AttemptLog
	compliance  *compliance.Handler
	stats       *stats.Service
	runner      *runner.Runner
}

func newApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, metrics: metrics.New(prometheus.DefaultRegisterer)}

	db, err := database.NewClient(ctx, cfg.DBDriver, cfg.DatabaseURL, cfg.SSL(), log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.db = db

	if cfg.RedisURL != "" {
		c, err := cache.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.cache = c
	}

	store, err := secrets.NewStore(cfg.Secrets(), log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("secrets: %w", err)
	}

	a.registry = providers.NewRegistry(apollo.New(cfg.ApolloBaseURL, store))
	if cfg.FakeProviderEnabled {
		a.registry.Register(fake.New(250, 50, 0))
	}

	a.templates = templates.NewStore(db)
	a.sequences = sequences.NewStore(db, a.templates)
	a.prospects = prospects.NewStore(db)
	a.filters = prospects.NewFilterStore(db)
	a.enrollments = enrollment.NewStore(db)
	a.ledger = suppression.NewLedger(db)
	a.suppressor = suppression.NewSuppressor(a.ledger, a.prospects, a.enrollments)
	a.intake = prospects.NewIntake(db, a.filters, a.registry, log)
	a.intake.SetMaxPages(cfg.SyncMaxPages)
	a.attempts = delivery.NewAttemptLog(db)
	a.stats = stats.NewService(db)

	a.adapter = delivery.NewAdapter(log,
		delivery.EmailChannel{Sender: a.emailSender()},
		delivery.SMSChannel{Sender: a.smsSender()},
	)
	a.adapter.SetRate(domain.ChannelEmail, cfg.EmailRate, cfg.EmailBurst)
	a.adapter.SetRate(domain.ChannelSMS, cfg.SMSRate, cfg.SMSBurst)

	a.compliance = compliance.NewHandler(db, a.ledger, a.prospects, a.enrollments, a.adapter, cfg.HelpText, log)

	counter, err := a.counter()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runner = runner.New(cfg.Runner(), runner.Deps{
		Enrollments: a.enrollments,
		Sequences:   a.sequences,
		Templates:   a.templates,
		Prospects:   a.prospects,
		Ledger:      a.ledger,
		Counter:     counter,
		Adapter:     a.adapter,
		Attempts:    a.attempts,
		Metrics:     a.metrics,
		Log:         log,
	})

	return a, nil
}

func (a *app) emailSender() delivery.Sender {
	if a.cfg.SendGridAPIKey == "" {
		a.log.Warn("SENDGRID_API_KEY not set, emails are logged instead of sent")
		return delivery.LogSender{Log: a.log}
	}
	return email.NewService(a.cfg.EmailFrom, a.cfg.EmailFromName, a.cfg.SendGridAPIKey, a.log)
}

func (a *app) smsSender() delivery.Sender {
	if a.cfg.TwilioAccountSID == "" || a.cfg.TwilioAuthToken == "" {
		a.log.Warn("twilio credentials not set, sms are logged instead of sent")
		return delivery.LogSender{Log: a.log}
	}
	return sms.NewTwilioSender(a.cfg.TwilioAccountSID, a.cfg.TwilioAuthToken, a.cfg.TwilioFromNumber)
}

func (a *app) counter() (throttle.Counter, error) {
	switch a.cfg.ThrottleBackend {
	case "redis":
		if a.cache == nil {
			return nil, fmt.Errorf("throttle backend redis requires REDIS_URL")
		}
		return throttle.NewRedisCounter(a.cache.Redis), nil
	default:
		return throttle.NewSQLCounter(a.db), nil
	}
}

func (a *app) cronManager() *jobs.CronManager {
	var locker jobs.Locker
	if a.cache != nil {
		locker = a.cache
	}
	return jobs.NewCronManager(jobs.Config{
		TickSchedule: a.cfg.TickSchedule,
		SyncSchedule: a.cfg.SyncSchedule,
		SyncTenants:  a.cfg.SyncTenants,
		LockTTL:      a.cfg.JobLockTTL,
	}, a.runner, a.intake, locker, a.metrics, a.log)
}

// Close releases the connections held by the app.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("failed closing redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("failed closing database", "error", err)
		}
	}
}

func initSentry(cfg *config.Config, log logger.Logger) func() {
	if cfg.SentryDSN == "" {
		log.Info("sentry disabled, no DSN configured")
		return func() {}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.SentryEnvironment,
		TracesSampleRate: 0.2,
		AttachStacktrace: true,
	})
	if err != nil {
		log.Warn("failed to initialize sentry", "error", err)
		return func() {}
	}

	log.Info("sentry initialized", "environment", cfg.SentryEnvironment)
	return func() { sentry.Flush(2 * time.Second) }
}
