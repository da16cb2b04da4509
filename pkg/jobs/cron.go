// Package jobs schedules the runner tick and prospect syncs for deployments
// without an external trigger.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"

	"github.com/jordanlanch/outreach/pkg/logger"
	"github.com/jordanlanch/outreach/pkg/metrics"
	"github.com/jordanlanch/outreach/pkg/prospects"
	"github.com/jordanlanch/outreach/pkg/runner"
)

// ErrLockBusy reports that another instance holds the job lock.
var ErrLockBusy = errors.New("job lock is held by another instance")

// Ticker runs one scheduler pass.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (*runner.TickResult, error)
}

// Syncer pulls prospects for one tenant.
type Syncer interface {
	Sync(ctx context.Context, tenantID string) (prospects.IngestResult, error)
}

// Locker is a cross-instance mutex, satisfied by *cache.Client.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// Config holds the schedules in robfig/cron syntax. An empty schedule
// disables the job.
type Config struct {
	TickSchedule string
	SyncSchedule string
	SyncTenants  []string
	LockTTL      time.Duration
	TickTimeout  time.Duration
	SyncTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.LockTTL <= 0 {
		c.LockTTL = 10 * time.Minute
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = 5 * time.Minute
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 30 * time.Minute
	}
	return c
}

// CronManager manages scheduled jobs
type CronManager struct {
	cron    *cron.Cron
	cfg     Config
	runner  Ticker
	intake  Syncer
	locker  Locker
	metrics *metrics.Metrics
	log     logger.Logger
	now     func() time.Time
}

// NewCronManager creates a new cron manager. locker and m may be nil; without
// a locker every instance runs every job.
func NewCronManager(cfg Config, r Ticker, intake Syncer, locker Locker, m *metrics.Metrics, log logger.Logger) *CronManager {
	if log == nil {
		log = logger.Default()
	}
	cl := cronLogger{log}
	return &CronManager{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		cfg:     cfg.withDefaults(),
		runner:  r,
		intake:  intake,
		locker:  locker,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	if cm.cfg.TickSchedule != "" && cm.runner != nil {
		if _, err := cm.cron.AddFunc(cm.cfg.TickSchedule, func() {
			cm.report("tick", cm.RunTick(context.Background()))
		}); err != nil {
			return fmt.Errorf("invalid tick schedule %q: %w", cm.cfg.TickSchedule, err)
		}
		cm.log.Info("tick job scheduled", "schedule", cm.cfg.TickSchedule)
	}

	if cm.cfg.SyncSchedule != "" && cm.intake != nil && len(cm.cfg.SyncTenants) > 0 {
		if _, err := cm.cron.AddFunc(cm.cfg.SyncSchedule, func() {
			for _, tenantID := range cm.cfg.SyncTenants {
				cm.report("sync", cm.RunSync(context.Background(), tenantID))
			}
		}); err != nil {
			return fmt.Errorf("invalid sync schedule %q: %w", cm.cfg.SyncSchedule, err)
		}
		cm.log.Info("sync job scheduled", "schedule", cm.cfg.SyncSchedule, "tenants", len(cm.cfg.SyncTenants))
	}

	return nil
}

// RunTick runs one tick under the "tick" lock.
func (cm *CronManager) RunTick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, cm.cfg.TickTimeout)
	defer cancel()

	return cm.withLock(ctx, "tick", func(ctx context.Context) error {
		res, err := cm.runner.Tick(ctx, cm.now())
		if err != nil {
			return fmt.Errorf("tick: %w", err)
		}
		cm.log.Info("scheduled tick finished", "processed", res.Processed, "sent", res.Sent, "failed", res.Failed)
		return nil
	})
}

// RunSync syncs one tenant under a per-tenant lock.
func (cm *CronManager) RunSync(ctx context.Context, tenantID string) error {
	ctx, cancel := context.WithTimeout(ctx, cm.cfg.SyncTimeout)
	defer cancel()

	return cm.withLock(ctx, "sync:"+tenantID, func(ctx context.Context) error {
		res, err := cm.intake.Sync(ctx, tenantID)
		if cm.metrics != nil {
			cm.metrics.RecordIngest(res.Inserted, res.Updated, res.Skipped)
		}
		if err != nil {
			return fmt.Errorf("sync tenant %s: %w", tenantID, err)
		}
		cm.log.Info("scheduled sync finished", "tenant_id", tenantID,
			"inserted", res.Inserted, "updated", res.Updated, "skipped", res.Skipped)
		return nil
	})
}

func (cm *CronManager) withLock(ctx context.Context, job string, fn func(context.Context) error) error {
	if cm.locker == nil {
		return fn(ctx)
	}

	token, ok, err := cm.locker.TryLock(ctx, job, cm.cfg.LockTTL)
	if err != nil {
		return err
	}
	if !ok {
		if cm.metrics != nil {
			cm.metrics.RecordLockBusy(job)
		}
		return ErrLockBusy
	}
	defer func() {
		if err := cm.locker.Unlock(context.WithoutCancel(ctx), job, token); err != nil {
			cm.log.Warn("failed releasing job lock", "job", job, "error", err)
		}
	}()

	return fn(ctx)
}

func (cm *CronManager) report(job string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrLockBusy):
		cm.log.Debug("job skipped, lock busy", "job", job)
	default:
		cm.log.Error("scheduled job failed", "job", job, "error", err)
		sentry.CaptureException(err)
	}
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.log.Info("starting cron scheduler", "jobs", len(cm.cron.Entries()))
	cm.cron.Start()
}

// Stop stops the scheduler and returns a context done when running jobs finish.
func (cm *CronManager) Stop() context.Context {
	cm.log.Info("stopping cron scheduler")
	return cm.cron.Stop()
}

// Entries is the number of scheduled jobs.
func (cm *CronManager) Entries() int {
	return len(cm.cron.Entries())
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
