// Package runner dispatches due sequence steps. A tick is stateless and may
// overlap with other ticks on other instances: every enrollment is claimed
// with a conditional update before anything is sent.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jordanlanch/outreach/pkg/delivery"
	"github.com/jordanlanch/outreach/pkg/enrollment"
	"github.com/jordanlanch/outreach/pkg/logger"
	"github.com/jordanlanch/outreach/pkg/metrics"
	"github.com/jordanlanch/outreach/pkg/prospects"
	"github.com/jordanlanch/outreach/pkg/sequences"
	"github.com/jordanlanch/outreach/pkg/suppression"
	"github.com/jordanlanch/outreach/pkg/templates"
	"github.com/jordanlanch/outreach/pkg/throttle"
)

const missingRecipient = "missing recipient"

// TickResult counts what one tick did. Skipped counts enrollments another
// runner claimed first; Errors counts enrollments left for a later tick after
// a storage error.
type TickResult struct {
	Processed            int `json:"processed"`
	Sent                 int `json:"sent"`
	Completed            int `json:"completed"`
	DeferredByThrottle   int `json:"deferred_by_throttle"`
	DeferredByQuietHours int `json:"deferred_by_quiet_hours"`
	Failed               int `json:"failed"`
	Retried              int `json:"retried"`
	OptedOut             int `json:"opted_out"`
	Skipped              int `json:"skipped"`
	Errors               int `json:"errors"`
}

func (r *TickResult) add(o TickResult) {
	r.Processed += o.Processed
	r.Sent += o.Sent
	r.Completed += o.Completed
	r.DeferredByThrottle += o.DeferredByThrottle
	r.DeferredByQuietHours += o.DeferredByQuietHours
	r.Failed += o.Failed
	r.Retried += o.Retried
	r.OptedOut += o.OptedOut
	r.Skipped += o.Skipped
	r.Errors += o.Errors
}

func (r TickResult) record(m *metrics.Metrics) {
	for outcome, n := range map[string]int{
		"sent":        r.Sent,
		"completed":   r.Completed,
		"throttled":   r.DeferredByThrottle,
		"quiet_hours": r.DeferredByQuietHours,
		"failed":      r.Failed,
		"retried":     r.Retried,
		"opted_out":   r.OptedOut,
		"skipped":     r.Skipped,
		"error":       r.Errors,
	} {
		if n > 0 {
			m.EnrollmentsTotal.WithLabelValues(outcome).Add(float64(n))
		}
	}
}

// Deps are the stores and services a runner works against.
type Deps struct {
	Enrollments *enrollment.Store
	Sequences   *sequences.Store
	Templates   *templates.Store
	Prospects   *prospects.Store
	Ledger      *suppression.Ledger
	Counter     throttle.Counter
	Adapter     *delivery.Adapter
	Attempts    *delivery.AttemptLog
	Metrics     *metrics.Metrics
	Log         logger.Logger
}

// Runner dispatches due enrollments.
type Runner struct {
	cfg Config
	Deps
	suppressor *suppression.Suppressor
}

// New creates a runner. Zero config fields take their defaults.
func New(cfg Config, deps Deps) *Runner {
	return &Runner{
		cfg:        cfg.withDefaults(),
		Deps:       deps,
		suppressor: suppression.NewSuppressor(deps.Ledger, deps.Prospects, deps.Enrollments),
	}
}

// Tick processes up to BatchLimit enrollments due at now, at most
// Concurrency at a time. Per-enrollment failures are counted, not returned.
func (r *Runner) Tick(ctx context.Context, now time.Time) (*TickResult, error) {
	start := time.Now()

	listCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	due, err := r.Enrollments.ListDue(listCtx, now, r.cfg.BatchLimit)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed listing due enrollments: %w", err)
	}

	res := &TickResult{}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for _, e := range due {
		g.Go(func() error {
			o := r.process(ctx, e, now)
			mu.Lock()
			res.add(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res.record(r.Metrics)
	r.Metrics.ObserveTick(time.Since(start))
	r.Log.Info("runner tick finished",
		"due", len(due),
		"processed", res.Processed,
		"sent", res.Sent,
		"deferred_throttle", res.DeferredByThrottle,
		"deferred_quiet_hours", res.DeferredByQuietHours,
		"failed", res.Failed,
		"retried", res.Retried,
		"opted_out", res.OptedOut,
		"skipped", res.Skipped,
		"errors", res.Errors,
		"duration", time.Since(start),
	)
	return res, nil
}

// process claims e and dispatches its next step. Work after the claim is
// bounded by the claim lease so a slow runner cannot overlap a reclaim.
func (r *Runner) process(ctx context.Context, e *enrollment.Enrollment, now time.Time) TickResult {
	log := r.Log.With("enrollment_id", e.ID, "tenant_id", e.TenantID)

	claimCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	err := r.Enrollments.Claim(claimCtx, e, now, r.cfg.ClaimLease)
	cancel()
	if errors.Is(err, enrollment.ErrClaimLost) {
		return TickResult{Skipped: 1}
	}
	if err != nil {
		log.Error("claim failed", "error", err)
		return TickResult{Errors: 1}
	}

	workCtx, cancel := context.WithTimeout(ctx, r.cfg.ClaimLease)
	defer cancel()

	out, err := r.dispatch(workCtx, log, e, now)
	out.Processed = 1
	if errors.Is(err, enrollment.ErrClaimLost) {
		log.Info("enrollment changed while claimed", "status_outcome", out)
		return out
	}
	if err != nil {
		log.Error("dispatch failed", "error", err)
		if rerr := r.Enrollments.Release(ctx, e, now); rerr != nil && !errors.Is(rerr, enrollment.ErrClaimLost) {
			log.Error("releasing claim failed", "error", rerr)
		}
		out.Errors = 1
	}
	return out
}

func (r *Runner) dispatch(ctx context.Context, log logger.Logger, e *enrollment.Enrollment, now time.Time) (TickResult, error) {
	seq, err := r.Sequences.GetByID(ctx, e.SequenceID)
	if errors.Is(err, sequences.ErrNotFound) {
		return TickResult{Failed: 1}, r.Enrollments.Fail(ctx, e, "sequence not found", now)
	}
	if err != nil {
		return TickResult{}, err
	}
	if seq.Archived() {
		return TickResult{Skipped: 1}, r.Enrollments.Release(ctx, e, now)
	}

	step, ok := seq.NextStep(e.LastStepOrder)
	if !ok {
		return TickResult{Completed: 1}, r.Enrollments.Complete(ctx, e, e.LastStepOrder, now)
	}

	sent, err := r.Attempts.HasSent(ctx, e.ID, step.StepOrder)
	if err != nil {
		return TickResult{}, err
	}
	if sent {
		log.Warn("step already delivered, advancing without resend", "step_order", step.StepOrder)
		return r.advance(ctx, e, seq, step, now)
	}

	p, err := r.Prospects.GetByID(ctx, e.ProspectID)
	if errors.Is(err, prospects.ErrNotFound) {
		return TickResult{Failed: 1}, r.Enrollments.Fail(ctx, e, "prospect not found", now)
	}
	if err != nil {
		return TickResult{}, err
	}

	suppressed, err := r.Ledger.IsSuppressed(ctx, e.TenantID, p.Identities()...)
	if err != nil {
		return TickResult{}, err
	}
	if suppressed {
		return TickResult{OptedOut: 1}, r.Enrollments.MarkOptedOut(ctx, e, now)
	}

	day := seq.Day(now)
	key := throttle.Key(e.TenantID, e.SequenceID)
	used, err := r.Counter.Count(ctx, key, day)
	if err != nil {
		return TickResult{}, err
	}
	if used >= seq.ThrottlePerDay {
		return TickResult{DeferredByThrottle: 1}, r.Enrollments.Defer(ctx, e, seq.NextDayWindowStart(now), now)
	}

	if !seq.InSendWindow(now) {
		return TickResult{DeferredByQuietHours: 1}, r.Enrollments.Defer(ctx, e, seq.NextWindowStart(now), now)
	}

	ch, ok := r.Adapter.Channel(step.Channel)
	if !ok {
		return TickResult{}, fmt.Errorf("no delivery channel configured for %q", step.Channel)
	}
	attempt := &delivery.Attempt{
		TenantID:     e.TenantID,
		EnrollmentID: e.ID,
		SequenceID:   e.SequenceID,
		StepOrder:    step.StepOrder,
		Channel:      step.Channel,
		Recipient:    ch.Recipient(*p),
		CreatedAt:    now,
	}
	if attempt.Recipient == "" {
		attempt.Outcome, attempt.Error = delivery.OutcomeFailed, missingRecipient
		r.recordAttempt(ctx, log, attempt)
		return TickResult{Failed: 1}, r.Enrollments.Fail(ctx, e, missingRecipient, now)
	}

	tpl, err := r.Templates.GetByID(ctx, step.TemplateID)
	if errors.Is(err, templates.ErrNotFound) {
		return TickResult{Failed: 1}, r.Enrollments.Fail(ctx, e, "template not found", now)
	}
	if err != nil {
		return TickResult{}, err
	}

	reserved, err := r.Counter.Reserve(ctx, key, day, seq.ThrottlePerDay)
	if err != nil {
		return TickResult{}, err
	}
	if !reserved {
		return TickResult{DeferredByThrottle: 1}, r.Enrollments.Defer(ctx, e, seq.NextDayWindowStart(now), now)
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	res, sendErr := r.Adapter.Send(sendCtx, ch.Render(tpl, *p))
	cancel()

	if sendErr != nil {
		if err := r.Counter.Release(ctx, key, day); err != nil {
			log.Error("releasing throttle slot failed", "error", err)
		}
		return r.failed(ctx, log, e, attempt, sendErr, now)
	}

	attempt.Outcome, attempt.ProviderMessageID = delivery.OutcomeSent, res.ProviderMessageID
	r.recordAttempt(ctx, log, attempt)
	out, err := r.advance(ctx, e, seq, step, now)
	out.Sent = 1
	return out, err
}

// advance moves e past step: to the next step after its wait, or to completed.
func (r *Runner) advance(ctx context.Context, e *enrollment.Enrollment, seq *sequences.Sequence, step sequences.Step, now time.Time) (TickResult, error) {
	next, ok := seq.NextStep(step.StepOrder)
	if !ok {
		return TickResult{Completed: 1}, r.Enrollments.Complete(ctx, e, step.StepOrder, now)
	}
	due := now.Add(time.Duration(next.WaitMinutes) * time.Minute)
	return TickResult{}, r.Enrollments.Advance(ctx, e, step.StepOrder, due, now)
}

// failed applies a send error: permanent errors suppress the recipient and
// fail the enrollment, transient ones back off until MaxAttempts.
func (r *Runner) failed(ctx context.Context, log logger.Logger, e *enrollment.Enrollment, attempt *delivery.Attempt, sendErr error, now time.Time) (TickResult, error) {
	attempt.Error = sendErr.Error()

	if delivery.IsPermanent(sendErr) {
		attempt.Outcome = delivery.OutcomeBounced
		r.recordAttempt(ctx, log, attempt)
		// Fail first: the cascade would otherwise opt this enrollment out.
		failErr := r.Enrollments.Fail(ctx, e, sendErr.Error(), now)
		if _, err := r.suppressor.Suppress(ctx, suppression.Entry{
			TenantID: e.TenantID,
			Identity: attempt.Recipient,
			Reason:   suppression.ReasonBounce,
			Scope:    suppression.ScopeTenant,
		}, now); err != nil {
			return TickResult{Failed: 1}, errors.Join(failErr, err)
		}
		return TickResult{Failed: 1}, failErr
	}

	attempt.Outcome = delivery.OutcomeFailed
	r.recordAttempt(ctx, log, attempt)
	attempts := e.Attempts + 1
	if attempts >= r.cfg.MaxAttempts {
		return TickResult{Failed: 1}, r.Enrollments.Fail(ctx, e, sendErr.Error(), now)
	}
	return TickResult{Retried: 1}, r.Enrollments.Retry(ctx, e, now.Add(r.cfg.Backoff(attempts)), sendErr.Error(), now)
}

func (r *Runner) recordAttempt(ctx context.Context, log logger.Logger, a *delivery.Attempt) {
	if err := r.Attempts.Record(ctx, a); err != nil {
		log.Error("recording delivery attempt failed", "step_order", a.StepOrder, "error", err)
	}
	r.Metrics.RecordDelivery(string(a.Channel), string(a.Outcome))
}
