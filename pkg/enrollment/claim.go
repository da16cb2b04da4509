package enrollment

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/jordanlanch/outreach/pkg/database"
)

// Claim takes e for dispatch. It succeeds only if the row is still at the
// version e was read at, still active, and not held by a live claim. On
// success e carries the claim token and its new version.
func (s *Store) Claim(ctx context.Context, e *Enrollment, now time.Time, lease time.Duration) error {
	now = database.Timestamp(now)
	token := uuid.NewString()
	expires := database.Timestamp(now.Add(lease))

	n, err := s.db.Exec(ctx, s.db.Builder().Update(database.TableEnrollments).
		Set("claim_token", token).
		Set("claim_expires_at", expires).
		Set("updated_at", now).
		Add("version", 1).
		Where(entsql.And(
			entsql.EQ("id", e.ID),
			entsql.EQ("version", e.Version),
			entsql.EQ("status", string(StatusActive)),
			entsql.Or(entsql.IsNull("claim_expires_at"), entsql.LTE("claim_expires_at", now)),
		)))
	if err != nil {
		return fmt.Errorf("failed claiming enrollment: %w", err)
	}
	if n == 0 {
		return ErrClaimLost
	}
	e.ClaimToken = token
	e.ClaimExpiresAt = &expires
	e.Version++
	return nil
}

// Advance records a dispatched step that has a successor due at nextDueAt.
func (s *Store) Advance(ctx context.Context, e *Enrollment, stepOrder int, nextDueAt, now time.Time) error {
	return s.finalize(ctx, e, now, func(u *entsql.UpdateBuilder) {
		u.Add("current_step_index", 1).
			Set("last_step_order", stepOrder).
			Set("next_due_at", database.Timestamp(nextDueAt)).
			Set("attempts", 0).
			SetNull("last_error")
	})
}

// Complete records the dispatch of the final step.
func (s *Store) Complete(ctx context.Context, e *Enrollment, stepOrder int, now time.Time) error {
	return s.finalize(ctx, e, now, func(u *entsql.UpdateBuilder) {
		u.Add("current_step_index", 1).
			Set("last_step_order", stepOrder).
			Set("status", string(StatusCompleted)).
			Set("completed_at", database.Timestamp(now)).
			SetNull("live_key").
			Set("attempts", 0).
			SetNull("last_error")
	})
}

// Retry records a transient failure and schedules another attempt.
func (s *Store) Retry(ctx context.Context, e *Enrollment, nextDueAt time.Time, reason string, now time.Time) error {
	return s.finalize(ctx, e, now, func(u *entsql.UpdateBuilder) {
		u.Add("attempts", 1).
			Set("next_due_at", database.Timestamp(nextDueAt)).
			Set("last_error", truncate(reason))
	})
}

// Fail halts the enrollment.
func (s *Store) Fail(ctx context.Context, e *Enrollment, reason string, now time.Time) error {
	return s.finalize(ctx, e, now, func(u *entsql.UpdateBuilder) {
		u.Add("attempts", 1).
			Set("status", string(StatusFailed)).
			Set("completed_at", database.Timestamp(now)).
			SetNull("live_key").
			Set("last_error", truncate(reason))
	})
}

// Defer releases the claim without dispatching and moves nextDueAt.
func (s *Store) Defer(ctx context.Context, e *Enrollment, nextDueAt, now time.Time) error {
	return s.finalize(ctx, e, now, func(u *entsql.UpdateBuilder) {
		u.Set("next_due_at", database.Timestamp(nextDueAt))
	})
}

// MarkOptedOut ends a claimed enrollment whose recipient is suppressed.
func (s *Store) MarkOptedOut(ctx context.Context, e *Enrollment, now time.Time) error {
	return s.finalize(ctx, e, now, func(u *entsql.UpdateBuilder) {
		u.Set("status", string(StatusOptedOut)).
			Set("completed_at", database.Timestamp(now)).
			SetNull("live_key")
	})
}

// Release drops the claim and leaves everything else as it was.
func (s *Store) Release(ctx context.Context, e *Enrollment, now time.Time) error {
	return s.finalize(ctx, e, now, func(*entsql.UpdateBuilder) {})
}

// finalize applies set and clears the claim, fenced on the claim token. An
// enrollment paused while claimed keeps its paused status; one that was
// opted out meanwhile is left alone and ErrClaimLost is returned.
func (s *Store) finalize(ctx context.Context, e *Enrollment, now time.Time, set func(*entsql.UpdateBuilder)) error {
	if e.ClaimToken == "" {
		return ErrClaimLost
	}
	now = database.Timestamp(now)
	u := s.db.Builder().Update(database.TableEnrollments).
		SetNull("claim_token").
		SetNull("claim_expires_at").
		Set("updated_at", now).
		Add("version", 1).
		Where(entsql.And(
			entsql.EQ("id", e.ID),
			entsql.EQ("claim_token", e.ClaimToken),
			entsql.In("status", live...),
		))
	set(u)

	n, err := s.db.Exec(ctx, u)
	if err != nil {
		return fmt.Errorf("failed finalizing enrollment: %w", err)
	}
	if n == 0 {
		return ErrClaimLost
	}
	e.ClaimToken = ""
	e.ClaimExpiresAt = nil
	return nil
}

func truncate(s string) string {
	const limit = 1000
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
