package delivery

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/jordanlanch/outreach/pkg/database"
	"github.com/jordanlanch/outreach/pkg/domain"
)

// Outcome is the result of one delivery attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeBounced Outcome = "bounced"
)

// Attempt is the audit record of one send of one step to one recipient.
type Attempt struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	EnrollmentID      string         `json:"enrollment_id"`
	SequenceID        string         `json:"sequence_id"`
	StepOrder         int            `json:"step_order"`
	Channel           domain.Channel `json:"channel"`
	Recipient         string         `json:"recipient"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	Outcome           Outcome        `json:"outcome"`
	Error             string         `json:"error,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

var attemptColumns = []string{
	"id", "tenant_id", "enrollment_id", "sequence_id", "step_order", "channel",
	"recipient", "provider_message_id", "outcome", "error", "created_at",
}

// AttemptLog persists delivery attempts.
type AttemptLog struct {
	db  *database.Client
	now func() time.Time
}

// NewAttemptLog creates an attempt log.
func NewAttemptLog(db *database.Client) *AttemptLog {
	return &AttemptLog{db: db, now: time.Now}
}

// Record stores a. ID and CreatedAt are filled in when empty.
func (l *AttemptLog) Record(ctx context.Context, a *Attempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = l.now()
	}
	a.CreatedAt = database.Timestamp(a.CreatedAt)

	_, err := l.db.Exec(ctx, l.db.Builder().Insert(database.TableDeliveryAttempts).
		Columns(attemptColumns...).
		Values(a.ID, a.TenantID, a.EnrollmentID, a.SequenceID, a.StepOrder, string(a.Channel),
			a.Recipient, database.NullString(a.ProviderMessageID), string(a.Outcome),
			database.NullString(a.Error), a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed recording delivery attempt: %w", err)
	}
	return nil
}

// HasSent reports whether the step was already delivered for the enrollment.
func (l *AttemptLog) HasSent(ctx context.Context, enrollmentID string, stepOrder int) (bool, error) {
	n, err := l.db.Count(ctx, l.db.Builder().Select().Count("*").
		From(entsql.Table(database.TableDeliveryAttempts)).
		Where(entsql.And(
			entsql.EQ("enrollment_id", enrollmentID),
			entsql.EQ("step_order", stepOrder),
			entsql.EQ("outcome", string(OutcomeSent)),
		)))
	if err != nil {
		return false, fmt.Errorf("failed checking delivery attempts: %w", err)
	}
	return n > 0, nil
}

// ListByEnrollment returns the attempts of one enrollment, oldest first.
func (l *AttemptLog) ListByEnrollment(ctx context.Context, enrollmentID string) ([]*Attempt, error) {
	q := l.db.Builder().Select(attemptColumns...).
		From(entsql.Table(database.TableDeliveryAttempts)).
		Where(entsql.EQ("enrollment_id", enrollmentID)).
		OrderBy("created_at", "step_order")

	var out []*Attempt
	err := l.db.Query(ctx, q, func(row database.Scanner) error {
		var a Attempt
		var channel, outcome string
		var msgID, errText sql.NullString
		if err := row.Scan(&a.ID, &a.TenantID, &a.EnrollmentID, &a.SequenceID, &a.StepOrder, &channel,
			&a.Recipient, &msgID, &outcome, &errText, &a.CreatedAt); err != nil {
			return err
		}
		a.Channel, a.Outcome = domain.Channel(channel), Outcome(outcome)
		a.ProviderMessageID, a.Error = msgID.String, errText.String
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, &a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed listing delivery attempts: %w", err)
	}
	return out, nil
}
