// Package stats aggregates delivery and enrollment outcomes for reporting.
package stats

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/outreach/pkg/database"
	"github.com/jordanlanch/outreach/pkg/delivery"
	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/enrollment"
)

// Query selects the reporting range [From, To) for a tenant, optionally
// narrowed to one sequence.
type Query struct {
	TenantID   string
	SequenceID string
	From       time.Time
	To         time.Time
}

// Summary are the aggregate counts over a range. Active is a point-in-time
// count, not range bound.
type Summary struct {
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Bounced   int       `json:"bounced"`
	OptedOut  int       `json:"opted_out"`
	Completed int       `json:"completed"`
	Active    int       `json:"active"`
}

// Service computes stats.
type Service struct {
	db *database.Client
}

// NewService creates a stats service.
func NewService(db *database.Client) *Service {
	return &Service{db: db}
}

// Summary counts attempts by outcome and enrollments by terminal status over q.
func (s *Service) Summary(ctx context.Context, q Query) (*Summary, error) {
	out := &Summary{From: q.From.UTC(), To: q.To.UTC()}

	attempts, err := s.grouped(ctx, database.TableDeliveryAttempts, "outcome", "created_at", q)
	if err != nil {
		return nil, fmt.Errorf("failed counting delivery attempts: %w", err)
	}
	out.Sent = attempts[string(delivery.OutcomeSent)]
	out.Failed = attempts[string(delivery.OutcomeFailed)]
	out.Bounced = attempts[string(delivery.OutcomeBounced)]

	ended, err := s.grouped(ctx, database.TableEnrollments, "status", "completed_at", q)
	if err != nil {
		return nil, fmt.Errorf("failed counting enrollments: %w", err)
	}
	out.OptedOut = ended[string(enrollment.StatusOptedOut)]
	out.Completed = ended[string(enrollment.StatusCompleted)]

	active := entsql.And(entsql.EQ("tenant_id", q.TenantID), entsql.EQ("status", string(enrollment.StatusActive)))
	if q.SequenceID != "" {
		active = entsql.And(active, entsql.EQ("sequence_id", q.SequenceID))
	}
	out.Active, err = s.db.Count(ctx, s.db.Builder().Select().Count("*").
		From(entsql.Table(database.TableEnrollments)).
		Where(active))
	if err != nil {
		return nil, fmt.Errorf("failed counting active enrollments: %w", err)
	}
	return out, nil
}

// Attempts lists the delivery attempts in range, oldest first, up to limit.
func (s *Service) Attempts(ctx context.Context, q Query, limit int) ([]*delivery.Attempt, error) {
	sel := s.db.Builder().Select(
		"id", "enrollment_id", "sequence_id", "step_order", "channel",
		"recipient", "provider_message_id", "outcome", "error", "created_at",
	).
		From(entsql.Table(database.TableDeliveryAttempts)).
		Where(s.inRange("created_at", q)).
		OrderBy("created_at")
	if limit > 0 {
		sel.Limit(limit)
	}

	var out []*delivery.Attempt
	err := s.db.Query(ctx, sel, func(row database.Scanner) error {
		a := &delivery.Attempt{TenantID: q.TenantID}
		var channel, outcome string
		var msgID, errText *string
		if err := row.Scan(&a.ID, &a.EnrollmentID, &a.SequenceID, &a.StepOrder, &channel,
			&a.Recipient, &msgID, &outcome, &errText, &a.CreatedAt); err != nil {
			return err
		}
		a.Channel = domain.Channel(channel)
		a.Outcome = delivery.Outcome(outcome)
		if msgID != nil {
			a.ProviderMessageID = *msgID
		}
		if errText != nil {
			a.Error = *errText
		}
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed listing delivery attempts: %w", err)
	}
	return out, nil
}

func (s *Service) grouped(ctx context.Context, table, by, timeColumn string, q Query) (map[string]int, error) {
	sel := s.db.Builder().Select(by, entsql.Count("*")).
		From(entsql.Table(table)).
		Where(s.inRange(timeColumn, q)).
		GroupBy(by)

	counts := map[string]int{}
	err := s.db.Query(ctx, sel, func(row database.Scanner) error {
		var key string
		var n int
		if err := row.Scan(&key, &n); err != nil {
			return err
		}
		counts[key] = n
		return nil
	})
	return counts, err
}

func (s *Service) inRange(column string, q Query) *entsql.Predicate {
	p := entsql.And(
		entsql.EQ("tenant_id", q.TenantID),
		entsql.GTE(column, database.Timestamp(q.From)),
		entsql.LT(column, database.Timestamp(q.To)),
	)
	if q.SequenceID != "" {
		p = entsql.And(p, entsql.EQ("sequence_id", q.SequenceID))
	}
	return p
}
