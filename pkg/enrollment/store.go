package enrollment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/jordanlanch/outreach/pkg/database"
)

var columns = []string{
	"id", "tenant_id", "prospect_id", "sequence_id", "status",
	"current_step_index", "last_step_order", "next_due_at", "attempts", "last_error",
	"paused_at", "completed_at", "claim_token", "claim_expires_at", "version",
	"created_at", "updated_at",
}

var insertColumns = append(append([]string{}, columns...), "live_key")

var live = []any{string(StatusActive), string(StatusPaused)}

// liveKey backs the one-live-enrollment rule with a unique index. Terminal
// transitions clear it so the prospect can be enrolled again.
func liveKey(prospectID, sequenceID string) string {
	return prospectID + "|" + sequenceID
}

// Store persists enrollments and performs their state transitions.
type Store struct {
	db *database.Client
}

// NewStore creates an enrollment store.
func NewStore(db *database.Client) *Store {
	return &Store{db: db}
}

// Enroll starts prospectID on sequenceID, due immediately.
func (s *Store) Enroll(ctx context.Context, tenantID, prospectID, sequenceID string, now time.Time) (*Enrollment, error) {
	now = database.Timestamp(now)
	e := &Enrollment{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		ProspectID: prospectID,
		SequenceID: sequenceID,
		Status:     StatusActive,
		NextDueAt:  now,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	n, err := s.db.Exec(ctx, s.db.Builder().Insert(database.TableEnrollments).
		Columns(insertColumns...).
		Values(
			e.ID, e.TenantID, e.ProspectID, e.SequenceID, string(e.Status),
			0, 0, e.NextDueAt, 0, nil,
			nil, nil, nil, nil, e.Version,
			e.CreatedAt, e.UpdatedAt,
			liveKey(prospectID, sequenceID),
		).
		OnConflict(entsql.ConflictColumns("live_key"), entsql.DoNothing()))
	if err != nil {
		return nil, fmt.Errorf("failed enrolling prospect: %w", err)
	}
	if n == 0 {
		return nil, ErrAlreadyEnrolled
	}
	return e, nil
}

// Get returns a tenant's enrollment.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*Enrollment, error) {
	return s.getOne(ctx, entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("id", id)))
}

// GetByID returns an enrollment regardless of tenant.
func (s *Store) GetByID(ctx context.Context, id string) (*Enrollment, error) {
	return s.getOne(ctx, entsql.EQ("id", id))
}

// ListByProspect returns every enrollment of a prospect.
func (s *Store) ListByProspect(ctx context.Context, prospectID string) ([]*Enrollment, error) {
	return s.list(ctx, entsql.EQ("prospect_id", prospectID), 0)
}

// ListBySequence returns a tenant's enrollments in a sequence.
func (s *Store) ListBySequence(ctx context.Context, tenantID, sequenceID string) ([]*Enrollment, error) {
	return s.list(ctx, entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("sequence_id", sequenceID)), 0)
}

// ListDue returns up to limit active enrollments due at now and not held by
// a live claim, oldest due first.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]*Enrollment, error) {
	now = database.Timestamp(now)
	return s.list(ctx, entsql.And(
		entsql.EQ("status", string(StatusActive)),
		entsql.LTE("next_due_at", now),
		entsql.Or(entsql.IsNull("claim_expires_at"), entsql.LTE("claim_expires_at", now)),
	), limit)
}

// Pause stops future claims of an active enrollment.
func (s *Store) Pause(ctx context.Context, tenantID, id string, now time.Time) (*Enrollment, error) {
	now = database.Timestamp(now)
	return s.transition(ctx, tenantID, id, StatusActive, func(u *entsql.UpdateBuilder) {
		u.Set("status", string(StatusPaused)).Set("paused_at", now)
	}, now)
}

// Resume reactivates a paused enrollment, shifting nextDueAt by the time spent paused.
func (s *Store) Resume(ctx context.Context, tenantID, id string, now time.Time) (*Enrollment, error) {
	now = database.Timestamp(now)
	e, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return nil, ErrTerminal
	}
	if e.Status != StatusPaused {
		return nil, ErrInvalidTransition
	}

	remaining := time.Duration(0)
	if e.PausedAt != nil {
		if d := e.NextDueAt.Sub(*e.PausedAt); d > 0 {
			remaining = d
		}
	}
	next := database.Timestamp(now.Add(remaining))

	n, err := s.db.Exec(ctx, s.db.Builder().Update(database.TableEnrollments).
		Set("status", string(StatusActive)).
		Set("next_due_at", next).
		SetNull("paused_at").
		Set("updated_at", now).
		Add("version", 1).
		Where(entsql.And(
			entsql.EQ("id", e.ID),
			entsql.EQ("version", e.Version),
			entsql.EQ("status", string(StatusPaused)),
		)))
	if err != nil {
		return nil, fmt.Errorf("failed resuming enrollment: %w", err)
	}
	if n == 0 {
		return nil, ErrClaimLost
	}
	return s.Get(ctx, tenantID, id)
}

// OptOut moves an active or paused enrollment to opted_out.
func (s *Store) OptOut(ctx context.Context, tenantID, id string, now time.Time) (*Enrollment, error) {
	now = database.Timestamp(now)
	return s.transition(ctx, tenantID, id, "", func(u *entsql.UpdateBuilder) {
		u.Set("status", string(StatusOptedOut)).Set("completed_at", now).SetNull("live_key")
	}, now)
}

// OptOutProspects cascades an opt-out to every live enrollment of the given
// prospects, across all sequences. It returns how many enrollments changed.
func (s *Store) OptOutProspects(ctx context.Context, prospectIDs []string, now time.Time) (int, error) {
	if len(prospectIDs) == 0 {
		return 0, nil
	}
	ids := make([]any, len(prospectIDs))
	for i, id := range prospectIDs {
		ids[i] = id
	}
	now = database.Timestamp(now)
	n, err := s.db.Exec(ctx, s.db.Builder().Update(database.TableEnrollments).
		Set("status", string(StatusOptedOut)).
		Set("completed_at", now).
		SetNull("live_key").
		Set("updated_at", now).
		Add("version", 1).
		Where(entsql.And(
			entsql.In("prospect_id", ids...),
			entsql.In("status", live...),
		)))
	if err != nil {
		return 0, fmt.Errorf("failed opting out enrollments: %w", err)
	}
	return int(n), nil
}

// PauseSequence pauses every active enrollment of a sequence.
func (s *Store) PauseSequence(ctx context.Context, sequenceID string, now time.Time) (int, error) {
	now = database.Timestamp(now)
	n, err := s.db.Exec(ctx, s.db.Builder().Update(database.TableEnrollments).
		Set("status", string(StatusPaused)).
		Set("paused_at", now).
		Set("updated_at", now).
		Add("version", 1).
		Where(entsql.And(
			entsql.EQ("sequence_id", sequenceID),
			entsql.EQ("status", string(StatusActive)),
		)))
	if err != nil {
		return 0, fmt.Errorf("failed pausing sequence enrollments: %w", err)
	}
	return int(n), nil
}

// transition applies set to the enrollment when it is in status from (any
// live status when from is empty), then returns the updated row.
func (s *Store) transition(ctx context.Context, tenantID, id string, from Status, set func(*entsql.UpdateBuilder), now time.Time) (*Enrollment, error) {
	cond := entsql.In("status", live...)
	if from != "" {
		cond = entsql.EQ("status", string(from))
	}
	u := s.db.Builder().Update(database.TableEnrollments).
		Set("updated_at", now).
		Add("version", 1).
		Where(entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("id", id), cond))
	set(u)

	n, err := s.db.Exec(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("failed updating enrollment: %w", err)
	}

	e, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if e.Status.Terminal() {
			return nil, ErrTerminal
		}
		return nil, ErrInvalidTransition
	}
	return e, nil
}

func (s *Store) getOne(ctx context.Context, pred *entsql.Predicate) (*Enrollment, error) {
	es, err := s.list(ctx, pred, 1)
	if err != nil {
		return nil, err
	}
	if len(es) == 0 {
		return nil, ErrNotFound
	}
	return es[0], nil
}

func (s *Store) list(ctx context.Context, pred *entsql.Predicate, limit int) ([]*Enrollment, error) {
	q := s.db.Builder().Select(columns...).
		From(entsql.Table(database.TableEnrollments)).
		Where(pred).
		OrderBy(entsql.Asc("next_due_at"), entsql.Asc("id"))
	if limit > 0 {
		q.Limit(limit)
	}

	var out []*Enrollment
	err := s.db.Query(ctx, q, func(row database.Scanner) error {
		e, err := scan(row)
		if err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed querying enrollments: %w", err)
	}
	return out, nil
}

func scan(row database.Scanner) (*Enrollment, error) {
	var e Enrollment
	var status string
	var lastError, claimToken sql.NullString
	var pausedAt, completedAt, claimExpires sql.NullTime
	err := row.Scan(
		&e.ID, &e.TenantID, &e.ProspectID, &e.SequenceID, &status,
		&e.CurrentStepIndex, &e.LastStepOrder, &e.NextDueAt, &e.Attempts, &lastError,
		&pausedAt, &completedAt, &claimToken, &claimExpires, &e.Version,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = Status(status)
	e.LastError = lastError.String
	e.ClaimToken = claimToken.String
	e.PausedAt = database.TimePtr(pausedAt)
	e.CompletedAt = database.TimePtr(completedAt)
	e.ClaimExpiresAt = database.TimePtr(claimExpires)
	e.NextDueAt = e.NextDueAt.UTC()
	e.CreatedAt, e.UpdatedAt = e.CreatedAt.UTC(), e.UpdatedAt.UTC()
	return &e, nil
}
