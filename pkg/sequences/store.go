package sequences

import (
	"context"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/jordanlanch/outreach/pkg/database"
	"github.com/jordanlanch/outreach/pkg/domain"
)

// ErrNotFound is returned when no sequence matches.
var ErrNotFound = errors.New("sequence not found")

var sequenceColumns = []string{
	"id", "tenant_id", "name", "status", "throttle_per_day", "timezone",
	"send_window_start", "send_window_end", "created_at", "updated_at",
}

var stepColumns = []string{
	"id", "sequence_id", "step_order", "channel", "wait_minutes", "template_id", "created_at",
}

// Store persists sequences and their steps.
type Store struct {
	db        *database.Client
	templates TemplateLookup
	now       func() time.Time
}

// NewStore creates a sequence store validating steps against templates.
func NewStore(db *database.Client, templates TemplateLookup) *Store {
	return &Store{db: db, templates: templates, now: time.Now}
}

// Create validates in and stores the sequence with all its steps, or nothing.
func (s *Store) Create(ctx context.Context, tenantID string, in Input) (*Sequence, error) {
	if err := Validate(ctx, tenantID, in, nil, s.templates); err != nil {
		return nil, err
	}

	now := database.Timestamp(s.now())
	start, end := in.window()
	seq := &Sequence{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		Name:            in.Name,
		Status:          StatusActive,
		ThrottlePerDay:  in.ThrottlePerDay,
		Timezone:        in.Timezone,
		SendWindowStart: start,
		SendWindowEnd:   end,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.db.Tx(ctx, func(tx *database.Executor) error {
		_, err := tx.Exec(ctx, tx.Builder().Insert(database.TableSequences).
			Columns(sequenceColumns...).
			Values(seq.ID, seq.TenantID, seq.Name, seq.Status, seq.ThrottlePerDay, seq.Timezone,
				seq.SendWindowStart, seq.SendWindowEnd, seq.CreatedAt, seq.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed inserting sequence: %w", err)
		}
		steps, err := insertSteps(ctx, tx, seq.ID, in.Steps, now)
		if err != nil {
			return err
		}
		seq.Steps = steps
		return nil
	})
	if err != nil {
		return nil, err
	}
	seq.SortSteps()
	return seq, nil
}

// AddStep validates st against the stored steps and appends it.
func (s *Store) AddStep(ctx context.Context, tenantID, sequenceID string, st StepInput) (*Sequence, error) {
	seq, err := s.Get(ctx, tenantID, sequenceID)
	if err != nil {
		return nil, err
	}
	if seq.Archived() {
		return nil, domain.NewConflictError("sequence is archived")
	}
	if err := ValidateSteps(ctx, tenantID, []StepInput{st}, seq.Steps, s.templates); err != nil {
		return nil, err
	}

	now := database.Timestamp(s.now())
	err = s.db.Tx(ctx, func(tx *database.Executor) error {
		if _, err := insertSteps(ctx, tx, seq.ID, []StepInput{st}, now); err != nil {
			return err
		}
		return touch(ctx, tx, seq.ID, now)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, tenantID, sequenceID)
}

// Update changes the sequence-level settings.
func (s *Store) Update(ctx context.Context, tenantID, id string, in Settings) (*Sequence, error) {
	if err := ValidateSettings(in); err != nil {
		return nil, err
	}
	seq, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	start, end := in.window()
	now := database.Timestamp(s.now())
	_, err = s.db.Exec(ctx, s.db.Builder().Update(database.TableSequences).
		Set("name", in.Name).
		Set("throttle_per_day", in.ThrottlePerDay).
		Set("timezone", in.Timezone).
		Set("send_window_start", start).
		Set("send_window_end", end).
		Set("updated_at", now).
		Where(entsql.EQ("id", seq.ID)))
	if err != nil {
		return nil, fmt.Errorf("failed updating sequence: %w", err)
	}
	return s.Get(ctx, tenantID, id)
}

// Archive stops the sequence from dispatching. Its steps stay for audit.
func (s *Store) Archive(ctx context.Context, tenantID, id string) error {
	n, err := s.db.Exec(ctx, s.db.Builder().Update(database.TableSequences).
		Set("status", StatusArchived).
		Set("updated_at", database.Timestamp(s.now())).
		Where(entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("id", id))))
	if err != nil {
		return fmt.Errorf("failed archiving sequence: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns a tenant's sequence with its steps in stepOrder.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*Sequence, error) {
	return s.getOne(ctx, entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("id", id)))
}

// GetByID returns a sequence regardless of tenant.
func (s *Store) GetByID(ctx context.Context, id string) (*Sequence, error) {
	return s.getOne(ctx, entsql.EQ("id", id))
}

// List returns a tenant's sequences, newest first, with steps.
func (s *Store) List(ctx context.Context, tenantID string) ([]*Sequence, error) {
	seqs, err := s.query(ctx, entsql.EQ("tenant_id", tenantID))
	if err != nil {
		return nil, err
	}
	for _, seq := range seqs {
		if seq.Steps, err = s.steps(ctx, seq.ID); err != nil {
			return nil, err
		}
	}
	return seqs, nil
}

func (s *Store) getOne(ctx context.Context, pred *entsql.Predicate) (*Sequence, error) {
	seqs, err := s.query(ctx, pred)
	if err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		return nil, ErrNotFound
	}
	seq := seqs[0]
	if seq.Steps, err = s.steps(ctx, seq.ID); err != nil {
		return nil, err
	}
	return seq, nil
}

func (s *Store) query(ctx context.Context, pred *entsql.Predicate) ([]*Sequence, error) {
	q := s.db.Builder().Select(sequenceColumns...).
		From(entsql.Table(database.TableSequences)).
		Where(pred).
		OrderBy(entsql.Desc("created_at"))

	var out []*Sequence
	err := s.db.Query(ctx, q, func(row database.Scanner) error {
		var seq Sequence
		if err := row.Scan(&seq.ID, &seq.TenantID, &seq.Name, &seq.Status, &seq.ThrottlePerDay,
			&seq.Timezone, &seq.SendWindowStart, &seq.SendWindowEnd, &seq.CreatedAt, &seq.UpdatedAt); err != nil {
			return err
		}
		seq.CreatedAt, seq.UpdatedAt = seq.CreatedAt.UTC(), seq.UpdatedAt.UTC()
		out = append(out, &seq)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed querying sequences: %w", err)
	}
	return out, nil
}

func (s *Store) steps(ctx context.Context, sequenceID string) ([]Step, error) {
	q := s.db.Builder().Select(stepColumns[:6]...).
		From(entsql.Table(database.TableSequenceSteps)).
		Where(entsql.EQ("sequence_id", sequenceID)).
		OrderBy(entsql.Asc("step_order"))

	var out []Step
	err := s.db.Query(ctx, q, func(row database.Scanner) error {
		var st Step
		var channel string
		if err := row.Scan(&st.ID, &st.SequenceID, &st.StepOrder, &channel, &st.WaitMinutes, &st.TemplateID); err != nil {
			return err
		}
		st.Channel = domain.Channel(channel)
		out = append(out, st)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed querying steps: %w", err)
	}
	return out, nil
}

func insertSteps(ctx context.Context, tx *database.Executor, sequenceID string, in []StepInput, now time.Time) ([]Step, error) {
	out := make([]Step, 0, len(in))
	for _, st := range in {
		step := Step{
			ID:          uuid.NewString(),
			SequenceID:  sequenceID,
			StepOrder:   st.StepOrder,
			Channel:     st.Channel,
			WaitMinutes: st.WaitMinutes,
			TemplateID:  st.TemplateID,
		}
		_, err := tx.Exec(ctx, tx.Builder().Insert(database.TableSequenceSteps).
			Columns(stepColumns...).
			Values(step.ID, step.SequenceID, step.StepOrder, string(step.Channel), step.WaitMinutes, step.TemplateID, now))
		if err != nil {
			// The unique (sequence_id, step_order) index backs validation under concurrent AddStep calls.
			return nil, fmt.Errorf("failed inserting step %d: %w", st.StepOrder, err)
		}
		out = append(out, step)
	}
	return out, nil
}

func touch(ctx context.Context, tx *database.Executor, id string, now time.Time) error {
	_, err := tx.Exec(ctx, tx.Builder().Update(database.TableSequences).
		Set("updated_at", now).
		Where(entsql.EQ("id", id)))
	return err
}
