package templates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/jordanlanch/outreach/pkg/database"
	"github.com/jordanlanch/outreach/pkg/domain"
)

var (
	// ErrNotFound is returned when no template matches.
	ErrNotFound = errors.New("template not found")
	// ErrInUse is returned when deleting a template a live sequence step references.
	ErrInUse = errors.New("template is referenced by a live sequence")
)

// Template is one immutable-once-referenced version of a message template.
type Template struct {
	ID               string         `json:"id"`
	TenantID         string         `json:"tenant_id"`
	FamilyID         string         `json:"family_id"`
	Version          int            `json:"version"`
	Name             string         `json:"name"`
	Channel          domain.Channel `json:"channel"`
	Subject          string         `json:"subject,omitempty"`
	Body             string         `json:"body"`
	ComplianceFooter string         `json:"compliance_footer"`
	Active           bool           `json:"active"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

var columns = []string{
	"id", "tenant_id", "family_id", "version", "name", "channel", "subject",
	"body", "compliance_footer", "active", "created_at", "updated_at",
}

// Store persists templates.
type Store struct {
	db  *database.Client
	now func() time.Time
}

// NewStore creates a template store.
func NewStore(db *database.Client) *Store {
	return &Store{db: db, now: time.Now}
}

// Create validates and stores a new template family at version 1.
func (s *Store) Create(ctx context.Context, tenantID string, in Input) (*Template, []string, error) {
	warnings, err := Validate(in)
	if err != nil {
		return nil, warnings, err
	}

	now := database.Timestamp(s.now())
	t := &Template{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Version:   1,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.FamilyID = t.ID
	apply(t, in)

	if err := insert(ctx, s.db.Executor, t); err != nil {
		return nil, warnings, err
	}
	return t, warnings, nil
}

// Get returns a tenant's template by id.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*Template, error) {
	return getOne(ctx, s.db.Executor, entsql.And(
		entsql.EQ("tenant_id", tenantID),
		entsql.EQ("id", id),
	))
}

// GetByID returns a template regardless of tenant.
func (s *Store) GetByID(ctx context.Context, id string) (*Template, error) {
	return getOne(ctx, s.db.Executor, entsql.EQ("id", id))
}

// List returns every template version of a tenant, newest first.
func (s *Store) List(ctx context.Context, tenantID string) ([]*Template, error) {
	return list(ctx, s.db.Executor, entsql.EQ("tenant_id", tenantID))
}

// Update applies in to the template. A template referenced by a live
// sequence step is left untouched and a new version of its family is
// returned instead.
func (s *Store) Update(ctx context.Context, tenantID, id string, in Input) (*Template, []string, error) {
	warnings, err := Validate(in)
	if err != nil {
		return nil, warnings, err
	}

	var out *Template
	err = s.db.Tx(ctx, func(tx *database.Executor) error {
		cur, err := getOne(ctx, tx, entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("id", id)))
		if err != nil {
			return err
		}
		now := database.Timestamp(s.now())

		inUse, err := referenced(ctx, tx, id)
		if err != nil {
			return err
		}
		if !inUse {
			apply(cur, in)
			cur.UpdatedAt = now
			_, err := tx.Exec(ctx, tx.Builder().Update(database.TableTemplates).
				Set("name", cur.Name).
				Set("channel", string(cur.Channel)).
				Set("subject", database.NullString(cur.Subject)).
				Set("body", cur.Body).
				Set("compliance_footer", cur.ComplianceFooter).
				Set("active", cur.Active).
				Set("updated_at", now).
				Where(entsql.EQ("id", id)))
			if err != nil {
				return fmt.Errorf("failed updating template: %w", err)
			}
			out = cur
			return nil
		}

		latest, err := latestVersion(ctx, tx, cur.FamilyID)
		if err != nil {
			return err
		}
		next := &Template{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			FamilyID:  cur.FamilyID,
			Version:   latest + 1,
			Active:    cur.Active,
			CreatedAt: now,
			UpdatedAt: now,
		}
		apply(next, in)
		if err := insert(ctx, tx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, warnings, err
	}
	return out, warnings, nil
}

// Delete removes an unreferenced template.
func (s *Store) Delete(ctx context.Context, tenantID, id string) error {
	return s.db.Tx(ctx, func(tx *database.Executor) error {
		if _, err := getOne(ctx, tx, entsql.And(entsql.EQ("tenant_id", tenantID), entsql.EQ("id", id))); err != nil {
			return err
		}
		inUse, err := referenced(ctx, tx, id)
		if err != nil {
			return err
		}
		if inUse {
			return ErrInUse
		}
		_, err = tx.Exec(ctx, tx.Builder().Delete(database.TableTemplates).Where(entsql.EQ("id", id)))
		return err
	})
}

// InUse reports whether a live sequence step references the template.
func (s *Store) InUse(ctx context.Context, id string) (bool, error) {
	return referenced(ctx, s.db.Executor, id)
}

func apply(t *Template, in Input) {
	t.Name = in.Name
	t.Channel = in.Channel
	t.Subject = in.Subject
	t.Body = in.Body
	t.ComplianceFooter = in.ComplianceFooter
	if in.Channel == domain.ChannelSMS {
		t.Subject = ""
	}
	if in.Active != nil {
		t.Active = *in.Active
	}
}

func referenced(ctx context.Context, ex *database.Executor, templateID string) (bool, error) {
	b := ex.Builder()
	live := b.Select("id").
		From(entsql.Table(database.TableSequences)).
		Where(entsql.NEQ("status", "archived"))
	n, err := ex.Count(ctx, b.Select().Count("*").
		From(entsql.Table(database.TableSequenceSteps)).
		Where(entsql.And(
			entsql.EQ("template_id", templateID),
			entsql.In("sequence_id", live),
		)))
	if err != nil {
		return false, fmt.Errorf("failed checking template references: %w", err)
	}
	return n > 0, nil
}

func latestVersion(ctx context.Context, ex *database.Executor, familyID string) (int, error) {
	var v sql.NullInt64
	err := ex.QueryRow(ctx, ex.Builder().Select(entsql.Max("version")).
		From(entsql.Table(database.TableTemplates)).
		Where(entsql.EQ("family_id", familyID)), &v)
	if err != nil {
		return 0, fmt.Errorf("failed reading template versions: %w", err)
	}
	return int(v.Int64), nil
}

func insert(ctx context.Context, ex *database.Executor, t *Template) error {
	_, err := ex.Exec(ctx, ex.Builder().Insert(database.TableTemplates).
		Columns(columns...).
		Values(
			t.ID, t.TenantID, t.FamilyID, t.Version, t.Name, string(t.Channel),
			database.NullString(t.Subject), t.Body, t.ComplianceFooter, t.Active,
			t.CreatedAt, t.UpdatedAt,
		))
	if err != nil {
		return fmt.Errorf("failed inserting template: %w", err)
	}
	return nil
}

func getOne(ctx context.Context, ex *database.Executor, pred *entsql.Predicate) (*Template, error) {
	ts, err := list(ctx, ex, pred)
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, ErrNotFound
	}
	return ts[0], nil
}

func list(ctx context.Context, ex *database.Executor, pred *entsql.Predicate) ([]*Template, error) {
	q := ex.Builder().Select(columns...).
		From(entsql.Table(database.TableTemplates)).
		Where(pred).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("version"))

	var out []*Template
	err := ex.Query(ctx, q, func(row database.Scanner) error {
		var t Template
		var channel string
		var subject sql.NullString
		if err := row.Scan(&t.ID, &t.TenantID, &t.FamilyID, &t.Version, &t.Name, &channel,
			&subject, &t.Body, &t.ComplianceFooter, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return err
		}
		t.Channel = domain.Channel(channel)
		t.Subject = subject.String
		t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()
		out = append(out, &t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed querying templates: %w", err)
	}
	return out, nil
}
