package prospects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/jordanlanch/outreach/pkg/database"
)

// ErrNotFound is returned when no prospect matches.
var ErrNotFound = errors.New("prospect not found")

var columns = []string{
	"id", "tenant_id", "provider", "external_id",
	"first_name", "last_name", "email", "phone", "company", "title", "industry",
	"city", "state", "country", "employee_count", "linkedin_url", "website",
	"source_updated_at", "created_at", "updated_at",
}

// Store persists prospects.
type Store struct {
	db *database.Client
}

// NewStore creates a prospect store.
func NewStore(db *database.Client) *Store {
	return &Store{db: db}
}

// Get returns a tenant's prospect by id.
func (s *Store) Get(ctx context.Context, tenantID, id string) (*Prospect, error) {
	return getOne(ctx, s.db.Executor, entsql.And(
		entsql.EQ("tenant_id", tenantID),
		entsql.EQ("id", id),
	))
}

// GetByID returns a prospect regardless of tenant. Used by the runner,
// which already holds a tenant-scoped enrollment.
func (s *Store) GetByID(ctx context.Context, id string) (*Prospect, error) {
	return getOne(ctx, s.db.Executor, entsql.EQ("id", id))
}

// FindByKey looks a prospect up by its dedup key.
func (s *Store) FindByKey(ctx context.Context, tenantID, provider, externalID string) (*Prospect, error) {
	return findByKey(ctx, s.db.Executor, tenantID, provider, externalID)
}

// ListByIdentity returns every prospect reachable at identity (email or E.164 phone).
// An empty tenantID searches all tenants.
func (s *Store) ListByIdentity(ctx context.Context, tenantID, identity string) ([]*Prospect, error) {
	pred := entsql.Or(entsql.EQ("email", identity), entsql.EQ("phone", identity))
	if tenantID != "" {
		pred = entsql.And(entsql.EQ("tenant_id", tenantID), pred)
	}
	return list(ctx, s.db.Executor, pred, 0, 0)
}

// IDsByIdentity returns the ids of ListByIdentity.
func (s *Store) IDsByIdentity(ctx context.Context, tenantID, identity string) ([]string, error) {
	ps, err := s.ListByIdentity(ctx, tenantID, identity)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids, nil
}

// List pages through a tenant's prospects, newest first.
func (s *Store) List(ctx context.Context, tenantID string, limit, offset int) ([]*Prospect, error) {
	return list(ctx, s.db.Executor, entsql.EQ("tenant_id", tenantID), limit, offset)
}

// Count returns how many prospects a tenant has.
func (s *Store) Count(ctx context.Context, tenantID string) (int, error) {
	b := s.db.Builder()
	return s.db.Count(ctx, b.Select().Count("*").
		From(entsql.Table(database.TableProspects)).
		Where(entsql.EQ("tenant_id", tenantID)))
}

func findByKey(ctx context.Context, ex *database.Executor, tenantID, provider, externalID string) (*Prospect, error) {
	return getOne(ctx, ex, entsql.And(
		entsql.EQ("tenant_id", tenantID),
		entsql.EQ("provider", provider),
		entsql.EQ("external_id", externalID),
	))
}

func getOne(ctx context.Context, ex *database.Executor, pred *entsql.Predicate) (*Prospect, error) {
	ps, err := list(ctx, ex, pred, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, ErrNotFound
	}
	return ps[0], nil
}

func list(ctx context.Context, ex *database.Executor, pred *entsql.Predicate, limit, offset int) ([]*Prospect, error) {
	q := ex.Builder().Select(columns...).
		From(entsql.Table(database.TableProspects)).
		Where(pred).
		OrderBy(entsql.Desc("created_at"), entsql.Asc("id"))
	if limit > 0 {
		q.Limit(limit)
	}
	if offset > 0 {
		q.Offset(offset)
	}

	var out []*Prospect
	err := ex.Query(ctx, q, func(row database.Scanner) error {
		p, err := scan(row)
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed querying prospects: %w", err)
	}
	return out, nil
}

func scan(row database.Scanner) (*Prospect, error) {
	var p Prospect
	var first, last, email, phone, company, title, industry sql.NullString
	var city, state, country, linkedin, website sql.NullString
	var employees sql.NullInt64
	var sourceUpdated sql.NullTime
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Provider, &p.ExternalID,
		&first, &last, &email, &phone, &company, &title, &industry,
		&city, &state, &country, &employees, &linkedin, &website,
		&sourceUpdated, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.FirstName, p.LastName, p.Email, p.Phone = first.String, last.String, email.String, phone.String
	p.Company, p.Title, p.Industry = company.String, title.String, industry.String
	p.City, p.State, p.Country = city.String, state.String, country.String
	p.LinkedInURL, p.Website = linkedin.String, website.String
	if employees.Valid {
		n := int(employees.Int64)
		p.EmployeeCount = &n
	}
	p.SourceUpdatedAt = database.TimePtr(sourceUpdated)
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return &p, nil
}

// insert stores p unless its dedup key already exists. It reports whether a row was written.
func insert(ctx context.Context, ex *database.Executor, p *Prospect, now time.Time) (bool, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt, p.UpdatedAt = database.Timestamp(now), database.Timestamp(now)

	var employees any
	if p.EmployeeCount != nil {
		employees = *p.EmployeeCount
	}
	q := ex.Builder().Insert(database.TableProspects).
		Columns(columns...).
		Values(
			p.ID, p.TenantID, p.Provider, p.ExternalID,
			database.NullString(p.FirstName), database.NullString(p.LastName),
			database.NullString(p.Email), database.NullString(p.Phone),
			database.NullString(p.Company), database.NullString(p.Title),
			database.NullString(p.Industry), database.NullString(p.City),
			database.NullString(p.State), database.NullString(p.Country),
			employees, database.NullString(p.LinkedInURL), database.NullString(p.Website),
			database.NullTime(p.SourceUpdatedAt), p.CreatedAt, p.UpdatedAt,
		).
		OnConflict(
			entsql.ConflictColumns("tenant_id", "provider", "external_id"),
			entsql.DoNothing(),
		)
	n, err := ex.Exec(ctx, q)
	if err != nil {
		return false, fmt.Errorf("failed inserting prospect: %w", err)
	}
	return n == 1, nil
}

// update writes the changed fields of a merge.
func update(ctx context.Context, ex *database.Executor, id string, changes map[string]any, now time.Time) error {
	u := ex.Builder().Update(database.TableProspects).
		Set("updated_at", database.Timestamp(now)).
		Where(entsql.EQ("id", id))
	for col, v := range changes {
		u.Set(col, v)
	}
	if _, err := ex.Exec(ctx, u); err != nil {
		return fmt.Errorf("failed updating prospect: %w", err)
	}
	return nil
}
