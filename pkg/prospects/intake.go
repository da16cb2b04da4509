package prospects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jordanlanch/outreach/pkg/database"
	"github.com/jordanlanch/outreach/pkg/logger"
	"github.com/jordanlanch/outreach/pkg/providers"
)

// DefaultMaxPages bounds one sync per provider.
const DefaultMaxPages = 50

// IngestResult counts what happened to each incoming record.
type IngestResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

func (r *IngestResult) add(o IngestResult) {
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Skipped += o.Skipped
}

// Intake ingests provider records into the prospect store.
type Intake struct {
	db        *database.Client
	filters   *FilterStore
	providers *providers.Registry
	log       logger.Logger
	maxPages  int
	now       func() time.Time
}

// NewIntake creates the intake service.
func NewIntake(db *database.Client, filters *FilterStore, registry *providers.Registry, log logger.Logger) *Intake {
	return &Intake{
		db:        db,
		filters:   filters,
		providers: registry,
		log:       log,
		maxPages:  DefaultMaxPages,
		now:       time.Now,
	}
}

// SetMaxPages overrides how many pages one provider sync may fetch.
func (s *Intake) SetMaxPages(n int) {
	if n > 0 {
		s.maxPages = n
	}
}

// Ingest stores the records that pass filters. Each record is written in its
// own transaction, so a failing record leaves no partial state behind.
func (s *Intake) Ingest(ctx context.Context, tenantID string, filters providers.Filters, records []providers.Record) (IngestResult, error) {
	var res IngestResult
	for i := range records {
		rec := records[i]
		normalize(&rec)

		if rec.Provider == "" || rec.ExternalID == "" || !Match(filters, rec) {
			res.Skipped++
			continue
		}

		outcome, err := s.ingestOne(ctx, tenantID, rec)
		if err != nil {
			return res, fmt.Errorf("ingest %s/%s: %w", rec.Provider, rec.ExternalID, err)
		}
		switch outcome {
		case outcomeInserted:
			res.Inserted++
		case outcomeUpdated:
			res.Updated++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeInserted
	outcomeUpdated
)

func (s *Intake) ingestOne(ctx context.Context, tenantID string, rec providers.Record) (outcome, error) {
	result := outcomeUnchanged
	now := s.now()

	err := s.db.Tx(ctx, func(tx *database.Executor) error {
		existing, err := findByKey(ctx, tx, tenantID, rec.Provider, rec.ExternalID)
		if errors.Is(err, ErrNotFound) {
			p := fromRecord(tenantID, rec)
			ok, err := insert(ctx, tx, p, now)
			if err != nil {
				return err
			}
			if ok {
				result = outcomeInserted
				return nil
			}
			// Lost an insert race with a concurrent sync; merge into the winner.
			if existing, err = findByKey(ctx, tx, tenantID, rec.Provider, rec.ExternalID); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		changes := merge(existing, rec)
		if len(changes) == 0 {
			return nil
		}
		if err := update(ctx, tx, existing.ID, changes, now); err != nil {
			return err
		}
		result = outcomeUpdated
		return nil
	})
	return result, err
}

func fromRecord(tenantID string, r providers.Record) *Prospect {
	return &Prospect{
		TenantID:        tenantID,
		Provider:        r.Provider,
		ExternalID:      r.ExternalID,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Email:           r.Email,
		Phone:           r.Phone,
		Company:         r.Company,
		Title:           r.Title,
		Industry:        r.Industry,
		City:            r.City,
		State:           r.State,
		Country:         r.Country,
		EmployeeCount:   r.EmployeeCount,
		LinkedInURL:     r.LinkedInURL,
		Website:         r.Website,
		SourceUpdatedAt: r.UpdatedAt,
	}
}

// merge returns the column updates that bring incoming into stored. A field
// takes the incoming value only when the incoming value is known and either
// the stored one is not, or the incoming record is strictly newer.
func merge(stored *Prospect, in providers.Record) map[string]any {
	newer := in.UpdatedAt != nil &&
		(stored.SourceUpdatedAt == nil || in.UpdatedAt.After(*stored.SourceUpdatedAt))

	changes := map[string]any{}
	text := func(col, cur, next string) {
		if next == "" || next == cur {
			return
		}
		if cur == "" || newer {
			changes[col] = next
		}
	}
	text("first_name", stored.FirstName, in.FirstName)
	text("last_name", stored.LastName, in.LastName)
	text("email", stored.Email, in.Email)
	text("phone", stored.Phone, in.Phone)
	text("company", stored.Company, in.Company)
	text("title", stored.Title, in.Title)
	text("industry", stored.Industry, in.Industry)
	text("city", stored.City, in.City)
	text("state", stored.State, in.State)
	text("country", stored.Country, in.Country)
	text("linkedin_url", stored.LinkedInURL, in.LinkedInURL)
	text("website", stored.Website, in.Website)

	if in.EmployeeCount != nil {
		if stored.EmployeeCount == nil || (newer && *stored.EmployeeCount != *in.EmployeeCount) {
			changes["employee_count"] = *in.EmployeeCount
		}
	}
	if newer {
		changes["source_updated_at"] = database.Timestamp(*in.UpdatedAt)
	}
	return changes
}

// Sync pulls every configured provider with the tenant's stored filters and
// ingests the results. Provider errors stop the sync and are returned together
// with the counts accumulated so far.
func (s *Intake) Sync(ctx context.Context, tenantID string) (IngestResult, error) {
	var total IngestResult

	filters, err := s.filters.Get(ctx, tenantID)
	if err != nil {
		return total, err
	}

	names := filters.Providers
	if len(names) == 0 {
		names = s.providers.Names()
	}

	for _, name := range names {
		p, err := s.providers.Get(name)
		if err != nil {
			return total, err
		}
		res, err := s.syncProvider(ctx, tenantID, p, filters)
		total.add(res)
		if err != nil {
			s.log.Error("prospect sync aborted", "tenant_id", tenantID, "provider", name, "error", err)
			return total, fmt.Errorf("sync %s: %w", name, err)
		}
		s.log.Info("prospect sync completed", "tenant_id", tenantID, "provider", name,
			"inserted", res.Inserted, "updated", res.Updated, "skipped", res.Skipped)
	}
	return total, nil
}

func (s *Intake) syncProvider(ctx context.Context, tenantID string, p providers.Provider, filters providers.Filters) (IngestResult, error) {
	var total IngestResult
	page := 1
	for i := 0; i < s.maxPages && page > 0; i++ {
		res, err := p.Search(ctx, filters, page)
		if err != nil {
			return total, err
		}
		if len(res.Records) == 0 {
			break
		}
		for j := range res.Records {
			if res.Records[j].Provider == "" {
				res.Records[j].Provider = p.Name()
			}
		}
		counts, err := s.Ingest(ctx, tenantID, filters, res.Records)
		total.add(counts)
		if err != nil {
			return total, err
		}
		page = res.NextPage
	}
	return total, nil
}
