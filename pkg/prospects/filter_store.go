package prospects

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/outreach/pkg/database"
	"github.com/jordanlanch/outreach/pkg/providers"
)

// FilterStore keeps each tenant's intake filters as a JSON document.
type FilterStore struct {
	db *database.Client
}

// NewFilterStore creates a filter store.
func NewFilterStore(db *database.Client) *FilterStore {
	return &FilterStore{db: db}
}

// Get returns the tenant's filters, or empty filters when none are stored.
func (s *FilterStore) Get(ctx context.Context, tenantID string) (providers.Filters, error) {
	var raw string
	err := s.db.QueryRow(ctx, s.db.Builder().Select("filters").
		From(entsql.Table(database.TableTenantFilters)).
		Where(entsql.EQ("tenant_id", tenantID)), &raw)
	if database.IsNoRows(err) {
		return providers.Filters{}, nil
	}
	if err != nil {
		return providers.Filters{}, fmt.Errorf("failed loading filters: %w", err)
	}

	var f providers.Filters
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return providers.Filters{}, fmt.Errorf("failed decoding filters: %w", err)
	}
	return f, nil
}

// Put replaces the tenant's filters.
func (s *FilterStore) Put(ctx context.Context, tenantID string, f providers.Filters) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed encoding filters: %w", err)
	}
	now := database.Timestamp(time.Now())
	q := s.db.Builder().Insert(database.TableTenantFilters).
		Columns("tenant_id", "filters", "updated_at").
		Values(tenantID, string(raw), now).
		OnConflict(
			entsql.ConflictColumns("tenant_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("filters")
				u.SetExcluded("updated_at")
			}),
		)
	if _, err := s.db.Exec(ctx, q); err != nil {
		return fmt.Errorf("failed saving filters: %w", err)
	}
	return nil
}
