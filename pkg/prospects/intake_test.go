package prospects

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/outreach/pkg/database/dbtest"
	"github.com/jordanlanch/outreach/pkg/logger"
	"github.com/jordanlanch/outreach/pkg/providers"
)

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func newIntake(t *testing.T, ps ...providers.Provider) (*Intake, *Store) {
	db := dbtest.Open(t)
	in := NewIntake(db, NewFilterStore(db), providers.NewRegistry(ps...), logger.Nop())
	return in, NewStore(db)
}

func TestIngestDedupUpdatesOnlyNullFields(t *testing.T) {
	ctx := context.Background()
	intake, store := newIntake(t)
	seen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	first := providers.Record{
		Provider:   "apollo",
		ExternalID: "p-123",
		FirstName:  "Ana",
		Email:      "Ana@Acme.test ",
		Company:    "Acme",
		UpdatedAt:  timePtr(seen),
	}
	res, err := intake.Ingest(ctx, "t1", providers.Filters{}, []providers.Record{first})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Inserted: 1}, res)

	second := first
	second.Company = "Acme Holdings"
	second.Phone = "+1 650 253 0000"
	second.Title = "VP Sales"
	res, err = intake.Ingest(ctx, "t1", providers.Filters{}, []providers.Record{second})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Updated: 1}, res)

	res, err = intake.Ingest(ctx, "t1", providers.Filters{}, []providers.Record{second})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Skipped: 1}, res)

	n, err := store.Count(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := store.FindByKey(ctx, "t1", "apollo", "p-123")
	require.NoError(t, err)
	assert.Equal(t, "ana@acme.test", p.Email)
	assert.Equal(t, "Acme", p.Company, "same-age record must not overwrite a known field")
	assert.Equal(t, "+16502530000", p.Phone)
	assert.Equal(t, "VP Sales", p.Title)
}

func TestIngestNewerRecordOverwrites(t *testing.T) {
	ctx := context.Background()
	intake, store := newIntake(t)
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := intake.Ingest(ctx, "t1", providers.Filters{}, []providers.Record{{
		Provider: "apollo", ExternalID: "p-9", Title: "Manager", Company: "Acme",
		EmployeeCount: intPtr(40), UpdatedAt: timePtr(t0),
	}})
	require.NoError(t, err)

	_, err = intake.Ingest(ctx, "t1", providers.Filters{}, []providers.Record{{
		Provider: "apollo", ExternalID: "p-9", Title: "Director",
		EmployeeCount: intPtr(55), UpdatedAt: timePtr(t0.Add(time.Hour)),
	}})
	require.NoError(t, err)

	p, err := store.FindByKey(ctx, "t1", "apollo", "p-9")
	require.NoError(t, err)
	assert.Equal(t, "Director", p.Title)
	assert.Equal(t, "Acme", p.Company, "null incoming value never overwrites")
	require.NotNil(t, p.EmployeeCount)
	assert.Equal(t, 55, *p.EmployeeCount)
	require.NotNil(t, p.SourceUpdatedAt)
	assert.True(t, p.SourceUpdatedAt.Equal(t0.Add(time.Hour)))
}

func TestIngestSkipsFilteredAndKeyless(t *testing.T) {
	ctx := context.Background()
	intake, store := newIntake(t)

	filters := providers.Filters{Industries: []string{"Software"}, EmployeeMin: 10}
	res, err := intake.Ingest(ctx, "t1", filters, []providers.Record{
		{Provider: "apollo", ExternalID: "a", Industry: "software", EmployeeCount: intPtr(50)},
		{Provider: "apollo", ExternalID: "b", Industry: "retail", EmployeeCount: intPtr(50)},
		{Provider: "apollo", ExternalID: "c", Industry: "software", EmployeeCount: intPtr(3)},
		{Provider: "apollo", ExternalID: "", Industry: "software", EmployeeCount: intPtr(50)},
	})
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Inserted: 1, Skipped: 3}, res)

	_, err = store.FindByKey(ctx, "t1", "apollo", "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIngestIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	intake, store := newIntake(t)
	rec := providers.Record{Provider: "apollo", ExternalID: "p-1", Email: "x@y.test"}

	_, err := intake.Ingest(ctx, "t1", providers.Filters{}, []providers.Record{rec})
	require.NoError(t, err)
	_, err = intake.Ingest(ctx, "t2", providers.Filters{}, []providers.Record{rec})
	require.NoError(t, err)

	all, err := store.ListByIdentity(ctx, "", "x@y.test")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := store.ListByIdentity(ctx, "t1", "x@y.test")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

type pagedProvider struct {
	pages   [][]providers.Record
	failAt  int
	failErr error
	calls   int
}

func (p *pagedProvider) Name() string { return "stub" }

func (p *pagedProvider) Search(_ context.Context, _ providers.Filters, page int) (providers.Page, error) {
	p.calls++
	if p.failAt == page {
		return providers.Page{}, p.failErr
	}
	if page > len(p.pages) {
		return providers.Page{}, nil
	}
	out := providers.Page{Records: p.pages[page-1]}
	if page < len(p.pages) {
		out.NextPage = page + 1
	}
	return out, nil
}

func TestSyncUsesStoredFilters(t *testing.T) {
	ctx := context.Background()
	prov := &pagedProvider{pages: [][]providers.Record{
		{{ExternalID: "1", Title: "Head of Sales"}, {ExternalID: "2", Title: "Engineer"}},
		{{ExternalID: "3", Title: "Sales Director"}},
	}}
	intake, _ := newIntake(t, prov)
	require.NoError(t, intake.filters.Put(ctx, "t1", providers.Filters{Titles: []string{"sales"}}))

	res, err := intake.Sync(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Inserted: 2, Skipped: 1}, res)
	assert.Equal(t, 2, prov.calls)

	res, err = intake.Sync(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Skipped: 3}, res, "repeated sync must not duplicate prospects")
}

func TestSyncStopsOnRateLimit(t *testing.T) {
	ctx := context.Background()
	prov := &pagedProvider{
		pages: [][]providers.Record{
			{{ExternalID: "1"}},
			{{ExternalID: "2"}},
		},
		failAt:  2,
		failErr: providers.ErrRateLimited,
	}
	intake, _ := newIntake(t, prov)

	res, err := intake.Sync(ctx, "t1")
	assert.ErrorIs(t, err, providers.ErrRateLimited)
	assert.Equal(t, 1, res.Inserted)
}
