// Package fake is a development provider that serves generated prospects.
package fake

import (
	"context"

	"github.com/jordanlanch/outreach/pkg/providers"
	"github.com/jordanlanch/outreach/pkg/testdata"
)

// Provider pages through a fixed, seeded set of generated records.
type Provider struct {
	records  []providers.Record
	pageSize int
}

// New generates total records from seed, served pageSize at a time.
func New(total, pageSize int, seed int64) *Provider {
	cfg := testdata.DefaultProspectConfig(total)
	cfg.Seed = seed
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Provider{records: testdata.GenerateProspects(cfg), pageSize: pageSize}
}

// Name implements providers.Provider.
func (p *Provider) Name() string { return "fake" }

// Search implements providers.Provider. Filters are left to intake.
func (p *Provider) Search(ctx context.Context, _ providers.Filters, page int) (providers.Page, error) {
	if err := ctx.Err(); err != nil {
		return providers.Page{}, err
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * p.pageSize
	if start >= len(p.records) {
		return providers.Page{}, nil
	}
	end := start + p.pageSize
	out := providers.Page{}
	if end < len(p.records) {
		out.NextPage = page + 1
	} else {
		end = len(p.records)
	}
	out.Records = append([]providers.Record(nil), p.records[start:end]...)
	return out, nil
}
