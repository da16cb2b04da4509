package suppression

import (
	"context"
	"fmt"
	"time"
)

// ProspectFinder resolves an identity to the prospects reachable at it. An
// empty tenantID searches every tenant.
type ProspectFinder interface {
	IDsByIdentity(ctx context.Context, tenantID, identity string) ([]string, error)
}

// EnrollmentEnder opts out every live enrollment of the given prospects.
type EnrollmentEnder interface {
	OptOutProspects(ctx context.Context, prospectIDs []string, now time.Time) (int, error)
}

// Suppressed reports what Suppress did.
type Suppressed struct {
	Entry    *Entry
	Created  bool
	OptedOut int
}

// Suppressor records suppression entries and ends the recipient's live
// enrollments in the entry's scope, across all sequences.
type Suppressor struct {
	ledger      *Ledger
	prospects   ProspectFinder
	enrollments EnrollmentEnder
}

// NewSuppressor creates a suppressor over the ledger.
func NewSuppressor(ledger *Ledger, ps ProspectFinder, es EnrollmentEnder) *Suppressor {
	return &Suppressor{ledger: ledger, prospects: ps, enrollments: es}
}

// Suppress adds e and opts the recipient out as of now. The opt-out runs even
// when the entry already existed, so a retry completes an earlier partial cascade.
func (s *Suppressor) Suppress(ctx context.Context, e Entry, now time.Time) (*Suppressed, error) {
	entry, created, err := s.ledger.Add(ctx, e)
	if err != nil {
		return nil, err
	}

	ids, err := s.prospects.IDsByIdentity(ctx, entry.TenantID, entry.Identity)
	if err != nil {
		return nil, fmt.Errorf("failed resolving suppressed prospects: %w", err)
	}
	n, err := s.enrollments.OptOutProspects(ctx, ids, now)
	if err != nil {
		return nil, err
	}
	return &Suppressed{Entry: entry, Created: created, OptedOut: n}, nil
}
