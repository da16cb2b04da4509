// Package suppression is the tenant and global opt-out registry consulted before every send.
package suppression

import (
	"context"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/jordanlanch/outreach/pkg/database"
	"github.com/jordanlanch/outreach/pkg/phone"
)

// Reason records why a recipient was suppressed.
type Reason string

// Suppression reasons.
const (
	ReasonStop   Reason = "stop"
	ReasonBounce Reason = "bounce"
	ReasonManual Reason = "manual"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	return r == ReasonStop || r == ReasonBounce || r == ReasonManual
}

// Scope selects who a suppression applies to.
type Scope string

// Suppression scopes.
const (
	ScopeTenant Scope = "tenant"
	ScopeGlobal Scope = "global"
)

// Entry blocks every future send to Identity within its scope.
type Entry struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Identity  string    `json:"identity"`
	Reason    Reason    `json:"reason"`
	Scope     Scope     `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeIdentity returns the canonical form identities are stored under:
// lower-cased email or E.164 phone.
func NormalizeIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if phone.LooksLikePhone(identity) {
		if e164, err := phone.Normalize(identity, phone.DefaultRegion); err == nil {
			return e164
		}
	}
	return strings.ToLower(identity)
}

// Ledger persists suppression entries.
type Ledger struct {
	db  *database.Client
	now func() time.Time
}

// NewLedger creates a suppression ledger.
func NewLedger(db *database.Client) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Add records e. Adding an identity already suppressed in the same scope is a
// no-op; the returned bool reports whether a new entry was written.
func (l *Ledger) Add(ctx context.Context, e Entry) (*Entry, bool, error) {
	e.Identity = NormalizeIdentity(e.Identity)
	if e.Identity == "" {
		return nil, false, fmt.Errorf("suppression identity is required")
	}
	if e.Scope == "" {
		e.Scope = ScopeTenant
		if e.TenantID == "" {
			e.Scope = ScopeGlobal
		}
	}
	if e.Scope == ScopeGlobal {
		e.TenantID = ""
	} else if e.TenantID == "" {
		return nil, false, fmt.Errorf("tenant scoped suppression needs a tenant")
	}
	if e.Reason == "" {
		e.Reason = ReasonManual
	}
	e.ID = uuid.NewString()
	e.CreatedAt = database.Timestamp(l.now())

	n, err := l.db.Exec(ctx, l.db.Builder().Insert(database.TableSuppressions).
		Columns("id", "tenant_id", "identity", "reason", "scope", "created_at").
		Values(e.ID, e.TenantID, e.Identity, string(e.Reason), string(e.Scope), e.CreatedAt).
		OnConflict(
			entsql.ConflictColumns("scope", "tenant_id", "identity"),
			entsql.DoNothing(),
		))
	if err != nil {
		return nil, false, fmt.Errorf("failed adding suppression: %w", err)
	}
	return &e, n == 1, nil
}

// IsSuppressed reports whether any of identities is suppressed for tenantID,
// either globally or by the tenant.
func (l *Ledger) IsSuppressed(ctx context.Context, tenantID string, identities ...string) (bool, error) {
	ids := make([]any, 0, len(identities))
	for _, id := range identities {
		if id = NormalizeIdentity(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return false, nil
	}

	n, err := l.db.Count(ctx, l.db.Builder().Select().Count("*").
		From(entsql.Table(database.TableSuppressions)).
		Where(entsql.And(
			entsql.In("identity", ids...),
			scopeFor(tenantID),
		)))
	if err != nil {
		return false, fmt.Errorf("failed checking suppressions: %w", err)
	}
	return n > 0, nil
}

// List returns the entries that apply to tenantID, newest first.
func (l *Ledger) List(ctx context.Context, tenantID string, limit int) ([]*Entry, error) {
	q := l.db.Builder().Select("id", "tenant_id", "identity", "reason", "scope", "created_at").
		From(entsql.Table(database.TableSuppressions)).
		Where(scopeFor(tenantID)).
		OrderBy(entsql.Desc("created_at"))
	if limit > 0 {
		q.Limit(limit)
	}

	var out []*Entry
	err := l.db.Query(ctx, q, func(row database.Scanner) error {
		var e Entry
		var reason, scope string
		if err := row.Scan(&e.ID, &e.TenantID, &e.Identity, &reason, &scope, &e.CreatedAt); err != nil {
			return err
		}
		e.Reason, e.Scope = Reason(reason), Scope(scope)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, &e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed listing suppressions: %w", err)
	}
	return out, nil
}

func scopeFor(tenantID string) *entsql.Predicate {
	return entsql.Or(
		entsql.EQ("scope", string(ScopeGlobal)),
		entsql.And(entsql.EQ("scope", string(ScopeTenant)), entsql.EQ("tenant_id", tenantID)),
	)
}
