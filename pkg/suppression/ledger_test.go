package suppression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/outreach/pkg/database/dbtest"
)

func TestNormalizeIdentity(t *testing.T) {
	assert.Equal(t, "jane@example.com", NormalizeIdentity(" Jane@Example.com "))
	assert.Equal(t, "+16502530000", NormalizeIdentity("(650) 253-0000"))
	assert.Equal(t, "+16502530000", NormalizeIdentity("+1 650 253 0000"))
}

func TestAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(dbtest.Open(t))

	e, created, err := l.Add(ctx, Entry{TenantID: "t1", Identity: "Jane@Example.com", Reason: ReasonStop})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ScopeTenant, e.Scope)
	assert.Equal(t, "jane@example.com", e.Identity)

	_, created, err = l.Add(ctx, Entry{TenantID: "t1", Identity: "jane@example.com", Reason: ReasonManual})
	require.NoError(t, err)
	assert.False(t, created)

	entries, err := l.List(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestIsSuppressedScopes(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(dbtest.Open(t))

	_, _, err := l.Add(ctx, Entry{TenantID: "t1", Identity: "a@example.com", Reason: ReasonStop})
	require.NoError(t, err)
	_, _, err = l.Add(ctx, Entry{Identity: "+16502530000", Reason: ReasonBounce, Scope: ScopeGlobal})
	require.NoError(t, err)

	tests := []struct {
		name       string
		tenant     string
		identities []string
		want       bool
	}{
		{name: "tenant entry applies to tenant", tenant: "t1", identities: []string{"A@example.com"}, want: true},
		{name: "tenant entry ignored elsewhere", tenant: "t2", identities: []string{"a@example.com"}, want: false},
		{name: "global applies everywhere", tenant: "t2", identities: []string{"b@example.com", "650-253-0000"}, want: true},
		{name: "clean identities", tenant: "t1", identities: []string{"c@example.com"}, want: false},
		{name: "no identities", tenant: "t1", identities: []string{"", " "}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.IsSuppressed(ctx, tt.tenant, tt.identities...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddValidation(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(dbtest.Open(t))

	_, _, err := l.Add(ctx, Entry{TenantID: "t1", Identity: "  "})
	assert.Error(t, err)

	_, _, err = l.Add(ctx, Entry{Identity: "x@example.com", Scope: ScopeTenant})
	assert.Error(t, err)

	e, _, err := l.Add(ctx, Entry{Identity: "x@example.com"})
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, e.Scope)
	assert.Equal(t, ReasonManual, e.Reason)
}
