// Package throttle caps sends per tenant and sequence per calendar day.
//
// A slot is reserved with an atomic conditional increment before a send and
// released when the send fails, so the counter tracks successful sends and
// concurrent runners can never push it past the limit.
package throttle

import "context"

// Counter is a per (key, day) send counter.
type Counter interface {
	// Reserve takes one slot if fewer than limit are taken. A spent budget
	// is reported as false, not as an error.
	Reserve(ctx context.Context, key, day string, limit int) (bool, error)
	// Release returns a slot taken by Reserve.
	Release(ctx context.Context, key, day string) error
	// Count returns the slots taken.
	Count(ctx context.Context, key, day string) (int, error)
}

// Key is the counter key for a tenant's sequence.
func Key(tenantID, sequenceID string) string {
	return tenantID + ":" + sequenceID
}
