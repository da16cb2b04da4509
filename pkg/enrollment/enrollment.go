// Package enrollment tracks one prospect's progress through one sequence.
//
// Every mutation is a conditional UPDATE: runner claims compare-and-swap on
// the row version, and runner outcomes are fenced by the claim token, so
// overlapping runner invocations never dispatch the same step twice.
package enrollment

import (
	"errors"
	"time"
)

// Status is the lifecycle state of an enrollment.
type Status string

// Enrollment statuses.
const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusOptedOut  Status = "opted_out"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusOptedOut || s == StatusFailed
}

var (
	// ErrNotFound is returned when no enrollment matches.
	ErrNotFound = errors.New("enrollment not found")
	// ErrTerminal is returned for any transition out of a terminal state.
	ErrTerminal = errors.New("enrollment is in a terminal state")
	// ErrInvalidTransition is returned when the current state does not accept the event.
	ErrInvalidTransition = errors.New("invalid enrollment transition")
	// ErrAlreadyEnrolled is returned when the prospect already has a live enrollment in the sequence.
	ErrAlreadyEnrolled = errors.New("prospect already enrolled in sequence")
	// ErrClaimLost is returned when a claim or a claimed write lost to a concurrent writer.
	ErrClaimLost = errors.New("enrollment claim lost")
)

// Enrollment is the progress record of one prospect through one sequence.
// CurrentStepIndex counts dispatched steps; LastStepOrder is the stepOrder of
// the last dispatched step (0 before the first).
type Enrollment struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	ProspectID       string     `json:"prospect_id"`
	SequenceID       string     `json:"sequence_id"`
	Status           Status     `json:"status"`
	CurrentStepIndex int        `json:"current_step_index"`
	LastStepOrder    int        `json:"last_step_order"`
	NextDueAt        time.Time  `json:"next_due_at"`
	Attempts         int        `json:"attempts"`
	LastError        string     `json:"last_error,omitempty"`
	PausedAt         *time.Time `json:"paused_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ClaimToken       string     `json:"-"`
	ClaimExpiresAt   *time.Time `json:"-"`
	Version          int        `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
