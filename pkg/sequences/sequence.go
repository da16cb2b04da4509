// Package sequences validates and stores ordered multi-channel step definitions.
package sequences

import (
	"sort"
	"time"

	"github.com/jordanlanch/outreach/pkg/domain"
)

// Sequence statuses.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Default send window, in local hours of the sequence timezone.
const (
	DefaultSendWindowStart = 8
	DefaultSendWindowEnd   = 21
)

// Sequence is an ordered set of steps sent to enrolled prospects.
type Sequence struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	Name            string    `json:"name"`
	Status          string    `json:"status"`
	ThrottlePerDay  int       `json:"throttle_per_day"`
	Timezone        string    `json:"timezone"`
	SendWindowStart int       `json:"send_window_start"`
	SendWindowEnd   int       `json:"send_window_end"`
	Steps           []Step    `json:"steps"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Step is one message of a sequence. WaitMinutes counts from the previous
// step's dispatch.
type Step struct {
	ID          string         `json:"id"`
	SequenceID  string         `json:"sequence_id"`
	StepOrder   int            `json:"step_order"`
	Channel     domain.Channel `json:"channel"`
	WaitMinutes int            `json:"wait_minutes"`
	TemplateID  string         `json:"template_id"`
}

// Location resolves the sequence timezone, falling back to UTC.
func (s *Sequence) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Archived reports whether the sequence no longer dispatches.
func (s *Sequence) Archived() bool {
	return s.Status == StatusArchived
}

// SortSteps orders steps by StepOrder.
func (s *Sequence) SortSteps() {
	sort.Slice(s.Steps, func(i, j int) bool { return s.Steps[i].StepOrder < s.Steps[j].StepOrder })
}

// NextStep returns the step with the lowest StepOrder above lastOrder.
func (s *Sequence) NextStep(lastOrder int) (Step, bool) {
	var next Step
	found := false
	for _, st := range s.Steps {
		if st.StepOrder > lastOrder && (!found || st.StepOrder < next.StepOrder) {
			next, found = st, true
		}
	}
	return next, found
}

// Day is the calendar day of t in the sequence timezone, as used by throttle counters.
func (s *Sequence) Day(t time.Time) string {
	return t.In(s.Location()).Format("2006-01-02")
}

// InSendWindow reports whether t falls inside the allowed sending hours.
func (s *Sequence) InSendWindow(t time.Time) bool {
	h := t.In(s.Location()).Hour()
	return h >= s.SendWindowStart && h < s.SendWindowEnd
}

// NextWindowStart returns the next instant at or after t at which the send window opens.
func (s *Sequence) NextWindowStart(t time.Time) time.Time {
	local := t.In(s.Location())
	open := time.Date(local.Year(), local.Month(), local.Day(), s.SendWindowStart, 0, 0, 0, local.Location())
	if !local.After(open) {
		return open.UTC()
	}
	return open.AddDate(0, 0, 1).UTC()
}

// NextDayWindowStart returns the window opening on the calendar day after t.
func (s *Sequence) NextDayWindowStart(t time.Time) time.Time {
	local := t.In(s.Location())
	return time.Date(local.Year(), local.Month(), local.Day()+1, s.SendWindowStart, 0, 0, 0, local.Location()).UTC()
}
