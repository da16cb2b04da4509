package sequences

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/templates"
)

// TemplateLookup resolves the templates steps refer to.
type TemplateLookup interface {
	Get(ctx context.Context, tenantID, id string) (*templates.Template, error)
}

// Settings are the sequence-level fields.
type Settings struct {
	Name            string `json:"name"`
	ThrottlePerDay  int    `json:"throttle_per_day"`
	Timezone        string `json:"timezone"`
	SendWindowStart *int   `json:"send_window_start,omitempty"`
	SendWindowEnd   *int   `json:"send_window_end,omitempty"`
}

// StepInput describes one step to add.
type StepInput struct {
	StepOrder   int            `json:"step_order"`
	Channel     domain.Channel `json:"channel"`
	WaitMinutes int            `json:"wait_minutes"`
	TemplateID  string         `json:"template_id"`
}

// Input is a full sequence definition.
type Input struct {
	Settings
	Steps []StepInput `json:"steps"`
}

func (s Settings) window() (int, int) {
	start, end := DefaultSendWindowStart, DefaultSendWindowEnd
	if s.SendWindowStart != nil {
		start = *s.SendWindowStart
	}
	if s.SendWindowEnd != nil {
		end = *s.SendWindowEnd
	}
	return start, end
}

func validateSettings(s Settings, verr *domain.ValidationError) {
	if strings.TrimSpace(s.Name) == "" {
		verr.Add("name", "required")
	}
	if s.ThrottlePerDay <= 0 {
		verr.Add("throttlePerDay", "must be greater than 0")
	}
	if strings.TrimSpace(s.Timezone) == "" {
		verr.Add("timezone", "required")
	} else if _, err := time.LoadLocation(s.Timezone); err != nil {
		verr.Add("timezone", "unknown IANA zone")
	}
	start, end := s.window()
	if start < 0 || start > 23 {
		verr.Add("sendWindowStart", "must be between 0 and 23")
	}
	if end < 1 || end > 24 {
		verr.Add("sendWindowEnd", "must be between 1 and 24")
	}
	if start >= end {
		verr.Add("sendWindow", "start must be before end")
	}
}

// ValidateSettings checks the sequence-level fields.
func ValidateSettings(s Settings) error {
	verr := &domain.ValidationError{}
	validateSettings(s, verr)
	return verr.ErrOrNil()
}

// Validate checks a full definition. existing holds steps already stored for
// the sequence; stepOrder must be unique across existing and new steps.
func Validate(ctx context.Context, tenantID string, in Input, existing []Step, lookup TemplateLookup) error {
	verr := &domain.ValidationError{}
	validateSettings(in.Settings, verr)
	if err := validateSteps(ctx, tenantID, in.Steps, existing, lookup, verr); err != nil {
		return err
	}
	return verr.ErrOrNil()
}

// ValidateSteps checks steps being added to a stored sequence.
func ValidateSteps(ctx context.Context, tenantID string, steps []StepInput, existing []Step, lookup TemplateLookup) error {
	verr := &domain.ValidationError{}
	if err := validateSteps(ctx, tenantID, steps, existing, lookup, verr); err != nil {
		return err
	}
	return verr.ErrOrNil()
}

func validateSteps(ctx context.Context, tenantID string, steps []StepInput, existing []Step, lookup TemplateLookup, verr *domain.ValidationError) error {
	if len(steps)+len(existing) == 0 {
		verr.Add("steps", "at least one step is required")
		return nil
	}

	seen := make(map[int]bool, len(existing)+len(steps))
	first := 0
	for _, st := range existing {
		seen[st.StepOrder] = true
		if first == 0 || st.StepOrder < first {
			first = st.StepOrder
		}
	}
	for _, st := range steps {
		if st.StepOrder >= 1 && (first == 0 || st.StepOrder < first) {
			first = st.StepOrder
		}
	}

	for i, st := range steps {
		field := func(name string) string { return fmt.Sprintf("steps[%d].%s", i, name) }

		if st.StepOrder < 1 {
			verr.Add(field("stepOrder"), "must be at least 1")
		} else if seen[st.StepOrder] {
			verr.Add(field("stepOrder"), fmt.Sprintf("duplicate stepOrder %d", st.StepOrder))
		}
		seen[st.StepOrder] = true

		if st.WaitMinutes < 0 {
			verr.Add(field("waitMinutes"), "must be 0 or greater")
		} else if st.StepOrder == first && st.WaitMinutes != 0 {
			verr.Add(field("waitMinutes"), "must be 0 for the first step")
		}

		if !st.Channel.Valid() {
			verr.Add(field("channel"), "must be email or sms")
		}

		if st.TemplateID == "" {
			verr.Add(field("templateId"), "required")
			continue
		}
		tpl, err := lookup.Get(ctx, tenantID, st.TemplateID)
		if errors.Is(err, templates.ErrNotFound) {
			verr.Add(field("templateId"), "unknown template")
			continue
		}
		if err != nil {
			return fmt.Errorf("failed loading template %s: %w", st.TemplateID, err)
		}
		if tpl.Channel != st.Channel {
			verr.Add(field("templateId"), fmt.Sprintf("template channel %s does not match step channel %s", tpl.Channel, st.Channel))
		}
		if !tpl.Active {
			verr.Add(field("templateId"), "template is inactive")
		}
	}
	return nil
}
