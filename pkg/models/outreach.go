package models

// TemplateRequest creates or updates a message template
type TemplateRequest struct {
	Name             string `json:"name" validate:"max=200"`
	Channel          string `json:"channel" validate:"max=16"`
	Subject          string `json:"subject" validate:"max=998"`
	Body             string `json:"body" validate:"max=10000"`
	ComplianceFooter string `json:"compliance_footer" validate:"max=500"`
	Active           *bool  `json:"active,omitempty"`
}

// StepRequest describes one sequence step
type StepRequest struct {
	StepOrder   int    `json:"step_order"`
	Channel     string `json:"channel" validate:"max=16"`
	WaitMinutes int    `json:"wait_minutes"`
	TemplateID  string `json:"template_id" validate:"max=64"`
}

// SequenceSettingsRequest updates the sequence-level fields
type SequenceSettingsRequest struct {
	Name            string `json:"name" validate:"max=200"`
	ThrottlePerDay  int    `json:"throttle_per_day"`
	Timezone        string `json:"timezone" validate:"max=64"`
	SendWindowStart *int   `json:"send_window_start,omitempty"`
	SendWindowEnd   *int   `json:"send_window_end,omitempty"`
}

// SequenceRequest creates a sequence with its steps
type SequenceRequest struct {
	SequenceSettingsRequest
	Steps []StepRequest `json:"steps" validate:"dive"`
}

// EnrollRequest enrolls a prospect in a sequence
type EnrollRequest struct {
	ProspectID string `json:"prospect_id" validate:"required,max=64"`
	SequenceID string `json:"sequence_id" validate:"required,max=64"`
}

// SuppressionRequest adds a manual suppression
type SuppressionRequest struct {
	Identity string `json:"identity" validate:"required,max=320"`
	Reason   string `json:"reason" validate:"omitempty,oneof=stop bounce manual"`
	Scope    string `json:"scope" validate:"omitempty,oneof=tenant global"`
}

// InboundRequest is a keyword reply forwarded by the messaging provider
type InboundRequest struct {
	TenantID string `json:"tenant_id" validate:"max=64"`
	From     string `json:"from" validate:"required,max=320"`
	Keyword  string `json:"keyword" validate:"max=1600"`
	EventID  string `json:"event_id" validate:"max=255"`
}

// FiltersRequest replaces the tenant's intake filters
type FiltersRequest struct {
	Industries  []string `json:"industries" validate:"max=50,dive,max=100"`
	Titles      []string `json:"titles" validate:"max=50,dive,max=100"`
	Locations   []string `json:"locations" validate:"max=50,dive,max=100"`
	EmployeeMin int      `json:"employee_min" validate:"gte=0"`
	EmployeeMax int      `json:"employee_max" validate:"gte=0"`
	Keywords    []string `json:"keywords" validate:"max=50,dive,max=100"`
	Providers   []string `json:"providers" validate:"max=10,dive,max=64"`
}

// SyncResponse reports the counts of one intake run. Error is set when a
// provider aborted the run; the counts cover what was ingested before it.
type SyncResponse struct {
	Inserted int    `json:"inserted"`
	Updated  int    `json:"updated"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}
