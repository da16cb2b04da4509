package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table names.
const (
	TableTenantFilters    = "tenant_filters"
	TableProspects        = "prospects"
	TableTemplates        = "templates"
	TableSequences        = "sequences"
	TableSequenceSteps    = "sequence_steps"
	TableEnrollments      = "enrollments"
	TableDeliveryAttempts = "delivery_attempts"
	TableSuppressions     = "suppressions"
	TableThrottleCounters = "throttle_counters"
	TableInboundEvents    = "inbound_events"
)

const textSize = 2147483647

func id() *schema.Column {
	return &schema.Column{Name: "id", Type: field.TypeString, Size: 36}
}

func str(name string, size int64) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, Size: size}
}

func nullStr(name string, size int64) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, Size: size, Nullable: true}
}

func text(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, Size: textSize}
}

func integer(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeInt, Default: 0}
}

func nullInt(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeInt, Nullable: true}
}

func timestamp(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeTime}
}

func nullTimestamp(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeTime, Nullable: true}
}

func boolean(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeBool, Default: false}
}

func table(name string, cols []*schema.Column, indexes ...*schema.Index) *schema.Table {
	return &schema.Table{
		Name:       name,
		Columns:    cols,
		PrimaryKey: []*schema.Column{cols[0]},
		Indexes:    indexes,
	}
}

func index(name string, unique bool, cols []*schema.Column, pick ...int) *schema.Index {
	idx := &schema.Index{Name: name, Unique: unique}
	for _, i := range pick {
		idx.Columns = append(idx.Columns, cols[i])
	}
	return idx
}

var (
	tenantFiltersColumns = []*schema.Column{
		str("tenant_id", 64),
		text("filters"),
		timestamp("updated_at"),
	}

	prospectsColumns = []*schema.Column{
		id(),                               // 0
		str("tenant_id", 64),               // 1
		str("provider", 64),                // 2
		str("external_id", 255),            // 3
		nullStr("first_name", 255),         // 4
		nullStr("last_name", 255),          // 5
		nullStr("email", 320),              // 6
		nullStr("phone", 32),               // 7
		nullStr("company", 255),            // 8
		nullStr("title", 255),              // 9
		nullStr("industry", 255),           // 10
		nullStr("city", 255),               // 11
		nullStr("state", 255),              // 12
		nullStr("country", 64),             // 13
		nullInt("employee_count"),          // 14
		nullStr("linkedin_url", 512),       // 15
		nullStr("website", 512),            // 16
		nullTimestamp("source_updated_at"), // 17
		timestamp("created_at"),            // 18
		timestamp("updated_at"),            // 19
	}

	templatesColumns = []*schema.Column{
		id(),                      // 0
		str("tenant_id", 64),      // 1
		str("family_id", 36),      // 2
		integer("version"),        // 3
		str("name", 200),          // 4
		str("channel", 16),        // 5
		nullStr("subject", 500),   // 6
		text("body"),              // 7
		text("compliance_footer"), // 8
		boolean("active"),         // 9
		timestamp("created_at"),   // 10
		timestamp("updated_at"),   // 11
	}

	sequencesColumns = []*schema.Column{
		id(),                         // 0
		str("tenant_id", 64),         // 1
		str("name", 200),             // 2
		str("status", 16),            // 3
		integer("throttle_per_day"),  // 4
		str("timezone", 64),          // 5
		integer("send_window_start"), // 6
		integer("send_window_end"),   // 7
		timestamp("created_at"),      // 8
		timestamp("updated_at"),      // 9
	}

	sequenceStepsColumns = []*schema.Column{
		id(),                    // 0
		str("sequence_id", 36),  // 1
		integer("step_order"),   // 2
		str("channel", 16),      // 3
		integer("wait_minutes"), // 4
		str("template_id", 36),  // 5
		timestamp("created_at"), // 6
	}

	enrollmentsColumns = []*schema.Column{
		id(),                              // 0
		str("tenant_id", 64),              // 1
		str("prospect_id", 36),            // 2
		str("sequence_id", 36),            // 3
		str("status", 16),                 // 4
		integer("current_step_index"),     // 5
		integer("last_step_order"),        // 6
		timestamp("next_due_at"),          // 7
		integer("attempts"),               // 8
		nullStr("last_error", 1024),       // 9
		nullTimestamp("paused_at"),        // 10
		nullTimestamp("completed_at"),     // 11
		nullStr("claim_token", 36),        // 12
		nullTimestamp("claim_expires_at"), // 13
		integer("version"),                // 14
		timestamp("created_at"),           // 15
		timestamp("updated_at"),           // 16
		nullStr("live_key", 80),           // 17
	}

	deliveryAttemptsColumns = []*schema.Column{
		id(),                                // 0
		str("tenant_id", 64),                // 1
		str("enrollment_id", 36),            // 2
		str("sequence_id", 36),              // 3
		integer("step_order"),               // 4
		str("channel", 16),                  // 5
		str("recipient", 320),               // 6
		nullStr("provider_message_id", 255), // 7
		str("outcome", 16),                  // 8
		nullStr("error", 1024),              // 9
		timestamp("created_at"),             // 10
	}

	suppressionsColumns = []*schema.Column{
		id(),                    // 0
		str("tenant_id", 64),    // 1
		str("identity", 320),    // 2
		str("reason", 16),       // 3
		str("scope", 16),        // 4
		timestamp("created_at"), // 5
	}

	throttleCountersColumns = []*schema.Column{
		str("id", 200),          // 0
		str("counter_key", 160), // 1
		str("day", 10),          // 2
		integer("count"),        // 3
		integer("version"),      // 4
		timestamp("updated_at"), // 5
	}

	inboundEventsColumns = []*schema.Column{
		id(),                              // 0
		str("tenant_id", 64),              // 1
		str("identity", 320),              // 2
		str("keyword", 32),                // 3
		str("action", 16),                 // 4
		nullStr("provider_event_id", 255), // 5
		timestamp("created_at"),           // 6
	}
)

// Tables is the full schema, in dependency order.
var Tables = []*schema.Table{
	table(TableTenantFilters, tenantFiltersColumns),
	table(TableProspects, prospectsColumns,
		index("prospect_dedup_key", true, prospectsColumns, 1, 2, 3),
		index("prospect_email", false, prospectsColumns, 6),
		index("prospect_phone", false, prospectsColumns, 7),
	),
	table(TableTemplates, templatesColumns,
		index("template_family_version", true, templatesColumns, 2, 3),
		index("template_tenant", false, templatesColumns, 1),
	),
	table(TableSequences, sequencesColumns,
		index("sequence_tenant_status", false, sequencesColumns, 1, 3),
	),
	table(TableSequenceSteps, sequenceStepsColumns,
		index("sequence_step_order", true, sequenceStepsColumns, 1, 2),
		index("sequence_step_template", false, sequenceStepsColumns, 5),
	),
	table(TableEnrollments, enrollmentsColumns,
		index("enrollment_due", false, enrollmentsColumns, 4, 7),
		index("enrollment_prospect", false, enrollmentsColumns, 2, 4),
		index("enrollment_sequence", false, enrollmentsColumns, 3, 4),
		// live_key is set only while active or paused; NULLs never collide.
		index("enrollment_live_key", true, enrollmentsColumns, 17),
	),
	table(TableDeliveryAttempts, deliveryAttemptsColumns,
		index("attempt_enrollment_step", false, deliveryAttemptsColumns, 2, 4),
		index("attempt_recipient", false, deliveryAttemptsColumns, 6),
		index("attempt_created", false, deliveryAttemptsColumns, 1, 10),
	),
	table(TableSuppressions, suppressionsColumns,
		index("suppression_identity", true, suppressionsColumns, 4, 1, 2),
	),
	table(TableThrottleCounters, throttleCountersColumns,
		index("throttle_key_day", true, throttleCountersColumns, 1, 2),
	),
	table(TableInboundEvents, inboundEventsColumns,
		index("inbound_provider_event", true, inboundEventsColumns, 5),
		index("inbound_identity", false, inboundEventsColumns, 2),
	),
}

// Migrate creates or upgrades every table.
func (c *Client) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(c.driver)
	if err != nil {
		return fmt.Errorf("failed creating migrator: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("failed creating schema resources: %w", err)
	}
	return nil
}
