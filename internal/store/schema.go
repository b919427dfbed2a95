package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table names.
const (
	topicsTable     = "topics"
	plansTable      = "study_plans"
	planTopicsTable = "study_plan_topics"
	llmEventsTable  = "llm_request_events"
)

var (
	topicsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "seq", Type: field.TypeInt64},
		{Name: "subject", Type: field.TypeString},
		{Name: "name", Type: field.TypeString},
		{Name: "normalized_name", Type: field.TypeString},
		{Name: "difficulty", Type: field.TypeString, Default: ""},
		{Name: "syllabus_id", Type: field.TypeString, Default: ""},
		{Name: "content_vector_ref", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
	}
	// TopicsTable holds the topic catalog.
	TopicsTable = &schema.Table{
		Name:       topicsTable,
		Columns:    topicsColumns,
		PrimaryKey: []*schema.Column{topicsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "topic_seq", Unique: true, Columns: []*schema.Column{topicsColumns[1]}},
			{Name: "topic_syllabus_id_normalized_name", Columns: []*schema.Column{topicsColumns[6], topicsColumns[4]}},
		},
	}

	plansColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "seq", Type: field.TypeInt64},
		{Name: "user_id", Type: field.TypeString},
		{Name: "syllabus_id", Type: field.TypeString, Default: ""},
		{Name: "version", Type: field.TypeInt64},
		{Name: "schedule", Type: field.TypeJSON},
		{Name: "study_tips", Type: field.TypeJSON},
		{Name: "revision_schedule", Type: field.TypeJSON},
		{Name: "metadata", Type: field.TypeJSON},
		{Name: "created_at", Type: field.TypeTime},
	}
	// PlansTable holds one row per stored study plan.
	PlansTable = &schema.Table{
		Name:       plansTable,
		Columns:    plansColumns,
		PrimaryKey: []*schema.Column{plansColumns[0]},
		Indexes: []*schema.Index{
			{Name: "studyplan_user_id_seq", Columns: []*schema.Column{plansColumns[2], plansColumns[1]}},
		},
	}

	planTopicsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "position", Type: field.TypeInt},
		{Name: "topic_id", Type: field.TypeString},
		{Name: "status", Type: field.TypeString},
		{Name: "minutes", Type: field.TypeInt},
		{Name: "formatted_time", Type: field.TypeString},
		{Name: "scheduled_day", Type: field.TypeInt},
		{Name: "difficulty", Type: field.TypeString},
		{Name: "learning_objectives", Type: field.TypeJSON},
		{Name: "resources", Type: field.TypeJSON},
		{Name: "completed_at", Type: field.TypeTime, Nullable: true},
		{Name: "plan_id", Type: field.TypeString},
	}
	// PlanTopicsTable holds plan entries in plan order.
	PlanTopicsTable = &schema.Table{
		Name:       planTopicsTable,
		Columns:    planTopicsColumns,
		PrimaryKey: []*schema.Column{planTopicsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "study_plan_topics_study_plans_topics",
				Columns:    []*schema.Column{planTopicsColumns[11]},
				RefColumns: []*schema.Column{plansColumns[0]},
				OnDelete:   schema.Cascade,
			},
			{
				Symbol:     "study_plan_topics_topics_entries",
				Columns:    []*schema.Column{planTopicsColumns[2]},
				RefColumns: []*schema.Column{topicsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "studyplantopic_plan_id_position", Unique: true, Columns: []*schema.Column{planTopicsColumns[11], planTopicsColumns[1]}},
		},
	}

	llmEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "purpose", Type: field.TypeString},
		{Name: "input_tokens", Type: field.TypeInt},
		{Name: "output_tokens", Type: field.TypeInt},
		{Name: "latency_ms", Type: field.TypeInt64},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Default: ""},
		{Name: "request_body", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "response_body", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "stop_reason", Type: field.TypeString, Default: ""},
	}
	// LLMEventsTable records every LLM request.
	LLMEventsTable = &schema.Table{
		Name:       llmEventsTable,
		Columns:    llmEventsColumns,
		PrimaryKey: []*schema.Column{llmEventsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "llmrequestevent_sequence", Unique: true, Columns: []*schema.Column{llmEventsColumns[1]}},
			{Name: "llmrequestevent_purpose", Columns: []*schema.Column{llmEventsColumns[5]}},
			{Name: "llmrequestevent_timestamp", Columns: []*schema.Column{llmEventsColumns[2]}},
		},
	}

	// Tables lists every table the store manages.
	Tables = []*schema.Table{
		TopicsTable,
		PlansTable,
		PlanTopicsTable,
		LLMEventsTable,
	}
)

func init() {
	PlanTopicsTable.ForeignKeys[0].RefTable = PlansTable
	PlanTopicsTable.ForeignKeys[1].RefTable = TopicsTable
}

// migrate creates or alters the store tables to match Tables.
func migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv, schema.WithForeignKeys(true))
	if err != nil {
		return fmt.Errorf("new migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}
