package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/abhisek/examprep/internal/studyplan"
)

// StudyPlan is a learner's plan. The row with the highest seq for a user is
// the current plan.
type StudyPlan struct {
	ent.Schema
}

func (StudyPlan) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Immutable(),
		field.Int64("seq").
			Immutable(),
		field.String("user_id"),
		field.String("syllabus_id").
			Default(""),
		field.Int64("version").
			Comment("Optimistic concurrency counter"),
		field.JSON("schedule", studyplan.Schedule{}),
		field.JSON("study_tips", []string{}),
		field.JSON("revision_schedule", studyplan.RevisionSchedule{}),
		field.JSON("metadata", studyplan.Metadata{}),
		field.Time("created_at").
			Immutable(),
	}
}

func (StudyPlan) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("topics", StudyPlanTopic.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

func (StudyPlan) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "seq"),
	}
}
