package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// StudyPlanTopic is one scheduled topic of a plan, kept in plan order.
type StudyPlanTopic struct {
	ent.Schema
}

func (StudyPlanTopic) Fields() []ent.Field {
	return []ent.Field{
		field.Int("position"),
		field.String("topic_id"),
		field.String("status").
			Comment("pending or completed"),
		field.Int("minutes"),
		field.String("formatted_time"),
		field.Int("scheduled_day"),
		field.String("difficulty"),
		field.JSON("learning_objectives", []string{}),
		field.JSON("resources", []string{}),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.String("plan_id"),
	}
}

func (StudyPlanTopic) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("plan", StudyPlan.Type).
			Ref("topics").
			Field("plan_id").
			Unique().
			Required(),
		edge.From("topic", Topic.Type).
			Ref("entries").
			Field("topic_id").
			Unique().
			Required(),
	}
}

func (StudyPlanTopic) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("plan_id", "position").Unique(),
	}
}
