package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Topic is one entry of the canonical topic catalog.
type Topic struct {
	ent.Schema
}

func (Topic) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Immutable(),
		field.Int64("seq").
			Unique().
			Immutable().
			Comment("Catalog insertion order"),
		field.String("subject"),
		field.String("name"),
		field.String("normalized_name").
			Comment("Lowercased, whitespace-collapsed name used for reuse lookups"),
		field.String("difficulty").
			Default("").
			Comment("easy, medium, hard or empty when unknown"),
		field.String("syllabus_id").
			Default(""),
		field.String("content_vector_ref").
			Default("").
			Comment("First knowledge vector ingested for the topic"),
		field.Time("created_at").
			Immutable(),
	}
}

func (Topic) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("entries", StudyPlanTopic.Type),
	}
}

func (Topic) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("syllabus_id", "normalized_name"),
	}
}
