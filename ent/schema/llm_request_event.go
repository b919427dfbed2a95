package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// LLMRequestEvent is one provider attempt made while synthesizing a plan.
// Retries produce one row each.
type LLMRequestEvent struct {
	ent.Schema
}

func (LLMRequestEvent) Mixin() []ent.Mixin {
	return []ent.Mixin{EventMixin{}}
}

func (LLMRequestEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("provider").
			Comment("anthropic, openai, gemini, openrouter or mock"),
		field.String("model").
			Comment("Model that served the call, or the configured one on failure"),
		field.String("purpose").
			Comment("e.g. study-plan"),
		field.Int("input_tokens").Default(0),
		field.Int("output_tokens").Default(0),
		field.Int64("latency_ms").Default(0),
		field.Bool("success"),
		field.String("stop_reason").
			Default("").
			Comment("end, max_tokens or content_filter; empty when the call failed before a reply"),
		field.String("error_message").Default(""),
		field.Text("request_body").Default(""),
		field.Text("response_body").
			Default("").
			Comment("Partial output is kept for truncated replies"),
	}
}

func (LLMRequestEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("purpose"),
	}
}
