package synthesis

import "github.com/abhisek/examprep/internal/llm"

// PlanSchema is checked against every parsed model response. It only pins
// the outer shape; items inside the schedule are decoded leniently by
// decodePlan. It is not sent to the provider; the request uses plain JSON
// mode.
var PlanSchema = &llm.Schema{
	Name:        "study-plan",
	Description: "A day-by-day study schedule with study tips and revision days",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"dailySchedule": map[string]any{"type": "object"},
		},
		"required": []any{"dailySchedule"},
	},
}
