package llm

import (
	"context"
	"slices"
)

type contextKey int

const (
	purposeKey contextKey = iota
	logFieldsKey
)

// WithPurpose labels the requests made with ctx in the event log.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom returns the purpose label of ctx, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey).(string); ok {
		return v
	}
	return "unknown"
}

// WithLogFields adds key/value pairs to the log lines of requests made with
// ctx. Fields accumulate across calls.
func WithLogFields(ctx context.Context, keysAndValues ...any) context.Context {
	prev := logFieldsFrom(ctx)
	return context.WithValue(ctx, logFieldsKey, append(slices.Clip(prev), keysAndValues...))
}

func logFieldsFrom(ctx context.Context) []any {
	fields, _ := ctx.Value(logFieldsKey).([]any)
	return fields
}
