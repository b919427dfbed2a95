// Package llm sends plan synthesis prompts to a hosted model and returns
// its JSON reply. Providers share one Request/Response shape; retries,
// event logging and schema validation are layered on top.
package llm

import (
	"context"
	"encoding/json"
)

// Provider is one model endpoint.
type Provider interface {
	// Generate sends req and returns the model's reply. With req.Schema
	// set the reply has already been validated against it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID is the configured model, used when no reply names one.
	ModelID() string
}

type Request struct {
	System   string
	Messages []Message

	// Schema constrains the reply through the provider's structured
	// output support and is checked locally as well.
	Schema *Schema

	// JSONMode asks for a bare JSON object with no schema. Such replies
	// may still be malformed; the caller repairs or rejects them. Schema
	// takes precedence.
	JSONMode bool

	MaxTokens   int
	Temperature *float64 // 0..1; nil leaves the provider default
}

// Float returns a pointer to v, for Request.Temperature.
func Float(v float64) *float64 { return &v }

type Message struct {
	Role    Role
	Content string
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is a named JSON Schema. Name doubles as the cache key for the
// compiled validator, so one name must always mean one definition.
type Schema struct {
	Name        string // kebab-case, e.g. "study-plan"
	Description string
	Definition  map[string]any
}

type Response struct {
	// Content is the reply text. It is valid JSON when the request had a
	// Schema and otherwise exactly what the model produced.
	Content    json.RawMessage
	Usage      Usage
	Model      string // model that served the reply
	StopReason string // one of the Stop constants
}

// Why generation ended, normalized across providers.
const (
	StopEnd           = "end"
	StopMaxTokens     = "max_tokens"
	StopContentFilter = "content_filter"
)

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// finish builds the Response every provider returns. JSON output that hit
// the token limit is unusable and comes back as *ErrMaxTokensExceeded;
// schema-constrained output is validated.
func finish(req Request, content json.RawMessage, usage Usage, model, stop string) (*Response, error) {
	if stop == StopMaxTokens && (req.Schema != nil || req.JSONMode) {
		return nil, &ErrMaxTokensExceeded{Content: content, Limit: req.MaxTokens}
	}
	if err := validateResponse(req.Schema, content); err != nil {
		return nil, err
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	return &Response{Content: content, Usage: usage, Model: model, StopReason: stop}, nil
}
