package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/examprep/internal/logger"
	"github.com/abhisek/examprep/internal/store"
)

// LoggingProvider is a decorator that records every LLM request as an event
// and a structured log line.
type LoggingProvider struct {
	inner     Provider
	name      string
	eventRepo store.EventRepo
	log       *logger.Logger
}

// WithLogging wraps a Provider with event logging. name is the provider
// recorded with each event; repo may be nil.
func WithLogging(p Provider, name string, repo store.EventRepo, log *logger.Logger) Provider {
	return &LoggingProvider{
		inner:     p,
		name:      name,
		eventRepo: repo,
		log:       logger.OrNop(log).With("component", "llm", "provider", name),
	}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	ev := l.event(ctx, req, resp, err, time.Since(start))

	log := l.log.With(logFieldsFrom(ctx)...).With(
		"purpose", ev.Purpose,
		"model", ev.Model,
		"latency_ms", ev.LatencyMs,
	)
	if err != nil {
		log.Warn("llm request failed", "stop_reason", ev.StopReason, "error", err)
	} else {
		log.Info("llm request completed",
			"stop_reason", ev.StopReason,
			"input_tokens", ev.InputTokens,
			"output_tokens", ev.OutputTokens,
		)
	}

	// A failed event write never fails the request.
	if l.eventRepo != nil {
		if werr := l.eventRepo.AppendLLMRequest(ctx, ev); werr != nil {
			log.Warn("failed to record llm request event", "error", werr)
		}
	}
	return resp, err
}

// event describes one attempt. Truncated replies keep their partial
// output so the event log shows where generation stopped.
func (l *LoggingProvider) event(ctx context.Context, req Request, resp *Response, err error, took time.Duration) store.LLMRequestEventData {
	ev := store.LLMRequestEventData{
		Provider:    l.name,
		Model:       l.inner.ModelID(),
		Purpose:     PurposeFrom(ctx),
		LatencyMs:   took.Milliseconds(),
		Success:     err == nil,
		RequestBody: serializeRequest(req),
	}
	if resp != nil {
		ev.Model = resp.Model
		ev.StopReason = resp.StopReason
		ev.InputTokens = resp.Usage.InputTokens
		ev.OutputTokens = resp.Usage.OutputTokens
		ev.ResponseBody = string(resp.Content)
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
		var truncated *ErrMaxTokensExceeded
		if errors.As(err, &truncated) {
			ev.StopReason = StopMaxTokens
			ev.ResponseBody = string(truncated.Content)
		}
	}
	return ev
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// serializeRequest builds a readable representation of the LLM request.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s]\n", m.Role)
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	switch {
	case req.Schema != nil:
		schemaDef, err := json.Marshal(req.Schema.Definition)
		if err == nil {
			fmt.Fprintf(&b, "[schema: %s]\n", req.Schema.Name)
			b.WriteString(string(schemaDef))
			b.WriteString("\n")
		}
	case req.JSONMode:
		b.WriteString("[json mode]\n")
	}

	return b.String()
}
