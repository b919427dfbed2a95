package llm

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/abhisek/examprep/internal/store"
)

func TestMockProvider_FIFO(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"a":1}`), Usage: Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
		MockResponse{Err: &ErrRateLimit{}},
	)
	mock.AddResponse(MockResponse{Content: json.RawMessage(`{"c":3}`)})

	resp, err := mock.Generate(context.Background(), Request{System: "sys", Messages: []Message{{Role: RoleUser, Content: "first"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != `{"a":1}` || resp.Usage.InputTokens != 10 || resp.Model != "mock" {
		t.Fatalf("unexpected first response: %+v", resp)
	}

	_, err = mock.Generate(context.Background(), Request{})
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimit, got %T", err)
	}

	resp, err = mock.Generate(context.Background(), Request{})
	if err != nil || string(resp.Content) != `{"c":3}` {
		t.Fatalf("unexpected third response: %v %v", resp, err)
	}

	_, err = mock.Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("empty queue should be unavailable, got %T", err)
	}

	if mock.CallCount() != 4 {
		t.Fatalf("calls = %d, want 4", mock.CallCount())
	}
	if mock.Calls[0].System != "sys" {
		t.Fatalf("first call not recorded: %+v", mock.Calls[0])
	}
}

func TestMockProvider_FallbackAndStop(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{"dailySchedule":`), Stop: StopMaxTokens})
	mock.Fallback = func(req Request) MockResponse {
		return TextResponse(`{"echo":"` + req.System + `"}`)
	}

	_, err := mock.Generate(context.Background(), Request{JSONMode: true, MaxTokens: 20})
	var maxTok *ErrMaxTokensExceeded
	if !errors.As(err, &maxTok) || maxTok.Limit != 20 {
		t.Fatalf("expected ErrMaxTokensExceeded with limit 20, got %v", err)
	}

	resp, err := mock.Generate(context.Background(), Request{System: "hi"})
	if err != nil || string(resp.Content) != `{"echo":"hi"}` || resp.StopReason != StopEnd {
		t.Fatalf("unexpected fallback reply: %v %v", resp, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mock.Generate(ctx, Request{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPurposeContext(t *testing.T) {
	ctx := context.Background()
	if p := PurposeFrom(ctx); p != "unknown" {
		t.Fatalf("expected 'unknown', got %q", p)
	}

	ctx = WithPurpose(ctx, "study-plan")
	if p := PurposeFrom(ctx); p != "study-plan" {
		t.Fatalf("expected 'study-plan', got %q", p)
	}
}

func TestLogFieldsAccumulate(t *testing.T) {
	ctx := context.Background()
	if f := logFieldsFrom(ctx); f != nil {
		t.Fatalf("fields = %v, want none", f)
	}

	outer := WithLogFields(ctx, "user_id", "u1")
	inner := WithLogFields(outer, "syllabus_id", "bio")
	if got := logFieldsFrom(inner); len(got) != 4 || got[0] != "user_id" || got[3] != "bio" {
		t.Fatalf("fields = %v", got)
	}
	if got := logFieldsFrom(outer); len(got) != 2 {
		t.Fatalf("outer fields changed: %v", got)
	}
}

func TestLoggingProvider_RecordsTruncatedOutput(t *testing.T) {
	events := &recordingEvents{}
	partial := json.RawMessage(`{"dailySchedule": {"day1": [`)
	p := WithLogging(NewMockProvider(MockResponse{Content: partial, Stop: StopMaxTokens}), "mock", events, nil)

	ctx := WithLogFields(context.Background(), "user_id", "u1")
	if _, err := p.Generate(ctx, Request{JSONMode: true, MaxTokens: 50}); err == nil {
		t.Fatal("expected truncation error")
	}
	if len(events.events) != 1 || events.events[0].ResponseBody != string(partial) || events.events[0].StopReason != StopMaxTokens {
		t.Fatalf("events = %+v", events.events)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"anthropic without key", Config{Provider: "anthropic"}, "EXAMPREP_ANTHROPIC_API_KEY"},
		{"anthropic with key", Config{Provider: "anthropic", Anthropic: AnthropicConfig{APIKey: "sk-test"}}, ""},
		{"openai without key", Config{Provider: "openai"}, "EXAMPREP_OPENAI_API_KEY"},
		{"gemini without key", Config{Provider: "gemini"}, "EXAMPREP_GEMINI_API_KEY"},
		{"openrouter with key", Config{Provider: "openrouter", OpenRouter: OpenRouterConfig{APIKey: "sk-or"}}, ""},
		{"mock needs no key", Config{Provider: "mock"}, ""},
		{"unknown provider", Config{Provider: "unknown"}, "unknown LLM provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EXAMPREP_LLM_PROVIDER", "EXAMPREP_LLM_TIMEOUT",
		"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestConfigFromEnv(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("EXAMPREP_LLM_PROVIDER", "openai")
	t.Setenv("EXAMPREP_OPENAI_API_KEY", "sk-env")
	t.Setenv("EXAMPREP_OPENAI_MODEL", "gpt-4.1-mini")
	t.Setenv("EXAMPREP_LLM_TIMEOUT", "45s")

	cfg := ConfigFromEnv()
	if cfg.Provider != "openai" || cfg.OpenAI.APIKey != "sk-env" || cfg.OpenAI.Model != "gpt-4.1-mini" {
		t.Fatalf("unexpected config: %+v", cfg.OpenAI)
	}
	if cfg.Timeout.String() != "45s" {
		t.Fatalf("timeout = %s, want 45s", cfg.Timeout)
	}
}

func TestNewProviderFromEnv(t *testing.T) {
	t.Run("explicit mock", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("EXAMPREP_LLM_PROVIDER", "mock")
		p, cfg, err := NewProviderFromEnv(context.Background(), nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Provider != "mock" || p.ModelID() != "mock" {
			t.Fatalf("unexpected provider %q", p.ModelID())
		}
		resp, err := p.Generate(context.Background(), Request{JSONMode: true})
		if err != nil || !strings.Contains(string(resp.Content), "dailySchedule") {
			t.Fatalf("mock provider should answer with an empty plan, got %v %v", resp, err)
		}
	})

	t.Run("discovered key", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
		p, cfg, err := NewProviderFromEnv(context.Background(), nil, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Provider != "openrouter" || p.ModelID() != "google/gemini-2.0-flash-exp" {
			t.Fatalf("unexpected provider %q (%s)", cfg.Provider, p.ModelID())
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		clearProviderEnv(t)
		_, _, err := NewProviderFromEnv(context.Background(), nil, nil)
		if !errors.Is(err, ErrNoProvider) {
			t.Fatalf("expected ErrNoProvider, got %v", err)
		}
	})

	t.Run("explicit provider without key", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("EXAMPREP_LLM_PROVIDER", "gemini")
		t.Setenv("EXAMPREP_GEMINI_API_KEY", "")
		if _, _, err := NewProviderFromEnv(context.Background(), nil, nil); err == nil {
			t.Fatal("expected validation error")
		}
	})
}

type recordingEvents struct {
	store.EventRepo
	events []store.LLMRequestEventData
	err    error
}

func (r *recordingEvents) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	r.events = append(r.events, data)
	return r.err
}

func TestLoggingProvider_RecordsEvents(t *testing.T) {
	events := &recordingEvents{}
	mock := NewMockProvider(
		MockResponse{Content: planJSON, Usage: Usage{InputTokens: 100, OutputTokens: 40}},
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
	)
	p := WithLogging(mock, "openai", events, nil)

	ctx := WithPurpose(context.Background(), "study-plan")
	req := Request{
		System:   "planner",
		Messages: []Message{{Role: RoleUser, Content: "Plan algebra"}},
		JSONMode: true,
	}
	if _, err := p.Generate(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Generate(ctx, req); err == nil {
		t.Fatal("expected error from second call")
	}

	if len(events.events) != 2 {
		t.Fatalf("events = %d, want 2", len(events.events))
	}
	ok, failed := events.events[0], events.events[1]
	if !ok.Success || ok.Provider != "openai" || ok.Purpose != "study-plan" || ok.InputTokens != 100 || ok.ResponseBody != string(planJSON) || ok.StopReason != StopEnd {
		t.Fatalf("unexpected success event: %+v", ok)
	}
	if !strings.Contains(ok.RequestBody, "[json mode]") || !strings.Contains(ok.RequestBody, "Plan algebra") {
		t.Fatalf("request body not serialized: %q", ok.RequestBody)
	}
	if failed.Success || !strings.Contains(failed.ErrorMessage, "down") {
		t.Fatalf("unexpected failure event: %+v", failed)
	}
}

func TestLoggingProvider_EventFailureDoesNotFailRequest(t *testing.T) {
	events := &recordingEvents{err: errors.New("disk full")}
	p := WithLogging(NewMockProvider(MockResponse{Content: planJSON}), "mock", events, nil)
	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("event write failure leaked: %v", err)
	}

	// A nil repository is allowed.
	p = WithLogging(NewMockProvider(MockResponse{Content: planJSON}), "mock", nil, nil)
	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLookupCost(t *testing.T) {
	if c := LookupCost("claude-haiku"); c == nil || c.InputPerMTok != 1 {
		t.Fatalf("alias lookup failed: %+v", c)
	}
	c := LookupCost("gpt-4o-mini")
	if c == nil {
		t.Fatal("expected pricing for gpt-4o-mini")
	}
	if got := c.Cost(1_000_000, 1_000_000); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("cost = %v, want 0.75", got)
	}
	if LookupCost("unknown-model") != nil {
		t.Fatal("expected nil for unknown model")
	}
}
