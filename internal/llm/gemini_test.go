package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestGeminiProvider_JSONMode(t *testing.T) {
	var body map[string]any
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": `{"dailySchedule":{"day1":[]}}`}},
				},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]any{
				"promptTokenCount":     12,
				"candidatesTokenCount": 8,
				"totalTokenCount":      20,
			},
		})
	}))
	t.Cleanup(server.Close)

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-flash",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	resp, err := p.Generate(context.Background(), Request{
		System:    "You are an expert study planner.",
		Messages:  []Message{{Role: RoleUser, Content: "Plan one day."}},
		JSONMode:  true,
		MaxTokens: 512,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Content) != `{"dailySchedule":{"day1":[]}}` {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
	if resp.Usage.TotalTokens != 20 {
		t.Fatalf("total tokens = %d, want 20", resp.Usage.TotalTokens)
	}
	if !strings.HasSuffix(path, "models/gemini-2.0-flash:generateContent") {
		t.Fatalf("unexpected path %q", path)
	}

	gen, _ := body["generationConfig"].(map[string]any)
	if gen["responseMimeType"] != "application/json" {
		t.Fatalf("responseMimeType = %v", gen["responseMimeType"])
	}
	if _, ok := gen["responseSchema"]; ok {
		t.Fatal("JSON mode must not send a response schema")
	}
}

func TestGeminiProvider_SendsJSONSchema(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": `{"dailySchedule":`}}},
				"finishReason": "MAX_TOKENS",
			}},
		})
	}))
	t.Cleanup(server.Close)

	p, err := NewGeminiProvider(context.Background(), GeminiConfig{APIKey: "test-key", Model: "gemini-pro", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = p.Generate(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "Plan."}},
		Schema:    scheduleSchema(),
		MaxTokens: 16,
	})
	var maxTok *ErrMaxTokensExceeded
	if !errors.As(err, &maxTok) || string(maxTok.Content) != `{"dailySchedule":` {
		t.Fatalf("expected truncation error, got %v", err)
	}

	gen, _ := body["generationConfig"].(map[string]any)
	schema, _ := gen["responseJsonSchema"].(map[string]any)
	props, _ := schema["properties"].(map[string]any)
	daily, _ := props["dailySchedule"].(map[string]any)
	if _, ok := daily["additionalProperties"]; !ok {
		t.Fatalf("schema not passed through: %v", gen["responseJsonSchema"])
	}
	if _, ok := gen["responseSchema"]; ok {
		t.Fatal("responseSchema must not be sent alongside responseJsonSchema")
	}
}

func TestMapGeminiError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"rate limit", genai.APIError{Code: http.StatusTooManyRequests}, func(err error) bool {
			var rl *ErrRateLimit
			return errors.As(err, &rl)
		}},
		{"forbidden", genai.APIError{Code: http.StatusForbidden}, func(err error) bool {
			var rejected *ErrRequestRejected
			return errors.As(err, &rejected)
		}},
		{"server error", genai.APIError{Code: http.StatusServiceUnavailable}, func(err error) bool {
			var unavail *ErrProviderUnavailable
			return errors.As(err, &unavail)
		}},
		{"transport", errors.New("connection reset"), func(err error) bool {
			var unavail *ErrProviderUnavailable
			return errors.As(err, &unavail)
		}},
	}
	for _, tt := range tests {
		if got := mapGeminiError(tt.err); !tt.check(got) {
			t.Errorf("%s: mapped to %T (%v)", tt.name, got, got)
		}
	}
}
