package llm

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted in Config.Provider and EXAMPREP_LLM_PROVIDER.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderMock       = "mock"
)

// Config selects and configures the provider behind plan synthesis.
type Config struct {
	Provider string

	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
	Retry      RetryConfig

	// Timeout bounds one Generate call including its retries. A plan is a
	// long JSON document, so this is generous.
	Timeout time.Duration
}

type AnthropicConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // for OpenAI-compatible gateways

	HTTPClient *http.Client
}

type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string // defaults to https://openrouter.ai/api/v1

	HTTPClient *http.Client
}

// RetryConfig shapes the backoff between attempts.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

func DefaultConfig() Config {
	return Config{
		Provider:   ProviderAnthropic,
		Anthropic:  AnthropicConfig{Model: "claude-haiku"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "google/gemini-2.0-flash-exp"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2,
		},
		Timeout: 2 * time.Minute,
	}
}

// keyedProviders lists the providers that need an API key, in the order
// DiscoverConfig probes their vendor variables.
var keyedProviders = []struct {
	name      string
	vendorKey string
}{
	{ProviderGemini, "GEMINI_API_KEY"},
	{ProviderOpenAI, "OPENAI_API_KEY"},
	{ProviderAnthropic, "ANTHROPIC_API_KEY"},
	{ProviderOpenRouter, "OPENROUTER_API_KEY"},
}

// settings points at the key, model and base URL of the named provider,
// or returns nil pointers for providers without credentials.
func (c *Config) settings(provider string) (key, model, baseURL *string) {
	switch provider {
	case ProviderAnthropic:
		return &c.Anthropic.APIKey, &c.Anthropic.Model, &c.Anthropic.BaseURL
	case ProviderOpenAI:
		return &c.OpenAI.APIKey, &c.OpenAI.Model, &c.OpenAI.BaseURL
	case ProviderGemini:
		return &c.Gemini.APIKey, &c.Gemini.Model, &c.Gemini.BaseURL
	case ProviderOpenRouter:
		return &c.OpenRouter.APIKey, &c.OpenRouter.Model, &c.OpenRouter.BaseURL
	}
	return nil, nil, nil
}

func keyVar(provider string) string {
	return "EXAMPREP_" + strings.ToUpper(provider) + "_API_KEY"
}

// ConfigFromEnv overlays EXAMPREP_* variables on DefaultConfig. Per
// provider it reads EXAMPREP_<NAME>_API_KEY, _MODEL and _BASE_URL.
// Unparsable numbers and durations keep their defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	setFromEnv(&cfg.Provider, "EXAMPREP_LLM_PROVIDER")

	for _, p := range keyedProviders {
		key, model, baseURL := cfg.settings(p.name)
		prefix := "EXAMPREP_" + strings.ToUpper(p.name)
		setFromEnv(key, prefix+"_API_KEY")
		setFromEnv(model, prefix+"_MODEL")
		setFromEnv(baseURL, prefix+"_BASE_URL")
	}

	if d, err := time.ParseDuration(os.Getenv("EXAMPREP_LLM_TIMEOUT")); err == nil && d > 0 {
		cfg.Timeout = d
	}
	if n, err := strconv.Atoi(os.Getenv("EXAMPREP_LLM_MAX_ATTEMPTS")); err == nil && n > 0 {
		cfg.Retry.MaxAttempts = n
	}
	return cfg
}

func setFromEnv(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// DiscoverConfig picks the first provider whose vendor API key variable
// (GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, OPENROUTER_API_KEY)
// is set.
func DiscoverConfig() (Config, bool) {
	for _, p := range keyedProviders {
		k := os.Getenv(p.vendorKey)
		if k == "" {
			continue
		}
		cfg := DefaultConfig()
		cfg.Provider = p.name
		key, _, _ := cfg.settings(p.name)
		*key = k
		return cfg, true
	}
	return Config{}, false
}

// Validate checks that the selected provider exists and has its key.
func (c Config) Validate() error {
	if c.Provider == ProviderMock {
		return nil
	}
	key, _, _ := c.settings(c.Provider)
	if key == nil {
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if *key == "" {
		return fmt.Errorf("%s is required for the %s provider", keyVar(c.Provider), c.Provider)
	}
	return nil
}
