package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/abhisek/examprep/internal/logger"
	"github.com/abhisek/examprep/internal/store"
)

// ErrNoProvider is returned by NewProviderFromEnv when no provider is
// selected and no API key can be discovered.
var ErrNoProvider = errors.New("no LLM provider configured: set EXAMPREP_LLM_PROVIDER or a provider API key")

// NewProvider creates a Provider from configuration.
// It returns the provider wrapped with retry and logging middleware.
// events may be nil, in which case requests are only logged through log.
func NewProvider(ctx context.Context, cfg Config, events store.EventRepo, log *logger.Logger) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case ProviderAnthropic:
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case ProviderOpenAI:
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case ProviderGemini:
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case ProviderOpenRouter:
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case ProviderMock:
		return emptyPlanProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	// Every attempt is logged; the timeout spans all of them.
	logged := WithLogging(base, cfg.Provider, events, log)
	return WithRetry(logged, cfg.Retry).WithTimeout(cfg.Timeout), nil
}

// NewProviderFromEnv builds a provider from EXAMPREP_* variables when
// EXAMPREP_LLM_PROVIDER is set, otherwise from the first standard API key
// found by DiscoverConfig.
func NewProviderFromEnv(ctx context.Context, events store.EventRepo, log *logger.Logger) (Provider, Config, error) {
	var cfg Config
	if os.Getenv("EXAMPREP_LLM_PROVIDER") != "" {
		cfg = ConfigFromEnv()
	} else {
		discovered, ok := DiscoverConfig()
		if !ok {
			return nil, Config{}, ErrNoProvider
		}
		cfg = discovered
	}

	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}

	p, err := NewProvider(ctx, cfg, events, log)
	if err != nil {
		return nil, cfg, err
	}
	return p, cfg, nil
}
