package adapter

import (
	"context"
	"fmt"

	"github.com/SirMichaelJacob/Study-Plan-Agent/pkg/config"
)

// New builds the adapter selected by cfg.Provider, wrapped with retries.
// cfg should already have passed Validate.
func New(ctx context.Context, cfg *config.Config) (Adapter, error) {
	var (
		a   Adapter
		err error
	)
	switch cfg.Provider {
	case "openai":
		a, err = NewOpenAIAdapter(cfg.APIKey, cfg.BaseURL)
	case "deepseek":
		a, err = NewDeepSeekAdapter(cfg.APIKey, cfg.BaseURL)
	case "ollama":
		a = NewOllamaAdapter(cfg.BaseURL)
	case "anthropic":
		a, err = NewAnthropicAdapter(cfg.APIKey, cfg.BaseURL)
	case "google":
		a, err = NewGoogleAdapter(ctx, cfg.APIKey, cfg.BaseURL)
	case "mock":
		a = NewMockAdapter()
	default:
		return nil, &config.ConfigurationError{
			Field:  "MODEL_PROVIDER",
			Reason: fmt.Sprintf("unknown provider %q", cfg.Provider),
		}
	}
	if err != nil {
		return nil, &config.ConfigurationError{Field: "API_KEY", Reason: err.Error()}
	}
	return WithRetry(a, cfg.Retry), nil
}
