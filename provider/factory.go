package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Config selects and configures a backend by name.
type Config struct {
	Name       string
	Model      string
	APIKey     string
	BaseURL    string
	AWSRegion  string
	AWSProfile string
	HTTPClient *http.Client
}

// Names lists the backend names New accepts.
var Names = []string{"heuristic", "mock", "anthropic", "bedrock", "openai", "openrouter", "ollama", "gemini", "gemini-cli"}

// New builds the provider named by cfg.Name. A backend that needs an API key
// but has none falls back to Heuristic with a warning so a misconfigured agent
// still makes progress; an unknown name is an error.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	fallback := func() (Provider, error) {
		logger.Warn("provider has no credentials, using heuristic", "provider", name)
		return Heuristic{}, nil
	}

	switch name {
	case "", "heuristic", "mock":
		return Heuristic{}, nil
	case "anthropic":
		if cfg.APIKey == "" {
			return fallback()
		}
		return NewAnthropicProvider(ctx, AnthropicConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			HTTPClient: cfg.HTTPClient,
		})
	case "bedrock":
		return NewAnthropicProvider(ctx, AnthropicConfig{
			Model:      cfg.Model,
			Bedrock:    true,
			AWSRegion:  cfg.AWSRegion,
			AWSProfile: cfg.AWSProfile,
			HTTPClient: cfg.HTTPClient,
		})
	case "openai", "openrouter":
		if cfg.APIKey == "" {
			return fallback()
		}
		baseURL := cfg.BaseURL
		if baseURL == "" && name == "openrouter" {
			baseURL = openRouterBaseURL
		}
		return NewOpenAIProvider(OpenAIConfig{
			Name:       name,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    baseURL,
			HTTPClient: cfg.HTTPClient,
		}), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = ollamaBaseURL
		}
		return NewOpenAIProvider(OpenAIConfig{
			Name:       name,
			Model:      cfg.Model,
			BaseURL:    baseURL,
			HTTPClient: cfg.HTTPClient,
		}), nil
	case "gemini", "gemini-cli":
		if cfg.APIKey == "" {
			return fallback()
		}
		return NewGeminiProvider(ctx, GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			HTTPClient: cfg.HTTPClient,
		})
	default:
		return nil, fmt.Errorf("provider: unknown provider %q", cfg.Name)
	}
}
