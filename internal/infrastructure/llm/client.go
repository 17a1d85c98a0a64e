// Package llm provides the multimodal completion clients used by the
// LLM-vision extraction strategy.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/diysmart/productinfo/internal/domain"
	"github.com/diysmart/productinfo/internal/infrastructure/logger"
)

// Providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

const maxResponseBytes = 4 << 20

// Config selects and tunes a provider
type Config struct {
	Provider          string
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
}

func (c Config) withDefaults() Config {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.Burst <= 0 {
		c.Burst = 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Model == "" {
		switch strings.ToLower(c.Provider) {
		case ProviderAnthropic:
			c.Model = "claude-sonnet-4-20250514"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
	return c
}

// New builds the client for cfg.Provider. A missing API key or the "none"
// provider yields a DisabledClient so extraction falls through to the other
// strategies.
func New(cfg Config, log logger.Logger) (domain.LLMClient, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == ProviderNone || provider == "" || cfg.APIKey == "" {
		return DisabledClient{}, nil
	}
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg, log), nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, log), nil
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
}

// DisabledClient stands in when no provider is configured
type DisabledClient struct{}

// Complete always reports the provider as not configured
func (DisabledClient) Complete(context.Context, string, []byte) (string, error) {
	return "", domain.ErrLLMNotConfigured
}
