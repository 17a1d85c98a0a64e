package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/diysmart/productinfo/internal/domain"
	"github.com/diysmart/productinfo/internal/infrastructure/logger"
)

// AnthropicClient calls the Messages API through the official SDK
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	rateLimiter *rate.Limiter
	logger      logger.Logger
}

// NewAnthropicClient creates a client from cfg
func NewAnthropicClient(cfg Config, log logger.Logger) *AnthropicClient {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:      log.With(logger.String("component", "llm"), logger.String("provider", ProviderAnthropic)),
	}
}

// Complete sends prompt, and image when present, as one user turn
func (c *AnthropicClient) Complete(ctx context.Context, prompt string, image []byte) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %w", domain.ErrLLMTransport, err)
	}

	blocks := []anthropic.ContentBlockParamUnion{}
	if len(image) > 0 {
		blocks = append(blocks, anthropic.NewImageBlockBase64(imageMediaType(image), base64.StdEncoding.EncodeToString(image)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(prompt))

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		c.logger.Warn("LLM request failed", logger.Error(err))
		return "", mapAnthropicError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrLLMModel)
	}
	return sb.String(), nil
}

func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", domain.ErrLLMRateLimited, err)
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %v", domain.ErrLLMNotConfigured, err)
		case retryableStatus(apiErr.StatusCode):
			return fmt.Errorf("%w: %v", domain.ErrLLMTransport, err)
		default:
			return fmt.Errorf("%w: %v", domain.ErrLLMModel, err)
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrLLMTransport, err)
}
