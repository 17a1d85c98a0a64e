package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/diysmart/productinfo/internal/domain"
	"github.com/diysmart/productinfo/internal/infrastructure/logger"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint
type OpenAIClient struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	maxAttempts int
	rateLimiter *rate.Limiter
	logger      logger.Logger
}

// NewOpenAIClient creates a client from cfg
func NewOpenAIClient(cfg Config, log logger.Logger) *OpenAIClient {
	cfg = cfg.withDefaults()
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &OpenAIClient{
		// Deadlines come from the caller's context
		httpClient:  &http.Client{},
		apiKey:      cfg.APIKey,
		baseURL:     base,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		maxAttempts: cfg.MaxRetries + 1,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:      log.With(logger.String("component", "llm"), logger.String("provider", ProviderOpenAI)),
	}
}

type chatContentPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *chatImagePart `json:"image_url,omitempty"`
}

type chatImagePart struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt, and image when present, as a single user message
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, image []byte) (string, error) {
	parts := []chatContentPart{{Type: "text", Text: prompt}}
	if len(image) > 0 {
		parts = append(parts, chatContentPart{
			Type:     "image_url",
			ImageURL: &chatImagePart{URL: dataURI(image)},
		})
	}
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: parts}},
		MaxTokens:   c.maxTokens,
		Temperature: 0.1,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", domain.ErrLLMModel, err)
	}

	respBody, err := c.post(ctx, c.baseURL+"/v1/chat/completions", body)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrLLMModel, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrLLMModel)
	}
	return resp.Choices[0].Message.Content, nil
}

// post retries transport failures and 5xx responses with backoff. Provider
// throttling is returned at once so the caller can fall through.
func (c *OpenAIClient) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", domain.ErrLLMTransport, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: build request: %v", domain.ErrLLMTransport, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %w", domain.ErrLLMTransport, err)
			c.logger.Warn("LLM request failed", logger.Int("attempt", attempt), logger.Error(err))
			if sleepErr := sleepContext(ctx, backoff(attempt)); sleepErr != nil {
				return nil, lastErr
			}
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("%w: read response: %w", domain.ErrLLMTransport, readErr)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		lastErr = statusError(resp.StatusCode, respBody)
		if !retryableStatus(resp.StatusCode) {
			return nil, lastErr
		}
		c.logger.Warn("LLM provider error",
			logger.Int("attempt", attempt),
			logger.Int("status", resp.StatusCode))
		if sleepErr := sleepContext(ctx, backoff(attempt)); sleepErr != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func dataURI(image []byte) string {
	return "data:" + imageMediaType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)
}

// imageMediaType sniffs the image format, defaulting to JPEG
func imageMediaType(image []byte) string {
	switch ct := http.DetectContentType(image); ct {
	case "image/png", "image/gif", "image/webp", "image/jpeg":
		return ct
	}
	return "image/jpeg"
}

// statusError maps a provider HTTP status onto the client error sentinels
func statusError(status int, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", domain.ErrLLMRateLimited, status, snippet)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: credentials rejected (status %d)", domain.ErrLLMNotConfigured, status)
	case retryableStatus(status):
		return fmt.Errorf("%w: status %d: %s", domain.ErrLLMTransport, status, snippet)
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrLLMModel, status, snippet)
	}
}

func retryableStatus(status int) bool {
	return status == http.StatusRequestTimeout || status == 529 || (status >= 500 && status <= 599)
}

func backoff(attempt int) time.Duration {
	return time.Duration(250*(1<<(attempt-1))) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
