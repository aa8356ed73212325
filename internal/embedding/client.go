package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder converts one text unit into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// embeddingAPI is the slice of the go-openai client the Client depends on.
type embeddingAPI interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Metrics is the optional observability hook consumed by the client.
type Metrics interface {
	RecordEmbedRequest(err error)
	RecordEmbedRetry()
}

// Client calls the embedding service with rate-limit-aware retry/backoff.
// Rate-limited and other transient failures share one retry schedule; the
// uniform treatment is deliberate.
type Client struct {
	api            embeddingAPI
	model          openai.EmbeddingModel
	maxRetries     int
	initialBackoff time.Duration
	metrics        Metrics
}

// Option mutates client construction.
type Option func(*Client)

// WithMetrics attaches observability counters.
func WithMetrics(m Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetryPolicy overrides the retry ceiling and first backoff delay.
func WithRetryPolicy(maxRetries int, initialBackoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialBackoff = initialBackoff
	}
}

// NewClient builds a client for an OpenAI-compatible embeddings endpoint.
func NewClient(baseURL, apiKey, model string, opts ...Option) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		base := strings.TrimRight(baseURL, "/")
		if !strings.HasSuffix(base, "/v1") {
			base += "/v1"
		}
		cfg.BaseURL = base
	}

	c := &Client{
		api:            openai.NewClientWithConfig(cfg),
		model:          openai.EmbeddingModel(model),
		maxRetries:     5,
		initialBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed fetches the vector for exactly one text unit, retrying on failure
// with exponential backoff (initialBackoff doubled per retry) up to the
// configured ceiling.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is required")
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.initialBackoff << (attempt - 1)
			if c.metrics != nil {
				c.metrics.RecordEmbedRetry()
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: c.model,
		})
		if c.metrics != nil {
			c.metrics.RecordEmbedRequest(err)
		}
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Data) == 0 {
			lastErr = errors.New("embedding service returned no vectors")
			continue
		}
		return resp.Data[0].Embedding, nil
	}

	if isRateLimited(lastErr) {
		return nil, fmt.Errorf("embedding rate limit not cleared after %d retries: %w", c.maxRetries, lastErr)
	}
	return nil, fmt.Errorf("embed failed after %d retries: %w", c.maxRetries, lastErr)
}

// isRateLimited reports whether the embedding service signalled HTTP 429.
func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	return errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests
}
