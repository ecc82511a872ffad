// Package openai embeds text through any server speaking the OpenAI
// /embeddings API, such as OpenAI itself or a local Ollama.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"ragreader/internal/domain"
	"ragreader/internal/logger"
)

const (
	DefaultBaseURL = "http://localhost:11434/v1"
	DefaultModel   = "nomic-embed-text"
)

// Config configures the embeddings client.
type Config struct {
	BaseURL string
	// APIKeyEnv names the environment variable holding the key. Local servers
	// need none.
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Logger     zerolog.Logger
}

// Client implements domain.Embedder.
type Client struct {
	api        *goopenai.Client
	model      string
	maxRetries int
	backoff    func(attempt int) time.Duration
	log        zerolog.Logger
}

// NewClient creates an embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("openai embedder: max retries must not be negative, got %d", cfg.MaxRetries)
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}

	apiCfg := goopenai.DefaultConfig(key)
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:        goopenai.NewClientWithConfig(apiCfg),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		backoff:    retryDelay,
		log:        logger.Component(cfg.Logger, "embedder").With().Str("model", cfg.Model).Logger(),
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Embed returns the embedding for text. Rate limiting, server errors and
// transport failures are retried with backoff; other failures return at once.
func (c *Client) Embed(ctx context.Context, text string) (domain.Vector, error) {
	req := goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(c.model),
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			c.log.Debug().Err(lastErr).Int("attempt", attempt).Dur("delay", delay).Msg("retrying embedding request")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.api.CreateEmbeddings(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			if retryable(err) {
				continue
			}
			return nil, err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, errors.New("no embedding returned")
		}
		return toVector(resp.Data[0].Embedding), nil
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", c.maxRetries+1, lastErr)
}

func toVector(in []float32) domain.Vector {
	out := make(domain.Vector, len(in))
	for i, x := range in {
		out[i] = float64(x)
	}
	return out
}

// retryable reports whether a failed call is worth repeating: 429, 5xx and
// anything that never produced an HTTP status.
func retryable(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		attempt = 5
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
