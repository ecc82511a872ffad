// Package chat answers questions with an OpenAI-compatible chat model.
package chat

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"ragreader/internal/logger"
)

const (
	DefaultModel = "llama3.2"

	// DefaultSystemPrompt frames the model as a reading assistant bound to the
	// supplied context.
	DefaultSystemPrompt = "You are a helpful reading assistant who answers questions based on snippets of text provided in context. " +
		"Answer only using the context provided, being short but not too short. " +
		"If you're unsure, just say that you don't know, and if the context is not present reply that the document doesn't contain the necessary information."
)

type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float32
	// Timeout bounds one completion request, including reading the reply.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Client implements domain.Completer.
type Client struct {
	api         *goopenai.Client
	model       string
	temperature float32
	log         zerolog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	apiCfg := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{
		api:         goopenai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		log:         logger.Component(cfg.Logger, "chat").With().Str("model", cfg.Model).Logger(),
	}
}

// Complete sends one system and one user message and returns the reply.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		c.log.Error().Err(err).Dur("duration", time.Since(start)).Msg("chat completion failed")
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	c.log.Debug().Dur("duration", time.Since(start)).Int("completion_tokens", resp.Usage.CompletionTokens).Msg("chat completion done")
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
