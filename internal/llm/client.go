// Package llm is the boundary to the local OpenAI-compatible inference
// server configured through settings.yaml.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"graphrag-backend/internal/config"
	appErrors "graphrag-backend/pkg/errors"
)

// Client wraps langchaingo's OpenAI-compatible client behind a circuit
// breaker. Chat and embeddings may target different endpoints, so two
// underlying clients are kept; both are rebuilt lazily whenever the
// settings snapshot changes. The supervisor re-reads settings.yaml after
// every successful indexing run, and the file watcher reloads it on edit.
type Client struct {
	settings *config.SettingsSource
	logger   *zap.Logger
	breaker  *gobreaker.CircuitBreaker

	mu    sync.Mutex
	built *config.Settings
	chat  *openai.LLM
	embed *openai.LLM
}

// NewClient creates the inference client. No connection is made until the
// first call.
func NewClient(settings *config.SettingsSource, logger *zap.Logger) *Client {
	return &Client{
		settings: settings,
		logger:   logger,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "inference",
			MaxRequests: 2,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 3 && counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Inference circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
			IsSuccessful: func(err error) bool {
				// A caller hitting its deadline says nothing about the
				// server's health.
				return err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
			},
		}),
	}
}

// Chat sends one system+user exchange and returns the model's reply.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	settings, err := c.rebuild()
	if err != nil {
		return "", err
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	started := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.chat.GenerateContent(ctx, messages,
			llms.WithMaxTokens(settings.LLM.MaxTokens),
			llms.WithTemperature(settings.LLM.Temperature),
		)
	})
	if err != nil {
		return "", c.callError("chat completion", err)
	}

	resp := result.(*llms.ContentResponse)
	if len(resp.Choices) == 0 {
		return "", appErrors.NewUpstream("model returned no choices", nil)
	}

	c.logger.Debug("Chat completion served",
		zap.String("model", settings.LLM.Model),
		zap.Duration("duration", time.Since(started)),
	)
	return resp.Choices[0].Content, nil
}

// Embed returns the embedding vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	settings, err := c.rebuild()
	if err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.embed.CreateEmbedding(ctx, []string{text})
	})
	if err != nil {
		return nil, c.callError("embedding", err)
	}

	vectors := result.([][]float32)
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, appErrors.NewUpstream("model returned no embedding", nil)
	}

	c.logger.Debug("Embedding served",
		zap.String("model", settings.Embeddings.LLM.Model),
		zap.Int("dimensions", len(vectors[0])),
	)
	return vectors[0], nil
}

// rebuild ensures the underlying clients match the current settings
// snapshot. Snapshots are immutable and swapped wholesale, so pointer
// identity is enough to detect change.
func (c *Client) rebuild() (*config.Settings, error) {
	current := c.settings.Current()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built == current && c.chat != nil {
		return current, nil
	}

	chat, err := openai.New(
		openai.WithBaseURL(current.LLM.APIBase),
		openai.WithToken(current.LLM.APIKey),
		openai.WithModel(current.LLM.Model),
	)
	if err != nil {
		return nil, appErrors.NewInternal("building chat client", err)
	}

	embed, err := openai.New(
		openai.WithBaseURL(current.Embeddings.LLM.APIBase),
		openai.WithToken(current.LLM.APIKey),
		openai.WithModel(current.Embeddings.LLM.Model),
		openai.WithEmbeddingModel(current.Embeddings.LLM.Model),
	)
	if err != nil {
		return nil, appErrors.NewInternal("building embedding client", err)
	}

	c.built = current
	c.chat = chat
	c.embed = embed

	c.logger.Info("Inference clients configured",
		zap.String("api_base", current.LLM.APIBase),
		zap.String("chat_model", current.LLM.Model),
		zap.String("embedding_model", current.Embeddings.LLM.Model),
	)
	return current, nil
}

func (c *Client) callError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return appErrors.NewUpstream("inference server unavailable after repeated failures", err)
	}
	return appErrors.NewUpstream(fmt.Sprintf("%s failed: %v", op, err), err)
}
