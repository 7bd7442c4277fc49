// Package llm implements the model-facing agents on top of
// OpenAI-compatible chat and embedding endpoints.
package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"mailagent/core/port/out"
	"mailagent/pkg/apperr"
)

// Client talks to OpenAI-compatible endpoints. Model and credentials are
// resolved per call, so one client serves every user and custom model.
type Client struct {
	mu      sync.Mutex
	clients map[string]*openai.Client // key: apiKey + "|" + baseURL

	defaultBaseURL string
	timeout        time.Duration
	embedTimeout   time.Duration
	maxRetries     int
	log            zerolog.Logger
}

// ClientConfig configures timeouts and the default endpoint.
type ClientConfig struct {
	DefaultBaseURL  string
	TimeoutSec      int
	EmbedTimeoutSec int
	MaxRetries      int
}

// NewClient creates the shared LLM client.
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	embedTimeout := time.Duration(cfg.EmbedTimeoutSec) * time.Second
	if embedTimeout <= 0 {
		embedTimeout = 120 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		clients:        make(map[string]*openai.Client),
		defaultBaseURL: cfg.DefaultBaseURL,
		timeout:        timeout,
		embedTimeout:   embedTimeout,
		maxRetries:     retries,
		log:            log.With().Str("component", "llm_client").Logger(),
	}
}

func (c *Client) clientFor(sel out.ModelSelection) *openai.Client {
	baseURL := sel.BaseURL
	if baseURL == "" {
		baseURL = c.defaultBaseURL
	}
	key := sel.APIKey + "|" + baseURL

	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[key]; ok {
		return cl
	}
	conf := openai.DefaultConfig(sel.APIKey)
	if baseURL != "" {
		conf.BaseURL = baseURL
	}
	cl := openai.NewClientWithConfig(conf)
	c.clients[key] = cl
	return cl
}

// complete runs one chat completion with timeout and bounded retry.
func (c *Client) complete(ctx context.Context, sel out.ModelSelection, messages []openai.ChatCompletionMessage) (string, error) {
	cl := c.clientFor(sel)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := cl.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:    sel.Model,
			Messages: messages,
		})
		cancel()
		if err != nil {
			lastErr = err
			c.log.Warn().Err(err).Str("model", sel.Model).Int("attempt", attempt+1).Msg("chat completion failed")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = apperr.ExternalError("llm", nil).WithDetail("model", sel.Model)
			continue
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}
	return "", apperr.ExternalError("llm", lastErr)
}

func (c *Client) completePrompt(ctx context.Context, sel out.ModelSelection, prompt string) (string, error) {
	return c.complete(ctx, sel, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
}

// Probe performs a minimal round trip for the settings connectivity test.
func (c *Client) Probe(ctx context.Context, sel out.ModelSelection) error {
	_, err := c.completePrompt(ctx, sel, "你好，请回复“连接正常”。")
	return err
}

// Embed returns one vector per input text.
func (c *Client) Embed(ctx context.Context, sel out.ModelSelection, texts []string) ([][]float32, error) {
	cl := c.clientFor(sel)

	callCtx, cancel := context.WithTimeout(ctx, c.embedTimeout)
	defer cancel()

	resp, err := cl.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(sel.Model),
		Input: texts,
	})
	if err != nil {
		return nil, apperr.ExternalError("embedding", err)
	}

	result := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		result[i] = data.Embedding
	}
	return result, nil
}

var (
	_ out.LLMPort       = (*Client)(nil)
	_ out.EmbeddingPort = (*Client)(nil)
)
