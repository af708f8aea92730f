package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "ragcore/internal/errors"
	"ragcore/internal/observability"
)

// OpenAIConfig carries the provider settings. BaseURL may point at any
// OpenAI-compatible server (vLLM, Ollama, a hosted gateway).
type OpenAIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Dimensions     int
	Temperature    float32
	MaxTokens      int
	MaxConcurrent  int
	RequestTimeout time.Duration
}

// OpenAIClient implements Client and Embedder over an OpenAI-compatible
// API. A process-wide semaphore caps concurrent provider calls.
type OpenAIClient struct {
	api     *openai.Client
	cfg     OpenAIConfig
	sem     chan struct{}
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewOpenAIClient builds the provider client.
func NewOpenAIClient(cfg OpenAIConfig, metrics *observability.Collector, logger *zap.Logger) *OpenAIClient {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}

	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &OpenAIClient{
		api:     openai.NewClientWithConfig(apiCfg),
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		metrics: metrics,
		logger:  logger,
	}
}

// IsAvailable reports whether a model is configured.
func (c *OpenAIClient) IsAvailable() bool {
	return c != nil && c.cfg.Model != ""
}

// Complete answers a single prompt via the chat endpoint.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, opts)
}

// Chat answers a conversation. Transport failures are retried exactly once;
// afterwards the error propagates to the caller.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	req := c.buildRequest(messages, opts)

	var out string
	err := apperrors.Retry(ctx, apperrors.SingleRetryPolicy(), func(ctx context.Context) error {
		if err := c.acquire(ctx); err != nil {
			return err
		}
		defer c.release()

		start := time.Now()
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if c.metrics != nil {
			c.metrics.ObserveLLMCall("chat", time.Since(start), err)
		}
		if err != nil {
			c.logger.Warn("LLM chat call failed",
				zap.String("model", req.Model),
				zap.Error(err))
			return classifyProviderError(err)
		}
		if len(resp.Choices) == 0 {
			return apperrors.Transient("LLM_EMPTY", "provider returned no choices", nil)
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	return out, err
}

// Embed produces the embedding for one text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
	}
	if c.cfg.Dimensions > 0 {
		req.Dimensions = c.cfg.Dimensions
	}

	var vec []float32
	err := apperrors.Retry(ctx, apperrors.SingleRetryPolicy(), func(ctx context.Context) error {
		if err := c.acquire(ctx); err != nil {
			return err
		}
		defer c.release()

		start := time.Now()
		resp, err := c.api.CreateEmbeddings(ctx, req)
		if c.metrics != nil {
			c.metrics.ObserveLLMCall("embed", time.Since(start), err)
		}
		if err != nil {
			return classifyProviderError(err)
		}
		if len(resp.Data) == 0 {
			return apperrors.Transient("EMBED_EMPTY", "provider returned no embedding", nil)
		}
		vec = resp.Data[0].Embedding
		return nil
	})
	return vec, err
}

// Dimensions returns the configured embedding width.
func (c *OpenAIClient) Dimensions() int {
	return c.cfg.Dimensions
}

func (c *OpenAIClient) buildRequest(messages []Message, opts Options) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = c.cfg.Model
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = c.cfg.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func (c *OpenAIClient) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return apperrors.Transient("LLM_QUEUE", "cancelled while waiting for llm slot", ctx.Err())
	}
}

func (c *OpenAIClient) release() {
	<-c.sem
}

// classifyProviderError maps API failures onto engine error kinds: rate
// limits, 5xx and transport errors retry; auth failures abort.
func classifyProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized,
			apiErr.HTTPStatusCode == http.StatusForbidden:
			return apperrors.Fatal("LLM_AUTH", "provider rejected credentials", err)
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests,
			apiErr.HTTPStatusCode >= 500:
			return apperrors.Transient("LLM_UNAVAILABLE", "provider temporarily unavailable", err)
		default:
			return apperrors.Fatal("LLM_REQUEST", "provider rejected request", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.Transient("LLM_TIMEOUT", "provider call timed out", err)
	}
	return apperrors.Transient("LLM_TRANSPORT", "provider transport error", err)
}
