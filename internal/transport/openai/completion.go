package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/jxucoder/openregulations.ai/internal/domain"
	"github.com/jxucoder/openregulations.ai/internal/metrics"
)

// Completer is a chat completion provider using the OpenAI-compatible API.
type Completer struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// CompleterConfig holds the completion provider settings. Timeout bounds
// the whole call, streamed body included; zero leaves the client unbounded.
type CompleterConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Logger    *zap.Logger
}

// NewCompleter creates an OpenAI-compatible completion provider.
func NewCompleter(cfg *CompleterConfig) *Completer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Completer{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

// Complete runs one non-streamed chat completion.
func (c *Completer) Complete(ctx context.Context, system string, turns []domain.ChatTurn) (string, error) {
	req := c.request(system, turns)

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("completion", c.model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues("completion", c.model, "api_error").Inc()
		return "", parseAPIError("completion", err, domain.ErrCompletionProviderError)
	}

	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues("completion", c.model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues("completion", c.model, "empty_response").Inc()
		return "", fmt.Errorf("empty completion response: %w", domain.ErrCompletionProviderError)
	}

	metrics.LLMRequestsTotal.WithLabelValues("completion", c.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues("completion", c.model).Observe(duration.Seconds())

	if resp.Usage.TotalTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues("completion", c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.LLMTokensTotal.WithLabelValues("completion", c.model, "completion").Add(float64(resp.Usage.CompletionTokens))
		metrics.LLMTokensTotal.WithLabelValues("completion", c.model, "total").Add(float64(resp.Usage.TotalTokens))
	}

	return resp.Choices[0].Message.Content, nil
}

// CompleteStream runs one streamed chat completion, calling onDelta for
// every text chunk, and returns the accumulated text. Callback errors are
// returned unwrapped: they signal the caller's side failing, not the
// provider's.
func (c *Completer) CompleteStream(ctx context.Context, system string, turns []domain.ChatTurn, onDelta func(string) error) (string, error) {
	req := c.request(system, turns)
	req.Stream = true

	start := time.Now()

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues("completion", c.model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues("completion", c.model, "stream_open").Inc()
		return "", parseAPIError("completion", err, domain.ErrCompletionProviderError)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.LLMRequestsTotal.WithLabelValues("completion", c.model, "error").Inc()
			metrics.LLMErrorsTotal.WithLabelValues("completion", c.model, "stream_recv").Inc()
			return "", parseAPIError("completion", err, domain.ErrCompletionProviderError)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := onDelta(delta); err != nil {
			return "", err
		}
		b.WriteString(delta)
	}

	metrics.LLMRequestsTotal.WithLabelValues("completion", c.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues("completion", c.model).Observe(time.Since(start).Seconds())

	return b.String(), nil
}

func (c *Completer) request(system string, turns []domain.ChatTurn) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: t.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}
	if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}
	return req
}
