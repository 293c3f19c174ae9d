package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-lightwall/internal/httpc"
)

const providerOllama = "ollama"

// Ollama talks to Ollama's native /api/chat endpoint, which exposes the
// runtime options (context size, batch size, keep-alive) that the
// OpenAI-compatible endpoint hides.
type Ollama struct {
	config *Config
	t      *transport
}

// NewOllama creates an Ollama provider starting from DefaultOllamaConfig.
func NewOllama(opts ...Option) (*Ollama, error) {
	cfg := DefaultOllamaConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Ollama{
		config: cfg,
		t: &transport{
			provider: providerOllama,
			baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
			apiKey:   cfg.APIKey,
			http:     httpc.NewClient(cfg.Timeout),
			retries:  cfg.MaxRetries,
			delay:    cfg.RetryDelay,
			logger:   cfg.Logger.With("component", "inference.ollama"),
		},
	}, nil
}

// Model returns the configured model name.
func (o *Ollama) Model() string {
	return o.config.Model
}

type ollamaOptions struct {
	NumCtx      int      `json:"num_ctx,omitempty"`
	NumBatch    int      `json:"num_batch,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatRequest struct {
	Model     string        `json:"model"`
	Messages  []Message     `json:"messages"`
	Stream    bool          `json:"stream"`
	KeepAlive string        `json:"keep_alive,omitempty"`
	Options   ollamaOptions `json:"options"`
}

type ollamaChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// Chat sends the history and waits for the whole reply.
func (o *Ollama) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	body := ollamaChatRequest{
		Model:     o.config.Model,
		Messages:  req.Messages,
		Stream:    false,
		KeepAlive: o.config.KeepAlive,
		Options: ollamaOptions{
			NumCtx:      o.config.NumCtx,
			NumBatch:    o.config.NumBatch,
			NumPredict:  o.config.MaxTokens,
			Temperature: o.config.Temperature,
			TopP:        o.config.TopP,
			Stop:        req.Stop,
		},
	}
	if req.Model != "" {
		body.Model = req.Model
	}
	if req.MaxTokens > 0 {
		body.Options.NumPredict = req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Options.Temperature = req.Temperature
	}
	if req.TopP > 0 {
		body.Options.TopP = req.TopP
	}

	resp, err := o.t.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerOllama, fmt.Errorf("decode response: %w", err))
	}

	return &ChatResponse{
		Message:      NewAssistantMessage(result.Message.Content),
		FinishReason: result.DoneReason,
		Usage: Usage{
			PromptTokens:     result.PromptEvalCount,
			CompletionTokens: result.EvalCount,
			TotalTokens:      result.PromptEvalCount + result.EvalCount,
		},
		Model:     result.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Health checks that the server is up.
func (o *Ollama) Health(ctx context.Context) error {
	return o.t.get(ctx, "/api/tags")
}

// Close releases resources.
func (o *Ollama) Close() error {
	o.t.http.CloseIdleConnections()
	return nil
}

var _ Provider = (*Ollama)(nil)
