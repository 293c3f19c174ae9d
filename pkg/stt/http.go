package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-lightwall/internal/httpc"
	"github.com/teslashibe/go-lightwall/internal/log"
)

// HTTP defaults.
const (
	DefaultHTTPModel = "whisper-1"
	DefaultLanguage  = "en"
)

// HTTP transcribes through an OpenAI-compatible /audio/transcriptions
// endpoint, such as a local whisper server or a hosted API.
type HTTP struct {
	baseURL  string
	apiKey   string
	model    string
	language string
	client   *http.Client
	logger   *slog.Logger
}

// HTTPOption configures an HTTP transcriber.
type HTTPOption func(*HTTP)

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) HTTPOption {
	return func(h *HTTP) { h.apiKey = key }
}

// WithModel sets the model name sent with each request.
func WithModel(model string) HTTPOption {
	return func(h *HTTP) { h.model = model }
}

// WithLanguage sets the language hint.
func WithLanguage(lang string) HTTPOption {
	return func(h *HTTP) { h.language = lang }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTP) { h.logger = l }
}

// NewHTTP creates a transcriber for the service at baseURL, for example
// "https://api.openai.com/v1".
func NewHTTP(baseURL string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		model:    DefaultHTTPModel,
		language: DefaultLanguage,
		client:   httpc.NewClient(DefaultTimeout),
		logger:   log.Component("stt.http"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Transcribe uploads samples as a WAV file.
func (h *HTTP) Transcribe(ctx context.Context, samples []int16, rate int) (string, error) {
	if len(samples) == 0 {
		return "", ErrEmptyAudio
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	writer.WriteField("model", h.model)
	writer.WriteField("response_format", "json")
	if h.language != "" {
		writer.WriteField("language", h.language)
	}
	part, err := writer.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if err := WriteWAV(part, samples, rate); err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	h.logger.Debug("transcribed", "took", time.Since(start), "chars", len(result.Text))
	return strings.TrimSpace(result.Text), nil
}

var _ Transcriber = (*HTTP)(nil)
