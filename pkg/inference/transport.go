package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// transport performs JSON requests with retries for one provider.
type transport struct {
	provider string
	baseURL  string
	apiKey   string
	http     *http.Client
	retries  int
	delay    time.Duration
	logger   *slog.Logger
}

// post marshals payload and POSTs it, retrying rate limits and server errors.
// On a non-200 response the body has already been parsed into an APIError.
func (t *transport) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(t.provider, fmt.Errorf("marshal payload: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(t.delay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(t.provider, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		t.authorize(req)

		resp, err := t.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, WrapError(t.provider, ctx.Err())
			}
			lastErr = WrapError(t.provider, err)
			t.logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		apiErr := t.parseError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		t.logger.Warn("retrying request",
			"attempt", attempt+1,
			"status", apiErr.StatusCode,
		)
	}

	return nil, lastErr
}

// get performs a GET and converts non-200 responses into an APIError.
func (t *transport) get(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return WrapError(t.provider, fmt.Errorf("create request: %w", err))
	}
	t.authorize(req)

	resp, err := t.http.Do(req)
	if err != nil {
		return WrapError(t.provider, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return t.parseError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (t *transport) authorize(req *http.Request) {
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
}

// parseError reads an OpenAI-style {"error":{"message":..}} or an
// Ollama-style {"error":"..."} body.
func (t *transport) parseError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	message := string(bytes.TrimSpace(body))
	code := ""

	var nested struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	var flat struct {
		Error string `json:"error"`
	}
	switch {
	case json.Unmarshal(body, &nested) == nil && nested.Error.Message != "":
		message = nested.Error.Message
		code = nested.Error.Code
	case json.Unmarshal(body, &flat) == nil && flat.Error != "":
		message = flat.Error
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   t.provider,
	}
}
