package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientChat(t *testing.T) {
	// Mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}

		// Check authorization header
		auth := r.Header.Get("Authorization")
		if auth != "Bearer test-key" {
			t.Errorf("Expected Bearer test-key, got %s", auth)
		}

		var body struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
			TopP     float64   `json:"top_p"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Model != "gpt-4o-mini" || len(body.Messages) != 2 || body.Messages[0].Role != RoleSystem {
			t.Errorf("Unexpected request body: %+v", body)
		}
		if body.TopP != 0.9 {
			t.Errorf("Expected top_p 0.9, got %f", body.TopP)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "test-id",
			"model": "gpt-4o-mini",
			"choices": []map[string]any{{
				"message":       map[string]string{"role": "assistant", "content": "Hello! How can I help?"},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer server.Close()

	// Create client
	client, err := NewClient(
		WithBaseURL(server.URL),
		WithAPIKey("test-key"),
		WithModel("gpt-4o-mini"),
		WithTopP(0.9),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	// Test chat
	ctx := context.Background()
	resp, err := client.Chat(ctx, &ChatRequest{
		Messages: []Message{
			NewSystemMessage("Be brief."),
			NewUserMessage("Hello"),
		},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if resp.Message.Content != "Hello! How can I help?" {
		t.Errorf("Unexpected content: %s", resp.Message.Content)
	}
	if resp.Message.Role != RoleAssistant {
		t.Errorf("Expected assistant role, got %s", resp.Message.Role)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("Expected finish_reason 'stop', got %s", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("Expected /models, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []interface{}{},
		})
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()

	err := client.Health(context.Background())
	if err != nil {
		t.Errorf("Health check failed: %v", err)
	}
}

func TestClientError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"message": "Invalid API key",
				"code":    "invalid_api_key",
			},
		})
	}))
	defer server.Close()

	client, _ := NewClient(
		WithBaseURL(server.URL),
		WithAPIKey("bad-key"),
	)
	defer client.Close()

	ctx := context.Background()
	_, err := client.Chat(ctx, &ChatRequest{
		Messages: []Message{NewUserMessage("test")},
	})

	if err == nil {
		t.Fatal("Expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T", err)
	}

	if apiErr.StatusCode != 401 {
		t.Errorf("Expected 401, got %d", apiErr.StatusCode)
	}
	if !apiErr.IsUnauthorized() {
		t.Error("Expected IsUnauthorized() to be true")
	}
	if apiErr.Code != "invalid_api_key" || apiErr.Message != "Invalid API key" {
		t.Errorf("Unexpected error detail: %+v", apiErr)
	}
	if hits.Load() != 1 {
		t.Errorf("Client errors should not be retried, got %d requests", hits.Load())
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]string{"role": "assistant", "content": "third time"},
			}},
		})
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL), WithRetry(3, time.Millisecond))
	defer client.Close()

	resp, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{NewUserMessage("hi")}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Message.Content != "third time" || hits.Load() != 3 {
		t.Errorf("Got %q after %d requests", resp.Message.Content, hits.Load())
	}
}

func TestClientNoAPIKey(t *testing.T) {
	// For local providers like Ollama, no API key is required
	client, err := NewClient(
		WithBaseURL("http://localhost:11434/v1"),
		// No API key
	)
	if err != nil {
		t.Fatalf("Should allow creation without API key: %v", err)
	}
	client.Close()
}

func TestClientNoModel(t *testing.T) {
	if _, err := NewClient(WithModel("")); !errors.Is(err, ErrNoModel) {
		t.Errorf("Expected ErrNoModel, got %v", err)
	}
}
