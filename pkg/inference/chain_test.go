package inference

import (
	"context"
	"errors"
	"testing"
)

func reply(text string) *Mock {
	m := NewMock()
	m.ChatFunc = func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{Message: NewAssistantMessage(text), FinishReason: "stop"}, nil
	}
	return m
}

var hello = &ChatRequest{Messages: []Message{NewUserMessage("hello wall")}}

func TestChainFallsBackToHostedModel(t *testing.T) {
	ollama := WithError(errors.New("connection refused"))
	hosted := reply("Hello from the cloud")

	chain, err := NewChain(nil, Backend{Name: "ollama", Provider: ollama}, Backend{Name: "openai", Provider: hosted})
	if err != nil {
		t.Fatalf("NewChain() error = %v", err)
	}
	if chain.Answered() != "" {
		t.Errorf("Answered() = %q before any reply", chain.Answered())
	}

	resp, err := chain.Chat(context.Background(), hello)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Message.Content != "Hello from the cloud" {
		t.Errorf("reply = %q", resp.Message.Content)
	}
	if chain.Answered() != "openai" {
		t.Errorf("Answered() = %q, want openai", chain.Answered())
	}
}

func TestChainPrefersPrimary(t *testing.T) {
	primary := reply("local")
	fallback := reply("hosted")
	chain, _ := NewChain(nil, Backend{Name: "ollama", Provider: primary}, Backend{Name: "openai", Provider: fallback})

	if _, err := chain.Chat(context.Background(), hello); err != nil {
		t.Fatal(err)
	}
	if fallback.CallCount("Chat") != 0 {
		t.Error("fallback asked while the primary answered")
	}
	if chain.Answered() != "ollama" {
		t.Errorf("Answered() = %q", chain.Answered())
	}
}

func TestChainAllFail(t *testing.T) {
	down := errors.New("connection refused")
	noKey := &APIError{StatusCode: 401, Message: "bad key", Provider: "openai"}
	chain, _ := NewChain(nil, Backend{Name: "ollama", Provider: WithError(down)}, Backend{Name: "openai", Provider: WithError(noKey)})

	_, err := chain.Chat(context.Background(), hello)
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("Chat() = %v, want ErrAllProvidersFailed", err)
	}
	if !errors.Is(err, down) {
		t.Error("error should match the primary's failure")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsUnauthorized() {
		t.Error("error should expose the fallback's API error")
	}

	var fe *FallbackError
	if !errors.As(err, &fe) || len(fe.Failures) != 2 || fe.Failures[0].Backend != "ollama" {
		t.Fatalf("FallbackError = %+v", fe)
	}
}

func TestChainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	first := NewMock()
	first.ChatFunc = func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
		cancel()
		return nil, ctx.Err()
	}
	second := NewMock()

	chain, _ := NewChain(nil, Backend{Name: "ollama", Provider: first}, Backend{Name: "openai", Provider: second})
	_, err := chain.Chat(ctx, hello)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Chat() = %v, want context.Canceled", err)
	}
	if second.CallCount("Chat") != 0 {
		t.Error("fallback tried after cancellation")
	}
}

func TestChainHealth(t *testing.T) {
	ctx := context.Background()

	chain, _ := NewChain(nil, Backend{Name: "ollama", Provider: WithError(errors.New("down"))}, Backend{Name: "openai", Provider: NewMock()})
	if err := chain.Health(ctx); err != nil {
		t.Errorf("Health() = %v with one reachable backend", err)
	}

	chain, _ = NewChain(nil, Backend{Name: "ollama", Provider: WithError(errors.New("down"))}, Backend{Name: "openai", Provider: WithError(errors.New("down"))})
	if err := chain.Health(ctx); !errors.Is(err, ErrAllProvidersFailed) {
		t.Errorf("Health() = %v, want ErrAllProvidersFailed", err)
	}
}

func TestNewChainValidation(t *testing.T) {
	if _, err := NewChain(nil); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("empty chain: %v", err)
	}
	if _, err := NewChain(nil, Backend{Name: "ollama"}); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("nil provider: %v", err)
	}

	chain, _ := NewChain(nil, Backend{Name: "ollama", Provider: NewMock()}, Backend{Name: "openai", Provider: NewMock()})
	if names := chain.Names(); len(names) != 2 || names[1] != "openai" {
		t.Errorf("Names() = %v", names)
	}
	if err := chain.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
