// Package inference provides a unified interface for chat completions.
//
// The wall talks to a local Ollama server through its native /api/chat
// endpoint. Any OpenAI-compatible service (OpenAI, vLLM, llama.cpp server)
// can stand in through Client, and Chain falls back from one to the next.
//
// Example usage:
//
//	llm, _ := inference.NewOllama(
//	    inference.WithBaseURL("http://localhost:11434"),
//	    inference.WithModel("gemma3:12b"),
//	)
//	defer llm.Close()
//
//	resp, _ := llm.Chat(ctx, &inference.ChatRequest{
//	    Messages: []inference.Message{
//	        inference.NewSystemMessage("You are a wall of light."),
//	        inference.NewUserMessage("Hello!"),
//	    },
//	})
package inference

import "context"

// Provider is the chat interface every backend implements.
type Provider interface {
	// Chat generates a reply to a sequence of messages. It blocks until
	// the whole reply is available.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// ChatRequest for chat completions. Zero fields fall back to the
// provider's configured defaults.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// TopP controls nucleus sampling.
	TopP float64

	// Stop sequences that halt generation.
	Stop []string
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
