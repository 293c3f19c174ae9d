package conversation

import (
	"sync"

	"github.com/teslashibe/go-lightwall/pkg/inference"
)

// History is the chat history sent to the language model. It always starts
// with the system message when one is configured.
type History struct {
	mu       sync.Mutex
	system   string
	messages []inference.Message
}

// NewHistory creates a history seeded with the system prompt.
func NewHistory(systemPrompt string) *History {
	h := &History{system: systemPrompt}
	h.Reset()
	return h
}

// Append adds a message.
func (h *History) Append(role inference.Role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, inference.Message{Role: role, Content: content})
}

// Messages returns a copy of the history.
func (h *History) Messages() []inference.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]inference.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Tail returns a copy of the last n messages and the index of the first.
func (h *History) Tail(n int) ([]inference.Message, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	start := max(0, len(h.messages)-n)
	out := make([]inference.Message, len(h.messages)-start)
	copy(out, h.messages[start:])
	return out, start
}

// Len returns the number of messages, including the system message.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Reset drops everything except the system message.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = h.messages[:0]
	if h.system != "" {
		h.messages = append(h.messages, inference.NewSystemMessage(h.system))
	}
}
