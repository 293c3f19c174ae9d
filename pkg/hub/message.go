// Package hub fans JSON events out to websocket clients using a single
// channel-driven broadcast loop.
package hub

import (
	"encoding/json"
	"time"
)

// Message is one pre-encoded JSON payload.
type Message struct {
	Data []byte
}

// Event is the envelope every broadcast uses.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// NewEvent encodes an event.
func NewEvent(kind string, data any) (Message, error) {
	b, err := json.Marshal(Event{Type: kind, Time: time.Now(), Data: data})
	if err != nil {
		return Message{}, err
	}
	return Message{Data: b}, nil
}
