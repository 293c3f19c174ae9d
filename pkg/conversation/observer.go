package conversation

import "github.com/teslashibe/go-lightwall/pkg/inference"

// Observer is told about every message added to the chat history.
type Observer interface {
	OnTurn(role inference.Role, content string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(role inference.Role, content string)

// OnTurn calls f.
func (f ObserverFunc) OnTurn(role inference.Role, content string) { f(role, content) }
