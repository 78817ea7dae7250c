// Package bridge implements the JavaScript↔host message bridge: the wire
// envelope, the callable registry and dispatcher, the correlation table for
// script-evaluation results, and the client script injected into every page.
package bridge

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Reserved envelope names.
const (
	// CallbackName addresses script-evaluation completions back to the
	// host instead of a registered API.
	CallbackName = "_qtwebviewCallback"

	// CallName is the generic indirection used by the injected proxy:
	// params[0] is the real API name, the rest its arguments.
	CallName = "call"

	// ResponseEventPrefix prefixes the per-call DOM event the host fires
	// to settle the client-side promise.
	ResponseEventPrefix = "qtwebview2-response-"
)

// ErrMalformedMessage reports an envelope that is not valid JSON or lacks
// required keys. Such messages are dropped, never answered.
var ErrMalformedMessage = errors.New("malformed bridge message")

// Message is the JSON envelope exchanged over the postMessage channel:
// {name, params, id}. Params stays untyped because callback completions
// carry an object where API calls carry an array.
type Message struct {
	Name   string `json:"name"`
	Params any    `json:"params"`
	ID     string `json:"id"`
}

// ParseMessage decodes and validates one raw envelope.
func ParseMessage(raw string) (Message, error) {
	var msg Message
	if err := sonic.UnmarshalString(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Name == "" || msg.ID == "" {
		return Message{}, fmt.Errorf("%w: missing name or id", ErrMalformedMessage)
	}
	return msg, nil
}

// ArgList interprets params as a positional argument list.
func (m Message) ArgList() ([]any, bool) {
	if m.Params == nil {
		return nil, true
	}
	args, ok := m.Params.([]any)
	return args, ok
}

// MarshalParams serializes an envelope's params object, the form the
// correlation decoder consumes.
func MarshalParams(params any) (string, error) {
	return sonic.MarshalString(params)
}

// Payload is the {result} / {error} object delivered back to the page.
type Payload map[string]any

// ResultPayload wraps a successful result. A nil result is kept explicit so
// the wire carries {"result": null}.
func ResultPayload(v any) Payload {
	return Payload{"result": v}
}

// ErrorPayload wraps a failure message.
func ErrorPayload(msg string) Payload {
	return Payload{"error": msg}
}

// MarshalPayload serializes a payload, degrading to an error payload when
// the result is not JSON-serializable. The fallback cannot fail: it carries
// only a string.
func MarshalPayload(p Payload) string {
	data, err := sonic.MarshalString(p)
	if err != nil {
		fallback, _ := sonic.MarshalString(ErrorPayload(fmt.Sprintf("result not serializable: %v", err)))
		return fallback
	}
	return data
}
