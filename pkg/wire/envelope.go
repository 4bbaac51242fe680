// Package wire defines the envelope protocol spoken between the client
// runtime and the kandev orchestration backend: one JSON object per line,
// with newline-delimited batching supported on receive.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Envelope is the wire unit. Requests always carry ID and Action;
// responses and errors echo the originating ID; notifications carry
// Action and no ID.
type Envelope struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Action    string          `json:"action,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Envelope types.
const (
	TypeRequest      = "request"
	TypeResponse     = "response"
	TypeNotification = "notification"
	TypeError        = "error"
)

// Reserved control actions consumed by the backend's subscription manager.
const (
	ActionTaskSubscribe   = "task.subscribe"
	ActionTaskUnsubscribe = "task.unsubscribe"
	ActionUserSubscribe   = "user.subscribe"
	ActionUserUnsubscribe = "user.unsubscribe"
)

// ErrorPayload is the payload shape of a TypeError envelope.
type ErrorPayload struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewID returns a fresh correlation id. Ids are generated per request so
// concurrent in-flight requests can never collide.
func NewID() string {
	return uuid.NewString()
}

// NewEnvelope builds an envelope, marshalling payloadData into the Payload
// field. A nil payloadData leaves Payload empty.
func NewEnvelope(id, typ, action string, payloadData interface{}) (*Envelope, error) {
	var payload json.RawMessage
	if payloadData != nil {
		var err error
		payload, err = json.Marshal(payloadData)
		if err != nil {
			return nil, fmt.Errorf("wire: marshal payload for action %q: %w", action, err)
		}
	}
	return &Envelope{
		ID:      id,
		Type:    typ,
		Action:  action,
		Payload: payload,
	}, nil
}

// Encode serializes the envelope as a single JSON line (without the
// trailing newline).
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodePayload unmarshals the envelope's payload into v (a pointer).
// A missing or null payload is a no-op, leaving v zeroed.
func (e *Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// ErrorMessage extracts the human-readable message from a TypeError
// envelope's payload, falling back to a generic message when the payload
// lacks one.
func (e *Envelope) ErrorMessage() string {
	var ep ErrorPayload
	if err := e.DecodePayload(&ep); err == nil && ep.Message != "" {
		return ep.Message
	}
	return "server reported an error"
}

// ErrorDetails decodes the payload of a TypeError envelope. The boolean
// reports whether a structured error payload was present.
func (e *Envelope) ErrorDetails() (ErrorPayload, bool) {
	var ep ErrorPayload
	if err := e.DecodePayload(&ep); err != nil {
		return ErrorPayload{}, false
	}
	return ep, ep.Message != "" || ep.Code != 0
}
