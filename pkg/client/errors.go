package client

import (
	"errors"
	"fmt"
)

var (
	// ErrClientClosed is returned once Close has been called; a closed
	// client cannot be reconnected.
	ErrClientClosed = errors.New("client is closed")

	// ErrConnectionClosed rejects every in-flight request when the
	// connection drops with no further reconnect attempts, or when the
	// caller disconnects. The backend cannot be assumed to still be
	// processing anything that was in flight.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrConnectionUnavailable is returned by Request while the client
	// sits in the terminal error state; an explicit Connect is required
	// before new requests are accepted.
	ErrConnectionUnavailable = errors.New("connection unavailable")

	// ErrRequestTimeout marks a request whose response never arrived
	// within its deadline.
	ErrRequestTimeout = errors.New("request timed out")
)

// ServerError is an explicit error reported by the backend in a TypeError
// envelope, surfaced only to the caller whose request it answers.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("server error (code %d): %s", e.Code, e.Message)
	}
	return "server error: " + e.Message
}
