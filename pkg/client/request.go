package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kdlbs/kandev-sub008/pkg/wire"
)

// requestOutcome is delivered exactly once per pending request: either a
// matching response/error envelope or a client-side failure.
type requestOutcome struct {
	env *wire.Envelope
	err error
}

// Request sends a correlated request and blocks until the matching
// response arrives, the backend reports an error, or the deadline expires.
// The effective timeout is the client default, tightened by any deadline on
// ctx. On success the raw response payload is returned.
//
// A timed-out request is not cancelled on the wire; a late response for it
// is dropped at dispatch. While the client is in the terminal error state
// Request fails immediately with ErrConnectionUnavailable instead of
// queueing toward a backend that will never answer.
func (c *Client) Request(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	if c.status == StatusError {
		c.mu.Unlock()
		return nil, fmt.Errorf("client: request %q: %w", action, ErrConnectionUnavailable)
	}
	c.mu.Unlock()

	id := wire.NewID()
	env, err := wire.NewEnvelope(id, wire.TypeRequest, action, payload)
	if err != nil {
		return nil, err
	}
	env.Timestamp = time.Now().UTC().Format(time.RFC3339)

	outcome := make(chan requestOutcome, 1)
	c.pendingMu.Lock()
	c.pending[id] = outcome
	c.pendingMu.Unlock()

	drop := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	timeout := c.cfg.requestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case c.send <- env:
	case <-reqCtx.Done():
		drop()
		return nil, fmt.Errorf("client: request %q not sent: %w", action, reqCtx.Err())
	case <-c.clientCtx.Done():
		drop()
		return nil, ErrClientClosed
	}

	select {
	case out := <-outcome:
		if out.err != nil {
			return nil, fmt.Errorf("client: request %q: %w", action, out.err)
		}
		if out.env.Type == wire.TypeError {
			details, _ := out.env.ErrorDetails()
			return nil, fmt.Errorf("client: request %q: %w", action,
				&ServerError{Code: details.Code, Message: out.env.ErrorMessage()})
		}
		return out.env.Payload, nil
	case <-reqCtx.Done():
		drop()
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("client: request %q timed out after %v: %w", action, timeout, ErrRequestTimeout)
		}
		return nil, fmt.Errorf("client: request %q: %w", action, reqCtx.Err())
	case <-c.clientCtx.Done():
		drop()
		return nil, ErrClientClosed
	}
}

// settle resolves the pending request matching an inbound response or
// error envelope. The entry is removed before the outcome is delivered,
// which together with the buffered outcome channel guarantees exactly one
// settlement per request. Unknown ids are late or duplicate deliveries and
// are dropped without complaint.
func (c *Client) settle(env *wire.Envelope) {
	if env.ID == "" {
		c.cfg.logger.Warn("client: dropping response envelope without id", "type", env.Type)
		return
	}
	c.pendingMu.Lock()
	ch, ok := c.pending[env.ID]
	if ok {
		delete(c.pending, env.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		c.cfg.logger.Debug("client: dropping envelope for unknown request id", "id", env.ID, "type", env.Type)
		return
	}
	ch <- requestOutcome{env: env}
}

// failPending rejects every in-flight request with err and clears the
// correlation table. Used on intentional disconnect and on terminal
// reconnect failure.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan requestOutcome)
	c.pendingMu.Unlock()

	if len(pending) > 0 {
		c.cfg.logger.Info("client: rejecting in-flight requests", "count", len(pending), "reason", err)
	}
	for _, ch := range pending {
		ch <- requestOutcome{err: err}
	}
}

// GenericRequest performs a correlated request and unmarshals the response
// payload into T. A null or absent payload yields a zero T.
func GenericRequest[T any](c *Client, ctx context.Context, action string, payload interface{}) (*T, error) {
	raw, err := c.Request(ctx, action, payload)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("client: unmarshal %q response into %T: %w", action, out, err)
	}
	return out, nil
}
