package client

import (
	"errors"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
)

// A read pump's exit report can race with an explicit Connect that has
// already replaced the connection. The supervisor must treat such a stale
// report as a no-op instead of tearing the live connection into a
// reconnect cycle.
func TestConnectionLostIgnoredWhileConnectionLive(t *testing.T) {
	c := New("ws://127.0.0.1:0")
	defer c.Close()

	c.mu.Lock()
	c.conn = &websocket.Conn{}
	c.status = StatusOpen
	c.mu.Unlock()

	c.connectionLost(errors.New("stale pump exit"))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, StatusOpen, c.status, "live connection's status must not change")
	assert.Zero(t, c.attempts, "no reconnect attempt may be consumed")
	assert.Nil(t, c.reconnectTimer, "no reconnect may be scheduled")
	c.conn = nil // keep Close from closing the placeholder
}

func TestConnectionLostIgnoredWhileDialInProgress(t *testing.T) {
	c := New("ws://127.0.0.1:0")
	defer c.Close()

	c.mu.Lock()
	c.connecting = true
	c.status = StatusConnecting
	c.mu.Unlock()

	c.connectionLost(errors.New("stale pump exit"))

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, StatusConnecting, c.status)
	assert.Zero(t, c.attempts)
	assert.Nil(t, c.reconnectTimer)
}

// redial must clear the timer reference even when it decides not to dial,
// so a later Disconnect or Connect never stops a timer that already fired.
func TestRedialClearsTimerReferenceOnEarlyReturn(t *testing.T) {
	c := New("ws://127.0.0.1:0")
	defer c.Close()

	stale := time.AfterFunc(time.Hour, func() {})
	defer stale.Stop()

	c.mu.Lock()
	c.conn = &websocket.Conn{}
	c.reconnectTimer = stale
	c.mu.Unlock()

	c.redial()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Nil(t, c.reconnectTimer)
	c.conn = nil
}
