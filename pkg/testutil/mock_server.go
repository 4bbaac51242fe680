// Package testutil provides a mock orchestration backend for exercising
// the client runtime in tests.
package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/kdlbs/kandev-sub008/pkg/wire"
)

// MockServer is a WebSocket test server speaking the newline-delimited
// envelope protocol. It records every envelope received, hands each to an
// optional handler for a scripted reply, and can push raw frames at the
// connected client, including multi-envelope batches and malformed
// fragments.
type MockServer struct {
	T      *testing.T
	Server *httptest.Server
	WsURL  string

	// Handler, when set, is invoked for every inbound envelope; a non-nil
	// return value is sent back to the client.
	Handler func(env *wire.Envelope) *wire.Envelope

	connMu     sync.Mutex
	conn       *websocket.Conn
	connCancel context.CancelFunc
	connCount  int

	recvMu   sync.Mutex
	received []*wire.Envelope
}

// NewMockServer starts a mock backend. The server accepts any number of
// sequential connections, which lets reconnect behavior be exercised.
func NewMockServer(t *testing.T, handler func(env *wire.Envelope) *wire.Envelope) *MockServer {
	t.Helper()
	ms := &MockServer{T: t, Handler: handler}

	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connCtx, connCancel := context.WithCancel(context.Background())

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			ms.T.Logf("MockServer: accept error: %v", err)
			connCancel()
			return
		}

		ms.connMu.Lock()
		ms.conn = conn
		ms.connCancel = connCancel
		ms.connCount++
		ms.connMu.Unlock()

		ms.readLoop(connCtx, conn)

		ms.connMu.Lock()
		if ms.conn == conn {
			ms.conn = nil
			ms.connCancel = nil
		}
		ms.connMu.Unlock()
		connCancel()
	}))
	ms.WsURL = "ws" + strings.TrimPrefix(ms.Server.URL, "http")

	t.Cleanup(ms.Close)
	return ms
}

func (ms *MockServer) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		for _, env := range wire.DecodeBatch(data, nil) {
			ms.recvMu.Lock()
			ms.received = append(ms.received, env)
			ms.recvMu.Unlock()

			if ms.Handler != nil {
				if reply := ms.Handler(env); reply != nil {
					if err := ms.Send(reply); err != nil {
						ms.T.Logf("MockServer: reply failed: %v", err)
					}
				}
			}
		}
	}
}

// Send writes one envelope to the connected client as a single text frame.
func (ms *MockServer) Send(env *wire.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return ms.SendRaw(string(data))
}

// SendRaw writes an arbitrary text frame, letting tests batch envelopes
// with newlines or inject malformed fragments.
func (ms *MockServer) SendRaw(frame string) error {
	ms.connMu.Lock()
	conn := ms.conn
	ms.connMu.Unlock()
	if conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeDeadline)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, []byte(frame))
}

// Received returns a snapshot of every envelope the server has seen, in
// arrival order, across all connections.
func (ms *MockServer) Received() []*wire.Envelope {
	ms.recvMu.Lock()
	defer ms.recvMu.Unlock()
	out := make([]*wire.Envelope, len(ms.received))
	copy(out, ms.received)
	return out
}

// ReceivedWithAction filters Received by action name.
func (ms *MockServer) ReceivedWithAction(action string) []*wire.Envelope {
	var out []*wire.Envelope
	for _, env := range ms.Received() {
		if env.Action == action {
			out = append(out, env)
		}
	}
	return out
}

// ConnCount reports how many connections the server has accepted.
func (ms *MockServer) ConnCount() int {
	ms.connMu.Lock()
	defer ms.connMu.Unlock()
	return ms.connCount
}

// CloseCurrentConnection drops the live connection abruptly, as a backend
// restart would.
func (ms *MockServer) CloseCurrentConnection() {
	ms.connMu.Lock()
	conn := ms.conn
	cancel := ms.connCancel
	ms.conn = nil
	ms.connCancel = nil
	ms.connMu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusGoingAway, "mock server dropping connection")
	}
	if cancel != nil {
		cancel()
	}
}

// Close shuts the mock server down.
func (ms *MockServer) Close() {
	ms.CloseCurrentConnection()
	if ms.Server != nil {
		ms.Server.Close()
	}
}
