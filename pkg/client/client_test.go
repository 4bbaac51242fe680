package client_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdlbs/kandev-sub008/pkg/client"
	"github.com/kdlbs/kandev-sub008/pkg/testutil"
	"github.com/kdlbs/kandev-sub008/pkg/wire"
)

// statusRecorder collects status transitions for assertions.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []client.Status
}

func (r *statusRecorder) record(s client.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) snapshot() []client.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]client.Status(nil), r.statuses...)
}

func (r *statusRecorder) has(s client.Status) bool {
	for _, got := range r.snapshot() {
		if got == s {
			return true
		}
	}
	return false
}

func TestConnectIsIdempotent(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	c := connectedClient(t, ms, client.WithReconnectPolicy(noReconnect()))

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, ms.ConnCount())
	assert.Equal(t, client.StatusOpen, c.Status())
}

func TestSendsBeforeOpenAreFlushedInOrder(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	c := client.New(ms.WsURL, client.WithReconnectPolicy(noReconnect()))
	t.Cleanup(func() { _ = c.Close() })

	const n = 5
	for i := 0; i < n; i++ {
		env, err := wire.NewEnvelope("", wire.TypeNotification, fmt.Sprintf("queued.%d", i), nil)
		require.NoError(t, err)
		require.NoError(t, c.Send(env))
	}
	assert.Empty(t, ms.Received(), "nothing should reach the wire before open")

	require.NoError(t, c.Connect(context.Background()))

	testutil.RequireWithin(t, "queued frames flushed", 3*time.Second, func() bool {
		return len(ms.Received()) == n
	})
	for i, env := range ms.Received() {
		assert.Equal(t, fmt.Sprintf("queued.%d", i), env.Action, "FIFO order must be preserved")
	}
}

func TestStatusTransitionsOnConnectAndDisconnect(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	rec := &statusRecorder{}
	c := client.New(ms.WsURL,
		client.WithReconnectPolicy(noReconnect()),
		client.WithStatusHandler(rec.record))
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Connect(context.Background()))
	c.Disconnect()

	assert.Equal(t, []client.Status{client.StatusConnecting, client.StatusOpen, client.StatusClosed}, rec.snapshot())
	assert.Equal(t, client.StatusClosed, c.Status())
}

func TestDisconnectRejectsPendingAndStopsReconnect(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	c := connectedClient(t, ms,
		client.WithReconnectPolicy(client.ReconnectPolicy{
			Enabled: true, MaxAttempts: 10, InitialDelay: 20 * time.Millisecond,
			MaxDelay: 50 * time.Millisecond, Multiplier: 1.5,
		}),
		client.WithDefaultRequestTimeout(10*time.Second))

	result := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "task.get", nil)
		result <- err
	}()
	testutil.RequireWithin(t, "request reaches server", 3*time.Second, func() bool {
		return len(ms.ReceivedWithAction("task.get")) == 1
	})

	c.Disconnect()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, client.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not rejected by Disconnect")
	}

	// An intentional close must not trigger reconnection.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, ms.ConnCount())
	assert.Equal(t, client.StatusClosed, c.Status())
}

func TestNotifySendsNotificationEnvelope(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	c := connectedClient(t, ms, client.WithReconnectPolicy(noReconnect()))

	require.NoError(t, c.Notify("editor.cursor", map[string]int{"line": 42}))

	testutil.RequireWithin(t, "notification reaches server", 3*time.Second, func() bool {
		return len(ms.ReceivedWithAction("editor.cursor")) == 1
	})
	env := ms.ReceivedWithAction("editor.cursor")[0]
	assert.Equal(t, wire.TypeNotification, env.Type)
	assert.Empty(t, env.ID)
}

func TestConnectAfterDisconnectReconnects(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	c := connectedClient(t, ms, client.WithReconnectPolicy(noReconnect()))

	c.Disconnect()
	require.Equal(t, client.StatusClosed, c.Status())

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, client.StatusOpen, c.Status())
	assert.Equal(t, 2, ms.ConnCount())
}

func TestCloseIsTerminal(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	c := client.New(ms.WsURL, client.WithReconnectPolicy(noReconnect()))
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Connect(context.Background()), client.ErrClientClosed)

	env, err := wire.NewEnvelope("", wire.TypeNotification, "x", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Send(env), client.ErrClientClosed)
}

func TestConnectFailsAgainstDeadServer(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	url := ms.WsURL
	ms.Close()

	c := client.New(url, client.WithReconnectPolicy(noReconnect()))
	t.Cleanup(func() { _ = c.Close() })

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, client.StatusError, c.Status())
}
