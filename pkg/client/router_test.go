package client_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdlbs/kandev-sub008/pkg/client"
	"github.com/kdlbs/kandev-sub008/pkg/testutil"
	"github.com/kdlbs/kandev-sub008/pkg/wire"
)

// eventLog collects dispatch observations across goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func TestNotificationDispatchByExactAction(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	c := connectedClient(t, ms, client.WithReconnectPolicy(noReconnect()))

	log := &eventLog{}
	c.On("task.updated", func(env *wire.Envelope) { log.add("task.updated") })
	c.On("task.deleted", func(env *wire.Envelope) { log.add("task.deleted") })

	note, err := wire.NewEnvelope("", wire.TypeNotification, "task.updated", nil)
	require.NoError(t, err)
	require.NoError(t, ms.Send(note))

	testutil.RequireWithin(t, "matching handler invoked", 3*time.Second, func() bool {
		return len(log.snapshot()) == 1
	})
	assert.Equal(t, []string{"task.updated"}, log.snapshot())
}

func TestNotificationHandlersRunInRegistrationOrder(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	c := connectedClient(t, ms, client.WithReconnectPolicy(noReconnect()))

	log := &eventLog{}
	c.On("agent.output", func(env *wire.Envelope) { log.add("first") })
	c.On("agent.output", func(env *wire.Envelope) { log.add("second") })
	c.On("agent.output", func(env *wire.Envelope) { log.add("third") })

	note, err := wire.NewEnvelope("", wire.TypeNotification, "agent.output", nil)
	require.NoError(t, err)
	require.NoError(t, ms.Send(note))

	testutil.RequireWithin(t, "all handlers invoked", 3*time.Second, func() bool {
		return len(log.snapshot()) == 3
	})
	assert.Equal(t, []string{"first", "second", "third"}, log.snapshot())
}

func TestUnsubscribeClosureRemovesHandler(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	c := connectedClient(t, ms, client.WithReconnectPolicy(noReconnect()))

	log := &eventLog{}
	off := c.On("task.updated", func(env *wire.Envelope) { log.add("kept?") })
	off()
	off() // safe to call again

	note, err := wire.NewEnvelope("", wire.TypeNotification, "task.updated", nil)
	require.NoError(t, err)
	require.NoError(t, ms.Send(note))

	// Give the dispatch a moment; nothing must arrive.
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, log.snapshot())
}

func TestUnhandledNotificationIsDropped(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	c := connectedClient(t, ms, client.WithReconnectPolicy(noReconnect()))

	note, err := wire.NewEnvelope("", wire.TypeNotification, "nobody.listens", nil)
	require.NoError(t, err)
	require.NoError(t, ms.Send(note))

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, client.StatusOpen, c.Status())
}

func TestBatchedFrameDispatchesAllPartsInOrder(t *testing.T) {
	ms := testutil.NewMockServer(t, nil)
	c := connectedClient(t, ms, client.WithReconnectPolicy(noReconnect()))

	log := &eventLog{}
	c.On("a", func(env *wire.Envelope) { log.add("a") })
	c.On("b", func(env *wire.Envelope) { log.add("b") })

	// Malformed middle fragment must not disturb its siblings.
	frame := "{\"type\":\"notification\",\"action\":\"a\"}\n{invalid json\n{\"type\":\"notification\",\"action\":\"b\"}"
	require.NoError(t, ms.SendRaw(frame))

	testutil.RequireWithin(t, "both valid envelopes dispatched", 3*time.Second, func() bool {
		return len(log.snapshot()) == 2
	})
	assert.Equal(t, []string{"a", "b"}, log.snapshot())
	assert.Equal(t, client.StatusOpen, c.Status())
}
