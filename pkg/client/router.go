package client

import (
	"sync"

	"github.com/kdlbs/kandev-sub008/pkg/wire"
)

// NotificationHandler receives one notification envelope. Handlers run
// synchronously on the read loop in registration order; a slow handler
// delays everything behind it, and a panicking handler is deliberately not
// recovered so bugs surface at the fault instead of being swallowed.
type NotificationHandler func(env *wire.Envelope)

type handlerEntry struct {
	fn NotificationHandler
}

// On registers a handler for notification envelopes whose action matches
// actionType exactly, and returns the closure that unregisters it. The
// returned closure is safe to call more than once.
func (c *Client) On(actionType string, fn NotificationHandler) func() {
	entry := &handlerEntry{fn: fn}
	c.handlersMu.Lock()
	c.handlers[actionType] = append(c.handlers[actionType], entry)
	c.handlersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.off(actionType, entry) })
	}
}

func (c *Client) off(actionType string, entry *handlerEntry) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	entries := c.handlers[actionType]
	for i, e := range entries {
		if e == entry {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(c.handlers, actionType)
	} else {
		c.handlers[actionType] = entries
	}
}

// dispatchNotification invokes every handler registered for the envelope's
// action. A notification nobody listens for is not an error; it is simply
// dropped.
func (c *Client) dispatchNotification(env *wire.Envelope) {
	c.handlersMu.Lock()
	entries := append([]*handlerEntry(nil), c.handlers[env.Action]...)
	c.handlersMu.Unlock()

	for _, entry := range entries {
		entry.fn(env)
	}
}
