package client

import (
	"sync"

	"github.com/kdlbs/kandev-sub008/pkg/wire"
)

// The subscription ledger reference-counts topic interest so several
// independent consumers can observe the same task without causing
// subscription storms: the subscribe wire message goes out only on the
// 0->1 edge and the unsubscribe only on the 1->0 edge. Wire messages are
// sent only while the socket is open; a closed socket has nothing to
// unsubscribe from, and opens replay the whole ledger anyway.
//
// Whether the socket counts as open for edge sends is tracked by the
// subsMu-guarded wireOpen flag, not by the public Status. The flag flips
// inside the same critical section that snapshots the ledger for replay,
// so an entry is either part of the replay or edge-sent by its own caller,
// never both.

// SubscribeTask registers interest in notifications for one task and
// returns the closure that releases it. The closure is idempotent.
func (c *Client) SubscribeTask(taskID string) func() {
	c.subsMu.Lock()
	c.taskSubs[taskID]++
	sendNow := c.taskSubs[taskID] == 1 && c.wireOpen
	c.subsMu.Unlock()

	if sendNow {
		c.sendControl(wire.ActionTaskSubscribe, &wire.TaskSubscription{TaskID: taskID})
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.UnsubscribeTask(taskID) })
	}
}

// UnsubscribeTask releases one reference to a task subscription. The entry
// is removed locally even when the socket is down.
func (c *Client) UnsubscribeTask(taskID string) {
	c.subsMu.Lock()
	n, ok := c.taskSubs[taskID]
	if !ok {
		c.subsMu.Unlock()
		return
	}
	n--
	last := n <= 0
	if last {
		delete(c.taskSubs, taskID)
	} else {
		c.taskSubs[taskID] = n
	}
	sendNow := last && c.wireOpen
	c.subsMu.Unlock()

	if sendNow {
		c.sendControl(wire.ActionTaskUnsubscribe, &wire.TaskSubscription{TaskID: taskID})
	}
}

// SubscribeUser registers interest in the singleton user-scope channel and
// returns the closure that releases it.
func (c *Client) SubscribeUser() func() {
	c.subsMu.Lock()
	c.userRefs++
	sendNow := c.userRefs == 1 && c.wireOpen
	c.subsMu.Unlock()

	if sendNow {
		c.sendControl(wire.ActionUserSubscribe, nil)
	}

	var once sync.Once
	return func() {
		once.Do(c.UnsubscribeUser)
	}
}

// UnsubscribeUser releases one reference to the user-scope subscription.
func (c *Client) UnsubscribeUser() {
	c.subsMu.Lock()
	if c.userRefs == 0 {
		c.subsMu.Unlock()
		return
	}
	c.userRefs--
	sendNow := c.userRefs == 0 && c.wireOpen
	c.subsMu.Unlock()

	if sendNow {
		c.sendControl(wire.ActionUserUnsubscribe, nil)
	}
}

// resubscribeAll marks the wire open and replays every ledger entry with a
// live reference count. The backend holds no durable subscription state
// across a dropped socket, so each open starts from nothing. Runs before
// StatusOpen is published: a concurrent subscribe serializes against the
// snapshot on subsMu and lands on exactly one side of it, either in the
// replay or as its own edge send.
func (c *Client) resubscribeAll() {
	c.subsMu.Lock()
	c.wireOpen = true
	topics := make([]string, 0, len(c.taskSubs))
	for id, n := range c.taskSubs {
		if n > 0 {
			topics = append(topics, id)
		}
	}
	user := c.userRefs > 0
	c.subsMu.Unlock()

	if len(topics) == 0 && !user {
		return
	}
	c.cfg.logger.Info("client: replaying subscriptions", "tasks", len(topics), "user", user)
	for _, id := range topics {
		c.sendControl(wire.ActionTaskSubscribe, &wire.TaskSubscription{TaskID: id})
	}
	if user {
		c.sendControl(wire.ActionUserSubscribe, nil)
	}
}

// markWireClosed flips the edge-send gate off when the connection goes
// away, for any reason.
func (c *Client) markWireClosed() {
	c.subsMu.Lock()
	c.wireOpen = false
	c.subsMu.Unlock()
}

// sendControl enqueues a fire-and-forget subscription control request.
func (c *Client) sendControl(action string, payload interface{}) {
	env, err := wire.NewEnvelope(wire.NewID(), wire.TypeRequest, action, payload)
	if err != nil {
		c.cfg.logger.Error("client: building control frame", "action", action, "error", err)
		return
	}
	if err := c.Send(env); err != nil {
		c.cfg.logger.Warn("client: dropping control frame", "action", action, "error", err)
	}
}
