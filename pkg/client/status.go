package client

// Status is the client's connection lifecycle state. Exactly one value is
// current at any time; transitions are reported to the configured
// StatusHandler.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusOpen
	StatusReconnecting
	StatusClosed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// StatusHandler receives every status transition, synchronously, on the
// goroutine that caused the transition. Handlers should be quick; UI state
// stores typically just record the value.
type StatusHandler func(Status)

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// setStatus records a transition and notifies the status handler. Repeated
// sets of the same value are not transitions and are not emitted.
func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	h := c.cfg.statusHandler
	c.mu.Unlock()

	c.cfg.logger.Debug("client: status transition", "status", s.String())
	if h != nil {
		h(s)
	}
}
