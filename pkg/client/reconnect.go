package client

import (
	"math"
	"time"
)

// ReconnectPolicy controls whether, when, and how often the client
// re-establishes a connection after an unintentional close. The delay
// before attempt n (zero-based) is min(InitialDelay*Multiplier^n, MaxDelay).
type ReconnectPolicy struct {
	Enabled      bool
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultReconnectPolicy returns the default capped exponential backoff:
// enabled, 10 attempts, 1s initial delay, 30s cap, 1.5 multiplier.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Enabled:      true,
		MaxAttempts:  defaultReconnectMaxAttempts,
		InitialDelay: defaultReconnectInitialDelay,
		MaxDelay:     defaultReconnectMaxDelay,
		Multiplier:   defaultReconnectMultiplier,
	}
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultReconnectMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultReconnectInitialDelay
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = defaultReconnectMaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = defaultReconnectMultiplier
	}
	return p
}

// Delay computes the backoff before the given zero-based attempt.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt)))
	if d <= 0 || d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// connectionLost is the supervisor's single decision point, invoked when a
// connection attempt fails or an established connection's read loop exits.
// Intentional closes never reconnect. Exhausting the attempt budget (or a
// disabled policy) is terminal: status becomes StatusError, every pending
// request is rejected, and only an explicit Connect recovers the client.
func (c *Client) connectionLost(cause error) {
	c.mu.Lock()
	if c.closed || c.intentional {
		c.mu.Unlock()
		return
	}
	// A stale notification from an already-replaced connection must not
	// disturb a live one. The read pump reports its exit after clearing
	// c.conn, so by the time this runs an explicit Connect may have fully
	// re-opened; in that case there is nothing to supervise.
	if c.conn != nil || c.connecting {
		c.mu.Unlock()
		return
	}
	policy := c.cfg.reconnect
	if !policy.Enabled || c.attempts >= policy.MaxAttempts {
		c.mu.Unlock()
		if policy.Enabled {
			c.cfg.logger.Error("client: reconnect attempts exhausted", "attempts", policy.MaxAttempts, "cause", cause)
		} else {
			c.cfg.logger.Warn("client: connection lost, reconnect disabled", "cause", cause)
		}
		c.setStatus(StatusError)
		c.failPending(ErrConnectionClosed)
		return
	}

	delay := policy.Delay(c.attempts)
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	c.setStatus(StatusReconnecting)
	c.cfg.logger.Info("client: connection lost, scheduling reconnect",
		"attempt", attempt, "max_attempts", policy.MaxAttempts, "delay", delay, "cause", cause)

	c.mu.Lock()
	if !c.closed && !c.intentional {
		c.reconnectTimer = time.AfterFunc(delay, c.redial)
	}
	c.mu.Unlock()
}

// redial is the reconnect timer's target: one fresh connection attempt,
// feeding any failure back into connectionLost for the next backoff step.
func (c *Client) redial() {
	c.mu.Lock()
	c.reconnectTimer = nil
	if c.closed || c.intentional || c.conn != nil || c.connecting {
		c.mu.Unlock()
		return
	}
	c.connecting = true
	c.mu.Unlock()

	c.setStatus(StatusConnecting)
	if err := c.dial(c.clientCtx); err != nil {
		c.cfg.logger.Warn("client: reconnect attempt failed", "error", err)
		c.connectionLost(err)
	}
}
