// Package client implements the connection-management and
// message-correlation runtime that turns one WebSocket into a reliable
// bidirectional RPC and publish/subscribe channel to the kandev
// orchestration backend.
//
// A Client owns exactly one underlying socket at a time. Callers interact
// only through Send/Request/subscription methods and the status callback,
// never with the socket itself, so a reconnect can replace the connection
// without consumers re-binding anything.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/kdlbs/kandev-sub008/pkg/wire"
)

// Client is a reconnecting WebSocket client with request/response
// correlation, notification routing, and reference-counted topic
// subscriptions that survive reconnects.
type Client struct {
	cfg clientConfig
	url string

	// Overall client lifetime; cancelled by Close.
	clientCtx    context.Context
	clientCancel context.CancelFunc

	// Outbound FIFO queue. No write pump runs while the socket is down, so
	// frames sent before open accumulate here and flush, in order, once a
	// connection is established.
	send chan *wire.Envelope

	mu             sync.Mutex
	conn           *websocket.Conn
	status         Status
	closed         bool
	intentional    bool // Disconnect was called; suppresses reconnection
	attempts       int
	reconnectTimer *time.Timer
	connecting     bool
	pumpCancel     context.CancelFunc
	pumpWg         *sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[string]chan requestOutcome

	handlersMu sync.Mutex
	handlers   map[string][]*handlerEntry

	subsMu   sync.Mutex
	taskSubs map[string]int
	userRefs int
	wireOpen bool
}

// New constructs a Client for the given WebSocket URL. It does not dial;
// call Connect to establish the connection.
func New(urlStr string, opts ...Option) *Client {
	clientCtx, clientCancel := context.WithCancel(context.Background())
	c := &Client{
		cfg: clientConfig{
			logger:         slog.Default(),
			requestTimeout: defaultRequestTimeout,
			writeTimeout:   defaultWriteTimeout,
			sendBuffer:     defaultSendBuffer,
			reconnect:      DefaultReconnectPolicy(),
		},
		url:          urlStr,
		clientCtx:    clientCtx,
		clientCancel: clientCancel,
		pending:      make(map[string]chan requestOutcome),
		handlers:     make(map[string][]*handlerEntry),
		taskSubs:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.dialOptions == nil {
		c.cfg.dialOptions = &websocket.DialOptions{HTTPClient: http.DefaultClient}
	}
	c.send = make(chan *wire.Envelope, c.cfg.sendBuffer)
	return c
}

// Connect establishes the WebSocket connection. It is idempotent: a no-op
// when a connection already exists or is being established. Calling Connect
// after an intentional Disconnect, or after reconnect attempts were
// exhausted, is the explicit external trigger that re-arms the client and
// resets the attempt counter.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.conn != nil || c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.intentional = false
	c.attempts = 0
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.connecting = true
	c.mu.Unlock()

	c.setStatus(StatusConnecting)
	if err := c.dial(ctx); err != nil {
		c.connectionLost(err)
		return err
	}
	return nil
}

// Disconnect closes the connection intentionally. No reconnection is
// attempted, any scheduled reconnect timer is cancelled, and every
// in-flight request is rejected with ErrConnectionClosed. The client can be
// re-armed later with Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.intentional = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	pumpCancel := c.pumpCancel
	c.mu.Unlock()

	if pumpCancel != nil {
		pumpCancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	c.markWireClosed()
	c.setStatus(StatusClosed)
	c.failPending(ErrConnectionClosed)
}

// Close disconnects and permanently disposes the client. Further calls to
// Connect, Send or Request return ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.mu.Unlock()

	c.Disconnect()

	c.mu.Lock()
	c.closed = true
	wg := c.pumpWg
	c.mu.Unlock()

	c.clientCancel()
	if wg != nil {
		wg.Wait()
	}
	return nil
}

// dial performs one connection attempt and, on success, installs the
// connection and starts its pump pair.
func (c *Client) dial(ctx context.Context) error {
	defer func() {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
	}()

	// Make sure pumps of a previous connection are fully stopped before the
	// socket object is replaced.
	c.mu.Lock()
	oldCancel := c.pumpCancel
	oldWg := c.pumpWg
	c.mu.Unlock()
	if oldCancel != nil {
		oldCancel()
	}
	if oldWg != nil {
		oldWg.Wait()
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, c.cfg.requestTimeout)
	conn, httpResp, err := websocket.Dial(dialCtx, c.url, c.cfg.dialOptions)
	dialCancel()
	if err != nil {
		if httpResp != nil {
			return fmt.Errorf("client: dial %s (status %s): %w", c.url, httpResp.Status, err)
		}
		return fmt.Errorf("client: dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(maxFrameBytes)

	pumpCtx, pumpCancel := context.WithCancel(c.clientCtx)
	wg := &sync.WaitGroup{}

	c.mu.Lock()
	if c.closed || c.intentional {
		c.mu.Unlock()
		pumpCancel()
		conn.Close(websocket.StatusNormalClosure, "client shut down during dial")
		return ErrConnectionClosed
	}
	c.conn = conn
	c.attempts = 0
	c.pumpCancel = pumpCancel
	c.pumpWg = wg
	c.mu.Unlock()

	wg.Add(2)
	go c.readPump(pumpCtx, conn, pumpCancel, wg)
	go c.writePump(pumpCtx, conn, wg)

	c.cfg.logger.Info("client: connected", "url", c.url)

	// Server-side subscription state does not survive a severed connection,
	// so every live ledger entry is replayed on each open. This happens
	// before StatusOpen is published so a subscribe racing the transition
	// cannot be counted twice.
	c.resubscribeAll()
	c.setStatus(StatusOpen)
	return nil
}

// readPump reads frames for one connection, decodes each batch, and
// dispatches envelopes in arrival order. Its exit is what drives
// reconnection decisions: a socket error alone never does, only the read
// loop terminating.
func (c *Client) readPump(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, wg *sync.WaitGroup) {
	var cause error
	defer func() {
		cancel()
		conn.Close(websocket.StatusAbnormalClosure, "read pump terminated")
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		c.markWireClosed()
		wg.Done()
		c.connectionLost(cause)
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				c.cfg.logger.Warn("client: read error", "error", err)
			}
			cause = err
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		for _, env := range wire.DecodeBatch(data, c.cfg.logger) {
			c.dispatch(env)
		}
	}
}

// dispatch routes one inbound envelope. Responses and errors settle the
// correlation table; notifications fan out to registered handlers; anything
// else is dropped.
func (c *Client) dispatch(env *wire.Envelope) {
	switch env.Type {
	case wire.TypeResponse, wire.TypeError:
		c.settle(env)
	case wire.TypeNotification:
		c.dispatchNotification(env)
	default:
		c.cfg.logger.Warn("client: dropping envelope of unknown type", "type", env.Type, "action", env.Action)
	}
}

// writePump drains the outbound queue onto one connection. When it exits,
// unsent frames stay queued for the next connection.
func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case env := <-c.send:
			data, err := env.Encode()
			if err != nil {
				c.cfg.logger.Error("client: dropping unencodable frame", "action", env.Action, "error", err)
				continue
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, c.cfg.writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				c.cfg.logger.Warn("client: write failed, closing connection", "action", env.Action, "error", err)
				// The read pump observes the closed connection and runs the
				// reconnect decision.
				conn.Close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Send queues one envelope for transmission. If the socket is not open the
// frame waits in the FIFO queue and is flushed on the next open; a full
// queue is reported as an error rather than blocking the caller
// indefinitely.
func (c *Client) Send(env *wire.Envelope) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClientClosed
	}

	select {
	case c.send <- env:
		return nil
	case <-c.clientCtx.Done():
		return ErrClientClosed
	case <-time.After(c.cfg.writeTimeout / 2):
		return fmt.Errorf("client: outbound queue full, dropping %q frame", env.Action)
	}
}

// Notify sends a fire-and-forget notification envelope for the given
// action. Payload marshalling errors surface synchronously to the caller.
func (c *Client) Notify(action string, payload interface{}) error {
	env, err := wire.NewEnvelope("", wire.TypeNotification, action, payload)
	if err != nil {
		return err
	}
	return c.Send(env)
}
