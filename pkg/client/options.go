package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultSendBuffer     = 64
	maxFrameBytes         = 1024 * 1024

	defaultReconnectMaxAttempts  = 10
	defaultReconnectInitialDelay = 1 * time.Second
	defaultReconnectMaxDelay     = 30 * time.Second
	defaultReconnectMultiplier   = 1.5
)

type clientConfig struct {
	logger         *slog.Logger
	dialOptions    *websocket.DialOptions
	requestTimeout time.Duration
	writeTimeout   time.Duration
	sendBuffer     int
	reconnect      ReconnectPolicy
	statusHandler  StatusHandler
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom logging implementation.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.cfg.logger = logger
		}
	}
}

// WithDialOptions sets custom websocket.DialOptions.
func WithDialOptions(opts *websocket.DialOptions) Option {
	return func(c *Client) {
		c.cfg.dialOptions = opts
	}
}

// WithDefaultRequestTimeout sets the default timeout applied to Request
// calls whose context carries no tighter deadline.
func WithDefaultRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.cfg.requestTimeout = timeout
		}
	}
}

// WithWriteTimeout bounds each socket write.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.cfg.writeTimeout = timeout
		}
	}
}

// WithSendBuffer sets the capacity of the outbound queue. Frames sent while
// the socket is not open accumulate here and are flushed in FIFO order on
// the next successful open.
func WithSendBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.cfg.sendBuffer = n
		}
	}
}

// WithReconnectPolicy replaces the default reconnect policy.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(c *Client) {
		c.cfg.reconnect = p.withDefaults()
	}
}

// WithStatusHandler registers the callback that observes every connection
// status transition.
func WithStatusHandler(h StatusHandler) Option {
	return func(c *Client) {
		c.cfg.statusHandler = h
	}
}

// Options contains configuration values for NewWithOptions.
type Options struct {
	Logger                *slog.Logger
	DialOptions           *websocket.DialOptions
	DefaultRequestTimeout time.Duration
	WriteTimeout          time.Duration
	SendBuffer            int
	Reconnect             *ReconnectPolicy
	StatusHandler         StatusHandler
}

// DefaultOptions returns an Options struct populated with library defaults.
func DefaultOptions() Options {
	reconnect := DefaultReconnectPolicy()
	return Options{
		Logger:                slog.Default(),
		DialOptions:           &websocket.DialOptions{HTTPClient: http.DefaultClient},
		DefaultRequestTimeout: defaultRequestTimeout,
		WriteTimeout:          defaultWriteTimeout,
		SendBuffer:            defaultSendBuffer,
		Reconnect:             &reconnect,
	}
}

// NewWithOptions constructs a Client from an Options struct. Zero values
// fall back to library defaults.
func NewWithOptions(urlStr string, opts Options) *Client {
	var fns []Option
	if opts.Logger != nil {
		fns = append(fns, WithLogger(opts.Logger))
	}
	if opts.DialOptions != nil {
		fns = append(fns, WithDialOptions(opts.DialOptions))
	}
	if opts.DefaultRequestTimeout > 0 {
		fns = append(fns, WithDefaultRequestTimeout(opts.DefaultRequestTimeout))
	}
	if opts.WriteTimeout > 0 {
		fns = append(fns, WithWriteTimeout(opts.WriteTimeout))
	}
	if opts.SendBuffer > 0 {
		fns = append(fns, WithSendBuffer(opts.SendBuffer))
	}
	if opts.Reconnect != nil {
		fns = append(fns, WithReconnectPolicy(*opts.Reconnect))
	}
	if opts.StatusHandler != nil {
		fns = append(fns, WithStatusHandler(opts.StatusHandler))
	}
	return New(urlStr, fns...)
}
