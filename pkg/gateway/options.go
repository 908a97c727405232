package gateway

import (
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultClientSendBuffer    = 16
	defaultWriteTimeout        = 10 * time.Second
	libraryDefaultPingInterval = 30 * time.Second // if the caller passes 0 to WithPingInterval
	defaultSweepInterval       = 60 * time.Second
	defaultStaleThreshold      = 5 * time.Minute
	defaultWelcomeMessage      = "connected to realtime gateway"
)

type gatewayConfig struct {
	logger           *slog.Logger
	acceptOptions    *websocket.AcceptOptions
	clientSendBuffer int
	writeTimeout     time.Duration
	pingInterval     time.Duration // 0 means use library default, <0 means disable
	sweepInterval    time.Duration
	staleThreshold   time.Duration
	welcomeMessage   string
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.config.logger = logger
		}
	}
}

// WithAcceptOptions provides custom websocket.AcceptOptions.
func WithAcceptOptions(opts *websocket.AcceptOptions) Option {
	return func(g *Gateway) {
		g.config.acceptOptions = opts
	}
}

// WithClientSendBuffer sets the outgoing buffer size per connection.
// Default is 16. Large buffers only delay, not prevent, issues with
// slow clients.
func WithClientSendBuffer(size int) Option {
	return func(g *Gateway) {
		if size > 0 {
			g.config.clientSendBuffer = size
		}
	}
}

// WithWriteTimeout sets the per-frame write timeout.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		if timeout > 0 {
			g.config.writeTimeout = timeout
		}
	}
}

// WithPingInterval sets the server-initiated ping interval.
// interval < 0 disables server pings; interval == 0 uses the library
// default (30s).
func WithPingInterval(interval time.Duration) Option {
	return func(g *Gateway) {
		g.config.pingInterval = interval // resolved in New
	}
}

// WithSweepInterval sets the liveness sweep period. Default 60s. The
// period should be materially shorter than the staleness threshold.
func WithSweepInterval(interval time.Duration) Option {
	return func(g *Gateway) {
		if interval > 0 {
			g.config.sweepInterval = interval
		}
	}
}

// WithStaleThreshold sets how long a connection may go without liveness
// proof before the sweeper evicts it. Default 5m.
func WithStaleThreshold(threshold time.Duration) Option {
	return func(g *Gateway) {
		if threshold > 0 {
			g.config.staleThreshold = threshold
		}
	}
}

// WithWelcomeMessage overrides the human-readable text in the welcome
// envelope sent on connect.
func WithWelcomeMessage(message string) Option {
	return func(g *Gateway) {
		if message != "" {
			g.config.welcomeMessage = message
		}
	}
}

// Options contains configuration values for creating a Gateway with
// NewWithOptions. Zero values fall back to library defaults.
type Options struct {
	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// AcceptOptions configures WebSocket accept behavior.
	AcceptOptions *websocket.AcceptOptions

	// ClientSendBuffer is the outgoing buffer size per connection.
	ClientSendBuffer int

	// WriteTimeout is the per-frame write timeout.
	WriteTimeout time.Duration

	// PingInterval between server pings. 0 = library default (30s),
	// negative = disabled.
	PingInterval time.Duration

	// SweepInterval is the liveness sweep period.
	SweepInterval time.Duration

	// StaleThreshold is the maximum silence before eviction.
	StaleThreshold time.Duration

	// WelcomeMessage is the text carried in the welcome envelope.
	WelcomeMessage string
}

// DefaultOptions returns an Options struct populated with library
// defaults (sweep 60s, threshold 5m, ping 30s).
func DefaultOptions() Options {
	return Options{
		Logger:           slog.Default(),
		AcceptOptions:    &websocket.AcceptOptions{},
		ClientSendBuffer: defaultClientSendBuffer,
		WriteTimeout:     defaultWriteTimeout,
		PingInterval:     libraryDefaultPingInterval,
		SweepInterval:    defaultSweepInterval,
		StaleThreshold:   defaultStaleThreshold,
		WelcomeMessage:   defaultWelcomeMessage,
	}
}

// NewWithOptions creates a Gateway from an Options struct. Additional
// functional options may be supplied and override struct values.
func NewWithOptions(opts Options, extraOpts ...Option) (*Gateway, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	optionFns := []Option{
		WithLogger(opts.Logger),
		WithAcceptOptions(opts.AcceptOptions),
	}
	if opts.ClientSendBuffer > 0 {
		optionFns = append(optionFns, WithClientSendBuffer(opts.ClientSendBuffer))
	}
	if opts.WriteTimeout > 0 {
		optionFns = append(optionFns, WithWriteTimeout(opts.WriteTimeout))
	}
	if opts.PingInterval != 0 {
		optionFns = append(optionFns, WithPingInterval(opts.PingInterval))
	}
	if opts.SweepInterval > 0 {
		optionFns = append(optionFns, WithSweepInterval(opts.SweepInterval))
	}
	if opts.StaleThreshold > 0 {
		optionFns = append(optionFns, WithStaleThreshold(opts.StaleThreshold))
	}
	if opts.WelcomeMessage != "" {
		optionFns = append(optionFns, WithWelcomeMessage(opts.WelcomeMessage))
	}
	optionFns = append(optionFns, extraOpts...)

	return New(optionFns...)
}

func validateOptions(opts Options) error {
	if opts.ClientSendBuffer < 0 {
		return errors.New("ClientSendBuffer must be non-negative")
	}
	if opts.WriteTimeout < 0 {
		return errors.New("WriteTimeout must be non-negative")
	}
	if opts.SweepInterval < 0 {
		return errors.New("SweepInterval must be non-negative")
	}
	if opts.StaleThreshold < 0 {
		return errors.New("StaleThreshold must be non-negative")
	}
	if opts.SweepInterval > 0 && opts.StaleThreshold > 0 && opts.SweepInterval >= opts.StaleThreshold {
		return errors.New("SweepInterval must be shorter than StaleThreshold")
	}
	return nil
}
