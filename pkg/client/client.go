// Package client is the Go counterpart of the gateway's wire protocol:
// it dials a gateway, captures the welcome envelope and correlates
// request envelopes with their responses. Integration tests and other Go
// services use it; browsers speak the same JSON protocol directly.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/practicehub/realtime-gateway/pkg/wire"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultPushBuffer     = 16
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("client: closed")

type clientConfig struct {
	logger         *slog.Logger
	dialOptions    *websocket.DialOptions
	requestTimeout time.Duration
	pushBuffer     int
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.config.logger = logger
		}
	}
}

// WithDialOptions sets custom websocket.DialOptions.
func WithDialOptions(opts *websocket.DialOptions) Option {
	return func(c *Client) {
		c.config.dialOptions = opts
	}
}

// WithRequestTimeout sets the default timeout for Request.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.config.requestTimeout = timeout
		}
	}
}

// WithPushBuffer sets the buffer for server-initiated envelopes.
func WithPushBuffer(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.config.pushBuffer = size
		}
	}
}

// Client is one live connection to a gateway.
type Client struct {
	config clientConfig
	conn   *websocket.Conn

	id      string // server-assigned, from the welcome envelope
	welcome *wire.Envelope

	pendingMu sync.Mutex
	pending   map[string]chan *wire.Envelope

	pushes chan *wire.Envelope

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Connect dials the gateway at urlStr and waits for the welcome
// envelope before returning.
func Connect(ctx context.Context, urlStr string, opts ...Option) (*Client, error) {
	c := &Client{
		config: clientConfig{
			logger:         slog.Default(),
			requestTimeout: defaultRequestTimeout,
			pushBuffer:     defaultPushBuffer,
		},
		pending: make(map[string]chan *wire.Envelope),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pushes = make(chan *wire.Envelope, c.config.pushBuffer)

	conn, _, err := websocket.Dial(ctx, urlStr, c.config.dialOptions)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", urlStr, err)
	}
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())

	welcome, err := c.readEnvelope(ctx)
	if err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "no welcome")
		return nil, fmt.Errorf("client: waiting for welcome: %w", err)
	}
	if welcome.Type != wire.TypeWelcome {
		_ = conn.Close(websocket.StatusProtocolError, "unexpected first envelope")
		return nil, fmt.Errorf("client: expected welcome, got %q", welcome.Type)
	}
	var data struct {
		ClientID string `json:"clientId"`
	}
	if err := welcome.DecodeData(&data); err == nil {
		c.id = data.ClientID
	}
	c.welcome = welcome

	go c.readLoop()
	c.config.logger.Debug("client: connected", "client_id", c.id)
	return c, nil
}

// ID is the server-assigned connection id from the welcome envelope.
func (c *Client) ID() string { return c.id }

// Welcome returns the welcome envelope received on connect.
func (c *Client) Welcome() *wire.Envelope { return c.welcome }

// Pushes delivers server-initiated envelopes (broadcasts and targeted
// sends). Envelopes arriving while the buffer is full are dropped.
func (c *Client) Pushes() <-chan *wire.Envelope { return c.pushes }

// Request sends an envelope of the given type with a fresh correlation
// id and waits for the matching response. The response may itself be an
// error envelope; transport failures are returned as errors.
func (c *Client) Request(ctx context.Context, typ string, data any) (*wire.Envelope, error) {
	env, err := wire.NewResponse(uuid.NewString(), typ, data)
	if err != nil {
		return nil, err
	}
	return c.SendRaw(ctx, env)
}

// SendRaw writes a pre-built envelope and, when it carries a
// correlation id, waits for the matching response.
func (c *Client) SendRaw(ctx context.Context, env *wire.Envelope) (*wire.Envelope, error) {
	select {
	case <-c.ctx.Done():
		return nil, ErrClosed
	default:
	}

	var respChan chan *wire.Envelope
	if env.ID != "" {
		respChan = make(chan *wire.Envelope, 1)
		c.pendingMu.Lock()
		c.pending[env.ID] = respChan
		c.pendingMu.Unlock()
		defer func() {
			c.pendingMu.Lock()
			delete(c.pending, env.ID)
			c.pendingMu.Unlock()
		}()
	}

	frame, err := wire.Encode(env)
	if err != nil {
		return nil, err
	}
	writeCtx, cancel := context.WithTimeout(ctx, c.config.requestTimeout)
	err = c.conn.Write(writeCtx, websocket.MessageText, frame)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("client: write: %w", err)
	}
	if respChan == nil {
		return nil, nil
	}

	timer := time.NewTimer(c.config.requestTimeout)
	defer timer.Stop()
	select {
	case resp := <-respChan:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("client: request %s timed out", env.ID)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

func (c *Client) readLoop() {
	defer c.cancel()
	for {
		env, err := c.readEnvelope(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if errors.Is(err, context.Canceled) ||
				status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				c.config.logger.Debug("client: connection closed", "client_id", c.id)
			} else {
				c.config.logger.Warn("client: read error", "client_id", c.id, "error", err)
			}
			return
		}

		if env.ID != "" {
			c.pendingMu.Lock()
			ch, ok := c.pending[env.ID]
			c.pendingMu.Unlock()
			if ok {
				select {
				case ch <- env:
				default:
				}
				continue
			}
		}
		select {
		case c.pushes <- env:
		default:
			c.config.logger.Warn("client: push buffer full, dropping envelope", "type", env.Type)
		}
	}
}

func (c *Client) readEnvelope(ctx context.Context) (*wire.Envelope, error) {
	_, raw, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return wire.Decode(raw)
}

// Close tears the connection down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close(websocket.StatusNormalClosure, "client closing")
	})
	return err
}
