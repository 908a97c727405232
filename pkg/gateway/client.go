package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/practicehub/realtime-gateway/pkg/wire"
)

// ErrUserAlreadyBound is returned by BindUser when the connection is
// already bound to a different user.
var ErrUserAlreadyBound = errors.New("gateway: connection already bound to another user")

// ClientHandle is the view of a connection handed to message handlers
// and registry consumers. The underlying socket is owned exclusively by
// the connection's own goroutines; everything here is safe to call from
// any goroutine.
type ClientHandle interface {
	// ID is the opaque connection id generated at accept time.
	ID() string
	// UserID reports the authenticated user bound to this connection.
	UserID() (string, bool)
	// ConnectedAt is the accept timestamp.
	ConnectedAt() time.Time
	// Context is cancelled when the connection enters teardown.
	Context() context.Context
	// BindUser associates the connection with an authenticated user.
	// Binding is set-once: rebinding to the same user is a no-op,
	// rebinding to a different user fails with ErrUserAlreadyBound.
	BindUser(userID string) error
	// Send pushes a server-initiated envelope to this connection.
	// Best effort: a full send buffer or a closing connection drops it.
	Send(env *wire.Envelope) error
}

// Client is one live connection's record: identity, socket handle,
// authenticated-user association and liveness timestamps.
type Client struct {
	id          string
	conn        *websocket.Conn
	gw          *Gateway
	logger      *slog.Logger
	send        chan []byte
	connectedAt time.Time

	lastLiveness atomic.Int64 // unix nanoseconds

	userMu sync.Mutex
	userID string

	ctx    context.Context
	cancel context.CancelFunc

	destroyOnce sync.Once
}

var _ ClientHandle = (*Client)(nil)

func (c *Client) ID() string { return c.id }

func (c *Client) ConnectedAt() time.Time { return c.connectedAt }

func (c *Client) Context() context.Context { return c.ctx }

func (c *Client) UserID() (string, bool) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	return c.userID, c.userID != ""
}

func (c *Client) BindUser(userID string) error {
	c.userMu.Lock()
	switch c.userID {
	case "":
		c.userID = userID
	case userID:
		// Idempotent re-authentication with the same identity.
	default:
		c.userMu.Unlock()
		return ErrUserAlreadyBound
	}
	c.userMu.Unlock()
	c.gw.events.publish(Event{
		Topic:    EventClientAuthenticated,
		ClientID: c.id,
		UserID:   userID,
		At:       time.Now(),
	})
	return nil
}

// LastLiveness is the most recent time the peer proved it is alive.
func (c *Client) LastLiveness() time.Time {
	return time.Unix(0, c.lastLiveness.Load())
}

func (c *Client) touchLiveness(at time.Time) {
	c.lastLiveness.Store(at.UnixNano())
}

func (c *Client) Send(env *wire.Envelope) error {
	frame, err := wire.Encode(env)
	if err != nil {
		return err
	}
	if !c.trySend(frame) {
		return errors.New("gateway: client not writable")
	}
	return nil
}

// sendFrame queues a frame, blocking until the write pump drains the
// buffer or the connection tears down. Used for request responses, which
// must not be silently dropped.
func (c *Client) sendFrame(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// trySend queues a frame without blocking. Used for broadcasts and
// targeted pushes, where an unwritable connection is skipped.
func (c *Client) trySend(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	case <-c.ctx.Done():
		return false
	default:
		c.logger.Warn("gateway: send buffer full, dropping frame", "client_id", c.id)
		return false
	}
}

// writePump owns all writes to the socket. It exits when the client
// context is cancelled or a write fails; a failed write closes the
// connection and lets the read loop run the teardown.
func (c *Client) writePump() {
	for {
		select {
		case frame := <-c.send:
			writeCtx, cancel := context.WithTimeout(c.ctx, c.gw.config.writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				c.logger.Debug("gateway: write failed, closing connection", "client_id", c.id, "error", err)
				_ = c.conn.Close(websocket.StatusInternalError, "write failure")
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// pingLoop issues protocol-level pings. A completed round-trip is
// liveness proof; a failed one closes the socket so the read loop can
// reclaim the record.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.gw.config.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, c.gw.config.pingInterval/2)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.logger.Debug("gateway: ping failed", "client_id", c.id, "error", err)
				_ = c.conn.Close(websocket.StatusPolicyViolation, "ping failure")
				return
			}
			c.gw.registry.TouchLiveness(c.id, time.Now())
		case <-c.ctx.Done():
			return
		}
	}
}
