// Package gateway implements the realtime connection gateway: the
// connection lifecycle state machine, the concurrent client registry,
// the liveness sweeper and the typed-message dispatcher. Transport is a
// persistent WebSocket per client; the envelope format lives in
// pkg/wire.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/practicehub/realtime-gateway/pkg/wire"
)

// ErrGatewayClosed is returned by operations invoked after Shutdown.
var ErrGatewayClosed = errors.New("gateway: shut down")

// Gateway accepts WebSocket connections, tracks them in the registry,
// routes inbound envelopes to registered handlers and evicts peers that
// stop proving liveness. One goroutine per connection runs the read
// loop; a write pump and optional ping loop accompany it; exactly one
// sweeper goroutine serves the whole registry.
type Gateway struct {
	config gatewayConfig

	registry   *Registry
	dispatcher *dispatcher
	events     *EventBus
	sweeper    *sweeper

	shutdownOnce sync.Once
	eventsOnce   sync.Once
	shutdownChan chan struct{}
	mainCtx      context.Context
	mainCancel   context.CancelFunc
}

// New creates a Gateway and starts its sweeper.
func New(opts ...Option) (*Gateway, error) {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	g := &Gateway{
		config: gatewayConfig{
			logger:           slog.Default(),
			clientSendBuffer: defaultClientSendBuffer,
			writeTimeout:     defaultWriteTimeout,
			pingInterval:     0, // resolved below
			sweepInterval:    defaultSweepInterval,
			staleThreshold:   defaultStaleThreshold,
			welcomeMessage:   defaultWelcomeMessage,
		},
		registry:     NewRegistry(),
		events:       newEventBus(),
		shutdownChan: make(chan struct{}),
		mainCtx:      mainCtx,
		mainCancel:   mainCancel,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.config.pingInterval == 0 {
		g.config.pingInterval = libraryDefaultPingInterval
	} else if g.config.pingInterval < 0 {
		g.config.pingInterval = 0 // disabled
	}
	if g.config.acceptOptions == nil {
		g.config.acceptOptions = &websocket.AcceptOptions{}
	}
	if g.config.sweepInterval >= g.config.staleThreshold {
		mainCancel()
		return nil, fmt.Errorf("gateway: sweep interval %v must be shorter than stale threshold %v",
			g.config.sweepInterval, g.config.staleThreshold)
	}

	g.dispatcher = newDispatcher(g.config.logger)
	g.sweeper = newSweeper(g.registry, g.config.sweepInterval, g.config.staleThreshold,
		g.config.logger, g.evictClient)
	go g.sweeper.run(g.shutdownChan)

	g.config.logger.Info("gateway: initialized",
		"sweep_interval", g.config.sweepInterval,
		"stale_threshold", g.config.staleThreshold,
		"ping_interval", g.config.pingInterval)
	return g, nil
}

// Handle registers fn for the given message type. Registering the same
// type twice is an error.
func (g *Gateway) Handle(typ string, fn HandlerFunc) error {
	return g.dispatcher.register(typ, fn)
}

// Registry exposes the client registry for queries (ByUserID, Len, …).
func (g *Gateway) Registry() *Registry { return g.registry }

// Events exposes the lifecycle event bus.
func (g *Gateway) Events() *EventBus { return g.events }

// UpgradeHandler returns the http.HandlerFunc that accepts WebSocket
// upgrade requests and runs each connection's lifecycle.
func (g *Gateway) UpgradeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-g.shutdownChan:
			http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
			return
		default:
		}

		conn, err := websocket.Accept(w, r, g.config.acceptOptions)
		if err != nil {
			g.config.logger.Info("gateway: failed to accept connection", "error", err)
			return
		}

		c := g.acceptClient(conn, r.RemoteAddr)
		if c == nil {
			_ = conn.Close(websocket.StatusInternalError, "registration failed")
			return
		}

		go c.writePump()
		if g.config.pingInterval > 0 {
			go c.pingLoop()
		}
		g.readLoop(c)
	}
}

// acceptClient builds the record, inserts it into the registry and sends
// the welcome envelope, completing the ACCEPTING -> OPEN transition.
func (g *Gateway) acceptClient(conn *websocket.Conn, remoteAddr string) *Client {
	now := time.Now()
	ctx, cancel := context.WithCancel(g.mainCtx)
	c := &Client{
		id:          uuid.NewString(),
		conn:        conn,
		gw:          g,
		logger:      g.config.logger,
		send:        make(chan []byte, g.config.clientSendBuffer),
		connectedAt: now,
		ctx:         ctx,
		cancel:      cancel,
	}
	c.touchLiveness(now)

	if err := g.registry.Insert(c); err != nil {
		// Fresh UUIDs make this unreachable in practice.
		cancel()
		g.config.logger.Error("gateway: failed to register client", "client_id", c.id, "error", err)
		return nil
	}

	g.config.logger.Info("gateway: client connected", "client_id", c.id, "remote_addr", remoteAddr)
	g.events.publish(Event{Topic: EventClientConnected, ClientID: c.id, At: now})

	welcome, err := wire.NewPush(wire.TypeWelcome, map[string]any{
		"clientId":  c.id,
		"timestamp": now.UTC().Format(time.RFC3339),
		"message":   g.config.welcomeMessage,
	})
	if err == nil {
		if frame, encErr := wire.Encode(welcome); encErr == nil {
			c.sendFrame(frame)
		}
	}
	return c
}

// readLoop is the OPEN-state loop for one connection: it decodes each
// inbound frame, dispatches it and writes back exactly one response. A
// malformed frame never closes the connection; a transport error or
// peer close transitions to teardown.
func (g *Gateway) readLoop(c *Client) {
	defer g.destroyClient(c, EventClientDisconnected, websocket.StatusNormalClosure, "closed")

	for {
		msgType, raw, err := c.conn.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case errors.Is(err, context.Canceled):
				g.config.logger.Debug("gateway: read loop cancelled", "client_id", c.id)
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				g.config.logger.Info("gateway: peer closed connection", "client_id", c.id, "status", status)
			default:
				g.config.logger.Warn("gateway: transport error", "client_id", c.id, "error", err)
			}
			return
		}
		if msgType != websocket.MessageText && msgType != websocket.MessageBinary {
			continue
		}

		// Any inbound frame is liveness proof, well-formed or not.
		g.registry.TouchLiveness(c.id, time.Now())

		env, err := wire.Decode(raw)
		if err != nil {
			g.config.logger.Info("gateway: malformed frame", "client_id", c.id, "error", err)
			errEnv := wire.NewErrorResponse("", wire.CodeInvalidFormat, "malformed message", nil)
			g.respond(c, errEnv)
			continue
		}

		// Handlers run sequentially per connection so responses keep
		// request order. A slow handler delays only this connection.
		resp := g.dispatcher.dispatch(c.ctx, c, env)
		g.respond(c, resp)
	}
}

func (g *Gateway) respond(c *Client, env *wire.Envelope) {
	frame, err := wire.Encode(env)
	if err != nil {
		g.config.logger.Error("gateway: failed to encode response", "client_id", c.id, "error", err)
		return
	}
	if !c.sendFrame(frame) {
		g.config.logger.Debug("gateway: response discarded, connection closing",
			"client_id", c.id, "request_id", env.ID)
	}
}

// destroyClient runs the CLOSING -> CLOSED transition: remove from the
// registry, cancel the connection's goroutines, release the handle.
// Idempotent; only the call that actually removes the record publishes
// the lifecycle event and logs the connection duration.
func (g *Gateway) destroyClient(c *Client, eventTopic string, status websocket.StatusCode, reason string) {
	removed := g.registry.Remove(c.id)
	c.cancel()
	_ = c.conn.Close(status, reason)
	if !removed {
		return
	}
	userID, _ := c.UserID()
	g.events.publish(Event{Topic: eventTopic, ClientID: c.id, UserID: userID, At: time.Now()})
	g.config.logger.Info("gateway: client removed",
		"client_id", c.id, "event", eventTopic, "duration", time.Since(c.connectedAt))
}

// evictClient is the sweeper's termination path for stale records.
func (g *Gateway) evictClient(c *Client, idle time.Duration) {
	g.destroyClient(c, EventClientEvicted, websocket.StatusGoingAway,
		fmt.Sprintf("no liveness for %v", idle.Truncate(time.Second)))
}

// Broadcast encodes the envelope once and writes it to every currently
// registered connection. Connections that are not writable at that
// moment are skipped, not errors; the delivered count is returned.
func (g *Gateway) Broadcast(typ string, data any) (int, error) {
	select {
	case <-g.shutdownChan:
		return 0, ErrGatewayClosed
	default:
	}

	env, err := wire.NewPush(typ, data)
	if err != nil {
		return 0, err
	}
	frame, err := wire.Encode(env)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, c := range g.registry.All() {
		if c.trySend(frame) {
			delivered++
		}
	}
	g.config.logger.Debug("gateway: broadcast", "type", typ, "delivered", delivered)
	return delivered, nil
}

// SendTo writes a server-initiated envelope to one connection. It
// reports false when no writable connection exists for id. Fire and
// forget with respect to transport-level delivery.
func (g *Gateway) SendTo(id, typ string, data any) bool {
	c, ok := g.registry.Get(id)
	if !ok {
		return false
	}
	env, err := wire.NewPush(typ, data)
	if err != nil {
		return false
	}
	frame, err := wire.Encode(env)
	if err != nil {
		return false
	}
	return c.trySend(frame)
}

// Shutdown stops accepting connections, stops the sweeper, tears down
// every live connection and waits for the registry to drain.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.config.logger.Info("gateway: shutting down", "clients", g.registry.Len())
		close(g.shutdownChan)
		for _, c := range g.registry.All() {
			g.destroyClient(c, EventClientDisconnected, websocket.StatusGoingAway, "server shutdown")
		}
		g.mainCancel()
	})

	// The sweeper acknowledges the stop signal before events shut down.
	select {
	case <-g.sweeper.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for g.registry.Len() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("gateway: shutdown timed out with %d clients remaining: %w",
				g.registry.Len(), ctx.Err())
		case <-ticker.C:
		}
	}
	g.eventsOnce.Do(g.events.shutdown)
	g.config.logger.Info("gateway: shutdown complete")
	return nil
}
