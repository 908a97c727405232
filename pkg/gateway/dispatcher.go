package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/practicehub/realtime-gateway/pkg/wire"
)

// HandlerFunc implements one message type. It receives the owning
// connection's handle and the decoded envelope, and returns the response
// envelope. Returning a *wire.HandlerError surfaces that code to the
// peer; any other error (or a panic) becomes a generic INTERNAL_ERROR.
type HandlerFunc func(ctx context.Context, client ClientHandle, env *wire.Envelope) (*wire.Envelope, error)

// dispatcher maps message types to handlers and executes them with
// fault isolation: dispatch never panics and always yields exactly one
// response envelope.
type dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	return &dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

func (d *dispatcher) register(typ string, fn HandlerFunc) error {
	if typ == "" {
		return errors.New("gateway: handler type must not be empty")
	}
	if fn == nil {
		return errors.New("gateway: handler must not be nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[typ]; exists {
		return fmt.Errorf("gateway: handler already registered for type %q", typ)
	}
	d.handlers[typ] = fn
	return nil
}

func (d *dispatcher) lookup(typ string) (HandlerFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn, ok := d.handlers[typ]
	return fn, ok
}

// dispatch resolves and runs the handler for env. The returned envelope
// always echoes the request id and carries a fresh timestamp.
func (d *dispatcher) dispatch(ctx context.Context, client ClientHandle, env *wire.Envelope) *wire.Envelope {
	fn, ok := d.lookup(env.Type)
	if !ok {
		// Unknown types are expected from forward-compatible clients.
		d.logger.Info("gateway: no handler for message type",
			"type", env.Type, "request_id", env.ID, "client_id", client.ID())
		return wire.NewErrorResponse(env.ID, wire.CodeUnknownMessageType,
			fmt.Sprintf("unknown message type %q", env.Type), nil)
	}

	resp, err := d.invoke(ctx, fn, client, env)
	if err != nil {
		var herr *wire.HandlerError
		if errors.As(err, &herr) {
			return wire.NewErrorResponse(env.ID, herr.Code, herr.Message, herr.Details)
		}
		d.logger.Error("gateway: handler failed",
			"type", env.Type, "request_id", env.ID, "client_id", client.ID(), "error", err)
		// Generic message only; internal detail stays in the log.
		return wire.NewErrorResponse(env.ID, wire.CodeInternalError, "internal error", nil)
	}
	if resp == nil {
		d.logger.Error("gateway: handler returned no response",
			"type", env.Type, "request_id", env.ID, "client_id", client.ID())
		return wire.NewErrorResponse(env.ID, wire.CodeInternalError, "internal error", nil)
	}
	resp.ID = env.ID
	if resp.Timestamp == "" {
		resp.Timestamp = wire.Now().UTC().Format(time.RFC3339)
	}
	return resp
}

// invoke runs the handler, converting a panic into an error.
func (d *dispatcher) invoke(ctx context.Context, fn HandlerFunc, client ClientHandle, env *wire.Envelope) (resp *wire.Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ctx, client, env)
}
