// Package realtimegateway re-exports the core types so embedding
// applications can depend on a single import path.
package realtimegateway

import (
	"github.com/practicehub/realtime-gateway/pkg/gateway"
	"github.com/practicehub/realtime-gateway/pkg/wire"
)

// Re-export core types.
type (
	Gateway      = gateway.Gateway
	Option       = gateway.Option
	Options      = gateway.Options
	ClientHandle = gateway.ClientHandle
	HandlerFunc  = gateway.HandlerFunc
	Registry     = gateway.Registry
	Event        = gateway.Event
	Envelope     = wire.Envelope
	ErrorPayload = wire.ErrorPayload
	HandlerError = wire.HandlerError
)

// Re-export error values.
var (
	ErrDuplicateClient  = gateway.ErrDuplicateClient
	ErrUserAlreadyBound = gateway.ErrUserAlreadyBound
	ErrGatewayClosed    = gateway.ErrGatewayClosed
)

// Re-export lifecycle event topics.
const (
	EventClientConnected     = gateway.EventClientConnected
	EventClientAuthenticated = gateway.EventClientAuthenticated
	EventClientDisconnected  = gateway.EventClientDisconnected
	EventClientEvicted       = gateway.EventClientEvicted
)

// New creates a gateway with functional options.
func New(opts ...Option) (*Gateway, error) { return gateway.New(opts...) }

// NewWithOptions creates a gateway from an Options struct.
func NewWithOptions(opts Options, extra ...Option) (*Gateway, error) {
	return gateway.NewWithOptions(opts, extra...)
}

// DefaultOptions returns the library defaults.
func DefaultOptions() Options { return gateway.DefaultOptions() }
