package gateway

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicehub/realtime-gateway/pkg/wire"
)

func newTestDispatcher() *dispatcher {
	return newDispatcher(slog.Default())
}

func TestDispatcherRegisterValidation(t *testing.T) {
	d := newTestDispatcher()

	assert.Error(t, d.register("", func(context.Context, ClientHandle, *wire.Envelope) (*wire.Envelope, error) {
		return nil, nil
	}))
	assert.Error(t, d.register("ping", nil))

	require.NoError(t, d.register("ping", func(context.Context, ClientHandle, *wire.Envelope) (*wire.Envelope, error) {
		return wire.NewResponse("", "pong", nil)
	}))
	err := d.register("ping", func(context.Context, ClientHandle, *wire.Envelope) (*wire.Envelope, error) {
		return wire.NewResponse("", "pong", nil)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestDispatchUnknownType(t *testing.T) {
	d := newTestDispatcher()
	c := newTestClient(t, "c1")

	resp := d.dispatch(context.Background(), c, &wire.Envelope{ID: "req-1", Type: "no-such-type"})
	require.NotNil(t, resp)
	assert.Equal(t, "req-1", resp.ID)
	assert.Equal(t, wire.TypeError, resp.Type)
	require.NotNil(t, resp.Error)
	assert.Equal(t, wire.CodeUnknownMessageType, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "no-such-type")
}

func TestDispatchEchoesRequestID(t *testing.T) {
	d := newTestDispatcher()
	c := newTestClient(t, "c1")
	require.NoError(t, d.register("ping", func(_ context.Context, _ ClientHandle, env *wire.Envelope) (*wire.Envelope, error) {
		return wire.NewResponse(env.ID, "pong", map[string]string{"message": "pong"})
	}))

	resp := d.dispatch(context.Background(), c, &wire.Envelope{ID: "req-7", Type: "ping"})
	require.NotNil(t, resp)
	assert.Equal(t, "req-7", resp.ID)
	assert.Equal(t, "pong", resp.Type)
	assert.NotEmpty(t, resp.Timestamp)
	assert.Nil(t, resp.Error)
}

func TestDispatchHandlerErrorSurfacesCode(t *testing.T) {
	d := newTestDispatcher()
	c := newTestClient(t, "c1")
	require.NoError(t, d.register("authenticate", func(context.Context, ClientHandle, *wire.Envelope) (*wire.Envelope, error) {
		return nil, &wire.HandlerError{Code: "AUTH_UNAVAILABLE", Message: "verifier offline"}
	}))

	resp := d.dispatch(context.Background(), c, &wire.Envelope{ID: "req-2", Type: "authenticate"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "AUTH_UNAVAILABLE", resp.Error.Code)
	assert.Equal(t, "verifier offline", resp.Error.Message)
	assert.Equal(t, "req-2", resp.ID)
}

func TestDispatchPlainErrorIsMasked(t *testing.T) {
	d := newTestDispatcher()
	c := newTestClient(t, "c1")
	require.NoError(t, d.register("broken", func(context.Context, ClientHandle, *wire.Envelope) (*wire.Envelope, error) {
		return nil, errors.New("db: connection refused on 10.0.0.3")
	}))

	resp := d.dispatch(context.Background(), c, &wire.Envelope{ID: "req-3", Type: "broken"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, wire.CodeInternalError, resp.Error.Code)
	// Internal detail must not leak to the peer.
	assert.Equal(t, "internal error", resp.Error.Message)
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := newTestDispatcher()
	c := newTestClient(t, "c1")
	require.NoError(t, d.register("explode", func(context.Context, ClientHandle, *wire.Envelope) (*wire.Envelope, error) {
		panic("boom")
	}))

	var resp *wire.Envelope
	require.NotPanics(t, func() {
		resp = d.dispatch(context.Background(), c, &wire.Envelope{ID: "req-4", Type: "explode"})
	})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, wire.CodeInternalError, resp.Error.Code)
	assert.Equal(t, "req-4", resp.ID)
}

func TestDispatchNilResponseBecomesInternalError(t *testing.T) {
	d := newTestDispatcher()
	c := newTestClient(t, "c1")
	require.NoError(t, d.register("silent", func(context.Context, ClientHandle, *wire.Envelope) (*wire.Envelope, error) {
		return nil, nil
	}))

	resp := d.dispatch(context.Background(), c, &wire.Envelope{ID: "req-5", Type: "silent"})
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, wire.CodeInternalError, resp.Error.Code)
}
