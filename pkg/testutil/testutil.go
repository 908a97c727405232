// Package testutil provides helpers for spinning up a gateway behind an
// httptest server and talking to it over real WebSocket connections.
package testutil

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/practicehub/realtime-gateway/pkg/client"
	"github.com/practicehub/realtime-gateway/pkg/gateway"
)

// NewLogger returns a debug-level text logger writing to stderr.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// NewGateway starts a gateway behind an httptest server and returns it
// together with the ws:// URL. Both are torn down when the test ends.
func NewGateway(t *testing.T, opts ...gateway.Option) (*gateway.Gateway, string) {
	t.Helper()
	finalOpts := append([]gateway.Option{gateway.WithLogger(NewLogger())}, opts...)
	gw, err := gateway.New(finalOpts...)
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	srv := httptest.NewServer(gw.UpgradeHandler())
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(shutdownCtx)
		srv.Close()
	})
	return gw, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// Dial connects a protocol-aware client to the gateway. Closed when the
// test ends.
func Dial(t *testing.T, wsURL string, opts ...client.Option) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	finalOpts := append([]client.Option{
		client.WithLogger(NewLogger()),
		client.WithRequestTimeout(2 * time.Second),
	}, opts...)
	cli, err := client.Connect(ctx, wsURL, finalOpts...)
	if err != nil {
		t.Fatalf("failed to connect client: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

// DialRaw opens a bare WebSocket connection, reading past the welcome
// frame. Tests use it to write malformed frames the client package
// would refuse to build.
func DialRaw(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	if _, _, err := conn.Read(ctx); err != nil { // welcome
		t.Fatalf("failed to read welcome: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

// WaitFor polls cond until it is true or the timeout elapses.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for: %s", msg)
}
