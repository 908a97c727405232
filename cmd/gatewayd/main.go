// Command gatewayd runs the realtime gateway daemon: it loads
// configuration from the environment, wires the credential verifier and
// the domain collaborators into the gateway, serves the WebSocket
// endpoint and shuts down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"

	"github.com/practicehub/realtime-gateway/pkg/auth"
	"github.com/practicehub/realtime-gateway/pkg/config"
	"github.com/practicehub/realtime-gateway/pkg/gateway"
	"github.com/practicehub/realtime-gateway/pkg/handlers"
	"github.com/practicehub/realtime-gateway/pkg/presence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	verifier, stopWatcher, err := buildVerifier(cfg, logger)
	if err != nil {
		logger.Error("failed to set up credential verifier", "error", err)
		os.Exit(1)
	}
	defer stopWatcher()

	acceptOpts := &websocket.AcceptOptions{OriginPatterns: cfg.AllowedOrigins}
	gw, err := gateway.New(
		gateway.WithLogger(logger),
		gateway.WithAcceptOptions(acceptOpts),
		gateway.WithClientSendBuffer(cfg.SendBuffer),
		gateway.WithPingInterval(cfg.PingInterval),
		gateway.WithSweepInterval(cfg.SweepInterval),
		gateway.WithStaleThreshold(cfg.StaleThreshold),
	)
	if err != nil {
		logger.Error("failed to create gateway", "error", err)
		os.Exit(1)
	}

	tracker := presence.NewTracker(gw.Events(), logger)
	defer tracker.Close()

	catalog := newStaticCatalog()
	if err := handlers.RegisterBuiltins(gw, verifier); err != nil {
		logger.Error("failed to register built-in handlers", "error", err)
		os.Exit(1)
	}
	if err := handlers.RegisterDomain(gw, catalog, catalog, catalog); err != nil {
		logger.Error("failed to register domain handlers", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gw.UpgradeHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gatewayd: listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("gatewayd: shutting down", "signal", sig.String())
	case err := <-errCh:
		// Failing to bind the listener is one of the few process-fatal
		// conditions.
		logger.Error("gatewayd: server failed", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gatewayd: http shutdown", "error", err)
	}
	tracker.Close()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gatewayd: gateway shutdown", "error", err)
	}
}

// buildVerifier picks the verifier implementation: a JWT verifier with a
// hot-reloaded signing secret when a secret path is configured,
// otherwise the static development table.
func buildVerifier(cfg *config.Config, logger *slog.Logger) (auth.Verifier, func(), error) {
	if cfg.AuthSecretPath != "" {
		verifier := auth.NewHMACVerifier(nil)
		watcher, err := auth.NewKeyWatcher(cfg.AuthSecretPath, verifier, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := watcher.Start(); err != nil {
			return nil, nil, err
		}
		return verifier, func() { _ = watcher.Stop() }, nil
	}

	if len(cfg.DevCredentials) == 0 {
		return nil, nil, errors.New("set GATEWAY_AUTH_SECRET_PATH or GATEWAY_DEV_CREDENTIALS")
	}
	logger.Warn("gatewayd: using static development credentials; do not use in production")
	return auth.StaticVerifier(cfg.DevCredentials), func() {}, nil
}
