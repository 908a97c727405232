package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOptions(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{"defaults are valid", func(*Options) {}, ""},
		{"negative send buffer", func(o *Options) { o.ClientSendBuffer = -1 }, "ClientSendBuffer"},
		{"negative write timeout", func(o *Options) { o.WriteTimeout = -time.Second }, "WriteTimeout"},
		{"negative sweep interval", func(o *Options) { o.SweepInterval = -time.Second }, "SweepInterval"},
		{"negative stale threshold", func(o *Options) { o.StaleThreshold = -time.Second }, "StaleThreshold"},
		{"sweep not shorter than threshold", func(o *Options) {
			o.SweepInterval = time.Minute
			o.StaleThreshold = time.Minute
		}, "shorter than"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			tc.mutate(&opts)
			err := validateOptions(opts)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestNewRejectsSweepSlowerThanThreshold(t *testing.T) {
	_, err := New(
		WithSweepInterval(time.Minute),
		WithStaleThreshold(30*time.Second),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep interval")
}

func TestNewWithOptionsAppliesValues(t *testing.T) {
	opts := DefaultOptions()
	opts.ClientSendBuffer = 4
	opts.WriteTimeout = 2 * time.Second
	opts.PingInterval = -1 // disabled
	opts.SweepInterval = 10 * time.Second
	opts.StaleThreshold = time.Minute
	opts.WelcomeMessage = "hello"

	g, err := NewWithOptions(opts)
	require.NoError(t, err)
	defer shutdownGateway(t, g)

	assert.Equal(t, 4, g.config.clientSendBuffer)
	assert.Equal(t, 2*time.Second, g.config.writeTimeout)
	assert.Equal(t, time.Duration(0), g.config.pingInterval, "negative interval disables pings")
	assert.Equal(t, 10*time.Second, g.config.sweepInterval)
	assert.Equal(t, time.Minute, g.config.staleThreshold)
	assert.Equal(t, "hello", g.config.welcomeMessage)
}

func TestNewResolvesPingIntervalDefault(t *testing.T) {
	g, err := New()
	require.NoError(t, err)
	defer shutdownGateway(t, g)

	assert.Equal(t, libraryDefaultPingInterval, g.config.pingInterval)
}

func TestNewWithOptionsExtraOptionsOverride(t *testing.T) {
	g, err := NewWithOptions(DefaultOptions(), WithWelcomeMessage("override"))
	require.NoError(t, err)
	defer shutdownGateway(t, g)

	assert.Equal(t, "override", g.config.welcomeMessage)
}

func shutdownGateway(t *testing.T, g *Gateway) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, g.Shutdown(ctx))
}
