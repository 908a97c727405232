package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicehub/realtime-gateway/pkg/auth"
	"github.com/practicehub/realtime-gateway/pkg/handlers"
	"github.com/practicehub/realtime-gateway/pkg/presence"
	"github.com/practicehub/realtime-gateway/pkg/testutil"
)

func TestTrackerFollowsAuthentication(t *testing.T) {
	gw, wsURL := testutil.NewGateway(t)
	require.NoError(t, handlers.RegisterBuiltins(gw, auth.StaticVerifier{"user-1": "token-1"}))

	tracker := presence.NewTracker(gw.Events(), testutil.NewLogger())
	t.Cleanup(tracker.Close)

	cli := testutil.Dial(t, wsURL)
	assert.False(t, tracker.Online("user-1"), "an unauthenticated connection is not presence")

	resp, err := cli.Request(context.Background(), handlers.TypeAuthenticate,
		handlers.AuthenticateRequest{UserID: "user-1", Token: "token-1"})
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	testutil.WaitFor(t, 2*time.Second, func() bool {
		return tracker.Online("user-1")
	}, "user online after authenticating")
	assert.Equal(t, []string{cli.ID()}, tracker.Connections("user-1"))
	assert.Equal(t, 1, tracker.OnlineCount())
}

func TestTrackerMultipleConnectionsPerUser(t *testing.T) {
	gw, wsURL := testutil.NewGateway(t)
	require.NoError(t, handlers.RegisterBuiltins(gw, auth.StaticVerifier{"user-1": "token-1"}))

	tracker := presence.NewTracker(gw.Events(), testutil.NewLogger())
	t.Cleanup(tracker.Close)

	first := testutil.Dial(t, wsURL)
	second := testutil.Dial(t, wsURL)

	req := handlers.AuthenticateRequest{UserID: "user-1", Token: "token-1"}
	resp, err := first.Request(context.Background(), handlers.TypeAuthenticate, req)
	require.NoError(t, err)
	require.Nil(t, resp.Error)
	resp, err = second.Request(context.Background(), handlers.TypeAuthenticate, req)
	require.NoError(t, err)
	require.Nil(t, resp.Error)

	testutil.WaitFor(t, 2*time.Second, func() bool {
		return len(tracker.Connections("user-1")) == 2
	}, "both connections tracked")
	assert.Equal(t, 1, tracker.OnlineCount(), "two tabs are still one user")

	// Closing one connection keeps the user online; closing both does not.
	require.NoError(t, first.Close())
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return len(tracker.Connections("user-1")) == 1
	}, "first connection untracked")
	assert.True(t, tracker.Online("user-1"))

	require.NoError(t, second.Close())
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return !tracker.Online("user-1")
	}, "user offline after last disconnect")
	assert.Equal(t, 0, tracker.OnlineCount())
}

func TestTrackerIgnoresUnauthenticatedDisconnect(t *testing.T) {
	gw, wsURL := testutil.NewGateway(t)
	require.NoError(t, handlers.RegisterBuiltins(gw, auth.StaticVerifier{}))

	tracker := presence.NewTracker(gw.Events(), testutil.NewLogger())
	t.Cleanup(tracker.Close)

	cli := testutil.Dial(t, wsURL)
	require.NoError(t, cli.Close())

	testutil.WaitFor(t, 2*time.Second, func() bool {
		return gw.Registry().Len() == 0
	}, "registry drained")
	assert.Equal(t, 0, tracker.OnlineCount())
}

func TestTrackerCloseIsIdempotent(t *testing.T) {
	gw, _ := testutil.NewGateway(t)
	tracker := presence.NewTracker(gw.Events(), testutil.NewLogger())
	tracker.Close()
	tracker.Close()
}
