package gateway

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepEvictsOnlyStaleClients(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	fresh := newTestClient(t, "fresh")
	fresh.touchLiveness(now.Add(-time.Second))
	stale := newTestClient(t, "stale")
	stale.touchLiveness(now.Add(-10 * time.Minute))
	borderline := newTestClient(t, "borderline")
	borderline.touchLiveness(now.Add(-5 * time.Minute))

	require.NoError(t, r.Insert(fresh))
	require.NoError(t, r.Insert(stale))
	require.NoError(t, r.Insert(borderline))

	var evicted []string
	s := newSweeper(r, time.Minute, 5*time.Minute, slog.Default(), func(c *Client, idle time.Duration) {
		evicted = append(evicted, c.ID())
		assert.Greater(t, idle, 5*time.Minute)
	})

	assert.Equal(t, 1, s.sweep(now))
	assert.Equal(t, []string{"stale"}, evicted)
}

func TestSweepTouchedClientSurvives(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	c := newTestClient(t, "c1")
	c.touchLiveness(now.Add(-10 * time.Minute))
	require.NoError(t, r.Insert(c))

	var evicted int
	s := newSweeper(r, time.Minute, 5*time.Minute, slog.Default(), func(*Client, time.Duration) {
		evicted++
	})

	// A liveness proof just before the sweep resets the idle clock.
	r.TouchLiveness("c1", now)
	assert.Equal(t, 0, s.sweep(now))
	assert.Equal(t, 0, evicted)

	// Without further proof the same client is reclaimed later.
	assert.Equal(t, 1, s.sweep(now.Add(6*time.Minute)))
	assert.Equal(t, 1, evicted)
}

func TestSweeperRunStopsOnSignal(t *testing.T) {
	r := NewRegistry()
	s := newSweeper(r, 5*time.Millisecond, time.Minute, slog.Default(), func(*Client, time.Duration) {})

	stop := make(chan struct{})
	go s.run(stop)

	time.Sleep(20 * time.Millisecond)
	close(stop)

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
