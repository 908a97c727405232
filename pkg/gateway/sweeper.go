package gateway

import (
	"log/slog"
	"time"
)

// sweeper is the recurring task that reclaims connections that went
// silent without a clean close. A dead peer produces no event for its
// own read loop to react to, so only this time-based external check can
// detect it. The sweep period should be materially shorter than the
// staleness threshold to bound the worst-case staleness window.
type sweeper struct {
	registry  *Registry
	interval  time.Duration
	threshold time.Duration
	logger    *slog.Logger
	evict     func(c *Client, idle time.Duration)
	done      chan struct{}
}

func newSweeper(registry *Registry, interval, threshold time.Duration, logger *slog.Logger, evict func(*Client, time.Duration)) *sweeper {
	return &sweeper{
		registry:  registry,
		interval:  interval,
		threshold: threshold,
		logger:    logger,
		evict:     evict,
		done:      make(chan struct{}),
	}
}

// run loops until stop is closed. Owned by the gateway so shutdown and
// tests can stop it deterministically.
func (s *sweeper) run(stop <-chan struct{}) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-stop:
			return
		}
	}
}

// sweep evicts every record whose last liveness proof is older than the
// threshold. Records touched within the threshold survive.
func (s *sweeper) sweep(now time.Time) int {
	evicted := 0
	for _, c := range s.registry.All() {
		idle := now.Sub(c.LastLiveness())
		if idle <= s.threshold {
			continue
		}
		s.logger.Warn("gateway: evicting stale connection",
			"client_id", c.ID(), "idle", idle, "threshold", s.threshold)
		s.evict(c, idle)
		evicted++
	}
	return evicted
}
