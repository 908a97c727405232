// Package presence maintains the userID -> live connections index the
// rest of the platform queries to tell who is online. It is fed by the
// gateway's lifecycle events rather than polling the registry, so the
// registry itself stays a plain id-keyed store.
package presence

import (
	"log/slog"
	"sync"

	"github.com/practicehub/realtime-gateway/pkg/gateway"
)

// Tracker consumes gateway lifecycle events and keeps a two-way mapping
// between authenticated users and their connection ids. One user may
// hold several concurrent connections (multiple tabs or devices).
type Tracker struct {
	logger *slog.Logger
	bus    *gateway.EventBus
	ch     chan interface{}

	mu     sync.RWMutex
	byUser map[string]map[string]struct{} // userID -> connection ids
	byConn map[string]string              // connection id -> userID

	closeOnce sync.Once
	stopped   chan struct{}
}

var trackedTopics = []string{
	gateway.EventClientAuthenticated,
	gateway.EventClientDisconnected,
	gateway.EventClientEvicted,
}

// NewTracker subscribes to bus and starts tracking.
func NewTracker(bus *gateway.EventBus, logger *slog.Logger) *Tracker {
	t := &Tracker{
		logger:  logger,
		bus:     bus,
		ch:      bus.Subscribe(trackedTopics...),
		byUser:  make(map[string]map[string]struct{}),
		byConn:  make(map[string]string),
		stopped: make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *Tracker) loop() {
	defer close(t.stopped)
	for raw := range t.ch {
		ev, ok := raw.(gateway.Event)
		if !ok {
			continue
		}
		switch ev.Topic {
		case gateway.EventClientAuthenticated:
			t.add(ev.UserID, ev.ClientID)
		case gateway.EventClientDisconnected, gateway.EventClientEvicted:
			t.remove(ev.ClientID)
		}
	}
}

func (t *Tracker) add(userID, clientID string) {
	if userID == "" || clientID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byConn[clientID]; ok && old != userID {
		// Should not happen; connection binding is set-once.
		t.logger.Warn("presence: connection rebound", "client_id", clientID, "old", old, "new", userID)
		t.detachLocked(old, clientID)
	}
	t.byConn[clientID] = userID
	conns, ok := t.byUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		t.byUser[userID] = conns
		t.logger.Info("presence: user online", "user_id", userID)
	}
	conns[clientID] = struct{}{}
}

func (t *Tracker) remove(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	userID, ok := t.byConn[clientID]
	if !ok {
		// Connection never authenticated; nothing tracked for it.
		return
	}
	delete(t.byConn, clientID)
	t.detachLocked(userID, clientID)
}

func (t *Tracker) detachLocked(userID, clientID string) {
	conns, ok := t.byUser[userID]
	if !ok {
		return
	}
	delete(conns, clientID)
	if len(conns) == 0 {
		delete(t.byUser, userID)
		t.logger.Info("presence: user offline", "user_id", userID)
	}
}

// Online reports whether the user has at least one live authenticated
// connection.
func (t *Tracker) Online(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byUser[userID]) > 0
}

// Connections returns the connection ids currently bound to userID.
func (t *Tracker) Connections(userID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.byUser[userID]))
	for id := range t.byUser[userID] {
		ids = append(ids, id)
	}
	return ids
}

// OnlineCount returns the number of distinct users online.
func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byUser)
}

// Close unsubscribes from the event bus. Call before the gateway shuts
// down; after bus shutdown the subscription is already gone.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		select {
		case <-t.stopped:
			// Bus already shut down and closed our channel.
		default:
			t.bus.Unsubscribe(t.ch, trackedTopics...)
		}
	})
}
