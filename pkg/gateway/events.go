package gateway

import (
	"time"

	"github.com/cskr/pubsub"
)

// Lifecycle event topics published on the gateway's event bus.
const (
	EventClientConnected     = "client.connected"
	EventClientAuthenticated = "client.authenticated"
	EventClientDisconnected  = "client.disconnected"
	EventClientEvicted       = "client.evicted"
)

// Event describes one connection lifecycle transition. UserID is empty
// for connections that never authenticated.
type Event struct {
	Topic    string
	ClientID string
	UserID   string
	At       time.Time
}

// EventBus fans gateway lifecycle events out to in-process subscribers,
// such as the presence tracker. Publishing never blocks the connection
// goroutines: a subscriber that falls behind misses events.
type EventBus struct {
	bus *pubsub.PubSub
}

const eventBusCapacity = 32

func newEventBus() *EventBus {
	return &EventBus{bus: pubsub.New(eventBusCapacity)}
}

// Subscribe returns a channel receiving Event values for the given
// topics. The channel is closed when the gateway shuts down.
func (b *EventBus) Subscribe(topics ...string) chan interface{} {
	return b.bus.Sub(topics...)
}

// Unsubscribe removes ch from the given topics and closes it.
func (b *EventBus) Unsubscribe(ch chan interface{}, topics ...string) {
	b.bus.Unsub(ch, topics...)
}

func (b *EventBus) publish(ev Event) {
	b.bus.TryPub(ev, ev.Topic)
}

func (b *EventBus) shutdown() {
	b.bus.Shutdown()
}
