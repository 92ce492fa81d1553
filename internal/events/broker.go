package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// subscriberBufferSize is the per-subscriber channel buffer.
// A subscriber that lags by more than this many events loses the
// overflow rather than blocking publishers.
const subscriberBufferSize = 64

// Broker fans events out to in-process subscribers.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool

	// dropped counts events discarded because a subscriber's buffer
	// was full (atomic for performance).
	dropped atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBroker creates an event broker with no subscribers.
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[int]chan Event),
		logger: noopLogger{},
	}
}

// SetLogger sets a logger for drop warnings.
func (b *Broker) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Broker) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// Subscribe registers a new subscriber and returns its event channel
// along with a cancel function. The channel is closed when cancel is
// called or the broker shuts down; cancel is safe to call twice.
//
// Subscribing to a closed broker returns an already-closed channel.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
// Events sent to a subscriber whose buffer is full are dropped and
// counted. A zero Timestamp is stamped with the current time.
func (b *Broker) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- event:
			// Delivered
		default:
			// Subscriber buffer full, drop to protect publishers
			b.dropped.Add(1)
			b.getLogger().Warn("event dropped, subscriber buffer full",
				"type", event.Type,
				"device_id", event.DeviceID,
			)
		}
	}
}

// Close shuts the broker down and closes all subscriber channels.
// Publish and Subscribe become no-ops afterwards. Safe to call twice.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers returns the current subscriber count.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the total number of events dropped since start.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}
