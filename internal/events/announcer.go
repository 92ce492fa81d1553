package events

import (
	"sync"

	"github.com/mitrajunior/esp32-controller-app/internal/infrastructure/mqtt"
)

// publisher is the slice of mqtt.Client the announcer needs.
type publisher interface {
	PublishJSON(topic string, v any, qos byte, retained bool) error
}

var _ publisher = (*mqtt.Client)(nil)

// Announcer forwards broker events to MQTT.
//
// Events are published as JSON to espctl/event/<type>, not retained.
// Announcements are best-effort: a publish failure is logged and the
// event stream continues.
type Announcer struct {
	pub publisher
	qos byte

	cancel func()
	wg     sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// NewAnnouncer creates an announcer publishing through client.
//
// A nil client (MQTT disabled) yields a no-op announcer, so callers
// never need to branch on whether MQTT is configured.
func NewAnnouncer(client *mqtt.Client, qos int) *Announcer {
	a := &Announcer{
		qos:    byte(qos),
		logger: noopLogger{},
	}
	if client != nil {
		a.pub = client
	}
	return a
}

// SetLogger sets a logger for publish failures.
func (a *Announcer) SetLogger(logger Logger) {
	a.loggerMu.Lock()
	a.logger = logger
	a.loggerMu.Unlock()
}

func (a *Announcer) getLogger() Logger {
	a.loggerMu.RLock()
	defer a.loggerMu.RUnlock()
	return a.logger
}

// Announce publishes a single event to MQTT. No-op without a client.
func (a *Announcer) Announce(event Event) {
	if a.pub == nil {
		return
	}

	topic := mqtt.Topics{}.Event(event.Type)
	if err := a.pub.PublishJSON(topic, event, a.qos, false); err != nil {
		a.getLogger().Warn("event announcement failed",
			"topic", topic,
			"error", err.Error(),
		)
	}
}

// Start subscribes to the broker and pumps events to MQTT in a
// background goroutine until Stop is called or the broker closes.
// No-op without a client.
func (a *Announcer) Start(broker *Broker) {
	if a.pub == nil {
		return
	}

	ch, cancel := broker.Subscribe()
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for event := range ch {
			a.Announce(event)
		}
	}()
}

// Stop unsubscribes from the broker and waits for the pump to drain.
// Safe to call without a prior Start.
func (a *Announcer) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}
