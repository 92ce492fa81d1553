package monitor

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mitrajunior/esp32-controller-app/internal/connectivity"
	"github.com/mitrajunior/esp32-controller-app/internal/device"
	"github.com/mitrajunior/esp32-controller-app/internal/events"
)

// Defaults for the monitor loop.
const (
	// defaultInterval is the time between reachability rounds.
	defaultInterval = 60 * time.Second

	// defaultConcurrency is the probe worker limit per round.
	defaultConcurrency = 8
)

// Registry is the slice of the device registry the monitor needs.
type Registry interface {
	ListDevices(ctx context.Context) ([]device.Device, error)
	MarkReachability(ctx context.Context, id string, reachable bool) error
}

var _ Registry = (*device.Registry)(nil)

// Checker probes a single device for reachability.
// Implemented by connectivity.Detector.
type Checker interface {
	CheckReachable(ctx context.Context, host string, port int, password string) bool
}

var _ Checker = (*connectivity.Detector)(nil)

// Publisher receives reachability transition events.
// Implemented by events.Broker.
type Publisher interface {
	Publish(event events.Event)
}

var _ Publisher = (*events.Broker)(nil)

// MetricsWriter records per-probe results.
// Implemented by the influxdb client; may be absent.
type MetricsWriter interface {
	WriteProbeResult(deviceID, host, protocol string, rttMs float64, reachable bool)
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds configuration for the reachability monitor.
type Config struct {
	// Interval is the time between rounds. Default: 60 seconds.
	Interval time.Duration

	// Concurrency is the probe worker limit per round. Default: 8.
	Concurrency int

	// Registry lists devices and records transitions.
	Registry Registry

	// Checker performs the per-device probe.
	Checker Checker

	// Events receives reachability_changed events.
	Events Publisher

	// Metrics records probe results. May be nil (metrics disabled).
	Metrics MetricsWriter
}

// Stats holds operational statistics for the monitor.
type Stats struct {
	RoundsTotal      uint64
	ProbesTotal      uint64
	TransitionsTotal uint64
	LastRound        time.Time
}

// Monitor probes registered devices on a fixed interval.
//
// Thread Safety:
//   - Start/Close and Stats are safe for concurrent use.
type Monitor struct {
	interval    time.Duration
	concurrency int

	registry Registry
	checker  Checker
	events   Publisher
	metrics  MetricsWriter

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Statistics (atomic for performance)
	roundsTotal      atomic.Uint64
	probesTotal      atomic.Uint64
	transitionsTotal atomic.Uint64
	lastRound        atomic.Int64 // Unix timestamp

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a reachability monitor.
// Call Start to begin probing and Close to shut down.
func New(cfg Config) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Monitor{
		interval:    interval,
		concurrency: concurrency,
		registry:    cfg.Registry,
		checker:     cfg.Checker,
		events:      cfg.Events,
		metrics:     cfg.Metrics,
		done:        make(chan struct{}),
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for this monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

func (m *Monitor) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

// Start begins the probe loop.
// Must be called once; call Close to shut down.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
}

// Close stops the probe loop and waits for the current round to finish.
// Safe to call multiple times.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

// Stats returns a snapshot of operational statistics.
func (m *Monitor) Stats() Stats {
	s := Stats{
		RoundsTotal:      m.roundsTotal.Load(),
		ProbesTotal:      m.probesTotal.Load(),
		TransitionsTotal: m.transitionsTotal.Load(),
	}
	if ts := m.lastRound.Load(); ts > 0 {
		s.LastRound = time.Unix(ts, 0)
	}
	return s
}

// run is the loop goroutine. Rounds execute here sequentially, which
// is what guarantees they never overlap.
func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	// Jittered first round
	if jitterMax := m.interval / 4; jitterMax > 0 {
		jitter := rand.N(jitterMax)
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-time.After(jitter):
		}
	}

	m.runRound(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.runRound(ctx)
		}
	}
}

// runRound probes every registered device once.
func (m *Monitor) runRound(ctx context.Context) {
	started := time.Now()

	devices, err := m.registry.ListDevices(ctx)
	if err != nil {
		m.getLogger().Warn("reachability round skipped, device list failed",
			"error", err.Error(),
		)
		return
	}

	sem := make(chan struct{}, m.concurrency)
	var wg sync.WaitGroup

	for _, dev := range devices {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-m.done:
			wg.Wait()
			return
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(dev device.Device) {
			defer wg.Done()
			defer func() { <-sem }()
			m.probeDevice(ctx, dev)
		}(dev)
	}
	wg.Wait()

	m.roundsTotal.Add(1)
	m.lastRound.Store(time.Now().Unix())

	m.getLogger().Debug("reachability round complete",
		"devices", len(devices),
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

// probeDevice checks one device and records the outcome.
func (m *Monitor) probeDevice(ctx context.Context, dev device.Device) {
	started := time.Now()
	reachable := m.checker.CheckReachable(ctx, dev.Host, dev.Port, dev.Password)
	rtt := time.Since(started)

	m.probesTotal.Add(1)

	if m.metrics != nil {
		m.metrics.WriteProbeResult(dev.ID, dev.Host, string(dev.Protocol), rtt.Seconds()*1000, reachable)
	}

	if reachable == dev.Reachable {
		return // No transition
	}

	if err := m.registry.MarkReachability(ctx, dev.ID, reachable); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return // Deleted mid-round
		}
		m.getLogger().Warn("reachability transition not persisted",
			"device_id", dev.ID,
			"error", err.Error(),
		)
		return
	}

	m.transitionsTotal.Add(1)
	m.getLogger().Info("device reachability changed",
		"device_id", dev.ID,
		"host", dev.Host,
		"reachable", reachable,
	)

	m.events.Publish(events.Event{
		Type:     events.TypeReachabilityChanged,
		DeviceID: dev.ID,
		Data: map[string]any{
			"reachable": reachable,
			"host":      dev.Host,
			"port":      dev.Port,
		},
	})
}
