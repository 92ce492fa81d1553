package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/mitrajunior/esp32-controller-app/internal/connectivity"
)

// Default phase budgets. The window and per-address budget were tuned on
// real ESP hardware; both are config-exposed rather than hardcoded.
const (
	// defaultMulticastService is the DNS-SD service name ESPHome-style
	// firmware announces itself under.
	defaultMulticastService = "_esphomelib._tcp"

	// defaultMulticastDomain is the conventional mDNS domain.
	defaultMulticastDomain = "local"

	// defaultMulticastWindow is how long the browse listens before the
	// engine decides multicast yielded nothing.
	defaultMulticastWindow = 5 * time.Second

	// defaultSweepTimeout bounds each sweep connect attempt.
	defaultSweepTimeout = 500 * time.Millisecond

	// defaultSweepWorkers caps concurrent sweep probes. A full /24 is
	// 254 addresses, so two batches cover one prefix.
	defaultSweepWorkers = 128
)

// Source values reported on DiscoveredDevice.
const (
	SourceMDNS  = "mdns"
	SourceSweep = "sweep"
)

// DiscoveredDevice is a transient descriptor produced by a discovery
// run. It is not a registry record: the caller must reconcile it against
// known devices itself (typically by host and port).
type DiscoveredDevice struct {
	Name   string `json:"name"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Source string `json:"source"`
}

// Logger defines the logging interface used by the discovery engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds discovery tuning. The zero value gets defaults applied.
type Config struct {
	// MulticastService is the DNS-SD service name browsed for.
	// Default: "_esphomelib._tcp".
	MulticastService string

	// MulticastDomain is the browse domain. Default: "local".
	MulticastDomain string

	// MulticastWindow bounds the browse listen window. Default: 5s.
	MulticastWindow time.Duration

	// MulticastInterface optionally pins browsing to a single named
	// interface. Default: all multicast-capable interfaces.
	MulticastInterface string

	// SweepPort is the port the fallback sweep connects to.
	// Default: 6053.
	SweepPort int

	// SweepTimeout bounds each sweep connect attempt. Default: 500ms.
	SweepTimeout time.Duration

	// SweepWorkers caps concurrent sweep probes. Default: 128.
	SweepWorkers int

	// SweepPrefixes overrides the /24 prefixes swept (first three
	// octets, e.g. "192.168.4"). Default: derived from the host's own
	// non-loopback IPv4 interface addresses, falling back to 192.168.1
	// and 192.168.0 when none can be derived.
	SweepPrefixes []string
}

// applyDefaults fills zero fields with the package defaults.
func (c *Config) applyDefaults() {
	if c.MulticastService == "" {
		c.MulticastService = defaultMulticastService
	}
	if c.MulticastDomain == "" {
		c.MulticastDomain = defaultMulticastDomain
	}
	if c.MulticastWindow == 0 {
		c.MulticastWindow = defaultMulticastWindow
	}
	if c.SweepPort == 0 {
		c.SweepPort = connectivity.DefaultNativePort
	}
	if c.SweepTimeout == 0 {
		c.SweepTimeout = defaultSweepTimeout
	}
	if c.SweepWorkers == 0 {
		c.SweepWorkers = defaultSweepWorkers
	}
}

// browseFunc issues a DNS-SD browse, feeding discovered entries into the
// entries channel until ctx ends. Indirection point for tests.
type browseFunc func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry) error

// probeFunc attempts one bounded TCP connect. Indirection point for
// tests; production wiring is connectivity.TCPConnect.
type probeFunc func(ctx context.Context, addr string, timeout time.Duration) bool

// Engine runs two-phase device discovery. Safe for concurrent use; each
// Discover call is independent.
type Engine struct {
	cfg    Config
	logger Logger

	browse     browseFunc
	probe      probeFunc
	ifaceAddrs func() ([]net.Addr, error)
}

// NewEngine creates a discovery engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:        cfg,
		logger:     noopLogger{},
		probe:      connectivity.TCPConnect,
		ifaceAddrs: net.InterfaceAddrs,
	}
	e.browse = e.zeroconfBrowse
	return e
}

// SetLogger sets the logger for engine operations.
func (e *Engine) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Discover runs a full discovery pass: the multicast window first, then
// the subnet sweep only when multicast produced nothing. The sweep never
// runs when multicast found devices, and runs at most once per call.
//
// Returns:
//   - Discovered devices, possibly empty. Empty is a normal result.
//   - Error only on multicast setup failure (ErrMulticastSetup) or
//     caller cancellation; individual probe failures are silent.
func (e *Engine) Discover(ctx context.Context) ([]DiscoveredDevice, error) {
	start := time.Now()

	devices, err := e.multicast(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		e.logger.Info("discovery finished",
			"source", SourceMDNS,
			"found", len(devices),
			"duration", time.Since(start).Round(time.Millisecond))
		return devices, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discovery cancelled: %w", err)
	}

	e.logger.Debug("multicast window empty, sweeping local subnets")
	devices = e.sweep(ctx)
	e.logger.Info("discovery finished",
		"source", SourceSweep,
		"found", len(devices),
		"duration", time.Since(start).Round(time.Millisecond))
	return devices, nil
}
