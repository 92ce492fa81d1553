package connectivity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mitrajunior/esp32-controller-app/internal/esphome"
)

// Default probe budgets and conventional ports.
const (
	// defaultHTTPProbeTimeout bounds the HTTP status probe.
	defaultHTTPProbeTimeout = 3 * time.Second

	// defaultNativeProbeTimeout bounds the native handshake probe. The
	// handshake is two round trips, so it gets a longer budget.
	defaultNativeProbeTimeout = 5 * time.Second

	// defaultTCPProbeTimeout bounds the raw transport probe.
	defaultTCPProbeTimeout = 3 * time.Second

	// DefaultHTTPPort is the conventional HTTP control port.
	DefaultHTTPPort = 80

	// DefaultNativePort is the conventional native-API port.
	DefaultNativePort = 6053
)

// Logger defines the logging interface used by connectivity components.
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

// Config holds probe budgets and the candidate default ports used by the
// detector's fallback plan. The zero value gets defaults applied.
type Config struct {
	// HTTPProbeTimeout bounds the HTTP status probe. Default: 3s.
	HTTPProbeTimeout time.Duration

	// NativeProbeTimeout bounds the native handshake probe. Default: 5s.
	NativeProbeTimeout time.Duration

	// TCPProbeTimeout bounds the raw transport probe. Default: 3s.
	TCPProbeTimeout time.Duration

	// HTTPPort is the fallback HTTP candidate port. Default: 80.
	HTTPPort int

	// NativePort is the fallback native candidate port. Default: 6053.
	NativePort int
}

// applyDefaults fills zero fields with the package defaults.
func (c *Config) applyDefaults() {
	if c.HTTPProbeTimeout == 0 {
		c.HTTPProbeTimeout = defaultHTTPProbeTimeout
	}
	if c.NativeProbeTimeout == 0 {
		c.NativeProbeTimeout = defaultNativeProbeTimeout
	}
	if c.TCPProbeTimeout == 0 {
		c.TCPProbeTimeout = defaultTCPProbeTimeout
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = DefaultHTTPPort
	}
	if c.NativePort == 0 {
		c.NativePort = DefaultNativePort
	}
}

// nativeSession is the slice of the session API a probe needs.
type nativeSession interface {
	Close() error
}

// nativeDialer opens a native-API session. Overridable in tests.
type nativeDialer func(ctx context.Context, address string, opts esphome.Options) (nativeSession, error)

// Prober runs the three bounded reachability checks.
//
// Each probe is side-effect-free beyond its transient connection, owns its
// whole time budget, and resolves every failure mode to false - probes
// never return errors.
type Prober struct {
	cfg    Config
	logger Logger
	dial   nativeDialer
}

// NewProber creates a prober with the given budgets.
func NewProber(cfg Config) *Prober {
	cfg.applyDefaults()
	return &Prober{
		cfg:    cfg,
		logger: noopLogger{},
		dial: func(ctx context.Context, address string, opts esphome.Options) (nativeSession, error) {
			return esphome.Dial(ctx, address, opts)
		},
	}
}

// SetLogger sets the logger for the prober.
func (p *Prober) SetLogger(logger Logger) {
	p.logger = logger
}

// HTTP probes a device's HTTP stack with a bounded GET.
//
// Any response proves a live HTTP listener - 4xx/5xx included. Only
// transport-level failure counts as unreachable; a 404 responder may not
// be a functioning control endpoint, but that is for the caller to judge.
//
// Parameters:
//   - ctx: Context; combined with the configured budget
//   - host: IP or resolvable name
//   - port: TCP port to probe
//
// Returns:
//   - bool: true if any HTTP response arrived within the budget
func (p *Prober) HTTP(ctx context.Context, host string, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.HTTPProbeTimeout)
	defer cancel()

	addr := net.JoinHostPort(resolveHost(ctx, host), strconv.Itoa(port))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/", addr), nil)
	if err != nil {
		return false
	}

	// One-shot client: keep-alives off so no socket outlives the probe.
	client := &http.Client{
		Timeout:   p.cfg.HTTPProbeTimeout,
		Transport: &http.Transport{DisableKeepAlives: true},
	}

	resp, err := client.Do(req)
	if err != nil {
		p.logger.Debug("http probe failed", "host", host, "port", port, "error", err)
		return false
	}
	resp.Body.Close() //nolint:errcheck // Verdict already decided

	p.logger.Debug("http probe succeeded", "host", host, "port", port, "status", resp.StatusCode)
	return true
}

// Native probes a device by completing the native-API handshake.
//
// The session is opened with minimal options - no device-info request, no
// service call - and torn down unconditionally whatever the outcome. Only
// an explicit handshake success before the deadline counts.
//
// Parameters:
//   - ctx: Context; combined with the configured budget
//   - host: IP or resolvable name
//   - port: TCP port to probe
//   - password: Optional pre-shared handshake secret
//
// Returns:
//   - bool: true iff the handshake completed within the budget
func (p *Prober) Native(ctx context.Context, host string, port int, password string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.NativeProbeTimeout)
	defer cancel()

	addr := net.JoinHostPort(resolveHost(ctx, host), strconv.Itoa(port))

	session, err := p.dial(ctx, addr, esphome.Options{
		Password:       password,
		ConnectTimeout: p.cfg.NativeProbeTimeout,
		ReadTimeout:    p.cfg.NativeProbeTimeout,
	})
	if err != nil {
		p.logger.Debug("native probe failed", "host", host, "port", port, "error", err)
		return false
	}
	session.Close() //nolint:errcheck // Probe only needs handshake success

	p.logger.Debug("native probe succeeded", "host", host, "port", port)
	return true
}

// TCP probes bare transport-level reachability.
func (p *Prober) TCP(ctx context.Context, host string, port int) bool {
	addr := net.JoinHostPort(resolveHost(ctx, host), strconv.Itoa(port))
	return TCPConnect(ctx, addr, p.cfg.TCPProbeTimeout)
}

// TCPConnect reports whether a bare TCP connection to addr establishes
// within the budget. The connection is closed immediately either way.
// Shared by the TCP probe and the discovery sweep, which uses a much
// shorter per-address budget.
func TCPConnect(ctx context.Context, addr string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close() //nolint:errcheck // Connection was only evidence
	return true
}

// resolveHost resolves a name to its first IPv4 address for socket
// operations, preferring IPv4 because the devices are v4-only in
// practice. Resolution failure degrades to the original host string;
// literal IPs pass through untouched.
func resolveHost(ctx context.Context, host string) string {
	if ip := net.ParseIP(host); ip != nil {
		return host
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return host
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return addrs[0].IP.String()
}
