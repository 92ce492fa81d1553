package connectivity

import (
	"context"
	"fmt"
)

// Protocol identifies how a device expects to be spoken to.
type Protocol string

// Supported protocols.
const (
	// ProtocolHTTP is the plain HTTP control surface on port 80.
	ProtocolHTTP Protocol = "http"

	// ProtocolNative is the binary native API, conventionally port 6053.
	ProtocolNative Protocol = "native"
)

// ProtocolForPort derives the protocol from a detected port.
//
// Port 80 speaks HTTP; every other accepted port is the native binary
// API. This convention is authoritative once a port is detected -
// downstream dispatch relies on it instead of re-probing, so it is
// deliberately not configurable.
func ProtocolForPort(port int) Protocol {
	if port == DefaultHTTPPort {
		return ProtocolHTTP
	}
	return ProtocolNative
}

// Result is a detection verdict. When Reachable is false the other
// fields are zero; unreachable is a normal outcome, not an error.
type Result struct {
	Reachable bool     `json:"reachable"`
	Port      int      `json:"port,omitempty"`
	Protocol  Protocol `json:"protocol,omitempty"`
}

// Probes is the probe surface the detector sequences.
// Satisfied by *Prober; fakeable in tests.
type Probes interface {
	HTTP(ctx context.Context, host string, port int) bool
	Native(ctx context.Context, host string, port int, password string) bool
}

// Ensure Prober implements Probes.
var _ Probes = (*Prober)(nil)

// Detector settles which (protocol, port) pair a device actually speaks.
//
// The fallback order favours the caller's declared intent first, then
// relaxes to the well-known defaults. Probes run strictly sequentially so
// the precedence contract holds; the first success short-circuits the
// rest.
type Detector struct {
	probes Probes
	cfg    Config
	logger Logger
}

// NewDetector creates a detector sequencing the given probes.
func NewDetector(probes Probes, cfg Config) *Detector {
	cfg.applyDefaults()
	return &Detector{
		probes: probes,
		cfg:    cfg,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the detector.
func (d *Detector) SetLogger(logger Logger) {
	d.logger = logger
}

// probeStep is one entry in the ordered fallback plan.
type probeStep struct {
	port int
	kind Protocol
	run  func(ctx context.Context) bool
}

// Detect decides the single reachable (protocol, port) pair for a device.
//
// Fallback order, preserved exactly because callers depend on the
// precedence to avoid false negatives on unconventional ports:
//
//  1. HTTP probe on the requested port
//  2. Native probe on the requested port
//  3. HTTP probe on port 80 (if requested port differs)
//  4. Native probe on port 6053 (if requested port differs)
//
// All probes failing yields Result{Reachable: false} with a nil error.
// The only error condition is caller-initiated context cancellation,
// which aborts the plan without a verdict.
//
// Parameters:
//   - ctx: Context for cancellation
//   - host: IP or resolvable name
//   - port: The caller's requested port
//   - password: Optional native-handshake secret
//
// Returns:
//   - Result: Winning port and derived protocol, or unreachable
//   - error: Only when ctx is cancelled mid-plan
func (d *Detector) Detect(ctx context.Context, host string, port int, password string) (Result, error) {
	for _, step := range d.plan(host, port, password) {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("detection cancelled: %w", err)
		}

		if step.run(ctx) {
			d.logger.Debug("detection settled",
				"host", host,
				"port", step.port,
				"probe", string(step.kind),
			)
			// Protocol is derived from the winning port, not from which
			// probe answered: the port convention is authoritative.
			return Result{
				Reachable: true,
				Port:      step.port,
				Protocol:  ProtocolForPort(step.port),
			}, nil
		}
	}

	d.logger.Debug("detection exhausted all probes", "host", host, "port", port)
	return Result{Reachable: false}, nil
}

// plan builds the ordered probe sequence for a requested port.
func (d *Detector) plan(host string, port int, password string) []probeStep {
	steps := []probeStep{
		{
			port: port,
			kind: ProtocolHTTP,
			run:  func(ctx context.Context) bool { return d.probes.HTTP(ctx, host, port) },
		},
		{
			port: port,
			kind: ProtocolNative,
			run:  func(ctx context.Context) bool { return d.probes.Native(ctx, host, port, password) },
		},
	}

	if port != d.cfg.HTTPPort {
		steps = append(steps, probeStep{
			port: d.cfg.HTTPPort,
			kind: ProtocolHTTP,
			run:  func(ctx context.Context) bool { return d.probes.HTTP(ctx, host, d.cfg.HTTPPort) },
		})
	}
	if port != d.cfg.NativePort {
		steps = append(steps, probeStep{
			port: d.cfg.NativePort,
			kind: ProtocolNative,
			run:  func(ctx context.Context) bool { return d.probes.Native(ctx, host, d.cfg.NativePort, password) },
		})
	}

	return steps
}

// CheckReachable runs the single probe matching the port's protocol:
// HTTP for port 80, the native handshake for everything else. Used for
// known devices whose port was already detected.
func (d *Detector) CheckReachable(ctx context.Context, host string, port int, password string) bool {
	if ProtocolForPort(port) == ProtocolHTTP {
		return d.probes.HTTP(ctx, host, port)
	}
	return d.probes.Native(ctx, host, port, password)
}
