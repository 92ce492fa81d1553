package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mitrajunior/esp32-controller-app/internal/connectivity"
	"github.com/mitrajunior/esp32-controller-app/internal/device"
	"github.com/mitrajunior/esp32-controller-app/internal/esphome"
)

// Default dispatch budgets.
const (
	// defaultHTTPTimeout bounds one HTTP command or status request.
	defaultHTTPTimeout = 3 * time.Second

	// defaultSessionTimeout bounds a native session from dial through
	// the single service invocation.
	defaultSessionTimeout = 5 * time.Second

	// maxStatusBody caps how much of a status response is decoded.
	maxStatusBody = 64 * 1024
)

// Logger defines the logging interface used by the dispatcher.
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

// Config holds dispatch budgets. The zero value gets defaults applied.
type Config struct {
	// HTTPTimeout bounds one HTTP command or status request. Default: 3s.
	HTTPTimeout time.Duration

	// SessionTimeout bounds a native session (dial + invoke). Default: 5s.
	SessionTimeout time.Duration
}

// applyDefaults fills zero fields with the package defaults.
func (c *Config) applyDefaults() {
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = defaultSessionTimeout
	}
}

// Result is a normalised dispatch outcome.
type Result struct {
	Command  string         `json:"command"`
	DeviceID string         `json:"device_id"`
	Duration time.Duration  `json:"duration"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// Status is a device status snapshot. Offline is a normal outcome, not
// an error; Detail is only populated when the device answered.
type Status struct {
	Online bool           `json:"online"`
	Detail map[string]any `json:"detail,omitempty"`
}

// session is the slice of the native session API a dispatch needs.
type session interface {
	Invoke(ctx context.Context, service string, data map[string]any) error
	DeviceInfo(ctx context.Context) (*esphome.DeviceInfo, error)
	Close() error
}

// Ensure the real session satisfies the dispatch surface.
var _ session = (*esphome.Session)(nil)

// sessionDialer opens a native session. Overridable in tests.
type sessionDialer func(ctx context.Context, address string, opts esphome.Options) (session, error)

// Dispatcher executes abstract commands and status fetches against known
// devices, choosing the transport leg from the persisted protocol.
type Dispatcher struct {
	cfg    Config
	logger Logger
	dial   sessionDialer
	client *http.Client
}

// NewDispatcher creates a dispatcher with the given budgets.
func NewDispatcher(cfg Config) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		cfg:    cfg,
		logger: noopLogger{},
		dial: func(ctx context.Context, address string, opts esphome.Options) (session, error) {
			return esphome.Dial(ctx, address, opts)
		},
		// One-shot client: keep-alives off so no socket outlives a dispatch.
		client: &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
		},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Dispatch executes one abstract command against one device.
//
// The command is resolved against the fixed vocabulary before any I/O:
// unknown names fail with connectivity.ErrUnsupportedCommand and broken
// payloads with ErrInvalidCommand, regardless of device reachability.
//
// HTTP devices get a single bounded POST of the command JSON; any
// response counts as success, status code ignored, consistent with the
// HTTP probe policy. Native devices get one session spanning dial and
// exactly one service invocation, closed on every exit path.
//
// Parameters:
//   - ctx: Context; combined with the configured budget
//   - dev: Target device with detected port and protocol
//   - cmd: The abstract command
//
// Returns:
//   - Result: Command, device, duration and transport detail
//   - error: connectivity.ErrUnsupportedCommand, ErrInvalidCommand,
//     connectivity.{ErrUnreachable,ErrTimeout,ErrHandshake} or a
//     transport error
func (d *Dispatcher) Dispatch(ctx context.Context, dev *device.Device, cmd Command) (Result, error) {
	service, args, err := translate(cmd)
	if err != nil {
		return Result{}, err
	}

	started := time.Now()

	var detail map[string]any
	if protocolOf(dev) == connectivity.ProtocolHTTP {
		detail, err = d.dispatchHTTP(ctx, dev, cmd)
	} else {
		detail, err = d.dispatchNative(ctx, dev, service, args)
	}

	duration := time.Since(started)
	if err != nil {
		d.logger.Debug("dispatch failed",
			"device_id", dev.ID,
			"command", cmd.Name,
			"error", err,
		)
		return Result{}, err
	}

	d.logger.Info("command dispatched",
		"device_id", dev.ID,
		"command", cmd.Name,
		"duration_ms", duration.Milliseconds(),
	)
	return Result{
		Command:  cmd.Name,
		DeviceID: dev.ID,
		Duration: duration,
		Detail:   detail,
	}, nil
}

// dispatchHTTP posts the command JSON to the device's command endpoint.
func (d *Dispatcher) dispatchHTTP(ctx context.Context, dev *device.Device, cmd Command) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.HTTPTimeout)
	defer cancel()

	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encoding command: %w", err)
	}

	url := fmt.Sprintf("http://%s/command", dev.Address())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, httpFailure(err)
	}
	resp.Body.Close() //nolint:errcheck // Verdict already decided

	// The status code is recorded but not judged, consistent with the
	// HTTP probe: any response proves a live listener.
	return map[string]any{"status": resp.StatusCode}, nil
}

// dispatchNative opens a session and performs exactly one invocation.
func (d *Dispatcher) dispatchNative(ctx context.Context, dev *device.Device, service string, args map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.SessionTimeout)
	defer cancel()

	sess, err := d.dial(ctx, dev.Address(), esphome.Options{
		Password:       dev.Password,
		ConnectTimeout: d.cfg.SessionTimeout,
		ReadTimeout:    d.cfg.SessionTimeout,
	})
	if err != nil {
		return nil, nativeFailure(err)
	}
	defer sess.Close() //nolint:errcheck // Teardown must not mask the invoke verdict

	if err := sess.Invoke(ctx, service, args); err != nil {
		return nil, nativeFailure(err)
	}

	return map[string]any{"service": service}, nil
}

// FetchStatus retrieves a device's status snapshot.
//
// HTTP devices get a bounded GET of the status endpoint with the JSON
// body decoded into Detail when it parses; native devices get a session
// and a device-info exchange. An unreachable device yields
// Status{Online: false} with a nil error - offline is a verdict, not a
// failure. The only error condition is caller-initiated cancellation.
func (d *Dispatcher) FetchStatus(ctx context.Context, dev *device.Device) (Status, error) {
	if protocolOf(dev) == connectivity.ProtocolHTTP {
		return d.fetchHTTPStatus(ctx, dev)
	}
	return d.fetchNativeStatus(ctx, dev)
}

// fetchHTTPStatus reads the device's status endpoint.
func (d *Dispatcher) fetchHTTPStatus(ctx context.Context, dev *device.Device) (Status, error) {
	opCtx, cancel := context.WithTimeout(ctx, d.cfg.HTTPTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/status", dev.Address())
	req, err := http.NewRequestWithContext(opCtx, http.MethodGet, url, nil)
	if err != nil {
		return Status{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if cErr := ctx.Err(); cErr != nil {
			return Status{}, fmt.Errorf("status fetch cancelled: %w", cErr)
		}
		d.logger.Debug("status fetch failed", "device_id", dev.ID, "error", err)
		return Status{Online: false}, nil
	}
	defer resp.Body.Close() //nolint:errcheck // Read-only response

	status := Status{Online: true}

	// Best-effort body decode: devices serve free-form JSON here and a
	// garbled body does not make the device offline.
	var detail map[string]any
	if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxStatusBody)).Decode(&detail); decodeErr == nil {
		status.Detail = detail
	}

	return status, nil
}

// fetchNativeStatus dials a session and asks for the device info.
func (d *Dispatcher) fetchNativeStatus(ctx context.Context, dev *device.Device) (Status, error) {
	opCtx, cancel := context.WithTimeout(ctx, d.cfg.SessionTimeout)
	defer cancel()

	sess, err := d.dial(opCtx, dev.Address(), esphome.Options{
		Password:       dev.Password,
		ConnectTimeout: d.cfg.SessionTimeout,
		ReadTimeout:    d.cfg.SessionTimeout,
	})
	if err != nil {
		if cErr := ctx.Err(); cErr != nil {
			return Status{}, fmt.Errorf("status fetch cancelled: %w", cErr)
		}
		d.logger.Debug("status fetch failed", "device_id", dev.ID, "error", err)
		return Status{Online: false}, nil
	}
	defer sess.Close() //nolint:errcheck // Read-only exchange

	info, err := sess.DeviceInfo(opCtx)
	if err != nil {
		if cErr := ctx.Err(); cErr != nil {
			return Status{}, fmt.Errorf("status fetch cancelled: %w", cErr)
		}
		d.logger.Debug("device info failed", "device_id", dev.ID, "error", err)
		return Status{Online: false}, nil
	}

	detail := map[string]any{"name": info.Name}
	if info.MACAddress != "" {
		detail["mac_address"] = info.MACAddress
	}
	if info.Model != "" {
		detail["model"] = info.Model
	}
	if info.Version != "" {
		detail["esphome_version"] = info.Version
	}

	return Status{Online: true, Detail: detail}, nil
}

// protocolOf returns the device's persisted protocol, falling back to
// the port convention for records that predate detection.
func protocolOf(dev *device.Device) connectivity.Protocol {
	if dev.Protocol != "" {
		return dev.Protocol
	}
	return connectivity.ProtocolForPort(dev.Port)
}

// httpFailure folds an HTTP transport error into the failure taxonomy.
func httpFailure(err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %w", connectivity.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", connectivity.ErrUnreachable, err)
}

// nativeFailure folds a session error into the failure taxonomy.
//
// Precedence: a rejected password is always a handshake failure; after
// that any exceeded deadline is a timeout, whatever stage it hit; only
// then do the remaining handshake and dial classes apply.
func nativeFailure(err error) error {
	switch {
	case errors.Is(err, esphome.ErrInvalidPassword):
		return fmt.Errorf("%w: %w", connectivity.ErrHandshake, err)
	case isTimeout(err):
		return fmt.Errorf("%w: %w", connectivity.ErrTimeout, err)
	case errors.Is(err, esphome.ErrHandshakeFailed):
		return fmt.Errorf("%w: %w", connectivity.ErrHandshake, err)
	case errors.Is(err, esphome.ErrConnectionFailed):
		return fmt.Errorf("%w: %w", connectivity.ErrUnreachable, err)
	default:
		return err
	}
}

// isTimeout matches both context deadlines and socket read deadlines.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}
