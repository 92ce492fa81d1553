package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mitrajunior/esp32-controller-app/internal/audit"
	"github.com/mitrajunior/esp32-controller-app/internal/connectivity"
	"github.com/mitrajunior/esp32-controller-app/internal/control"
	"github.com/mitrajunior/esp32-controller-app/internal/device"
	"github.com/mitrajunior/esp32-controller-app/internal/discovery"
	"github.com/mitrajunior/esp32-controller-app/internal/events"
	"github.com/mitrajunior/esp32-controller-app/internal/infrastructure/config"
	"github.com/mitrajunior/esp32-controller-app/internal/infrastructure/database"
	"github.com/mitrajunior/esp32-controller-app/internal/infrastructure/influxdb"
	"github.com/mitrajunior/esp32-controller-app/internal/infrastructure/logging"
	"github.com/mitrajunior/esp32-controller-app/internal/infrastructure/mqtt"
	"github.com/mitrajunior/esp32-controller-app/internal/monitor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Detector resolves reachability and protocol for an address.
// Satisfied by *connectivity.Detector; fakeable in tests.
type Detector interface {
	Detect(ctx context.Context, host string, port int, password string) (connectivity.Result, error)
}

// Dispatcher executes abstract commands and status fetches against devices.
// Satisfied by *control.Dispatcher; fakeable in tests.
type Dispatcher interface {
	Dispatch(ctx context.Context, dev *device.Device, cmd control.Command) (control.Result, error)
	FetchStatus(ctx context.Context, dev *device.Device) (control.Status, error)
}

// Discoverer finds devices on the local network.
// Satisfied by *discovery.Engine; fakeable in tests.
type Discoverer interface {
	Discover(ctx context.Context) ([]discovery.DiscoveredDevice, error)
}

// Metrics is the slice of the metrics client the API touches: run metrics
// on write, reachability history on read. Optional; nil disables both.
type Metrics interface {
	WriteDiscoveryRun(method string, found int, durationMs float64)
	WriteCommandResult(deviceID, command string, durationMs float64, ok bool)
	QueryReachability(ctx context.Context, deviceID string, since time.Time) ([]influxdb.ReachabilitySample, error)
	HealthCheck(ctx context.Context) error
}

// MonitorSource exposes the reachability monitor's counters. Optional.
type MonitorSource interface {
	Stats() monitor.Stats
}

// HealthChecker reports one component's health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Compile-time checks that the real components satisfy the API's views of them.
var (
	_ Detector      = (*connectivity.Detector)(nil)
	_ Dispatcher    = (*control.Dispatcher)(nil)
	_ Discoverer    = (*discovery.Engine)(nil)
	_ Metrics       = (*influxdb.Client)(nil)
	_ MonitorSource = (*monitor.Monitor)(nil)
	_ HealthChecker = (*mqtt.Client)(nil)
)

// Deps holds the dependencies required by the API server.
//
// Optional interface fields (Metrics, Monitor, MQTT) must be left nil when
// the component is absent - never assign a nil concrete pointer, or the
// nil guard in the handlers cannot see it.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Registry   *device.Registry
	Detector   Detector
	Dispatcher Dispatcher
	Discovery  Discoverer
	Events     *events.Broker   // optional: nil disables event fan-out
	Audit      audit.Repository // optional: nil disables the audit trail
	Metrics    Metrics          // optional: nil disables history + run metrics
	Monitor    MonitorSource    // optional: nil omits monitor counters from info
	DB         *database.DB     // optional: nil omits database health/stats
	MQTT       HealthChecker    // optional: nil omits the MQTT health component
	Version    string
}

// Server is the HTTP API server for the controller.
//
// It manages the HTTP listener, routes, middleware, WebSocket hub, and the
// asynchronous audit writer. The server is created with New() and started
// with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	registry   *device.Registry
	detector   Detector
	dispatcher Dispatcher
	discovery  Discoverer
	events     *events.Broker
	audit      audit.Repository
	metrics    Metrics
	monitor    MonitorSource
	db         *database.DB
	mqtt       HealthChecker
	version    string

	server    *http.Server
	hub       *Hub
	auditCh   chan *audit.Entry
	cancel    context.CancelFunc // cancels background goroutines on Close()
	startTime time.Time
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Discovery == nil {
		return nil, fmt.Errorf("discovery engine is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		registry:   deps.Registry,
		detector:   deps.Detector,
		dispatcher: deps.Dispatcher,
		discovery:  deps.Discovery,
		events:     deps.Events,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		monitor:    deps.Monitor,
		db:         deps.DB,
		mqtt:       deps.MQTT,
		version:    deps.Version,
		startTime:  time.Now(),
	}

	if s.audit != nil {
		s.auditCh = make(chan *audit.Entry, auditChanSize)
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It creates the WebSocket hub, starts the event relay and the audit
// writer, and launches the HTTP listener in a background goroutine. The
// server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Relay broker events to WebSocket clients.
	go s.relayEvents(srvCtx)

	// Serialise best-effort audit writes.
	if s.auditCh != nil {
		go s.drainAudit(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, event relay, audit writer)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// publishEvent hands an event to the broker when one is configured.
func (s *Server) publishEvent(event events.Event) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

// noteReachability records a reachability observation made as a side
// effect of an API operation. Only transitions are persisted and
// announced; the monitor owns steady-state confirmation.
func (s *Server) noteReachability(ctx context.Context, dev *device.Device, reachable bool) {
	if dev.Reachable == reachable {
		return
	}

	if err := s.registry.MarkReachability(ctx, dev.ID, reachable); err != nil {
		s.logger.Warn("reachability update failed", "device_id", dev.ID, "error", err)
		return
	}

	s.publishEvent(events.Event{
		Type:     events.TypeReachabilityChanged,
		DeviceID: dev.ID,
		Data: map[string]any{
			"reachable": reachable,
			"host":      dev.Host,
			"port":      dev.Port,
		},
	})
}
