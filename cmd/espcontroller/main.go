// ESP32 Controller - Device Connectivity & Discovery Engine
//
// This is the main entry point for the controller. It keeps a registry of
// small network-attached devices (native binary protocol on port 6053,
// HTTP on port 80), discovers them on the local network, probes their
// reachability, and exposes a REST + WebSocket API for control.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mitrajunior/esp32-controller-app/migrations"

	"github.com/mitrajunior/esp32-controller-app/internal/api"
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

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	configFlag := flag.String("config", "", "path to the configuration file")
	versionFlag := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("espcontroller %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Components start in dependency order and shut down in reverse via the
// defer chain: API server, monitor, InfluxDB, announcer, broker, MQTT,
// database.
func run(ctx context.Context, configFlag string) error { //nolint:gocognit,cyclop // Sequential component wiring reads best in one place
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting controller",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := resolveConfigPath(configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry := device.NewRegistry(deviceRepo)
	registry.SetLogger(log)

	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}
	log.Info("device registry initialised", "devices", registry.GetDeviceCount())

	// Connectivity probes and protocol detector
	connCfg := connectivity.Config{
		HTTPProbeTimeout:   cfg.Connectivity.GetHTTPProbeTimeout(),
		NativeProbeTimeout: cfg.Connectivity.GetNativeProbeTimeout(),
		TCPProbeTimeout:    cfg.Connectivity.GetTCPProbeTimeout(),
		HTTPPort:           cfg.Connectivity.DefaultHTTPPort,
		NativePort:         cfg.Connectivity.DefaultNativePort,
	}
	prober := connectivity.NewProber(connCfg)
	prober.SetLogger(log)

	detector := connectivity.NewDetector(prober, connCfg)
	detector.SetLogger(log)

	// Discovery engine (multicast browse with subnet sweep fallback)
	discoveryEngine := discovery.NewEngine(discovery.Config{
		MulticastService: cfg.Discovery.Service,
		MulticastDomain:  cfg.Discovery.Domain,
		MulticastWindow:  cfg.Discovery.GetMulticastWindow(),
		SweepPort:        cfg.Connectivity.DefaultNativePort,
		SweepTimeout:     cfg.Discovery.GetSweepProbeTimeout(),
		SweepWorkers:     cfg.Discovery.SweepWorkers,
		SweepPrefixes:    cfg.Discovery.FallbackPrefixes,
	})
	discoveryEngine.SetLogger(log)

	// Command dispatcher
	dispatcher := control.NewDispatcher(control.Config{
		HTTPTimeout:    cfg.Connectivity.GetHTTPProbeTimeout(),
		SessionTimeout: cfg.Connectivity.GetSessionTimeout(),
	})
	dispatcher.SetLogger(log)

	// Event broker
	broker := events.NewBroker()
	broker.SetLogger(log)
	defer broker.Close()

	// Connect to MQTT broker (optional) and announce events on it
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		announcer := events.NewAnnouncer(mqttClient, cfg.MQTT.QoS)
		announcer.SetLogger(log)
		announcer.Start(broker)
		defer announcer.Stop()
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Background reachability monitor (optional)
	var reachMonitor *monitor.Monitor
	if cfg.Monitor.Enabled {
		// Interface fields must only be assigned from non-nil concrete
		// pointers, or the monitor's nil checks cannot see the absence.
		var metricsWriter monitor.MetricsWriter
		if influxClient != nil {
			metricsWriter = influxClient
		}

		reachMonitor = monitor.New(monitor.Config{
			Interval:    cfg.Monitor.GetMonitorInterval(),
			Concurrency: cfg.Monitor.Concurrency,
			Registry:    registry,
			Checker:     detector,
			Events:      broker,
			Metrics:     metricsWriter,
		})
		reachMonitor.SetLogger(log)
		reachMonitor.Start(ctx)
		defer reachMonitor.Close()
		log.Info("reachability monitor started",
			"interval", cfg.Monitor.GetMonitorInterval(),
			"concurrency", cfg.Monitor.Concurrency,
		)
	} else {
		log.Info("reachability monitor disabled")
	}

	// Audit trail
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// API server
	apiDeps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Registry:   registry,
		Detector:   detector,
		Dispatcher: dispatcher,
		Discovery:  discoveryEngine,
		Events:     broker,
		Audit:      auditRepo,
		DB:         db,
		Version:    version,
	}
	// Optional interface fields stay nil unless the component exists.
	if influxClient != nil {
		apiDeps.Metrics = influxClient
	}
	if reachMonitor != nil {
		apiDeps.Monitor = reachMonitor
	}
	if mqttClient != nil {
		apiDeps.MQTT = mqttClient
	}

	apiServer, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, monitor, InfluxDB, announcer, MQTT, broker, database.

	log.Info("controller stopped")
	return nil
}

// resolveConfigPath returns the configuration file path. The --config flag
// wins over the ESPCTL_CONFIG environment variable, which wins over the
// default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("ESPCTL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
