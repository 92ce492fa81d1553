package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Discovery    DiscoveryConfig    `yaml:"discovery"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the event stream endpoint.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// ConnectivityConfig contains probe and session time budgets.
//
// The defaults mirror the behaviour devices in the field were tuned
// against; change them only with care. All values are strictly positive:
// an unbounded probe is a configuration error, not a feature.
type ConnectivityConfig struct {
	// HTTPProbeTimeout is the HTTP status probe budget in seconds.
	HTTPProbeTimeout int `yaml:"http_probe_timeout"`

	// NativeProbeTimeout is the native handshake probe budget in seconds.
	NativeProbeTimeout int `yaml:"native_probe_timeout"`

	// TCPProbeTimeout is the raw transport connect budget in seconds.
	TCPProbeTimeout int `yaml:"tcp_probe_timeout"`

	// SessionTimeout bounds a full dispatch session (connect + invoke)
	// in seconds.
	SessionTimeout int `yaml:"session_timeout"`

	// DefaultNativePort is the conventional native-protocol port.
	DefaultNativePort int `yaml:"default_native_port"`

	// DefaultHTTPPort is the conventional HTTP control port.
	DefaultHTTPPort int `yaml:"default_http_port"`
}

// DiscoveryConfig contains device discovery settings.
type DiscoveryConfig struct {
	// Service is the mDNS service name browsed during the multicast phase.
	Service string `yaml:"service"`

	// Domain is the mDNS domain, normally "local".
	Domain string `yaml:"domain"`

	// MulticastWindow is the listen window in seconds for mDNS responses.
	MulticastWindow int `yaml:"multicast_window"`

	// SweepProbeTimeout is the per-address connect budget in milliseconds
	// during the fallback subnet sweep.
	SweepProbeTimeout int `yaml:"sweep_probe_timeout"`

	// SweepWorkers bounds the number of concurrent sweep connections.
	SweepWorkers int `yaml:"sweep_workers"`

	// FallbackPrefixes are /24 prefixes (first three octets) swept when no
	// usable local interface addresses are found.
	FallbackPrefixes []string `yaml:"fallback_prefixes"`
}

// MonitorConfig contains background reachability monitor settings.
type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	Interval    int  `yaml:"interval"`
	Concurrency int  `yaml:"concurrency"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ESPCTL_SECTION_KEY
// For example: ESPCTL_DATABASE_PATH, ESPCTL_MQTT_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
//
// The connectivity and discovery budgets carry the empirically tuned
// values: 3s HTTP probe, 5s native handshake, 3s raw connect, 5s dispatch
// session, 5s multicast window, 500ms sweep probe.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/espcontroller.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Connectivity: ConnectivityConfig{
			HTTPProbeTimeout:   3,
			NativeProbeTimeout: 5,
			TCPProbeTimeout:    3,
			SessionTimeout:     5,
			DefaultNativePort:  6053,
			DefaultHTTPPort:    80,
		},
		Discovery: DiscoveryConfig{
			Service:           "_esphomelib._tcp",
			Domain:            "local",
			MulticastWindow:   5,
			SweepProbeTimeout: 500,
			SweepWorkers:      128,
			FallbackPrefixes:  []string{"192.168.1", "192.168.0"},
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			Interval:    60,
			Concurrency: 8,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "espcontroller",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ESPCTL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ESPCTL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("ESPCTL_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("ESPCTL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ESPCTL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ESPCTL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("ESPCTL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("ESPCTL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Connectivity.HTTPProbeTimeout <= 0 {
		errs = append(errs, "connectivity.http_probe_timeout must be positive")
	}
	if c.Connectivity.NativeProbeTimeout <= 0 {
		errs = append(errs, "connectivity.native_probe_timeout must be positive")
	}
	if c.Connectivity.TCPProbeTimeout <= 0 {
		errs = append(errs, "connectivity.tcp_probe_timeout must be positive")
	}
	if c.Connectivity.SessionTimeout <= 0 {
		errs = append(errs, "connectivity.session_timeout must be positive")
	}
	if c.Connectivity.DefaultNativePort < 1 || c.Connectivity.DefaultNativePort > 65535 {
		errs = append(errs, "connectivity.default_native_port must be between 1 and 65535")
	}
	if c.Connectivity.DefaultHTTPPort < 1 || c.Connectivity.DefaultHTTPPort > 65535 {
		errs = append(errs, "connectivity.default_http_port must be between 1 and 65535")
	}

	if c.Discovery.Service == "" {
		errs = append(errs, "discovery.service is required")
	}
	if c.Discovery.MulticastWindow <= 0 {
		errs = append(errs, "discovery.multicast_window must be positive")
	}
	if c.Discovery.SweepProbeTimeout <= 0 {
		errs = append(errs, "discovery.sweep_probe_timeout must be positive")
	}
	if c.Discovery.SweepWorkers <= 0 {
		errs = append(errs, "discovery.sweep_workers must be positive")
	}

	if c.Monitor.Enabled {
		if c.Monitor.Interval <= 0 {
			errs = append(errs, "monitor.interval must be positive")
		}
		if c.Monitor.Concurrency <= 0 {
			errs = append(errs, "monitor.concurrency must be positive")
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetHTTPProbeTimeout returns the HTTP probe budget as a Duration.
func (c *ConnectivityConfig) GetHTTPProbeTimeout() time.Duration {
	return time.Duration(c.HTTPProbeTimeout) * time.Second
}

// GetNativeProbeTimeout returns the native handshake probe budget as a Duration.
func (c *ConnectivityConfig) GetNativeProbeTimeout() time.Duration {
	return time.Duration(c.NativeProbeTimeout) * time.Second
}

// GetTCPProbeTimeout returns the raw connect probe budget as a Duration.
func (c *ConnectivityConfig) GetTCPProbeTimeout() time.Duration {
	return time.Duration(c.TCPProbeTimeout) * time.Second
}

// GetSessionTimeout returns the dispatch session budget as a Duration.
func (c *ConnectivityConfig) GetSessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeout) * time.Second
}

// GetMulticastWindow returns the mDNS listen window as a Duration.
func (c *DiscoveryConfig) GetMulticastWindow() time.Duration {
	return time.Duration(c.MulticastWindow) * time.Second
}

// GetSweepProbeTimeout returns the per-address sweep budget as a Duration.
func (c *DiscoveryConfig) GetSweepProbeTimeout() time.Duration {
	return time.Duration(c.SweepProbeTimeout) * time.Millisecond
}

// GetMonitorInterval returns the monitor round interval as a Duration.
func (c *MonitorConfig) GetMonitorInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}
