package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the controller daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Controller  ControllerConfig  `yaml:"controller"`
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	Transport   TransportConfig   `yaml:"transport"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ControllerConfig identifies this controller. DeviceID is reported by the
// SysInfo system object.
type ControllerConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	DeviceID string `yaml:"device_id"`
}

// DatabaseConfig contains SQLite database settings.
// The database holds the audit trail and, with the sqlite driver, the object store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// StorageConfig selects the persistence back-end for object definitions.
type StorageConfig struct {
	// Driver is one of "sqlite", "pebble" or "memory".
	Driver string `yaml:"driver"`

	// PebbleDir is the Pebble data directory, required for the pebble driver.
	PebbleDir string `yaml:"pebble_dir"`
}

// TransportConfig contains the TCP command stream settings.
type TransportConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxFrame       int    `yaml:"max_frame"`
	IdleTimeout    int    `yaml:"idle_timeout"` // seconds, 0 disables
	MaxConnections int    `yaml:"max_connections"`
}

// SchedulerConfig contains control loop settings.
type SchedulerConfig struct {
	// TickInterval is the update period in milliseconds.
	TickInterval int `yaml:"tick_interval"`

	// FirstUserID is the first ID handed to user objects. Lower IDs are
	// reserved for system objects.
	FirstUserID int `yaml:"first_user_id"`

	// MaxObjects bounds the number of live objects.
	MaxObjects int `yaml:"max_objects"`

	// QueueSize is the depth of the request channel into the loop.
	QueueSize int `yaml:"queue_size"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled         bool                `yaml:"enabled"`
	Broker          MQTTBrokerConfig    `yaml:"broker"`
	Auth            MQTTAuthConfig      `yaml:"auth"`
	QoS             int                 `yaml:"qos"`
	Reconnect       MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix     string              `yaml:"topic_prefix"`
	PublishInterval int                 `yaml:"publish_interval"` // seconds, 0 disables state publishing
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for runtime metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// PassSampleEvery records one update pass in every N.
	PassSampleEvery int `yaml:"pass_sample_every"`
}

// DiagnosticsConfig contains the read-only HTTP API settings.
type DiagnosticsConfig struct {
	Enabled   bool                     `yaml:"enabled"`
	Host      string                   `yaml:"host"`
	Port      int                      `yaml:"port"`
	Timeouts  DiagnosticsTimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig          `yaml:"websocket"`
}

// WebSocketConfig contains the live object stream settings. StreamInterval
// is in milliseconds and 0 disables the stream; PingInterval and
// PongTimeout are in seconds.
type WebSocketConfig struct {
	StreamInterval int `yaml:"stream_interval"`
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// DiagnosticsTimeoutConfig contains HTTP timeout settings in seconds.
type DiagnosticsTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Storage drivers.
const (
	driverSQLite = "sqlite"
	driverPebble = "pebble"
	driverMemory = "memory"
)

// Limits shared with the runtime.
const (
	maxObjectID = 0xFFFF

	// minFirstUserID leaves room for the SysInfo and Groups system objects.
	minFirstUserID = 3
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BLOXD_SECTION_KEY
// For example: BLOXD_DATABASE_PATH, BLOXD_STORAGE_DRIVER
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

// Default returns a Config with the values used when a key is absent.
func Default() *Config {
	return &Config{
		Controller: ControllerConfig{
			ID:   "blox-001",
			Name: "Blox Controller",
		},
		Database: DatabaseConfig{
			Path:        "./data/bloxd.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Storage: StorageConfig{
			Driver:    driverSQLite,
			PebbleDir: "./data/objects",
		},
		Transport: TransportConfig{
			Enabled:        true,
			Host:           "0.0.0.0",
			Port:           8332,
			MaxFrame:       4096,
			IdleTimeout:    300,
			MaxConnections: 8,
		},
		Scheduler: SchedulerConfig{
			TickInterval: 10,
			FirstUserID:  100,
			MaxObjects:   256,
			QueueSize:    32,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "bloxd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix:     "blox",
			PublishInterval: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:       100,
			FlushInterval:   10,
			PassSampleEvery: 100,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: DiagnosticsTimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				StreamInterval: 1000,
				MaxMessageSize: 4096,
				PingInterval:   30,
				PongTimeout:    10,
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
// Environment variables follow the pattern: BLOXD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Controller
	if v := os.Getenv("BLOXD_CONTROLLER_ID"); v != "" {
		cfg.Controller.ID = v
	}

	// Database and storage
	if v := os.Getenv("BLOXD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("BLOXD_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("BLOXD_STORAGE_PEBBLE_DIR"); v != "" {
		cfg.Storage.PebbleDir = v
	}

	// Transport
	if v, ok := envInt("BLOXD_TRANSPORT_PORT"); ok {
		cfg.Transport.Port = v
	}

	// MQTT
	if v := os.Getenv("BLOXD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BLOXD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BLOXD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("BLOXD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Diagnostics
	if v := os.Getenv("BLOXD_DIAGNOSTICS_HOST"); v != "" {
		cfg.Diagnostics.Host = v
	}

	// Logging
	if v := os.Getenv("BLOXD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// envInt reads an integer environment variable. Unparseable values are ignored.
func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Controller.ID == "" {
		errs = append(errs, "controller.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	switch c.Storage.Driver {
	case driverSQLite, driverMemory:
	case driverPebble:
		if c.Storage.PebbleDir == "" {
			errs = append(errs, "storage.pebble_dir is required for the pebble driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver must be sqlite, pebble or memory (got %q)", c.Storage.Driver))
	}

	if c.Transport.Enabled {
		if c.Transport.Port < 1 || c.Transport.Port > 65535 {
			errs = append(errs, "transport.port must be between 1 and 65535")
		}
		if c.Transport.MaxFrame < 7 || c.Transport.MaxFrame > maxObjectID {
			errs = append(errs, "transport.max_frame must be between 7 and 65535")
		}
	}

	if c.Scheduler.TickInterval <= 0 {
		errs = append(errs, "scheduler.tick_interval must be positive")
	}
	if c.Scheduler.FirstUserID < minFirstUserID || c.Scheduler.FirstUserID > maxObjectID {
		errs = append(errs, fmt.Sprintf("scheduler.first_user_id must be between %d and %d", minFirstUserID, maxObjectID))
	}
	if c.Scheduler.MaxObjects <= 0 {
		errs = append(errs, "scheduler.max_objects must be positive")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.Diagnostics.Enabled && (c.Diagnostics.Port < 1 || c.Diagnostics.Port > 65535) {
		errs = append(errs, "diagnostics.port must be between 1 and 65535")
	}
	if ws := c.Diagnostics.WebSocket; c.Diagnostics.Enabled && ws.StreamInterval > 0 {
		if ws.PingInterval <= 0 || ws.PongTimeout <= 0 {
			errs = append(errs, "diagnostics.websocket ping_interval and pong_timeout must be positive")
		}
		if ws.MaxMessageSize <= 0 {
			errs = append(errs, "diagnostics.websocket.max_message_size must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TickInterval returns the scheduler period as a Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickInterval) * time.Millisecond
}

// IdleTimeout returns the transport idle timeout as a Duration. Zero disables it.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Transport.IdleTimeout) * time.Second
}

// StreamInterval returns the websocket object stream period. Zero disables it.
func (c DiagnosticsConfig) StreamInterval() time.Duration {
	return time.Duration(c.WebSocket.StreamInterval) * time.Millisecond
}

// PublishInterval returns the MQTT state publishing period. Zero disables it.
func (c *Config) PublishInterval() time.Duration {
	return time.Duration(c.MQTT.PublishInterval) * time.Second
}
