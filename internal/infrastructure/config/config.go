package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all environment variable overrides.
const EnvPrefix = "SMARTHOME_"

// Interval bounds shared by the device scheduler and config validation.
const (
	MinDataInterval = 1
	MaxDataInterval = 3600
)

// Config is the root configuration structure for the smart-home runtime.
// One file configures either a device node or a client monitor; sections the
// selected role does not use are ignored.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt" envPrefix:"MQTT_"`
	Device    DeviceConfig    `yaml:"device" envPrefix:"DEVICE_"`
	Client    ClientConfig    `yaml:"client" envPrefix:"CLIENT_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb" envPrefix:"INFLUXDB_"`
	History   HistoryConfig   `yaml:"history" envPrefix:"HISTORY_"`
	API       APIConfig       `yaml:"api" envPrefix:"API_"`
	WebSocket WebSocketConfig `yaml:"websocket" envPrefix:"WEBSOCKET_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOGGING_"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker" envPrefix:"BROKER_"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	BaseTopic string              `yaml:"base_topic" env:"BASE_TOPIC"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	TLS      bool   `yaml:"tls" env:"TLS"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
}

// URL returns the broker address in paho form (tcp:// or ssl://).
func (b MQTTBrokerConfig) URL() string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// DeviceConfig configures a device node (the command dispatcher and publish scheduler side).
type DeviceConfig struct {
	ID                  string        `yaml:"id" env:"ID"`
	Firmware            string        `yaml:"firmware"`
	SSID                string        `yaml:"ssid" env:"SSID"`
	DefaultInterval     int           `yaml:"default_interval"`
	StateBackupInterval time.Duration `yaml:"state_backup_interval"`
	TickInterval        time.Duration `yaml:"tick_interval"`
	RebootDelay         time.Duration `yaml:"reboot_delay"`
	RetainResponse      bool          `yaml:"retain_response"`
	PersistSettings     bool          `yaml:"persist_settings"`
}

// ClientConfig configures a client monitor (the correlation and liveness side).
type ClientConfig struct {
	Devices         []string      `yaml:"devices" env:"DEVICES" envSeparator:","`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
	ProbeInterval   time.Duration `yaml:"probe_interval"`
	MaxMissedProbes int           `yaml:"max_missed_probes"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Path        string `yaml:"path" env:"PATH"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	URL           string `yaml:"url" env:"URL"`
	Token         string `yaml:"token" env:"TOKEN"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// HistoryConfig controls the persistence collaborator on the client side.
type HistoryConfig struct {
	BufferSize    int           `yaml:"buffer_size"`
	Retention     time.Duration `yaml:"retention"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" env:"ENABLED"`
	Host     string           `yaml:"host" env:"HOST"`
	Port     int              `yaml:"port" env:"PORT"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  time.Duration `yaml:"read"`
	Write time.Duration `yaml:"write"`
	Idle  time.Duration `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int           `yaml:"max_message_size"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level" env:"LEVEL"`
	Format string            `yaml:"format" env:"FORMAT"`
	Output string            `yaml:"output" env:"OUTPUT"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Sizes are in megabytes and ages in days.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern SMARTHOME_SECTION_KEY, for example
// SMARTHOME_MQTT_BROKER_HOST or SMARTHOME_DEVICE_ID.
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

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
// It is also the configuration used when no file is given on the command line.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			BaseTopic: "smarthome",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: time.Second,
				MaxDelay:     time.Minute,
			},
		},
		Device: DeviceConfig{
			Firmware:            "1.0.0",
			DefaultInterval:     5,
			StateBackupInterval: 60 * time.Second,
			TickInterval:        time.Second,
			RebootDelay:         2 * time.Second,
			PersistSettings:     true,
		},
		Client: ClientConfig{
			CommandTimeout:  5 * time.Second,
			ProbeTimeout:    3 * time.Second,
			SettleDelay:     500 * time.Millisecond,
			ProbeInterval:   30 * time.Second,
			MaxMissedProbes: 1,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/smarthome.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "smarthome",
			Bucket:        "telemetry",
			BatchSize:     100,
			FlushInterval: 10,
		},
		History: HistoryConfig{
			BufferSize:    256,
			Retention:     30 * 24 * time.Hour,
			PruneSchedule: "@daily",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30 * time.Second,
				Write: 30 * time.Second,
				Idle:  60 * time.Second,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30 * time.Second,
			PongTimeout:    10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/smarthome.log",
				MaxSize:    10,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies SMARTHOME_* environment variables on top of the file values.
// Only fields carrying an env tag can be overridden; unset variables leave the value untouched.
func applyEnvOverrides(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parsing environment overrides: %w", err)
	}
	return nil
}

// Validate checks the sections shared by every role.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.BaseTopic == "" || strings.ContainsAny(c.MQTT.BaseTopic, "#+") {
		errs = append(errs, "mqtt.base_topic must be non-empty and contain no wildcards")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Validate checks the settings a device node needs before it can start.
func (d DeviceConfig) Validate() error {
	var errs []string

	if d.ID == "" {
		errs = append(errs, "device.id is required (set SMARTHOME_DEVICE_ID)")
	} else if strings.ContainsAny(d.ID, "/#+") {
		errs = append(errs, "device.id must not contain '/', '#' or '+'")
	}
	if d.DefaultInterval < MinDataInterval || d.DefaultInterval > MaxDataInterval {
		errs = append(errs, fmt.Sprintf("device.default_interval must be between %d and %d", MinDataInterval, MaxDataInterval))
	}
	if d.StateBackupInterval <= 0 {
		errs = append(errs, "device.state_backup_interval must be positive")
	}
	if d.TickInterval <= 0 {
		errs = append(errs, "device.tick_interval must be positive")
	}
	if d.RebootDelay < 0 {
		errs = append(errs, "device.reboot_delay must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("device configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the settings a client monitor needs before it can start.
func (c ClientConfig) Validate() error {
	var errs []string

	if len(c.Devices) == 0 {
		errs = append(errs, "client.devices must list at least one device id")
	}
	for _, id := range c.Devices {
		if id == "" || strings.ContainsAny(id, "/#+") {
			errs = append(errs, fmt.Sprintf("client.devices contains invalid id %q", id))
		}
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, "client.command_timeout must be positive")
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, "client.probe_timeout must be positive")
	}
	if c.ProbeInterval <= 0 {
		errs = append(errs, "client.probe_interval must be positive")
	}
	if c.MaxMissedProbes < 1 {
		errs = append(errs, "client.max_missed_probes must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("client configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
