package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the statesd daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Database  DatabaseConfig  `yaml:"database"`
	History   HistoryConfig   `yaml:"history"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// RuntimeConfig contains state engine settings.
type RuntimeConfig struct {
	// Debug turns on transition debug lines at startup.
	Debug bool `yaml:"debug"`

	// LoopIntervalMS is the pause between loop handler iterations, in milliseconds.
	// Zero only yields the processor between iterations.
	LoopIntervalMS int `yaml:"loop_interval_ms"`

	// DefinitionsFile is the YAML file of declarative machines loaded at startup.
	// Empty starts the engine with only the main machine.
	DefinitionsFile string `yaml:"definitions_file"`

	// TelemetryBuffer is the capacity of the transition telemetry queue.
	TelemetryBuffer int `yaml:"telemetry_buffer"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// HistoryConfig contains transition history settings.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// RetentionDays is how long transitions are kept. Zero keeps them forever.
	RetentionDays int `yaml:"retention_days"`

	// PruneInterval is how often old transitions are pruned, in minutes.
	PruneInterval int `yaml:"prune_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Panel    PanelConfig      `yaml:"panel"`
}

// PanelConfig controls the built-in status dashboard served at the API root.
type PanelConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir serves dashboard files from disk instead of the embedded copy.
	Dir string `yaml:"dir"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	// Secret signs and verifies API tokens. Empty disables API authentication.
	Secret string `yaml:"secret"`

	// AccessTokenTTL is the lifetime of tokens minted by "statesd token", in minutes.
	AccessTokenTTL int `yaml:"access_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: STATES_SECTION_KEY
// For example: STATES_DATABASE_PATH, STATES_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file; empty uses defaults and environment only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			LoopIntervalMS:  20,
			TelemetryBuffer: 256,
		},
		Database: DatabaseConfig{
			Path:        "./data/states.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
			PruneInterval: 60,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "statesd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix: "states",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Panel: PanelConfig{Enabled: true},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: STATES_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Runtime
	if v, ok := envBool("STATES_RUNTIME_DEBUG"); ok {
		cfg.Runtime.Debug = v
	}
	if v := os.Getenv("STATES_RUNTIME_DEFINITIONS_FILE"); v != "" {
		cfg.Runtime.DefinitionsFile = v
	}

	// Database
	if v := os.Getenv("STATES_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v, ok := envBool("STATES_MQTT_ENABLED"); ok {
		cfg.MQTT.Enabled = v
	}
	if v := os.Getenv("STATES_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v, err := strconv.Atoi(os.Getenv("STATES_MQTT_PORT")); err == nil {
		cfg.MQTT.Broker.Port = v
	}
	if v := os.Getenv("STATES_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("STATES_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("STATES_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v, err := strconv.Atoi(os.Getenv("STATES_API_PORT")); err == nil {
		cfg.API.Port = v
	}

	// InfluxDB
	if v := os.Getenv("STATES_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("STATES_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security - JWT secret (keep it out of the config file in production)
	if v := os.Getenv("STATES_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// envBool reads a boolean environment variable. The second result is false
// when the variable is unset or unparseable.
func envBool(key string) (bool, bool) {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return false, false
	}
	return v, true
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Runtime.LoopIntervalMS < 0 {
		errs = append(errs, "runtime.loop_interval_ms must not be negative")
	}
	if c.Runtime.TelemetryBuffer < 1 {
		errs = append(errs, "runtime.telemetry_buffer must be at least 1")
	}

	if c.History.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when history is enabled")
	}
	if c.History.RetentionDays < 0 {
		errs = append(errs, "history.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
		}
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// An empty secret leaves the API open; a short one is rejected outright
	// because anyone who guesses it can drive every machine.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
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

// GetLoopInterval returns the loop handler pause as a Duration.
func (c *Config) GetLoopInterval() time.Duration {
	return time.Duration(c.Runtime.LoopIntervalMS) * time.Millisecond
}

// GetRetention returns the history retention as a Duration. Zero keeps history forever.
func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}

// GetPruneInterval returns how often history is pruned.
func (c *Config) GetPruneInterval() time.Duration {
	return time.Duration(c.History.PruneInterval) * time.Minute
}

// GetTokenTTL returns the lifetime of minted API tokens.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}
