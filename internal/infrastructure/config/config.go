package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Growgate Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Hub        HubConfig        `yaml:"hub"`
	Resilience ResilienceConfig `yaml:"resilience"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
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
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains browser-facing WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBufferSize int    `yaml:"send_buffer_size"`
}

// HubConfig contains defaults for per-tenant hub connections.
// Per-tenant URL and token come from the credential store; these values
// apply uniformly to every hub session the gateway opens.
type HubConfig struct {
	RequestTimeout   int                `yaml:"request_timeout"`   // seconds, REST calls
	HandshakeTimeout int                `yaml:"handshake_timeout"` // seconds, WS auth handshake
	CacheTTL         int                `yaml:"cache_ttl"`         // seconds, entity cache
	RateLimit        float64            `yaml:"rate_limit"`        // REST requests per second
	Reconnect        HubReconnectConfig `yaml:"reconnect"`
}

// HubReconnectConfig contains hub WebSocket reconnection settings.
type HubReconnectConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelay   int `yaml:"base_delay"` // seconds
	MaxDelay    int `yaml:"max_delay"`  // seconds
}

// ResilienceConfig contains per-service protection settings.
type ResilienceConfig struct {
	HubREST      ServiceConfig `yaml:"hub_rest"`
	HubWebSocket ServiceConfig `yaml:"hub_websocket"`
}

// ServiceConfig groups retry, breaker, and health settings for one service.
type ServiceConfig struct {
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
	Health  HealthConfig  `yaml:"health"`
}

// RetryConfig contains retry policy settings.
type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	BaseDelay       float64 `yaml:"base_delay"` // seconds
	MaxDelay        float64 `yaml:"max_delay"`  // seconds
	ExponentialBase float64 `yaml:"exponential_base"`
	Jitter          bool    `yaml:"jitter"`
	Strategy        string  `yaml:"strategy"` // exponential, linear, fixed, adaptive
}

// BreakerConfig contains circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold    int `yaml:"failure_threshold"`
	RecoveryTimeout     int `yaml:"recovery_timeout"` // seconds
	SuccessThreshold    int `yaml:"success_threshold"`
	HalfOpenMaxAttempts int `yaml:"half_open_max_attempts"`
}

// HealthConfig contains background health check settings.
type HealthConfig struct {
	Enabled           bool `yaml:"enabled"`
	Interval          int  `yaml:"interval"` // seconds
	Timeout           int  `yaml:"timeout"`  // seconds
	FailureThreshold  int  `yaml:"failure_threshold"`
	RecoveryThreshold int  `yaml:"recovery_threshold"`
}

// MQTTConfig contains optional state-mirror broker settings.
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains optional telemetry sink settings.
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

// JWTConfig contains JWT token settings for browser WebSocket auth.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GROWGATE_SECTION_KEY
// For example: GROWGATE_DATABASE_PATH, GROWGATE_JWT_SECRET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	defaultService := ServiceConfig{
		Retry: RetryConfig{
			MaxAttempts:     3,
			BaseDelay:       1,
			MaxDelay:        60,
			ExponentialBase: 2,
			Jitter:          true,
			Strategy:        "exponential",
		},
		Breaker: BreakerConfig{
			FailureThreshold:    5,
			RecoveryTimeout:     60,
			SuccessThreshold:    2,
			HalfOpenMaxAttempts: 3,
		},
		Health: HealthConfig{
			Enabled:           true,
			Interval:          30,
			Timeout:           10,
			FailureThreshold:  3,
			RecoveryThreshold: 2,
		},
	}

	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/growgate.db",
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
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBufferSize: 256,
		},
		Hub: HubConfig{
			RequestTimeout:   30,
			HandshakeTimeout: 10,
			CacheTTL:         300,
			RateLimit:        10,
			Reconnect: HubReconnectConfig{
				MaxAttempts: 10,
				BaseDelay:   1,
				MaxDelay:    300,
			},
		},
		Resilience: ResilienceConfig{
			HubREST:      defaultService,
			HubWebSocket: defaultService,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "growgate-core",
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
// Environment variables follow the pattern: GROWGATE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GROWGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GROWGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GROWGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GROWGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GROWGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("GROWGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// IMPORTANT: always override in production.
	if v := os.Getenv("GROWGATE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.Hub.RateLimit <= 0 {
		errs = append(errs, "hub.rate_limit must be positive")
	}
	if c.Hub.CacheTTL < 0 {
		errs = append(errs, "hub.cache_ttl must not be negative")
	}
	if c.Hub.Reconnect.BaseDelay < 1 {
		errs = append(errs, "hub.reconnect.base_delay must be at least 1 second")
	}
	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	for name, svc := range map[string]ServiceConfig{
		"resilience.hub_rest":      c.Resilience.HubREST,
		"resilience.hub_websocket": c.Resilience.HubWebSocket,
	} {
		if svc.Retry.MaxAttempts < 1 {
			errs = append(errs, name+".retry.max_attempts must be at least 1")
		}
		if svc.Breaker.FailureThreshold < 1 {
			errs = append(errs, name+".breaker.failure_threshold must be at least 1")
		}
		switch strings.ToLower(svc.Retry.Strategy) {
		case "exponential", "linear", "fixed", "adaptive", "":
		default:
			errs = append(errs, name+".retry.strategy must be exponential, linear, fixed, or adaptive")
		}
	}

	// A weak secret would let anyone forge a tenant identity and control
	// that tenant's physical devices.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GROWGATE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
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

// GetRequestTimeout returns the hub REST request timeout as a Duration.
func (c *HubConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetHandshakeTimeout returns the hub WebSocket handshake timeout as a Duration.
func (c *HubConfig) GetHandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeout) * time.Second
}

// GetCacheTTL returns the entity cache TTL as a Duration.
func (c *HubConfig) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}
