package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic Conga bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge   BridgeConfig    `yaml:"bridge"`
	Cloud    CloudConfig     `yaml:"cloud"`
	Accounts []AccountConfig `yaml:"accounts"`
	Database DatabaseConfig  `yaml:"database"`
	MQTT     MQTTConfig      `yaml:"mqtt"`
	InfluxDB InfluxDBConfig  `yaml:"influxdb"`
	API      APIConfig       `yaml:"api"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// BridgeConfig contains bridge identity and polling settings.
type BridgeConfig struct {
	// ID identifies this bridge instance in health messages.
	ID string `yaml:"id"`

	// PollInterval is the minimum time between status reads per device.
	// Default: 60s
	PollInterval time.Duration `yaml:"poll_interval"`

	// HealthInterval is how often the health message is republished.
	// Default: 30s
	HealthInterval time.Duration `yaml:"health_interval"`

	// PlanRefresh is how often cleaning plans are reloaded. 0 disables
	// periodic reloads; plans are still loaded at startup.
	PlanRefresh time.Duration `yaml:"plan_refresh"`

	// HistoryRetention is how long state history is kept. 0 keeps forever.
	// Default: 720h
	HistoryRetention time.Duration `yaml:"history_retention"`
}

// CloudConfig contains the vacuum cloud endpoints and pool identifiers.
type CloudConfig struct {
	Region         string        `yaml:"region"`
	UserPoolID     string        `yaml:"user_pool_id"`
	ClientID       string        `yaml:"client_id"`
	IdentityPoolID string        `yaml:"identity_pool_id"`
	IoTEndpoint    string        `yaml:"iot_endpoint"`
	APIURL         string        `yaml:"api_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// AccountConfig is one cloud account bridged by this process.
type AccountConfig struct {
	// ID keys the account's session. Defaults to the username.
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// String returns the account with the password redacted.
func (a AccountConfig) String() string {
	return fmt.Sprintf("AccountConfig{ID:%q, Username:%q, Password:[REDACTED]}", a.ID, a.Username)
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
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

// APIConfig contains the local HTTP status API settings.
type APIConfig struct {
	// Enabled starts the HTTP listener. Off by default.
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	TLS       TLSConfig        `yaml:"tls"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	Auth      APIAuthConfig    `yaml:"auth"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
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
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// APIAuthConfig contains the shared secret for command tokens.
type APIAuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens. Set it via
	// GRAYLOGIC_JWT_SECRET rather than the file.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the lifetime of tokens minted by congactl, in minutes.
	TokenTTL int `yaml:"token_ttl"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:               "conga-bridge-01",
			PollInterval:     60 * time.Second,
			HealthInterval:   30 * time.Second,
			PlanRefresh:      0,
			HistoryRetention: 30 * 24 * time.Hour,
		},
		Cloud: CloudConfig{
			Region:         "eu-west-2",
			RequestTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-conga.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-conga",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Auth: APIAuthConfig{
				TokenTTL: 15,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
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
//
// CONGA_USERNAME and CONGA_PASSWORD set the first account, creating it
// if the file lists none. Other variables follow GRAYLOGIC_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	user := os.Getenv("CONGA_USERNAME")
	pass := os.Getenv("CONGA_PASSWORD")
	if (user != "" || pass != "") && len(cfg.Accounts) == 0 {
		cfg.Accounts = append(cfg.Accounts, AccountConfig{})
	}
	if user != "" {
		cfg.Accounts[0].Username = user
	}
	if pass != "" {
		cfg.Accounts[0].Password = pass
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}
}

// normalise fills derived defaults that depend on loaded values.
func (c *Config) normalise() {
	for i := range c.Accounts {
		if c.Accounts[i].ID == "" {
			c.Accounts[i].ID = c.Accounts[i].Username
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Bridge validation
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.PollInterval < time.Second {
		errs = append(errs, "bridge.poll_interval must be at least 1s")
	}
	if c.Bridge.HealthInterval < time.Second {
		errs = append(errs, "bridge.health_interval must be at least 1s")
	}
	if c.Bridge.PlanRefresh < 0 {
		errs = append(errs, "bridge.plan_refresh must not be negative")
	}

	// Cloud validation
	errs = append(errs, c.Cloud.validate()...)

	// Account validation
	if len(c.Accounts) == 0 {
		errs = append(errs, "at least one account is required (set CONGA_USERNAME and CONGA_PASSWORD)")
	}
	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Username == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d].username is required", i))
		}
		if a.Password == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d].password is required", i))
		}
		if a.ID != "" && seen[a.ID] {
			errs = append(errs, fmt.Sprintf("accounts[%d].id %q is duplicated", i, a.ID))
		}
		seen[a.ID] = true
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// API validation
	errs = append(errs, c.API.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c CloudConfig) validate() []string {
	var errs []string
	required := []struct {
		key, value string
	}{
		{"cloud.region", c.Region},
		{"cloud.user_pool_id", c.UserPoolID},
		{"cloud.client_id", c.ClientID},
		{"cloud.identity_pool_id", c.IdentityPoolID},
		{"cloud.iot_endpoint", c.IoTEndpoint},
		{"cloud.api_url", c.APIURL},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, r.key+" is required")
		}
	}
	if c.UserPoolID != "" && !strings.Contains(c.UserPoolID, "_") {
		errs = append(errs, "cloud.user_pool_id must have the form <region>_<id>")
	}
	if c.APIURL != "" {
		if u, err := url.Parse(c.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "cloud.api_url must be an absolute URL")
		}
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, "cloud.request_timeout must be positive")
	}
	return errs
}

// minJWTSecretLength is the shortest accepted HS256 secret.
const minJWTSecretLength = 32

func (c APIConfig) validate() []string {
	if !c.Enabled {
		return nil
	}
	var errs []string
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if len(c.Auth.JWTSecret) < minJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.auth.jwt_secret must be at least %d characters (set GRAYLOGIC_JWT_SECRET)", minJWTSecretLength))
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when TLS is enabled")
	}
	return errs
}

// ReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
