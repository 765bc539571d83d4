package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Bambu Farm gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	// Endpoint is the legacy top-level listen address. When set it takes
	// precedence over Server.Address.
	Endpoint string          `yaml:"endpoint"`
	Server   ServerConfig    `yaml:"server"`
	HTTP     HTTPConfig      `yaml:"http"`
	Device   DeviceConfig    `yaml:"device"`
	FTPS     FTPSConfig      `yaml:"ftps"`
	Sessions SessionsConfig  `yaml:"sessions"`
	Uploads  UploadsConfig   `yaml:"uploads"`
	Logging  LoggingConfig   `yaml:"logging"`
	Printers []PrinterConfig `yaml:"printers"`
}

// ServerConfig contains gRPC server settings.
type ServerConfig struct {
	Address        string          `yaml:"address"`
	MaxMessageSize int             `yaml:"max_message_size"`
	Keepalive      KeepaliveConfig `yaml:"keepalive"`
}

// KeepaliveConfig contains gRPC keepalive settings in seconds.
type KeepaliveConfig struct {
	Time    int `yaml:"time"`
	Timeout int `yaml:"timeout"`
}

// HTTPConfig contains the operational HTTP server settings (health, metrics).
type HTTPConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DeviceConfig contains settings for the per-printer MQTT sessions.
type DeviceConfig struct {
	Port           int                   `yaml:"port"`
	Username       string                `yaml:"username"`
	QoS            int                   `yaml:"qos"`
	KeepAlive      int                   `yaml:"keep_alive"`
	ConnectTimeout int                   `yaml:"connect_timeout"`
	Reconnect      DeviceReconnectConfig `yaml:"reconnect"`
	TLS            TLSClientConfig       `yaml:"tls"`
}

// DeviceReconnectConfig controls whether a live session rides out a dropped
// connection. With reconnect disabled the first connection loss ends the session.
type DeviceReconnectConfig struct {
	Enabled     bool `yaml:"enabled"`
	MaxAttempts int  `yaml:"max_attempts"`
	MaxDelay    int  `yaml:"max_delay"`
}

// TLSClientConfig contains client-side TLS settings for device connections.
type TLSClientConfig struct {
	// InsecureSkipVerify disables server certificate verification.
	// Printers present self-signed certificates, so this defaults to true.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// CAFile is an optional PEM bundle used to verify printer certificates.
	CAFile string `yaml:"ca_file"`
}

// FTPSConfig contains settings for the implicit-TLS file transfer endpoint.
type FTPSConfig struct {
	Port     int             `yaml:"port"`
	Username string          `yaml:"username"`
	Timeout  int             `yaml:"timeout"`
	TLS      TLSClientConfig `yaml:"tls"`
}

// SessionsConfig contains relay and stream tuning.
type SessionsConfig struct {
	// QueueSize is the capacity of each session's outbound command queue.
	QueueSize int `yaml:"queue_size"`

	// RetryDelay is the pause after a transient receive failure.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// EnumerateInterval is the period between roster emissions.
	EnumerateInterval time.Duration `yaml:"enumerate_interval"`

	// RegistryTimeout bounds a single roster request to the session hub.
	RegistryTimeout time.Duration `yaml:"registry_timeout"`

	// MaxRegistryFailures ends a roster stream after this many consecutive
	// skipped emissions. 0 means never.
	MaxRegistryFailures int `yaml:"max_registry_failures"`
}

// UploadsConfig contains file transfer orchestration settings.
type UploadsConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	Timeout       time.Duration `yaml:"timeout"`
	ScratchDir    string        `yaml:"scratch_dir"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// PrinterConfig is one raw roster entry. Entries are validated when the
// printer registry is built, not here, so one bad entry cannot stop startup.
type PrinterConfig struct {
	DevID    string `yaml:"dev_id"`
	Model    string `yaml:"model"`
	Host     string `yaml:"host"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BAMBUFARM_SECTION_KEY
// For example: BAMBUFARM_SERVER_ADDRESS, BAMBUFARM_LOG_LEVEL.
// Printer passwords can be supplied as BAMBUFARM_PRINTER_<DEV_ID>_PASSWORD.
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

	if cfg.Endpoint != "" {
		cfg.Server.Address = cfg.Endpoint
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        "[::1]:47403",
			MaxMessageSize: 64 << 20,
			Keepalive: KeepaliveConfig{
				Time:    120,
				Timeout: 20,
			},
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    47404,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Device: DeviceConfig{
			Port:           8883,
			Username:       "bblp",
			QoS:            1,
			KeepAlive:      5,
			ConnectTimeout: 10,
			Reconnect: DeviceReconnectConfig{
				Enabled:     false,
				MaxAttempts: 5,
				MaxDelay:    30,
			},
			TLS: TLSClientConfig{
				InsecureSkipVerify: true,
			},
		},
		FTPS: FTPSConfig{
			Port:     990,
			Username: "bblp",
			Timeout:  60,
			TLS: TLSClientConfig{
				InsecureSkipVerify: true,
			},
		},
		Sessions: SessionsConfig{
			QueueSize:           16,
			RetryDelay:          10 * time.Second,
			EnumerateInterval:   time.Second,
			RegistryTimeout:     time.Second,
			MaxRegistryFailures: 30,
		},
		Uploads: UploadsConfig{
			MaxConcurrent: 4,
			Timeout:       10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BAMBUFARM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BAMBUFARM_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("BAMBUFARM_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}

	if v := os.Getenv("BAMBUFARM_HTTP_HOST"); v != "" {
		cfg.HTTP.Host = v
	}
	if v := os.Getenv("BAMBUFARM_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = port
		}
	}

	if v := os.Getenv("BAMBUFARM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BAMBUFARM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Printer secrets are better kept out of the config file.
	for i := range cfg.Printers {
		if cfg.Printers[i].DevID == "" {
			continue
		}
		key := "BAMBUFARM_PRINTER_" + envKey(cfg.Printers[i].DevID) + "_PASSWORD"
		if v := os.Getenv(key); v != "" {
			cfg.Printers[i].Password = v
		}
	}
}

// envKey upper-cases an identifier and replaces anything that is not
// alphanumeric with an underscore.
func envKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}

// Validate checks the configuration for errors.
//
// Roster entries are not validated here; see printer.BuildRoster.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Address == "" {
		errs = append(errs, "server.address is required")
	}
	if c.Server.MaxMessageSize < 0 {
		errs = append(errs, "server.max_message_size must not be negative")
	}

	if c.HTTP.Enabled && (c.HTTP.Port < 1 || c.HTTP.Port > 65535) {
		errs = append(errs, "http.port must be between 1 and 65535")
	}

	if c.Device.Port < 1 || c.Device.Port > 65535 {
		errs = append(errs, "device.port must be between 1 and 65535")
	}
	if c.Device.QoS < 0 || c.Device.QoS > 2 {
		errs = append(errs, "device.qos must be 0, 1, or 2")
	}
	if c.Device.Username == "" {
		errs = append(errs, "device.username is required")
	}

	if c.FTPS.Port < 1 || c.FTPS.Port > 65535 {
		errs = append(errs, "ftps.port must be between 1 and 65535")
	}
	if c.FTPS.Username == "" {
		errs = append(errs, "ftps.username is required")
	}

	if c.Sessions.QueueSize < 1 {
		errs = append(errs, "sessions.queue_size must be at least 1")
	}
	if c.Sessions.EnumerateInterval <= 0 {
		errs = append(errs, "sessions.enumerate_interval must be positive")
	}
	if c.Sessions.RegistryTimeout <= 0 {
		errs = append(errs, "sessions.registry_timeout must be positive")
	}
	if c.Sessions.RetryDelay < 0 {
		errs = append(errs, "sessions.retry_delay must not be negative")
	}

	if c.Uploads.MaxConcurrent < 1 {
		errs = append(errs, "uploads.max_concurrent must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the HTTP read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the HTTP write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the HTTP idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
