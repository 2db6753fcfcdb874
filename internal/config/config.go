package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config is the full process configuration. Values come from DefaultConfig,
// then HUDDLE_* environment variables, then an optional JSON or YAML file.
type Config struct {
	Database  DatabaseConfig
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type DatabaseConfig struct {
	Driver  string        `env:"HUDDLE_DATABASE_DRIVER"`
	Path    string        `env:"HUDDLE_DATABASE_PATH"`
	Timeout time.Duration `env:"HUDDLE_DATABASE_TIMEOUT"`
}

type HTTPConfig struct {
	Host         string        `env:"HUDDLE_HTTP_HOST"`
	Port         int           `env:"HUDDLE_HTTP_PORT"`
	ReadTimeout  time.Duration `env:"HUDDLE_HTTP_READ_TIMEOUT"`
	WriteTimeout time.Duration `env:"HUDDLE_HTTP_WRITE_TIMEOUT"`
}

// WebSocketConfig drives the push channel. PingInterval is the liveness
// probe period.
type WebSocketConfig struct {
	PingInterval time.Duration `env:"HUDDLE_WEBSOCKET_PING_INTERVAL"`
	WriteTimeout time.Duration `env:"HUDDLE_WEBSOCKET_WRITE_TIMEOUT"`
	BufferSize   int           `env:"HUDDLE_WEBSOCKET_BUFFER_SIZE"`
}

// RateLimitConfig caps mutating requests per client. Zero requests disables it.
type RateLimitConfig struct {
	Requests int           `env:"HUDDLE_RATE_LIMIT_REQUESTS"`
	Window   time.Duration `env:"HUDDLE_RATE_LIMIT_WINDOW"`
}

type LogConfig struct {
	Level string `env:"HUDDLE_LOG_LEVEL"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:  DriverSQLite,
			Path:    "./data/huddle.db",
			Timeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			WriteTimeout: 5 * time.Second,
			BufferSize:   100,
		},
		RateLimit: RateLimitConfig{
			Requests: 60,
			Window:   time.Minute,
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	// port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}

	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}

	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}

	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}

	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}

	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.RateLimit.Requests < 0 {
		return fmt.Errorf("rate limit requests cannot be negative")
	}

	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	return nil
}

// Address is the HTTP listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// ApplyEnv overrides cfg with any HUDDLE_* variables present in the environment.
func ApplyEnv(cfg *Config) error {
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// ConfigFile mirrors Config for file decoding. Durations are strings such as "30s".
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database" yaml:"database"`
	HTTP      *HTTPConfigFile      `json:"http" yaml:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket" yaml:"websocket"`
	RateLimit *RateLimitConfigFile `json:"rate_limit" yaml:"rate_limit"`
	Log       *LogConfigFile       `json:"log" yaml:"log"`
}

type DatabaseConfigFile struct {
	Driver  string `json:"driver" yaml:"driver"`
	Path    string `json:"path" yaml:"path"`
	Timeout string `json:"timeout" yaml:"timeout"`
}

type HTTPConfigFile struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  string `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout string `json:"write_timeout" yaml:"write_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval" yaml:"ping_interval"`
	WriteTimeout string `json:"write_timeout" yaml:"write_timeout"`
	BufferSize   int    `json:"buffer_size" yaml:"buffer_size"`
}

type RateLimitConfigFile struct {
	Requests *int   `json:"requests" yaml:"requests"`
	Window   string `json:"window" yaml:"window"`
}

type LogConfigFile struct {
	Level string `json:"level" yaml:"level"`
}

// ApplyFile overlays the settings present in path onto cfg. The format is
// chosen by extension: .yaml and .yml are YAML, anything else JSON.
func ApplyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := file.apply(cfg); err != nil {
		return fmt.Errorf("invalid value in %s: %w", path, err)
	}
	return nil
}

func (f *ConfigFile) apply(cfg *Config) error {
	if db := f.Database; db != nil {
		setString(&cfg.Database.Driver, db.Driver)
		setString(&cfg.Database.Path, db.Path)
		if err := setDuration(&cfg.Database.Timeout, db.Timeout, "database.timeout"); err != nil {
			return err
		}
	}

	if h := f.HTTP; h != nil {
		setString(&cfg.HTTP.Host, h.Host)
		setInt(&cfg.HTTP.Port, h.Port)
		if err := setDuration(&cfg.HTTP.ReadTimeout, h.ReadTimeout, "http.read_timeout"); err != nil {
			return err
		}
		if err := setDuration(&cfg.HTTP.WriteTimeout, h.WriteTimeout, "http.write_timeout"); err != nil {
			return err
		}
	}

	if ws := f.WebSocket; ws != nil {
		setInt(&cfg.WebSocket.BufferSize, ws.BufferSize)
		if err := setDuration(&cfg.WebSocket.PingInterval, ws.PingInterval, "websocket.ping_interval"); err != nil {
			return err
		}
		if err := setDuration(&cfg.WebSocket.WriteTimeout, ws.WriteTimeout, "websocket.write_timeout"); err != nil {
			return err
		}
	}

	if rl := f.RateLimit; rl != nil {
		// requests is a pointer so an explicit 0 can disable limiting
		if rl.Requests != nil {
			cfg.RateLimit.Requests = *rl.Requests
		}
		if err := setDuration(&cfg.RateLimit.Window, rl.Window, "rate_limit.window"); err != nil {
			return err
		}
	}

	if f.Log != nil {
		setString(&cfg.Log.Level, f.Log.Level)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, field string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

// Load builds the configuration with precedence file > environment > defaults
// and validates the result. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if path != "" {
		if err := ApplyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
