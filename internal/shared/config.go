package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Remote   RemoteConfig   `toml:"remote"`
	Network  NetworkConfig  `toml:"network"`
	Sync     SyncConfig     `toml:"sync"`
	Settings SettingsConfig `toml:"settings"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// StorageConfig selects and configures the local cache backend.
type StorageConfig struct {
	Backend         string `toml:"backend"` // "sqlite" or "preferences"
	Path            string `toml:"path"`
	PreferencesPath string `toml:"preferences_path"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
}

// RemoteConfig contains the remote document store endpoint and credentials.
type RemoteConfig struct {
	BaseURL      string   `toml:"base_url"`
	UserID       string   `toml:"user_id"`
	Token        string   `toml:"token"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	TokenURL     string   `toml:"token_url"`
	Scopes       []string `toml:"scopes"`
	RateLimit    float64  `toml:"rate_limit"` // requests per second
	Timeout      Duration `toml:"timeout"`
}

// NetworkConfig configures the connectivity probe.
type NetworkConfig struct {
	ProbeURL      string   `toml:"probe_url"`
	ProbeInterval Duration `toml:"probe_interval"`
	ProbeTimeout  Duration `toml:"probe_timeout"`
}

// SyncConfig configures the reconciliation schedule.
type SyncConfig struct {
	Interval     Duration `toml:"interval"`
	TriggerRate  float64  `toml:"trigger_rate"` // connectivity-triggered passes per second
	TriggerBurst int      `toml:"trigger_burst"`
}

// SettingsConfig points at the local application settings file.
type SettingsConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

// ServerConfig contains the local read API settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains logging settings. An empty File logs to stderr.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Duration is a [time.Duration] that decodes from strings such as "5m" or "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: bad duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that would otherwise fail late, at first sync.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for the sqlite backend", ErrInvalidConfig)
		}
	case "preferences":
		if c.Storage.PreferencesPath == "" {
			return fmt.Errorf("%w: storage.preferences_path is required for the preferences backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownBackend, c.Storage.Backend)
	}

	if c.Sync.Interval.Duration <= 0 {
		return fmt.Errorf("%w: sync.interval must be positive", ErrInvalidConfig)
	}

	if c.Remote.RateLimit < 0 || c.Sync.TriggerRate < 0 {
		return fmt.Errorf("%w: rates cannot be negative", ErrInvalidConfig)
	}

	return nil
}

// Addr returns the host:port the read API listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
