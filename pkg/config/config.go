// Package config loads, defaults and validates the drive's configuration,
// and provides the factories that turn configuration into live stores.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete drive configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (ATTIC_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store configuration pattern: Tree and Blob each carry a Type field plus
// one map per implementation; only the map matching the selected type is
// decoded, by the corresponding factory.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains the HTTP server settings.
	Server ServerConfig `mapstructure:"server"`

	// Limits contains request size limits.
	Limits LimitsConfig `mapstructure:"limits"`

	// Tree specifies the tree store type and type-specific configuration.
	Tree TreeConfig `mapstructure:"tree"`

	// Blob specifies the blob store type and type-specific configuration.
	Blob BlobConfig `mapstructure:"blob"`

	// GC configures the garbage collector.
	GC GCConfig `mapstructure:"gc"`

	// Metrics configures Prometheus metrics collection.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Seed defines the users and groups registered at startup.
	Seed SeedConfig `mapstructure:"seed"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Host is the listen address. Empty means all interfaces.
	Host string `mapstructure:"host"`

	// Port is the listen port.
	Port int `mapstructure:"port" validate:"required,gt=0,lte=65535"`

	// ReadHeaderTimeout bounds how long reading request headers may take.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"gte=0"`

	// IdleTimeout closes keep-alive connections idle this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// LimitsConfig contains request size and rate limits.
type LimitsConfig struct {
	// MaxFileSize is the largest accepted content upload in bytes.
	MaxFileSize uint64 `mapstructure:"max_file_size" validate:"required,gt=0"`

	// RequestsPerSecond caps the sustained request rate across all callers.
	// Zero disables rate limiting.
	RequestsPerSecond uint `mapstructure:"requests_per_second"`

	// Burst is the momentary request budget when rate limiting is on.
	// Defaults to twice the sustained rate.
	Burst uint `mapstructure:"burst"`
}

// TreeConfig specifies tree store configuration.
type TreeConfig struct {
	// Type selects the implementation: memory or badger.
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration.
	// Only used when Type = "badger".
	Badger map[string]any `mapstructure:"badger"`
}

// BlobConfig specifies blob store configuration.
type BlobConfig struct {
	// Type selects the implementation: memory, filesystem or s3.
	Type string `mapstructure:"type" validate:"required,oneof=memory filesystem s3"`

	// Filesystem contains filesystem-specific configuration.
	// Only used when Type = "filesystem".
	Filesystem map[string]any `mapstructure:"filesystem"`

	// S3 contains S3-specific configuration.
	// Only used when Type = "s3".
	S3 map[string]any `mapstructure:"s3"`
}

// GCConfig configures the garbage collector.
type GCConfig struct {
	// Enabled controls whether background collection runs.
	Enabled bool `mapstructure:"enabled"`

	// Interval between collection runs.
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`

	// PendingTTL is how long a pending file may wait for content before
	// the sweep removes it.
	PendingTTL time.Duration `mapstructure:"pending_ttl" validate:"gte=0"`

	// DryRun logs what would be removed without removing it.
	DryRun bool `mapstructure:"dry_run"`
}

// MetricsConfig configures Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled controls whether the registry is initialized and /metrics
	// serves real data.
	Enabled bool `mapstructure:"enabled"`
}

// SeedConfig defines users and groups registered at startup.
//
// Seeding is idempotent against an empty registry only: the drive holds
// identities in memory, so every start re-registers them. Each seeded user
// gets a root directory named after the user.
type SeedConfig struct {
	// Users to register.
	Users []SeedUser `mapstructure:"users" validate:"dive"`

	// Groups to register.
	Groups []SeedGroup `mapstructure:"groups" validate:"dive"`
}

// SeedUser defines one user to register at startup.
type SeedUser struct {
	// Name is the user's unique display name.
	Name string `mapstructure:"name" validate:"required"`
}

// SeedGroup defines one group to register at startup.
type SeedGroup struct {
	// Name is the group's unique display name.
	Name string `mapstructure:"name" validate:"required"`

	// Members lists user names that belong to the group. Every entry must
	// name a seeded user.
	Members []string `mapstructure:"members"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variables and config file lookup.
func setupViper(v *viper.Viper, configPath string) {
	// Example: ATTIC_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("ATTIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is fine; defaults apply.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path, using
// XDG_CONFIG_HOME when set and falling back to ~/.config.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "attic")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "attic")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
