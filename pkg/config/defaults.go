package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyLimitsDefaults(&cfg.Limits)
	applyTreeDefaults(&cfg.Tree)
	applyBlobDefaults(&cfg.Blob)
	applyGCDefaults(&cfg.GC)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	// No write timeout: archive downloads of large subtrees are expected
	// to run long.
}

func applyLimitsDefaults(cfg *LimitsConfig) {
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 65536
	}
	if cfg.RequestsPerSecond > 0 && cfg.Burst == 0 {
		cfg.Burst = cfg.RequestsPerSecond * 2
	}
}

func applyTreeDefaults(cfg *TreeConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
}

func applyBlobDefaults(cfg *BlobConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
}

func applyGCDefaults(cfg *GCConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.PendingTTL == 0 {
		cfg.PendingTTL = 24 * time.Hour
	}
}

// GetDefaultConfig returns a Config with all defaults applied and metrics
// and garbage collection enabled. Used for sample config generation and
// tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		GC:      GCConfig{Enabled: true},
		Metrics: MetricsConfig{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
