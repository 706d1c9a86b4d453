package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level INFO, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format text, got %s", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output stdout, got %s", cfg.Logging.Output)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Limits.MaxFileSize != 65536 {
		t.Errorf("Expected default max file size 65536, got %d", cfg.Limits.MaxFileSize)
	}
	if cfg.Tree.Type != "memory" {
		t.Errorf("Expected default tree store memory, got %s", cfg.Tree.Type)
	}
	if cfg.Blob.Type != "memory" {
		t.Errorf("Expected default blob store memory, got %s", cfg.Blob.Type)
	}
	if cfg.GC.Interval != time.Hour {
		t.Errorf("Expected default GC interval 1h, got %v", cfg.GC.Interval)
	}
	if cfg.GC.PendingTTL != 24*time.Hour {
		t.Errorf("Expected default pending TTL 24h, got %v", cfg.GC.PendingTTL)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	cfg.Server.Port = 9999
	cfg.Limits.MaxFileSize = 1024

	ApplyDefaults(cfg)

	// Levels are normalized to upper case.
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level DEBUG, got %s", cfg.Logging.Level)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Limits.MaxFileSize != 1024 {
		t.Errorf("Expected max file size 1024, got %d", cfg.Limits.MaxFileSize)
	}
}

func TestApplyDefaults_RateLimitBurst(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Limits.Burst != 0 {
		t.Errorf("Expected no burst when rate limiting is off, got %d", cfg.Limits.Burst)
	}

	cfg = &Config{}
	cfg.Limits.RequestsPerSecond = 100
	ApplyDefaults(cfg)
	if cfg.Limits.Burst != 200 {
		t.Errorf("Expected burst 200, got %d", cfg.Limits.Burst)
	}

	cfg = &Config{}
	cfg.Limits.RequestsPerSecond = 100
	cfg.Limits.Burst = 50
	ApplyDefaults(cfg)
	if cfg.Limits.Burst != 50 {
		t.Errorf("Expected explicit burst 50 preserved, got %d", cfg.Limits.Burst)
	}
}

func TestGetDefaultConfig_Valid(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.GC.Enabled {
		t.Error("Expected GC enabled in default config")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected metrics enabled in default config")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Default config failed validation: %v", err)
	}
}
