package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidTreeType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Tree.Type = "postgres"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown tree store type")
	}
}

func TestValidate_InvalidBlobType(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Blob.Type = "tape"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown blob store type")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for out-of-range port")
	}
}

func TestValidate_ZeroMaxFileSize(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Limits.MaxFileSize = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for zero max file size")
	}
}

func TestValidate_DuplicateSeedUser(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Seed.Users = []SeedUser{{Name: "alice"}, {Name: "alice"}}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for duplicate seed user")
	}
	if !strings.Contains(err.Error(), "duplicate user name") {
		t.Errorf("Expected duplicate user error, got: %v", err)
	}
}

func TestValidate_DuplicateSeedGroup(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Seed.Groups = []SeedGroup{{Name: "team"}, {Name: "team"}}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for duplicate seed group")
	}
}

func TestValidate_GroupMemberNotSeeded(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Seed.Users = []SeedUser{{Name: "alice"}}
	cfg.Seed.Groups = []SeedGroup{{Name: "team", Members: []string{"ghost"}}}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unknown group member")
	}
	if !strings.Contains(err.Error(), "not a seeded user") {
		t.Errorf("Expected unknown member error, got: %v", err)
	}
}

func TestValidate_SeededGroupWithSeededMembers(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Seed.Users = []SeedUser{{Name: "alice"}, {Name: "bob"}}
	cfg.Seed.Groups = []SeedGroup{{Name: "team", Members: []string{"alice", "bob"}}}

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid seed config, got error: %v", err)
	}
}
