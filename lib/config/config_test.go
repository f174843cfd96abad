// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "system.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestDefaultFailsClosed(t *testing.T) {
	cfg := Default()
	if !cfg.Policy.EnforceOwnerAllowlist || !cfg.Policy.EnforceUnitAllowlist {
		t.Error("enforcement flags default off; they must default on")
	}
	if !cfg.Policy.RequireGrantForAllOps {
		t.Error("RequireGrantForAllOps defaults off; every policy boolean must default closed")
	}
	if len(cfg.Policy.AllowedOwnerIDs) != 0 || len(cfg.Policy.AllowedUnits) != 0 {
		t.Error("default allowlists are not empty")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
socket:
  path: /tmp/test-bridge.sock
policy:
  allowed_owner_ids: ["1000"]
  enforce_unit_allowlist: false
  require_grant_for_all_ops: false
grants:
  ttl_seconds: 30
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Socket.Path != "/tmp/test-bridge.sock" {
		t.Errorf("Socket.Path = %q", cfg.Socket.Path)
	}
	if len(cfg.Policy.AllowedOwnerIDs) != 1 || cfg.Policy.AllowedOwnerIDs[0] != "1000" {
		t.Errorf("AllowedOwnerIDs = %v", cfg.Policy.AllowedOwnerIDs)
	}
	// Explicitly disabled in the file.
	if cfg.Policy.EnforceUnitAllowlist {
		t.Error("enforce_unit_allowlist: false was not honored")
	}
	if cfg.Policy.RequireGrantForAllOps {
		t.Error("require_grant_for_all_ops: false was not honored")
	}
	// Not mentioned in the file: keeps the closed default.
	if !cfg.Policy.EnforceOwnerAllowlist {
		t.Error("enforce_owner_allowlist default lost on load")
	}
	if cfg.GrantTTL() != 30*time.Second {
		t.Errorf("GrantTTL = %v, want 30s", cfg.GrantTTL())
	}
	// Untouched sections keep their defaults.
	if cfg.Executor.CronDir != "/etc/cron.d" {
		t.Errorf("CronDir = %q, want default", cfg.Executor.CronDir)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadFile on missing file = nil error")
	}
}

func TestLoadFileMalformed(t *testing.T) {
	path := writeConfig(t, "socket: [not a map")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile on malformed YAML = nil error")
	}
}

func TestApplyFloors(t *testing.T) {
	cfg := Default()
	cfg.Limits.MaxRequestBytes = 10
	cfg.Grants.TTLSeconds = 1
	cfg.Enrollment.TTLSeconds = 5
	cfg.Challenges.MaxApproveAttempts = 0

	adjusted := cfg.ApplyFloors()
	if len(adjusted) != 4 {
		t.Errorf("adjustments = %v, want 4 entries", adjusted)
	}
	if cfg.Limits.MaxRequestBytes != MinRequestBytes {
		t.Errorf("MaxRequestBytes = %d, want floor %d", cfg.Limits.MaxRequestBytes, MinRequestBytes)
	}
	if cfg.Grants.TTLSeconds != MinGrantTTLSeconds {
		t.Errorf("Grants.TTLSeconds = %d, want floor %d", cfg.Grants.TTLSeconds, MinGrantTTLSeconds)
	}
	if cfg.Enrollment.TTLSeconds != MinEnrollTTLSeconds {
		t.Errorf("Enrollment.TTLSeconds = %d, want floor %d", cfg.Enrollment.TTLSeconds, MinEnrollTTLSeconds)
	}
	if cfg.Challenges.MaxApproveAttempts != 1 {
		t.Errorf("MaxApproveAttempts = %d, want 1", cfg.Challenges.MaxApproveAttempts)
	}

	// A compliant config is untouched.
	if adjusted := Default().ApplyFloors(); len(adjusted) != 0 {
		t.Errorf("floors adjusted a default config: %v", adjusted)
	}
}

func TestVariableExpansion(t *testing.T) {
	t.Setenv("GATEWAY_TEST_RUNDIR", "/run/test")
	path := writeConfig(t, `
socket:
  path: ${GATEWAY_TEST_RUNDIR}/bridge.sock
enrollment:
  state_path: ${GATEWAY_TEST_UNSET:-/var/lib/fallback}/state.json
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Socket.Path != "/run/test/bridge.sock" {
		t.Errorf("Socket.Path = %q, want expansion from environment", cfg.Socket.Path)
	}
	if cfg.Enrollment.StatePath != "/var/lib/fallback/state.json" {
		t.Errorf("StatePath = %q, want default expansion", cfg.Enrollment.StatePath)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty_socket_path", func(c *Config) { c.Socket.Path = "" }, "socket.path"},
		{"bad_socket_mode", func(c *Config) { c.Socket.Mode = "99x" }, "socket.mode"},
		{"bad_parent_mode", func(c *Config) { c.Socket.ParentMode = "1777777" }, "socket.parent_mode"},
		{"empty_state_path", func(c *Config) { c.Enrollment.StatePath = "" }, "enrollment.state_path"},
		{"empty_issuer", func(c *Config) { c.Enrollment.Issuer = "" }, "enrollment.issuer"},
		{"empty_cron_dir", func(c *Config) { c.Executor.CronDir = "" }, "executor.cron_dir"},
		{"no_write_roots", func(c *Config) { c.Executor.WriteRoots = nil }, "executor.write_roots"},
		{"bad_compression", func(c *Config) { c.Audit.Compression = "gzip" }, "audit.compression"},
		{"bad_age_recipient", func(c *Config) { c.Audit.AgeRecipients = []string{"not-a-key"} }, "age_recipients"},
		{"bad_log_level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate = nil, want error containing %q", test.wantErr)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate = %q, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Socket.Path = ""
	cfg.Logging.Level = "loud"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate = nil")
	}
	for _, want := range []string{"socket.path", "logging.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q missing %q", err, want)
		}
	}
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("0660")
	if err != nil || mode != 0o660 {
		t.Errorf("ParseMode(0660) = %v, %v", mode, err)
	}
	for _, bad := range []string{"", "888", "0x1ff", "01777"} {
		if _, err := ParseMode(bad); err == nil {
			t.Errorf("ParseMode(%q) = nil error", bad)
		}
	}
}
