// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway daemon configuration.
//
// Configuration comes from a single YAML file named by either the
// CLI_GATEWAY_CONFIG environment variable or the --config flag. There
// is no discovery and no environment-variable override of individual
// values; the file is the auditable source of truth. The only
// expansion applied is ${VAR} / ${VAR:-default} in path fields.
//
// Every security-relevant default is closed: allowlists are enforced
// even when empty, and the floors applied after loading keep TTLs and
// size limits from being configured into meaninglessness.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"time"

	"filippo.io/age"
	"gopkg.in/yaml.v3"
)

// Floors applied after loading. A config that asks for less gets
// these instead; the daemon logs the adjustment at startup.
const (
	MinRequestBytes        = 1024
	MinGrantTTLSeconds     = 5
	MinChallengeTTLSeconds = 30
	MinEnrollTTLSeconds    = 60
)

// Config is the root of the daemon configuration.
type Config struct {
	Socket     SocketConfig     `yaml:"socket"`
	Limits     LimitsConfig     `yaml:"limits"`
	Policy     PolicyConfig     `yaml:"policy"`
	Challenges ChallengesConfig `yaml:"challenges"`
	Grants     GrantsConfig     `yaml:"grants"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Audit      AuditConfig      `yaml:"audit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SocketConfig configures the listening Unix socket.
type SocketConfig struct {
	// Path is the socket path.
	Path string `yaml:"path"`

	// Mode is the socket file mode as an octal string, e.g. "0660".
	Mode string `yaml:"mode"`

	// OwnerUID and OwnerGID, when set, are applied to the socket
	// after listen. Nil leaves the daemon's own ownership in place.
	OwnerUID *int `yaml:"owner_uid,omitempty"`
	OwnerGID *int `yaml:"owner_gid,omitempty"`

	// ParentMode is the mode for the socket's parent directory when
	// the daemon has to create it.
	ParentMode string `yaml:"parent_mode"`
}

// LimitsConfig bounds individual requests.
type LimitsConfig struct {
	// MaxRequestBytes caps the encoded size of one request.
	MaxRequestBytes int `yaml:"max_request_bytes"`

	// RequestTimeoutSeconds bounds reading and handling one request.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// PolicyConfig configures the authorization gates.
type PolicyConfig struct {
	AllowedOwnerIDs       []string `yaml:"allowed_owner_ids"`
	EnforceOwnerAllowlist bool     `yaml:"enforce_owner_allowlist"`
	AllowedUnits          []string `yaml:"allowed_units"`
	EnforceUnitAllowlist  bool     `yaml:"enforce_unit_allowlist"`
	RequireGrantForAllOps bool     `yaml:"require_grant_for_all_ops"`
}

// ChallengesConfig configures approval challenges.
type ChallengesConfig struct {
	TTLSeconds         int `yaml:"ttl_seconds"`
	MaxApproveAttempts int `yaml:"max_approve_attempts"`
}

// GrantsConfig configures single-use grants.
type GrantsConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// EnrollmentConfig configures TOTP enrollment.
type EnrollmentConfig struct {
	// StatePath is where enrolled secrets are persisted.
	StatePath string `yaml:"state_path"`

	// TTLSeconds bounds begin-to-confirm time.
	TTLSeconds int `yaml:"ttl_seconds"`

	// Issuer appears in provisioning URIs.
	Issuer string `yaml:"issuer"`
}

// ExecutorConfig bounds what the action executor may touch and how
// much output it returns.
type ExecutorConfig struct {
	// MaxReadBytes caps read_file responses.
	MaxReadBytes int `yaml:"max_read_bytes"`

	// MaxJournalLines caps journal responses.
	MaxJournalLines int `yaml:"max_journal_lines"`

	// MaxDockerOutputBytes caps docker_exec output.
	MaxDockerOutputBytes int `yaml:"max_docker_output_bytes"`

	// DockerTimeoutSeconds and JournalTimeoutSeconds bound the
	// respective child processes.
	DockerTimeoutSeconds  int `yaml:"docker_timeout_seconds"`
	JournalTimeoutSeconds int `yaml:"journal_timeout_seconds"`

	// DockerSubcommands is the allowlist of docker subcommands.
	DockerSubcommands []string `yaml:"docker_subcommands"`

	// CronDir is where managed cron entries live.
	CronDir string `yaml:"cron_dir"`

	// SensitiveReadPrefixes classify read_file targets as protected.
	SensitiveReadPrefixes []string `yaml:"sensitive_read_prefixes"`

	// WriteRoots are the only directory trees config_write and its
	// siblings may touch.
	WriteRoots []string `yaml:"write_roots"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	// LogPath is the audit JSONL file. Empty disables the file sink;
	// events still go to the structured log.
	LogPath string `yaml:"log_path"`

	// MaxFileBytes triggers rotation.
	MaxFileBytes int64 `yaml:"max_file_bytes"`

	// Compression applies to rotated files: none, lz4, or zstd.
	Compression string `yaml:"compression"`

	// AgeRecipients, when set, encrypt rotated files to these X25519
	// public keys.
	AgeRecipients []string `yaml:"age_recipients"`
}

// LoggingConfig configures the structured log.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Default returns the closed-by-default configuration. The file
// overrides it; fields the file does not mention keep these values.
func Default() *Config {
	return &Config{
		Socket: SocketConfig{
			Path:       "/run/cli-gateway/bridge.sock",
			Mode:       "0660",
			ParentMode: "0755",
		},
		Limits: LimitsConfig{
			MaxRequestBytes:       131072,
			RequestTimeoutSeconds: 15,
		},
		Policy: PolicyConfig{
			EnforceOwnerAllowlist: true,
			EnforceUnitAllowlist:  true,
			RequireGrantForAllOps: true,
		},
		Challenges: ChallengesConfig{
			TTLSeconds:         300,
			MaxApproveAttempts: 5,
		},
		Grants: GrantsConfig{
			TTLSeconds: 60,
		},
		Enrollment: EnrollmentConfig{
			StatePath:  "/var/lib/cli-gateway/totp-state.json",
			TTLSeconds: 600,
			Issuer:     "CLI Gateway",
		},
		Executor: ExecutorConfig{
			MaxReadBytes:          65536,
			MaxJournalLines:       300,
			MaxDockerOutputBytes:  200000,
			DockerTimeoutSeconds:  120,
			JournalTimeoutSeconds: 20,
			DockerSubcommands: []string{
				"ps", "images", "logs", "inspect", "stats", "top", "version", "info",
			},
			CronDir: "/etc/cron.d",
			SensitiveReadPrefixes: []string{
				"/etc/shadow", "/etc/sudoers", "/etc/ssh",
				"/root", "/home", "/var/lib/docker",
			},
			WriteRoots: []string{"/etc", "/opt", "/data", "/var", "/usr/local/etc"},
		},
		Audit: AuditConfig{
			LogPath:      "/var/log/cli-gateway/audit.log",
			MaxFileBytes: 10 << 20,
			Compression:  "zstd",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the CLI_GATEWAY_CONFIG environment
// variable. No fallback path: if the variable is unset this fails.
func Load() (*Config, error) {
	path := os.Getenv("CLI_GATEWAY_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("CLI_GATEWAY_CONFIG environment variable not set; " +
			"set it to the path of the system.yaml config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file, applies variable
// expansion and floors, and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	cfg.ApplyFloors()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	c.Socket.Path = expandVars(c.Socket.Path)
	c.Enrollment.StatePath = expandVars(c.Enrollment.StatePath)
	c.Executor.CronDir = expandVars(c.Executor.CronDir)
	c.Audit.LogPath = expandVars(c.Audit.LogPath)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// ApplyFloors raises values below their minimum. Returns the list of
// adjustments made, for startup logging.
func (c *Config) ApplyFloors() []string {
	var adjusted []string
	raise := func(field string, value *int, floor int) {
		if *value < floor {
			adjusted = append(adjusted, fmt.Sprintf("%s raised from %d to %d", field, *value, floor))
			*value = floor
		}
	}
	raise("limits.max_request_bytes", &c.Limits.MaxRequestBytes, MinRequestBytes)
	raise("grants.ttl_seconds", &c.Grants.TTLSeconds, MinGrantTTLSeconds)
	raise("challenges.ttl_seconds", &c.Challenges.TTLSeconds, MinChallengeTTLSeconds)
	raise("enrollment.ttl_seconds", &c.Enrollment.TTLSeconds, MinEnrollTTLSeconds)
	raise("challenges.max_approve_attempts", &c.Challenges.MaxApproveAttempts, 1)
	raise("limits.request_timeout_seconds", &c.Limits.RequestTimeoutSeconds, 1)
	return adjusted
}

// Validate checks the configuration for errors, reporting all of them
// at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Socket.Path == "" {
		errs = append(errs, fmt.Errorf("socket.path is required"))
	}
	if _, err := ParseMode(c.Socket.Mode); err != nil {
		errs = append(errs, fmt.Errorf("socket.mode: %w", err))
	}
	if _, err := ParseMode(c.Socket.ParentMode); err != nil {
		errs = append(errs, fmt.Errorf("socket.parent_mode: %w", err))
	}

	if c.Enrollment.StatePath == "" {
		errs = append(errs, fmt.Errorf("enrollment.state_path is required"))
	}
	if c.Enrollment.Issuer == "" {
		errs = append(errs, fmt.Errorf("enrollment.issuer is required"))
	}

	if c.Executor.CronDir == "" {
		errs = append(errs, fmt.Errorf("executor.cron_dir is required"))
	}
	if len(c.Executor.WriteRoots) == 0 {
		errs = append(errs, fmt.Errorf("executor.write_roots must not be empty"))
	}

	switch c.Audit.Compression {
	case "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("audit.compression must be none, lz4, or zstd, got %q", c.Audit.Compression))
	}
	for _, recipient := range c.Audit.AgeRecipients {
		if _, err := age.ParseX25519Recipient(recipient); err != nil {
			errs = append(errs, fmt.Errorf("audit.age_recipients %q: %w", recipient, err))
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ParseMode parses an octal file mode string like "0660".
func ParseMode(s string) (fs.FileMode, error) {
	if s == "" {
		return 0, fmt.Errorf("mode is required")
	}
	value, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid octal mode %q", s)
	}
	if value > 0o777 {
		return 0, fmt.Errorf("mode %q exceeds 0777", s)
	}
	return fs.FileMode(value), nil
}

// Duration accessors. The YAML carries integer seconds; everything
// downstream wants time.Duration.

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Limits.RequestTimeoutSeconds) * time.Second
}

func (c *Config) GrantTTL() time.Duration {
	return time.Duration(c.Grants.TTLSeconds) * time.Second
}

func (c *Config) ChallengeTTL() time.Duration {
	return time.Duration(c.Challenges.TTLSeconds) * time.Second
}

func (c *Config) EnrollmentTTL() time.Duration {
	return time.Duration(c.Enrollment.TTLSeconds) * time.Second
}

func (c *Config) DockerTimeout() time.Duration {
	return time.Duration(c.Executor.DockerTimeoutSeconds) * time.Second
}

func (c *Config) JournalTimeout() time.Duration {
	return time.Duration(c.Executor.JournalTimeoutSeconds) * time.Second
}
