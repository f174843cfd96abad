// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kapy9250/cli-gateway/bridge"
	"github.com/kapy9250/cli-gateway/lib/audit"
	"github.com/kapy9250/cli-gateway/lib/clock"
	"github.com/kapy9250/cli-gateway/lib/config"
	"github.com/kapy9250/cli-gateway/lib/grant"
	"github.com/kapy9250/cli-gateway/lib/policy"
	"github.com/kapy9250/cli-gateway/lib/sysexec"
	"github.com/kapy9250/cli-gateway/lib/totp"
)

var version = "devel"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/cli-gateway/system.yaml", "configuration file")
	socketOverride := flag.String("socket", "", "override the configured socket path")
	validateOnly := flag.Bool("validate-only", false, "load and validate the configuration, then exit")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, adjustments, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *socketOverride != "" {
		cfg.Socket.Path = *socketOverride
	}
	if *validateOnly {
		printResolved(cfg, adjustments)
		return nil
	}

	logger := newLogger(cfg.Logging.Level)
	for _, adjustment := range adjustments {
		logger.Warn("configuration adjusted", slog.String("adjustment", adjustment))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	store, err := totp.NewStore(clk, cfg.Enrollment.StatePath, cfg.Enrollment.Issuer, cfg.EnrollmentTTL())
	if err != nil {
		return err
	}
	defer store.Close()

	grants := grant.NewManager(clk, cfg.GrantTTL())
	challenges := grant.NewChallengeManager(clk, store, grants, cfg.ChallengeTTL(), cfg.Challenges.MaxApproveAttempts)
	executor := sysexec.New(cfg, clk)
	engine := policy.NewEngine(policy.Config{
		AllowedOwnerIDs:       cfg.Policy.AllowedOwnerIDs,
		EnforceOwnerAllowlist: cfg.Policy.EnforceOwnerAllowlist,
		AllowedUnits:          cfg.Policy.AllowedUnits,
		EnforceUnitAllowlist:  cfg.Policy.EnforceUnitAllowlist,
		RequireGrantForAllOps: cfg.Policy.RequireGrantForAllOps,
	}, executor, grants)

	recorder, closeAudit, err := buildAudit(cfg, clk, logger)
	if err != nil {
		return err
	}
	defer closeAudit()

	server := bridge.NewServer(cfg, bridge.Deps{
		Clock:      clk,
		Engine:     engine,
		Executor:   executor,
		Grants:     grants,
		Challenges: challenges,
		Enrollment: store,
		Recorder:   recorder,
		Version:    version,
	}, logger)

	logger.Info("starting",
		slog.String("version", version),
		slog.String("config", *configPath),
		slog.String("socket", cfg.Socket.Path))

	return server.Serve(ctx)
}

func loadConfig(path string) (*config.Config, []string, error) {
	cfg, err := config.LoadFile(path)
	if err == nil {
		return cfg, nil, nil
	}
	// Without a config file the daemon still runs, fully closed: both
	// allowlists enforced and empty, so nothing is admitted until the
	// operator writes a policy.
	if os.IsNotExist(err) {
		cfg = config.Default()
		adjustments := cfg.ApplyFloors()
		if validateErr := cfg.Validate(); validateErr != nil {
			return nil, nil, validateErr
		}
		return cfg, append(adjustments, fmt.Sprintf("config file %s not found, using defaults", path)), nil
	}
	return nil, nil, err
}

// printResolved reports the settings the daemon would run with,
// floors and defaults applied.
func printResolved(cfg *config.Config, adjustments []string) {
	fmt.Println("configuration valid")
	fmt.Printf("socket: %s (mode %s)\n", cfg.Socket.Path, cfg.Socket.Mode)
	fmt.Printf("limits: max_request_bytes=%d request_timeout=%s\n",
		cfg.Limits.MaxRequestBytes, cfg.RequestTimeout())
	fmt.Printf("policy: owner_allowlist=%s (%d entries) unit_allowlist=%s (%d entries) require_grant_for_all_ops=%t\n",
		enforcement(cfg.Policy.EnforceOwnerAllowlist), len(cfg.Policy.AllowedOwnerIDs),
		enforcement(cfg.Policy.EnforceUnitAllowlist), len(cfg.Policy.AllowedUnits),
		cfg.Policy.RequireGrantForAllOps)
	fmt.Printf("challenges: ttl=%s max_approve_attempts=%d\n",
		cfg.ChallengeTTL(), cfg.Challenges.MaxApproveAttempts)
	fmt.Printf("grants: ttl=%s\n", cfg.GrantTTL())
	fmt.Printf("enrollment: state=%s issuer=%s ttl=%s\n",
		cfg.Enrollment.StatePath, cfg.Enrollment.Issuer, cfg.EnrollmentTTL())
	fmt.Printf("executor: cron_dir=%s write_roots=%v sensitive_prefixes=%d\n",
		cfg.Executor.CronDir, cfg.Executor.WriteRoots, len(cfg.Executor.SensitiveReadPrefixes))
	if cfg.Audit.LogPath != "" {
		fmt.Printf("audit: path=%s compression=%s age_recipients=%d\n",
			cfg.Audit.LogPath, cfg.Audit.Compression, len(cfg.Audit.AgeRecipients))
	} else {
		fmt.Println("audit: log sink only")
	}
	for _, adjustment := range adjustments {
		fmt.Printf("adjusted: %s\n", adjustment)
	}
}

func enforcement(on bool) string {
	if on {
		return "enforced"
	}
	return "disabled"
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
}

// buildAudit assembles the audit pipeline: always the log sink, plus
// the rotating file sink when a path is configured.
func buildAudit(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*audit.Recorder, func(), error) {
	sinks := audit.MultiSink{audit.NewLogSink(logger)}
	closer := func() {}

	if cfg.Audit.LogPath != "" {
		compression, err := audit.ParseCompressionTag(cfg.Audit.Compression)
		if err != nil {
			return nil, nil, err
		}
		recipients, err := audit.ParseRecipients(cfg.Audit.AgeRecipients)
		if err != nil {
			return nil, nil, err
		}
		fileSink, err := audit.NewFileSink(cfg.Audit.LogPath, cfg.Audit.MaxFileBytes, compression, recipients, clk, logger)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fileSink)
		closer = func() {
			if err := fileSink.Close(); err != nil {
				logger.Error("closing audit file", slog.String("error", err.Error()))
			}
		}
	}

	return audit.NewRecorder(sinks, logger), closer, nil
}
