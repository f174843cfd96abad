// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package sysexec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/kapy9250/cli-gateway/lib/action"
	"github.com/kapy9250/cli-gateway/lib/clock"
	"github.com/kapy9250/cli-gateway/lib/config"
	"github.com/kapy9250/cli-gateway/lib/policy"
)

// Reason codes carried by ActionError. These are wire-stable: they
// appear verbatim in responses and audit events.
const (
	ReasonNotSupported     = "action_not_supported"
	ReasonInvalidParams    = "invalid_params"
	ReasonPathNotAllowed   = "path_not_allowed"
	ReasonFileNotFound     = "file_not_found"
	ReasonIOFailed         = "io_failed"
	ReasonJournalctlFailed = "journalctl_failed"
	ReasonDockerFailed     = "docker_failed"
	ReasonDockerNotAllowed = "docker_subcommand_not_allowed"
	ReasonExecTimeout      = "exec_timeout"
	ReasonInvalidSchedule  = "invalid_schedule"
)

// ActionError is the typed failure of one action. Reason is the
// snake_case wire code; Err carries detail for logs.
type ActionError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ActionError) Unwrap() error { return e.Err }

// actionErr builds an ActionError with a formatted detail message.
func actionErr(op, reason, format string, args ...any) *ActionError {
	var err error
	if format != "" {
		err = fmt.Errorf(format, args...)
	}
	return &ActionError{Op: op, Reason: reason, Err: err}
}

// Runner executes a child process and returns its combined output and
// exit code. Injected so tests never spawn real processes.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, int, error)

// execRunner is the production Runner.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, exitErr.ExitCode(), nil
		}
		return output, -1, err
	}
	return output, 0, nil
}

// handler executes one action type.
type handler func(ctx context.Context, params map[string]string) (any, error)

// Executor dispatches action descriptors to their handlers.
type Executor struct {
	cfg            config.ExecutorConfig
	clock          clock.Clock
	dockerTimeout  time.Duration
	journalTimeout time.Duration
	run            Runner
	handlers       map[string]handler
}

// New returns an Executor bound to the configured limits and roots.
func New(cfg *config.Config, clk clock.Clock) *Executor {
	e := &Executor{
		cfg:            cfg.Executor,
		clock:          clk,
		dockerTimeout:  cfg.DockerTimeout(),
		journalTimeout: cfg.JournalTimeout(),
		run:            execRunner,
	}
	e.handlers = map[string]handler{
		"journal":         e.journal,
		"read_file":       e.readFile,
		"cron_list":       e.cronList,
		"cron_upsert":     e.cronUpsert,
		"cron_delete":     e.cronDelete,
		"docker_exec":     e.dockerExec,
		"config_write":    e.configWrite,
		"config_append":   e.configAppend,
		"config_delete":   e.configDelete,
		"config_rollback": e.configRollback,
	}
	return e
}

// Supported returns the sorted action types this executor handles.
func (e *Executor) Supported() []string {
	types := make([]string, 0, len(e.handlers))
	for t := range e.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Execute runs one action. The result is a typed struct ready for
// encoding; failures are *ActionError.
func (e *Executor) Execute(ctx context.Context, descriptor action.Descriptor) (any, error) {
	h, ok := e.handlers[descriptor.Type]
	if !ok {
		return nil, actionErr(descriptor.Type, ReasonNotSupported, "unknown action type %q", descriptor.Type)
	}
	params := descriptor.Params
	if params == nil {
		params = map[string]string{}
	}
	return h(ctx, params)
}

// Classify implements policy.Classifier. Read-only observation is
// public; anything that mutates the host, runs docker, or reads a
// sensitive path needs a grant. Unknown action types classify as
// protected so a dispatch-table addition can never silently widen the
// public surface.
func (e *Executor) Classify(descriptor action.Descriptor) policy.Class {
	switch descriptor.Type {
	case "journal", "cron_list":
		return policy.ClassPublic
	case "read_file":
		resolved, err := containPath(descriptor.Params["path"], nil)
		if err != nil {
			return policy.ClassProtected
		}
		if hasPrefixIn(resolved, e.cfg.SensitiveReadPrefixes) {
			return policy.ClassProtected
		}
		return policy.ClassPublic
	default:
		return policy.ClassProtected
	}
}
