// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package sysexec

import (
	"context"
	"errors"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// JournalResult is the payload of a journal action.
type JournalResult struct {
	Output string `cbor:"output" json:"output"`
	Unit   string `cbor:"unit,omitempty" json:"unit,omitempty"`
	Lines  int    `cbor:"lines" json:"lines"`
}

// ReadFileResult is the payload of a read_file action.
type ReadFileResult struct {
	Path          string `cbor:"path" json:"path"`
	SizeBytes     int64  `cbor:"size_bytes" json:"size_bytes"`
	ReturnedBytes int    `cbor:"returned_bytes" json:"returned_bytes"`
	Truncated     bool   `cbor:"truncated" json:"truncated"`
	Text          string `cbor:"text" json:"text"`
	Sensitive     bool   `cbor:"sensitive" json:"sensitive"`
}

// DockerResult is the payload of a docker_exec action.
type DockerResult struct {
	Output    string `cbor:"output" json:"output"`
	Truncated bool   `cbor:"truncated" json:"truncated"`
	ExitCode  int    `cbor:"exit_code" json:"exit_code"`
}

// unitPattern matches systemd unit names as journalctl accepts them.
var unitPattern = regexp.MustCompile(`^[A-Za-z0-9@_.:\\-]+$`)

// defaultJournalLines is used when the request does not ask for a
// specific count.
const defaultJournalLines = 100

func (e *Executor) journal(ctx context.Context, params map[string]string) (any, error) {
	const op = "journal"

	lines := defaultJournalLines
	if raw, ok := params["lines"]; ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, actionErr(op, ReasonInvalidParams, "lines %q is not a number", raw)
		}
		lines = parsed
	}
	if lines < 1 {
		lines = 1
	}
	if lines > e.cfg.MaxJournalLines {
		lines = e.cfg.MaxJournalLines
	}

	args := []string{"--no-pager", "-n", strconv.Itoa(lines)}

	unit := params["unit"]
	if unit != "" {
		if !unitPattern.MatchString(unit) {
			return nil, actionErr(op, ReasonInvalidParams, "invalid unit name %q", unit)
		}
		args = append(args, "-u", unit)
	}
	if since := params["since"]; since != "" {
		if strings.ContainsAny(since, "\n\x00") {
			return nil, actionErr(op, ReasonInvalidParams, "since contains forbidden characters")
		}
		args = append(args, "--since", since)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.journalTimeout)
	defer cancel()

	output, exitCode, err := e.run(runCtx, "journalctl", args...)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, actionErr(op, ReasonExecTimeout, "journalctl exceeded %s", e.journalTimeout)
	}
	if err != nil {
		return nil, actionErr(op, ReasonJournalctlFailed, "running journalctl: %v", err)
	}
	if exitCode != 0 {
		return nil, actionErr(op, ReasonJournalctlFailed, "journalctl exited %d: %s", exitCode, clipForError(output))
	}

	return JournalResult{Output: string(output), Unit: unit, Lines: lines}, nil
}

func (e *Executor) readFile(_ context.Context, params map[string]string) (any, error) {
	const op = "read_file"

	resolved, err := containPath(params["path"], nil)
	if err != nil {
		return nil, actionErr(op, ReasonPathNotAllowed, "%v", err)
	}

	limit := e.cfg.MaxReadBytes
	if raw, ok := params["max_bytes"]; ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, actionErr(op, ReasonInvalidParams, "max_bytes %q is not a number", raw)
		}
		limit = parsed
	}
	if limit < 1 {
		limit = 1
	}
	if limit > e.cfg.MaxReadBytes {
		limit = e.cfg.MaxReadBytes
	}

	file, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, actionErr(op, ReasonFileNotFound, "%s does not exist", resolved)
		}
		return nil, actionErr(op, ReasonIOFailed, "opening %s: %v", resolved, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, actionErr(op, ReasonIOFailed, "stat %s: %v", resolved, err)
	}
	if info.IsDir() {
		return nil, actionErr(op, ReasonInvalidParams, "%s is a directory", resolved)
	}

	// Read one byte past the limit to learn whether truncation
	// happened without ever buffering more than limit+1 bytes.
	buffer := make([]byte, limit+1)
	n, err := io.ReadFull(file, buffer)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, actionErr(op, ReasonIOFailed, "reading %s: %v", resolved, err)
	}

	truncated := n > limit
	if truncated {
		n = limit
	}

	return ReadFileResult{
		Path:          resolved,
		SizeBytes:     info.Size(),
		ReturnedBytes: n,
		Truncated:     truncated,
		Text:          string(buffer[:n]),
		Sensitive:     hasPrefixIn(resolved, e.cfg.SensitiveReadPrefixes),
	}, nil
}

func (e *Executor) dockerExec(ctx context.Context, params map[string]string) (any, error) {
	const op = "docker_exec"

	raw := params["args"]
	if strings.TrimSpace(raw) == "" {
		return nil, actionErr(op, ReasonInvalidParams, "args is required")
	}
	if strings.ContainsAny(raw, "\n\x00") {
		return nil, actionErr(op, ReasonInvalidParams, "args contains forbidden characters")
	}
	args := strings.Fields(raw)

	subcommand := ""
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			subcommand = arg
			break
		}
	}
	if subcommand == "" {
		return nil, actionErr(op, ReasonInvalidParams, "no subcommand in args")
	}
	allowed := false
	for _, candidate := range e.cfg.DockerSubcommands {
		if subcommand == candidate {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, actionErr(op, ReasonDockerNotAllowed, "subcommand %q is not allowlisted", subcommand)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.dockerTimeout)
	defer cancel()

	output, exitCode, err := e.run(runCtx, "docker", args...)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, actionErr(op, ReasonExecTimeout, "docker exceeded %s", e.dockerTimeout)
	}
	if err != nil {
		return nil, actionErr(op, ReasonDockerFailed, "running docker: %v", err)
	}

	text, truncated := clampOutput(output, e.cfg.MaxDockerOutputBytes)
	return DockerResult{Output: text, Truncated: truncated, ExitCode: exitCode}, nil
}

// clampOutput truncates process output to max bytes.
func clampOutput(output []byte, max int) (string, bool) {
	if len(output) <= max {
		return string(output), false
	}
	return string(output[:max]), true
}

// clipForError bounds command output quoted inside error detail.
func clipForError(output []byte) string {
	const max = 512
	text := strings.TrimSpace(string(output))
	if len(text) > max {
		text = text[:max] + "..."
	}
	return text
}
