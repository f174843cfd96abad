// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package sysexec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kapy9250/cli-gateway/lib/action"
	"github.com/kapy9250/cli-gateway/lib/clock"
	"github.com/kapy9250/cli-gateway/lib/config"
	"github.com/kapy9250/cli-gateway/lib/policy"
)

// capturedRun records the command it was asked to run and plays back
// a canned response.
type capturedRun struct {
	name     string
	args     []string
	output   []byte
	exitCode int
	err      error
}

func (c *capturedRun) run(_ context.Context, name string, args ...string) ([]byte, int, error) {
	c.name = name
	c.args = args
	return c.output, c.exitCode, c.err
}

// newTestExecutor builds an Executor confined to temp directories,
// with a fake clock and a stub process runner.
func newTestExecutor(t *testing.T) (*Executor, *capturedRun, string) {
	t.Helper()
	root := t.TempDir()
	cronDir := filepath.Join(root, "cron.d")
	if err := os.MkdirAll(cronDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Executor.CronDir = cronDir
	cfg.Executor.WriteRoots = []string{root}
	cfg.Executor.SensitiveReadPrefixes = []string{filepath.Join(root, "secret")}

	executor := New(cfg, clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	stub := &capturedRun{}
	executor.run = stub.run
	return executor, stub, root
}

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	var actionError *ActionError
	if !errors.As(err, &actionError) {
		t.Fatalf("error %v is not an ActionError", err)
	}
	return actionError.Reason
}

func TestExecuteUnknownAction(t *testing.T) {
	executor, _, _ := newTestExecutor(t)
	_, err := executor.Execute(context.Background(), action.Descriptor{Type: "reboot"})
	if got := reasonOf(t, err); got != ReasonNotSupported {
		t.Errorf("reason = %q, want %q", got, ReasonNotSupported)
	}
}

func TestSupported(t *testing.T) {
	executor, _, _ := newTestExecutor(t)
	supported := executor.Supported()
	if len(supported) != 10 {
		t.Errorf("Supported() = %v, want 10 actions", supported)
	}
	for i := 1; i < len(supported); i++ {
		if supported[i-1] >= supported[i] {
			t.Errorf("Supported() not sorted at %d: %v", i, supported)
		}
	}
}

func TestJournal(t *testing.T) {
	executor, stub, _ := newTestExecutor(t)
	stub.output = []byte("log line one\nlog line two\n")

	result, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "journal",
		Params: map[string]string{"unit": "nginx.service", "lines": "50", "since": "1 hour ago"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if stub.name != "journalctl" {
		t.Errorf("ran %q, want journalctl", stub.name)
	}
	want := []string{"--no-pager", "-n", "50", "-u", "nginx.service", "--since", "1 hour ago"}
	if strings.Join(stub.args, " ") != strings.Join(want, " ") {
		t.Errorf("args = %v, want %v", stub.args, want)
	}

	journal := result.(JournalResult)
	if journal.Output != string(stub.output) || journal.Lines != 50 {
		t.Errorf("result = %+v", journal)
	}
}

func TestJournalLineClamp(t *testing.T) {
	executor, stub, _ := newTestExecutor(t)

	if _, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "journal",
		Params: map[string]string{"lines": "100000"},
	}); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(stub.args, " "); !strings.Contains(got, "-n 300") {
		t.Errorf("args = %q, want clamp to 300 lines", got)
	}

	if _, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "journal",
		Params: map[string]string{"lines": "-5"},
	}); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(stub.args, " "); !strings.Contains(got, "-n 1") {
		t.Errorf("args = %q, want clamp to 1 line", got)
	}
}

func TestJournalRejections(t *testing.T) {
	executor, _, _ := newTestExecutor(t)
	tests := []struct {
		name       string
		params     map[string]string
		wantReason string
	}{
		{"bad_lines", map[string]string{"lines": "many"}, ReasonInvalidParams},
		{"bad_unit", map[string]string{"unit": "nginx.service; rm -rf /"}, ReasonInvalidParams},
		{"newline_in_since", map[string]string{"since": "now\n--boot"}, ReasonInvalidParams},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := executor.Execute(context.Background(), action.Descriptor{Type: "journal", Params: test.params})
			if got := reasonOf(t, err); got != test.wantReason {
				t.Errorf("reason = %q, want %q", got, test.wantReason)
			}
		})
	}
}

func TestJournalNonZeroExit(t *testing.T) {
	executor, stub, _ := newTestExecutor(t)
	stub.exitCode = 1
	stub.output = []byte("No journal files were found.")

	_, err := executor.Execute(context.Background(), action.Descriptor{Type: "journal"})
	if got := reasonOf(t, err); got != ReasonJournalctlFailed {
		t.Fatalf("reason = %q, want %q", got, ReasonJournalctlFailed)
	}
	if !strings.Contains(err.Error(), "No journal files") {
		t.Errorf("error %q missing clipped stderr", err)
	}
}

func TestReadFile(t *testing.T) {
	executor, _, root := newTestExecutor(t)
	path := filepath.Join(root, "app.conf")
	if err := os.WriteFile(path, []byte("key = value\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "read_file",
		Params: map[string]string{"path": path},
	})
	if err != nil {
		t.Fatal(err)
	}

	read := result.(ReadFileResult)
	if read.Text != "key = value\n" || read.Truncated || read.Sensitive {
		t.Errorf("result = %+v", read)
	}
	if read.SizeBytes != 12 || read.ReturnedBytes != 12 {
		t.Errorf("sizes = %d/%d, want 12/12", read.SizeBytes, read.ReturnedBytes)
	}
}

func TestReadFileTruncation(t *testing.T) {
	executor, _, root := newTestExecutor(t)
	path := filepath.Join(root, "big.log")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 100)), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "read_file",
		Params: map[string]string{"path": path, "max_bytes": "10"},
	})
	if err != nil {
		t.Fatal(err)
	}

	read := result.(ReadFileResult)
	if !read.Truncated || read.ReturnedBytes != 10 || len(read.Text) != 10 {
		t.Errorf("result = %+v, want 10 bytes truncated", read)
	}
	if read.SizeBytes != 100 {
		t.Errorf("SizeBytes = %d, want 100", read.SizeBytes)
	}
}

func TestReadFileSensitiveFlag(t *testing.T) {
	executor, _, root := newTestExecutor(t)
	secretDir := filepath.Join(root, "secret")
	if err := os.MkdirAll(secretDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(secretDir, "token")
	if err := os.WriteFile(path, []byte("s3cret"), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "read_file",
		Params: map[string]string{"path": path},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.(ReadFileResult).Sensitive {
		t.Error("Sensitive = false for a path under a sensitive prefix")
	}
}

func TestReadFileErrors(t *testing.T) {
	executor, _, root := newTestExecutor(t)

	_, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "read_file",
		Params: map[string]string{"path": filepath.Join(root, "absent")},
	})
	if got := reasonOf(t, err); got != ReasonFileNotFound {
		t.Errorf("missing file reason = %q, want %q", got, ReasonFileNotFound)
	}

	_, err = executor.Execute(context.Background(), action.Descriptor{
		Type:   "read_file",
		Params: map[string]string{"path": "relative/path"},
	})
	if got := reasonOf(t, err); got != ReasonPathNotAllowed {
		t.Errorf("relative path reason = %q, want %q", got, ReasonPathNotAllowed)
	}

	_, err = executor.Execute(context.Background(), action.Descriptor{
		Type:   "read_file",
		Params: map[string]string{"path": root},
	})
	if got := reasonOf(t, err); got != ReasonInvalidParams {
		t.Errorf("directory reason = %q, want %q", got, ReasonInvalidParams)
	}
}

func TestDockerExec(t *testing.T) {
	executor, stub, _ := newTestExecutor(t)
	stub.output = []byte("CONTAINER ID  IMAGE\n")

	result, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "docker_exec",
		Params: map[string]string{"args": "ps -a"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if stub.name != "docker" || strings.Join(stub.args, " ") != "ps -a" {
		t.Errorf("ran %q %v", stub.name, stub.args)
	}
	docker := result.(DockerResult)
	if docker.ExitCode != 0 || docker.Truncated {
		t.Errorf("result = %+v", docker)
	}
}

func TestDockerExecFlagBeforeSubcommand(t *testing.T) {
	executor, stub, _ := newTestExecutor(t)

	// The subcommand is the first non-flag token, so a leading flag
	// cannot smuggle a forbidden subcommand past the allowlist.
	if _, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "docker_exec",
		Params: map[string]string{"args": "--debug logs web"},
	}); err != nil {
		t.Fatal(err)
	}
	if strings.Join(stub.args, " ") != "--debug logs web" {
		t.Errorf("args = %v", stub.args)
	}

	_, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "docker_exec",
		Params: map[string]string{"args": "--debug rm web"},
	})
	if got := reasonOf(t, err); got != ReasonDockerNotAllowed {
		t.Errorf("reason = %q, want %q", got, ReasonDockerNotAllowed)
	}
}

func TestDockerExecRejections(t *testing.T) {
	executor, _, _ := newTestExecutor(t)
	tests := []struct {
		name       string
		args       string
		wantReason string
	}{
		{"forbidden_subcommand", "run alpine", ReasonDockerNotAllowed},
		{"empty", "", ReasonInvalidParams},
		{"only_flags", "--debug -v", ReasonInvalidParams},
		{"newline", "ps\nrm -f web", ReasonInvalidParams},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := executor.Execute(context.Background(), action.Descriptor{
				Type:   "docker_exec",
				Params: map[string]string{"args": test.args},
			})
			if got := reasonOf(t, err); got != test.wantReason {
				t.Errorf("reason = %q, want %q", got, test.wantReason)
			}
		})
	}
}

func TestDockerExecOutputClamp(t *testing.T) {
	executor, stub, _ := newTestExecutor(t)
	executor.cfg.MaxDockerOutputBytes = 16
	stub.output = []byte(strings.Repeat("y", 64))
	stub.exitCode = 2

	result, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "docker_exec",
		Params: map[string]string{"args": "logs web"},
	})
	if err != nil {
		t.Fatal(err)
	}
	docker := result.(DockerResult)
	if !docker.Truncated || len(docker.Output) != 16 || docker.ExitCode != 2 {
		t.Errorf("result = %+v, want 16 truncated bytes, exit 2", docker)
	}
}

func TestClassify(t *testing.T) {
	executor, _, root := newTestExecutor(t)
	publicFile := filepath.Join(root, "app.conf")
	secretFile := filepath.Join(root, "secret", "token")

	tests := []struct {
		name       string
		descriptor action.Descriptor
		want       policy.Class
	}{
		{"journal", action.Descriptor{Type: "journal"}, policy.ClassPublic},
		{"cron_list", action.Descriptor{Type: "cron_list"}, policy.ClassPublic},
		{"read_plain", action.Descriptor{Type: "read_file", Params: map[string]string{"path": publicFile}}, policy.ClassPublic},
		{"read_sensitive", action.Descriptor{Type: "read_file", Params: map[string]string{"path": secretFile}}, policy.ClassProtected},
		{"read_invalid_path", action.Descriptor{Type: "read_file", Params: map[string]string{"path": "nope"}}, policy.ClassProtected},
		{"docker", action.Descriptor{Type: "docker_exec"}, policy.ClassProtected},
		{"cron_upsert", action.Descriptor{Type: "cron_upsert"}, policy.ClassProtected},
		{"config_write", action.Descriptor{Type: "config_write"}, policy.ClassProtected},
		{"unknown", action.Descriptor{Type: "mystery"}, policy.ClassProtected},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := executor.Classify(test.descriptor); got != test.want {
				t.Errorf("Classify(%s) = %v, want %v", test.descriptor.Type, got, test.want)
			}
		})
	}
}
