// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package sysexec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kapy9250/cli-gateway/lib/action"
)

func TestConfigWriteAndBackup(t *testing.T) {
	executor, _, root := newTestExecutor(t)
	path := filepath.Join(root, "app", "settings.conf")

	// First write creates the parent directory, no backup.
	result, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "config_write",
		Params: map[string]string{"path": path, "content": "version = 1\n"},
	})
	if err != nil {
		t.Fatal(err)
	}
	write := result.(WriteResult)
	if write.BackupPath != "" || write.BytesWritten != 12 {
		t.Errorf("first write = %+v", write)
	}

	// Overwrite backs up the previous contents.
	result, err = executor.Execute(context.Background(), action.Descriptor{
		Type:   "config_write",
		Params: map[string]string{"path": path, "content": "version = 2\n"},
	})
	if err != nil {
		t.Fatal(err)
	}
	write = result.(WriteResult)
	if write.BackupPath == "" {
		t.Fatal("overwrite produced no backup")
	}
	backup, err := os.ReadFile(write.BackupPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(backup) != "version = 1\n" {
		t.Errorf("backup = %q", backup)
	}
	current, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(current) != "version = 2\n" {
		t.Errorf("current = %q", current)
	}
}

func TestConfigAppend(t *testing.T) {
	executor, _, root := newTestExecutor(t)
	path := filepath.Join(root, "hosts.conf")

	for _, line := range []string{"alpha\n", "beta\n"} {
		if _, err := executor.Execute(context.Background(), action.Descriptor{
			Type:   "config_append",
			Params: map[string]string{"path": path, "content": line},
		}); err != nil {
			t.Fatal(err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "alpha\nbeta\n" {
		t.Errorf("contents = %q, want appended lines in order", data)
	}
}

func TestConfigWriteContainment(t *testing.T) {
	executor, _, root := newTestExecutor(t)

	outside := filepath.Join(t.TempDir(), "outside.conf")
	for _, path := range []string{outside, "relative.conf", root + "/../escape.conf"} {
		_, err := executor.Execute(context.Background(), action.Descriptor{
			Type:   "config_write",
			Params: map[string]string{"path": path, "content": "x"},
		})
		if got := reasonOf(t, err); got != ReasonPathNotAllowed {
			t.Errorf("path %q reason = %q, want %q", path, got, ReasonPathNotAllowed)
		}
	}
}

func TestConfigWriteSymlinkEscape(t *testing.T) {
	executor, _, root := newTestExecutor(t)

	outsideDir := t.TempDir()
	link := filepath.Join(root, "link")
	if err := os.Symlink(outsideDir, link); err != nil {
		t.Fatal(err)
	}

	_, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "config_write",
		Params: map[string]string{"path": filepath.Join(link, "victim.conf"), "content": "x"},
	})
	if got := reasonOf(t, err); got != ReasonPathNotAllowed {
		t.Errorf("symlink escape reason = %q, want %q", got, ReasonPathNotAllowed)
	}
}

func TestConfigWriteMissingContent(t *testing.T) {
	executor, _, root := newTestExecutor(t)
	_, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "config_write",
		Params: map[string]string{"path": filepath.Join(root, "a.conf")},
	})
	if got := reasonOf(t, err); got != ReasonInvalidParams {
		t.Errorf("reason = %q, want %q", got, ReasonInvalidParams)
	}
}

func TestConfigDelete(t *testing.T) {
	executor, _, root := newTestExecutor(t)
	path := filepath.Join(root, "stale.conf")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "config_delete",
		Params: map[string]string{"path": path},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still exists after config_delete")
	}

	_, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "config_delete",
		Params: map[string]string{"path": path},
	})
	if got := reasonOf(t, err); got != ReasonFileNotFound {
		t.Errorf("reason = %q, want %q", got, ReasonFileNotFound)
	}
}

func TestConfigRollback(t *testing.T) {
	executor, _, root := newTestExecutor(t)
	path := filepath.Join(root, "svc.conf")

	if _, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "config_write",
		Params: map[string]string{"path": path, "content": "good = true\n"},
	}); err != nil {
		t.Fatal(err)
	}
	result, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "config_write",
		Params: map[string]string{"path": path, "content": "bad = true\n"},
	})
	if err != nil {
		t.Fatal(err)
	}
	backupPath := result.(WriteResult).BackupPath

	rollback, err := executor.Execute(context.Background(), action.Descriptor{
		Type:   "config_rollback",
		Params: map[string]string{"path": path, "backup_path": backupPath},
	})
	if err != nil {
		t.Fatal(err)
	}
	if rollback.(RollbackResult).BytesRestored != 12 {
		t.Errorf("rollback = %+v", rollback)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "good = true\n" {
		t.Errorf("contents after rollback = %q", data)
	}
}

func TestConfigRollbackMissingBackup(t *testing.T) {
	executor, _, root := newTestExecutor(t)
	_, err := executor.Execute(context.Background(), action.Descriptor{
		Type: "config_rollback",
		Params: map[string]string{
			"path":        filepath.Join(root, "svc.conf"),
			"backup_path": filepath.Join(root, "svc.conf.bak.123"),
		},
	})
	if got := reasonOf(t, err); got != ReasonFileNotFound {
		t.Errorf("reason = %q, want %q", got, ReasonFileNotFound)
	}
}

func TestContainPathComponentBoundary(t *testing.T) {
	// /data-evil must not match the /data root.
	if hasPrefixIn("/data-evil/x", []string{"/data"}) {
		t.Error("hasPrefixIn matched across a component boundary")
	}
	if !hasPrefixIn("/data/x", []string{"/data"}) {
		t.Error("hasPrefixIn missed a contained path")
	}
	if !hasPrefixIn("/data", []string{"/data"}) {
		t.Error("hasPrefixIn missed the root itself")
	}
}
