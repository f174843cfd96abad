// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package sysexec

import (
	"context"
	"os"
	"path/filepath"
)

// WriteResult is the payload of config_write and config_append.
type WriteResult struct {
	Path         string `cbor:"path" json:"path"`
	BytesWritten int    `cbor:"bytes_written" json:"bytes_written"`
	BackupPath   string `cbor:"backup_path,omitempty" json:"backup_path,omitempty"`
}

// DeleteResult is the payload of config_delete.
type DeleteResult struct {
	Path string `cbor:"path" json:"path"`
}

// RollbackResult is the payload of config_rollback.
type RollbackResult struct {
	Path          string `cbor:"path" json:"path"`
	BackupPath    string `cbor:"backup_path" json:"backup_path"`
	BytesRestored int    `cbor:"bytes_restored" json:"bytes_restored"`
}

func (e *Executor) configWrite(_ context.Context, params map[string]string) (any, error) {
	return e.writeContained("config_write", params, false)
}

func (e *Executor) configAppend(_ context.Context, params map[string]string) (any, error) {
	return e.writeContained("config_append", params, true)
}

func (e *Executor) writeContained(op string, params map[string]string, appendMode bool) (any, error) {
	resolved, err := containPath(params["path"], e.cfg.WriteRoots)
	if err != nil {
		return nil, actionErr(op, ReasonPathNotAllowed, "%v", err)
	}

	content, ok := params["content"]
	if !ok {
		return nil, actionErr(op, ReasonInvalidParams, "content is required")
	}

	backupPath, err := e.backupIfExists(resolved)
	if err != nil {
		return nil, actionErr(op, ReasonIOFailed, "backing up %s: %v", resolved, err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, actionErr(op, ReasonIOFailed, "creating parent of %s: %v", resolved, err)
	}

	if appendMode {
		file, err := os.OpenFile(resolved, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, actionErr(op, ReasonIOFailed, "opening %s: %v", resolved, err)
		}
		n, err := file.WriteString(content)
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return nil, actionErr(op, ReasonIOFailed, "appending to %s: %v", resolved, err)
		}
		return WriteResult{Path: resolved, BytesWritten: n, BackupPath: backupPath}, nil
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return nil, actionErr(op, ReasonIOFailed, "writing %s: %v", resolved, err)
	}
	return WriteResult{Path: resolved, BytesWritten: len(content), BackupPath: backupPath}, nil
}

func (e *Executor) configDelete(_ context.Context, params map[string]string) (any, error) {
	const op = "config_delete"

	resolved, err := containPath(params["path"], e.cfg.WriteRoots)
	if err != nil {
		return nil, actionErr(op, ReasonPathNotAllowed, "%v", err)
	}

	if err := os.Remove(resolved); err != nil {
		if os.IsNotExist(err) {
			return nil, actionErr(op, ReasonFileNotFound, "%s does not exist", resolved)
		}
		return nil, actionErr(op, ReasonIOFailed, "removing %s: %v", resolved, err)
	}
	return DeleteResult{Path: resolved}, nil
}

func (e *Executor) configRollback(_ context.Context, params map[string]string) (any, error) {
	const op = "config_rollback"

	resolved, err := containPath(params["path"], e.cfg.WriteRoots)
	if err != nil {
		return nil, actionErr(op, ReasonPathNotAllowed, "path: %v", err)
	}
	backup, err := containPath(params["backup_path"], e.cfg.WriteRoots)
	if err != nil {
		return nil, actionErr(op, ReasonPathNotAllowed, "backup_path: %v", err)
	}

	data, err := os.ReadFile(backup)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, actionErr(op, ReasonFileNotFound, "%s does not exist", backup)
		}
		return nil, actionErr(op, ReasonIOFailed, "reading %s: %v", backup, err)
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(resolved); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(resolved, data, mode); err != nil {
		return nil, actionErr(op, ReasonIOFailed, "restoring %s: %v", resolved, err)
	}

	return RollbackResult{Path: resolved, BackupPath: backup, BytesRestored: len(data)}, nil
}
