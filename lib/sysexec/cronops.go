// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package sysexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/kapy9250/cli-gateway/lib/cron"
)

// CronListResult is the payload of a cron_list action.
type CronListResult struct {
	Dir     string   `cbor:"dir" json:"dir"`
	Entries []string `cbor:"entries" json:"entries"`
}

// CronUpsertResult is the payload of a cron_upsert action.
type CronUpsertResult struct {
	Name       string `cbor:"name" json:"name"`
	Path       string `cbor:"path" json:"path"`
	BackupPath string `cbor:"backup_path,omitempty" json:"backup_path,omitempty"`
}

// CronDeleteResult is the payload of a cron_delete action.
type CronDeleteResult struct {
	Name string `cbor:"name" json:"name"`
	Path string `cbor:"path" json:"path"`
}

var (
	// cronNamePattern is the restricted namespace for managed
	// cron.d entries. "." and ".." are additionally rejected.
	cronNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

	// cronUserPattern matches useradd's NAME_REGEX.
	cronUserPattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]*\$?$`)
)

// cronHeader precedes every managed entry so the file is runnable
// regardless of the cron daemon's environment defaults.
const cronHeader = "SHELL=/bin/sh\nPATH=/usr/sbin:/usr/bin:/sbin:/bin\n"

func (e *Executor) cronList(_ context.Context, _ map[string]string) (any, error) {
	const op = "cron_list"

	entries, err := os.ReadDir(e.cfg.CronDir)
	if err != nil {
		if os.IsNotExist(err) {
			return CronListResult{Dir: e.cfg.CronDir, Entries: []string{}}, nil
		}
		return nil, actionErr(op, ReasonIOFailed, "reading %s: %v", e.cfg.CronDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return CronListResult{Dir: e.cfg.CronDir, Entries: names}, nil
}

func (e *Executor) cronUpsert(_ context.Context, params map[string]string) (any, error) {
	const op = "cron_upsert"

	name, err := validCronName(params["name"])
	if err != nil {
		return nil, actionErr(op, ReasonInvalidParams, "%v", err)
	}

	schedule := strings.TrimSpace(params["schedule"])
	if err := cron.ValidateSchedule(schedule); err != nil {
		return nil, actionErr(op, ReasonInvalidSchedule, "%v", err)
	}

	command := params["command"]
	if command == "" {
		return nil, actionErr(op, ReasonInvalidParams, "command is required")
	}
	if strings.ContainsAny(command, "\n\x00") {
		return nil, actionErr(op, ReasonInvalidParams, "command contains forbidden characters")
	}

	user := params["user"]
	if user == "" {
		user = "root"
	}
	if !cronUserPattern.MatchString(user) {
		return nil, actionErr(op, ReasonInvalidParams, "invalid user %q", user)
	}

	path := filepath.Join(e.cfg.CronDir, name)
	backupPath, err := e.backupIfExists(path)
	if err != nil {
		return nil, actionErr(op, ReasonIOFailed, "backing up %s: %v", path, err)
	}

	contents := fmt.Sprintf("%s%s %s %s\n", cronHeader, schedule, user, command)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return nil, actionErr(op, ReasonIOFailed, "writing %s: %v", path, err)
	}

	return CronUpsertResult{Name: name, Path: path, BackupPath: backupPath}, nil
}

func (e *Executor) cronDelete(_ context.Context, params map[string]string) (any, error) {
	const op = "cron_delete"

	name, err := validCronName(params["name"])
	if err != nil {
		return nil, actionErr(op, ReasonInvalidParams, "%v", err)
	}

	path := filepath.Join(e.cfg.CronDir, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil, actionErr(op, ReasonFileNotFound, "%s does not exist", path)
		}
		return nil, actionErr(op, ReasonIOFailed, "removing %s: %v", path, err)
	}
	return CronDeleteResult{Name: name, Path: path}, nil
}

// validCronName enforces the managed-entry namespace. The character
// class alone would admit "." and ".."; both are rejected explicitly.
func validCronName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("name is required")
	}
	if name == "." || name == ".." {
		return "", fmt.Errorf("invalid name %q", name)
	}
	if !cronNamePattern.MatchString(name) {
		return "", fmt.Errorf("name %q contains characters outside [A-Za-z0-9._-]", name)
	}
	return name, nil
}

// backupIfExists copies the current contents of path to a timestamped
// sibling before an overwrite. Returns the backup path, or "" when
// there was nothing to back up.
func (e *Executor) backupIfExists(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	backupPath := fmt.Sprintf("%s.bak.%d", path, e.clock.Now().Unix())
	if err := os.WriteFile(backupPath, data, mode); err != nil {
		return "", err
	}
	return backupPath, nil
}
