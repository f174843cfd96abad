// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package sysexec

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// containPath canonicalizes a request path and, when roots is
// non-empty, requires the result to live under one of them.
//
// Canonicalization resolves symlinks on the deepest existing ancestor
// and re-joins the non-existing remainder. Checking the resolved path
// rather than the literal one means a symlink inside an allowed root
// pointing outside it is caught, and a path under a not-yet-created
// directory still canonicalizes sensibly.
func containPath(path string, roots []string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.ContainsAny(path, "\n\x00") {
		return "", fmt.Errorf("path contains forbidden characters")
	}
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("path %q is not absolute", path)
	}

	resolved, err := resolveExisting(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	if len(roots) > 0 && !hasPrefixIn(resolved, roots) {
		return "", fmt.Errorf("path %q resolves outside the allowed roots", path)
	}
	return resolved, nil
}

// resolveExisting resolves symlinks on the deepest existing ancestor
// of path and re-joins the remainder.
func resolveExisting(path string) (string, error) {
	remainder := ""
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			// Walked up to "/" without finding anything; should not
			// happen for an absolute path on a real filesystem.
			return "", fmt.Errorf("no existing ancestor for %q", path)
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}

// hasPrefixIn reports whether path equals or lives under any of the
// given prefixes. Comparison is by path component, not raw bytes, so
// /etc-evil does not match the /etc prefix.
func hasPrefixIn(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		prefix = filepath.Clean(prefix)
		if path == prefix || strings.HasPrefix(path, prefix+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
