// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package sysexec executes the typed host actions the bridge exposes:
// journal queries, bounded file reads, cron.d entry management,
// allowlisted docker subcommands, and contained config-file writes.
//
// The executor assumes policy has already decided the request may
// run; its own job is bounding what the action can touch and how much
// it can return. Every handler enforces path containment against the
// configured roots, clamps its output, and reports failure as an
// ActionError carrying a wire-stable reason code. Executor failures
// are answered to the caller, never fatal to the daemon.
package sysexec
