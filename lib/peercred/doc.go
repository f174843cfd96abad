// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package peercred resolves the identity of the process on the other
// end of a Unix socket connection.
//
// The credentials come from the kernel via SO_PEERCRED — they cannot
// be forged by the peer, unlike anything the peer writes into the
// request itself. On top of the raw uid/gid/pid, the resolver
// recovers the peer's systemd units from /proc/<pid>/cgroup so policy
// can allowlist by service identity, not just by owner.
//
// Unit resolution is best-effort and fail-closed: malformed cgroup
// lines are skipped, an unreadable cgroup file yields an identity
// with no units, and an identity with no units never matches any
// configured unit. Only the credential syscall itself failing is a
// resolution error.
package peercred
