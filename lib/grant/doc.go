// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package grant implements single-use execution grants and the
// approval challenges that mint them.
//
// A grant binds (owner, action fingerprint) to an opaque random token
// with a short TTL. Consuming a grant is an atomic check-and-delete:
// exactly one consumer wins, and a token presented again inside its
// original lifetime is reported as a replay rather than as unknown.
//
// A challenge is the human step in front of a grant: created for a
// specific action, shown to the operator as a summary, and approved
// with a TOTP code. Approval mints the grant. Both managers are
// purely in-memory — state does not survive a restart, which is the
// intended failure mode for an authorization cache — and both check
// expiry at access time against an injected clock.
package grant
