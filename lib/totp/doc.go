// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package totp implements RFC 6238 time-based one-time passwords and
// the per-owner enrollment store behind challenge approval.
//
// The code-level functions (Code, Verify) are pure over (secret,
// code, time) so the algorithm is testable against the RFC vectors
// independent of any state. The Store owns the enrolled secrets: it
// keeps them in mlocked memory, persists them to a 0600 state file
// with atomic replace, and runs the begin/confirm enrollment flow
// whose pending secrets expire on a TTL.
package totp
