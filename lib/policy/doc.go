// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy decides whether a resolved peer may run an action.
//
// Evaluation is a fixed pipeline of gates — owner allowlist, unit
// allowlist, then grant — and the first failing gate wins. Every gate
// fails closed: enforcement flags default to on, an identity with no
// resolvable units matches no unit, and a protected action with no
// grant token is denied before any token lookup happens.
//
// The engine never executes anything and never mutates its inputs;
// its single side effect is consuming the presented grant token, which
// happens exactly when the decision is Allow.
package policy
