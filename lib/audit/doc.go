// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records what the bridge decided and did.
//
// Redaction happens at event construction, not at write time: request
// parameter values and action output enter an Event only as sizes and
// SHA-256 digests, so no sink — and no bug in a sink — can leak
// content that was never stored. Parameter keys are kept because they
// name the shape of the request, not its payload.
//
// Events flow through a Recorder into sinks. The Recorder never
// returns an error to the request path: a sink failure is logged and
// counted, and the drop counter is surfaced through the status
// operation so operators notice a dying audit trail without it ever
// taking the gateway down with it.
package audit
