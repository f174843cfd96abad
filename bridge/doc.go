// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the privileged daemon's request surface: a Unix
// socket speaking a one-request-per-connection CBOR protocol.
//
// Every connection runs the same pipeline: resolve the peer's kernel
// identity, pass the owner and unit gates, then dispatch to the
// operation handler — with the execute operation additionally passing
// the grant gate inside policy evaluation. Identity comes from
// SO_PEERCRED, never from the request body, so nothing a client
// writes can change who the bridge thinks it is talking to.
//
// Errors cross the wire as stable snake_case reason codes. Every
// failure mode is answered and survivable; the daemon never dies on a
// request.
package bridge
