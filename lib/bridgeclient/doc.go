// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridgeclient is the client side of the bridge protocol.
//
// Each call opens its own connection, matching the server's
// one-request-per-connection model: write one CBOR request map,
// half-close, read one response. Server-side failures come back as
// *CallError carrying the wire reason code, so callers branch on
// Reason rather than parsing message text.
package bridgeclient
