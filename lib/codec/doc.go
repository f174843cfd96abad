// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the bridge's standard CBOR encoding
// configuration.
//
// Every wire exchange on the system socket is a single CBOR value, and
// action fingerprints are hashes over the deterministic encoding of an
// action descriptor. Both uses share the modes defined here so every
// package encodes identically without duplicating configuration. The
// encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. Same
// logical data always produces identical bytes — which is what makes a
// descriptor fingerprint independent of parameter order.
//
// For buffer-oriented operations (fingerprint preimages, state files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (the socket):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Wire types use `cbor` struct tags: the socket protocol is
// CBOR-only, and the tag documents that the type never participates in
// JSON serialization. CLI-facing output types use `json` tags instead.
package codec
