// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package action defines action descriptors and their fingerprints.
//
// A Descriptor names a privileged operation (journal read, config
// write, docker inspection) together with its string parameters. The
// Fingerprint of a descriptor is a keyed BLAKE3 hash over the
// descriptor's deterministic CBOR encoding, so two descriptors with
// the same type and parameters always fingerprint identically — no
// matter what order the parameters were supplied in — and any change
// to the type, a parameter key, or a parameter value produces a
// different fingerprint.
//
// Challenges and grant tokens are bound to fingerprints, never to raw
// descriptors: an operator approves one specific operation, and the
// token minted from that approval authorizes exactly that operation.
package action
