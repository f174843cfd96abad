// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/kapy9250/cli-gateway/lib/codec"
)

// Descriptor names a privileged operation and its parameters. The
// parameter map is free-form string→string; each executor handler
// validates the keys it understands and rejects the rest of the
// request on malformed values, not here.
type Descriptor struct {
	// Type is the operation name (e.g., "journal", "config_write").
	Type string `cbor:"type" json:"type"`

	// Params are the operation parameters. May be nil for
	// parameterless operations.
	Params map[string]string `cbor:"params,omitempty" json:"params,omitempty"`
}

// Fingerprint is a 32-byte keyed BLAKE3 digest of a descriptor's
// deterministic encoding. Opaque everywhere except here: other
// packages compare fingerprints and render them as hex, nothing else.
type Fingerprint [32]byte

// fingerprintKey is the BLAKE3 domain-separation key for descriptor
// fingerprints. A fixed constant — changing it invalidates every
// outstanding challenge and grant. The byte values are the ASCII
// encoding of the domain name, zero-padded to 32 bytes, so the key is
// inspectable in hex dumps without sacrificing any cryptographic
// property (keyed BLAKE3 treats the key as an opaque 32-byte value).
var fingerprintKey = [32]byte{
	'c', 'l', 'i', '-', 'g', 'a', 't', 'e', 'w', 'a', 'y', '.',
	'a', 'c', 't', 'i', 'o', 'n', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't', 0, 0,
}

// Fingerprint computes the descriptor's fingerprint. The preimage is
// the Core Deterministic CBOR encoding of the descriptor, which sorts
// map keys — parameter insertion order cannot influence the result.
func (d Descriptor) Fingerprint() (Fingerprint, error) {
	var fingerprint Fingerprint

	if d.Type == "" {
		return fingerprint, fmt.Errorf("action: descriptor has empty type")
	}

	preimage, err := codec.Marshal(d)
	if err != nil {
		return fingerprint, fmt.Errorf("action: encoding descriptor: %w", err)
	}

	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		// NewKeyed fails only on a wrong key length, which the
		// fixed-size array rules out.
		panic("action: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(preimage)
	copy(fingerprint[:], hasher.Sum(nil))
	return fingerprint, nil
}

// String returns the 64-character hex rendering of the fingerprint.
// This is the canonical format in audit events, logs, and CLI output.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// IsZero reports whether the fingerprint is the all-zero value (no
// fingerprint computed).
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// ParseFingerprint parses the hex rendering produced by String.
func ParseFingerprint(hexString string) (Fingerprint, error) {
	var fingerprint Fingerprint
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return fingerprint, fmt.Errorf("action: parsing fingerprint: %w", err)
	}
	if len(decoded) != len(fingerprint) {
		return fingerprint, fmt.Errorf("action: fingerprint is %d bytes, want %d", len(decoded), len(fingerprint))
	}
	copy(fingerprint[:], decoded)
	return fingerprint, nil
}
