// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// RFC 6238 parameters. These match every mainstream authenticator
// app's defaults; changing them breaks enrolled secrets.
const (
	// Digits is the code length.
	Digits = 6

	// Period is the time-step size.
	Period = 30 * time.Second

	// DefaultSkew is the number of adjacent time steps accepted on
	// either side of the current one, absorbing clock drift between
	// the bridge and the authenticator device.
	DefaultSkew = 1

	// SecretSize is the byte length of generated shared secrets.
	SecretSize = 20
)

// b32 is the authenticator-app alphabet: RFC 4648 base32, unpadded.
var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Code returns the TOTP code for the secret at the given time:
// HMAC-SHA1 over the big-endian time-step counter, dynamic
// truncation, zero-padded to Digits.
func Code(secret []byte, at time.Time) string {
	return codeForCounter(secret, uint64(at.Unix())/uint64(Period/time.Second))
}

func codeForCounter(secret []byte, counter uint64) string {
	var message [8]byte
	binary.BigEndian.PutUint64(message[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(message[:])
	digest := mac.Sum(nil)

	offset := digest[len(digest)-1] & 0x0f
	value := binary.BigEndian.Uint32(digest[offset:offset+4]) & 0x7fffffff

	modulus := uint32(1)
	for i := 0; i < Digits; i++ {
		modulus *= 10
	}
	return fmt.Sprintf("%0*d", Digits, value%modulus)
}

// Verify reports whether code matches the secret at any time step in
// the window at ± skew steps. On a match it also returns the step
// offset that matched (negative = the caller's clock runs ahead of
// the device, positive = behind). Codes with the wrong length or
// non-digit characters are rejected before any HMAC is computed.
//
// Each candidate comparison is constant-time; the early exit on a
// match leaks only which window step matched, which the return value
// reveals anyway.
func Verify(secret []byte, code string, at time.Time, skew int) (bool, int) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != Digits {
		return false, 0
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return false, 0
		}
	}
	if skew < 0 {
		skew = 0
	}

	base := at.Unix() / int64(Period/time.Second)
	for offset := -skew; offset <= skew; offset++ {
		counter := base + int64(offset)
		if counter < 0 {
			continue
		}
		expected := codeForCounter(secret, uint64(counter))
		if hmac.Equal([]byte(trimmed), []byte(expected)) {
			return true, offset
		}
	}
	return false, 0
}

// GenerateSecret returns a fresh random shared secret.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, SecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("totp: generating secret: %w", err)
	}
	return secret, nil
}

// EncodeSecret renders a secret in the form authenticator apps accept:
// unpadded uppercase base32.
func EncodeSecret(secret []byte) string {
	return b32.EncodeToString(secret)
}

// DecodeSecret parses a base32 secret as typed or stored by humans and
// tools: case-insensitive, internal whitespace ignored, padding
// optional.
func DecodeSecret(encoded string) ([]byte, error) {
	compact := strings.Join(strings.Fields(encoded), "")
	compact = strings.ToUpper(strings.TrimRight(compact, "="))
	if compact == "" {
		return nil, fmt.Errorf("totp: empty secret")
	}
	secret, err := b32.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("totp: decoding secret: %w", err)
	}
	return secret, nil
}

// URI builds the otpauth:// provisioning URI encoded into enrollment
// QR codes. The label is "issuer:account"; the query carries the
// secret and the explicit algorithm parameters so apps that do not
// assume defaults still derive the same codes.
func URI(secret []byte, account, issuer string) string {
	label := url.PathEscape(issuer + ":" + account)
	query := url.Values{}
	query.Set("secret", EncodeSecret(secret))
	query.Set("issuer", issuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", fmt.Sprintf("%d", Digits))
	query.Set("period", fmt.Sprintf("%d", int(Period/time.Second)))
	return "otpauth://totp/" + label + "?" + query.Encode()
}
