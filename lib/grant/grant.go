// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kapy9250/cli-gateway/lib/action"
	"github.com/kapy9250/cli-gateway/lib/clock"
)

// Errors returned by Consume. The four cases are deliberately
// distinct on the wire: a replayed token and an unknown token look
// very different in an audit trail.
var (
	ErrTokenNotFound = errors.New("grant: token not found")
	ErrTokenExpired  = errors.New("grant: token expired")
	ErrTokenReplayed = errors.New("grant: token already consumed")
	ErrTokenMismatch = errors.New("grant: token does not match request")
)

// tokenBytes is the entropy of a minted token. 32 bytes of
// crypto/rand makes guessing a live token out of the question even at
// unbounded request rates.
const tokenBytes = 32

type record struct {
	ownerID     string
	fingerprint action.Fingerprint
	expiresAt   time.Time
}

// Manager mints and consumes grants. All methods are safe for
// concurrent use; Consume is atomic, so racing requests presenting
// the same token see exactly one success.
type Manager struct {
	clock clock.Clock
	ttl   time.Duration

	mu       sync.Mutex
	records  map[string]record
	consumed map[[sha256.Size]byte]time.Time
}

// NewManager returns a Manager whose grants live for ttl.
func NewManager(clk clock.Clock, ttl time.Duration) *Manager {
	return &Manager{
		clock:    clk,
		ttl:      ttl,
		records:  make(map[string]record),
		consumed: make(map[[sha256.Size]byte]time.Time),
	}
}

// Mint issues a fresh grant for the owner and action fingerprint.
func (m *Manager) Mint(ownerID string, fingerprint action.Fingerprint) (string, time.Time, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("grant: generating token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.pruneRecordsLocked(now)

	expiresAt := now.Add(m.ttl)
	m.records[token] = record{
		ownerID:     ownerID,
		fingerprint: fingerprint,
		expiresAt:   expiresAt,
	}
	return token, expiresAt, nil
}

// Consume redeems a token for the given owner and fingerprint. On
// success the grant is gone; no second caller can redeem it. A token
// that was already consumed and is still inside its original lifetime
// returns ErrTokenReplayed; after the lifetime it is indistinguishable
// from a token that never existed. A live token presented with the
// wrong owner or fingerprint returns ErrTokenMismatch and stays
// redeemable by its rightful request.
func (m *Manager) Consume(token string, fingerprint action.Fingerprint, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.pruneConsumedLocked(now)

	rec, ok := m.records[token]
	if !ok {
		digest := sha256.Sum256([]byte(token))
		if _, replayed := m.consumed[digest]; replayed {
			return ErrTokenReplayed
		}
		return ErrTokenNotFound
	}
	if !now.Before(rec.expiresAt) {
		delete(m.records, token)
		return ErrTokenExpired
	}
	if rec.ownerID != ownerID || rec.fingerprint != fingerprint {
		return ErrTokenMismatch
	}

	delete(m.records, token)
	// Remember the digest, not the token, until the grant would have
	// expired anyway. That is the replay-detection window.
	m.consumed[sha256.Sum256([]byte(token))] = rec.expiresAt
	return nil
}

// Outstanding reports the number of live, unconsumed grants.
func (m *Manager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	count := 0
	for _, rec := range m.records {
		if now.Before(rec.expiresAt) {
			count++
		}
	}
	return count
}

// pruneRecordsLocked drops expired grants. Not called from Consume:
// an expired record that is still around must report ErrTokenExpired
// there, not ErrTokenNotFound.
func (m *Manager) pruneRecordsLocked(now time.Time) {
	for token, rec := range m.records {
		if !now.Before(rec.expiresAt) {
			delete(m.records, token)
		}
	}
}

// pruneConsumedLocked drops consumed-token digests whose replay
// window has closed. Called with m.mu held.
func (m *Manager) pruneConsumedLocked(now time.Time) {
	for digest, expiresAt := range m.consumed {
		if !now.Before(expiresAt) {
			delete(m.consumed, digest)
		}
	}
}
