// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package totp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kapy9250/cli-gateway/lib/clock"
	"github.com/kapy9250/cli-gateway/lib/secret"
)

// Errors returned by the enrollment store.
var (
	ErrNotEnrolled        = errors.New("totp: owner has no enrolled secret")
	ErrCodeInvalid        = errors.New("totp: code invalid")
	ErrEnrollmentNotFound = errors.New("totp: no pending enrollment")
	ErrEnrollmentExpired  = errors.New("totp: pending enrollment expired")
)

// stateVersion is the on-disk schema version of the state file.
const stateVersion = 1

// Store holds the enrolled TOTP secrets, one per owner id. It is the
// only writer of its state: enrolled secrets live in mlocked buffers,
// pending enrollments are in-memory only (a daemon restart cancels
// them), and every mutation of the committed set is persisted with an
// atomic temp-file-and-rename under mode 0600.
type Store struct {
	clock     clock.Clock
	statePath string
	issuer    string
	ttl       time.Duration
	skew      int

	mu      sync.Mutex
	secrets map[string]*secret.Buffer
	pending map[string]*pendingEnrollment
}

type pendingEnrollment struct {
	secret    *secret.Buffer
	account   string
	expiresAt time.Time
}

// Enrollment is the caller-facing view of a begun enrollment. The
// secret appears here exactly once, for transfer into the operator's
// authenticator app; it is never returned by any later operation.
type Enrollment struct {
	Secret    string    `cbor:"secret" json:"secret"`
	URI       string    `cbor:"uri" json:"uri"`
	Account   string    `cbor:"account" json:"account"`
	ExpiresAt time.Time `cbor:"expires_at" json:"expires_at"`
	Reused    bool      `cbor:"reused,omitempty" json:"reused,omitempty"`
}

// Status describes an owner's enrollment state without exposing any
// secret material.
type Status struct {
	Configured       bool      `cbor:"configured" json:"configured"`
	Pending          bool      `cbor:"pending" json:"pending"`
	PendingExpiresAt time.Time `cbor:"pending_expires_at,omitzero" json:"pending_expires_at,omitempty"`
}

// stateFile is the JSON schema of the persisted state. Secrets are
// stored base32-encoded; the file itself is the 0600 artifact of
// record, so the encoding is for portability, not protection.
type stateFile struct {
	Version   int               `json:"version"`
	UpdatedAt string            `json:"updated_at"`
	Secrets   map[string]string `json:"secrets"`
}

// NewStore loads the state file (a missing file is an empty store; an
// unreadable or malformed file is a startup error, never a
// request-time surprise) and returns the store. The enrollment TTL
// bounds how long a begun-but-unconfirmed enrollment stays valid.
func NewStore(clk clock.Clock, statePath, issuer string, enrollmentTTL time.Duration) (*Store, error) {
	store := &Store{
		clock:     clk,
		statePath: statePath,
		issuer:    issuer,
		ttl:       enrollmentTTL,
		skew:      DefaultSkew,
		secrets:   make(map[string]*secret.Buffer),
		pending:   make(map[string]*pendingEnrollment),
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("totp: reading state file %s: %w", statePath, err)
	}

	var state stateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("totp: parsing state file %s: %w", statePath, err)
	}
	if state.Version != stateVersion {
		return nil, fmt.Errorf("totp: state file %s has version %d, want %d", statePath, state.Version, stateVersion)
	}

	for owner, encoded := range state.Secrets {
		decoded, err := DecodeSecret(encoded)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("totp: state file %s, owner %s: %w", statePath, owner, err)
		}
		buffer, err := secret.NewFromBytes(decoded)
		if err != nil {
			store.Close()
			return nil, err
		}
		store.secrets[owner] = buffer
	}

	return store, nil
}

// Close releases every secret buffer. The store is unusable after.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, buffer := range s.secrets {
		buffer.Close()
	}
	for _, enrollment := range s.pending {
		enrollment.secret.Close()
	}
	s.secrets = make(map[string]*secret.Buffer)
	s.pending = make(map[string]*pendingEnrollment)
}

// BeginEnrollment starts (or resumes) an enrollment for the owner.
// An unexpired pending enrollment is returned again unless force is
// set, so a lost terminal does not burn a fresh secret; force always
// replaces the pending secret. An already-committed secret is
// untouched until ConfirmEnrollment commits the new one.
func (s *Store) BeginEnrollment(owner, account string, force bool) (Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.dropExpiredPendingLocked(now)

	if existing, ok := s.pending[owner]; ok && !force {
		return Enrollment{
			Secret:    EncodeSecret(existing.secret.Bytes()),
			URI:       URI(existing.secret.Bytes(), existing.account, s.issuer),
			Account:   existing.account,
			ExpiresAt: existing.expiresAt,
			Reused:    true,
		}, nil
	}

	if account == "" {
		account = owner
	}

	raw, err := GenerateSecret()
	if err != nil {
		return Enrollment{}, err
	}
	uri := URI(raw, account, s.issuer)
	encoded := EncodeSecret(raw)

	buffer, err := secret.NewFromBytes(raw)
	if err != nil {
		return Enrollment{}, err
	}

	if previous, ok := s.pending[owner]; ok {
		previous.secret.Close()
	}
	expiresAt := now.Add(s.ttl)
	s.pending[owner] = &pendingEnrollment{
		secret:    buffer,
		account:   account,
		expiresAt: expiresAt,
	}

	return Enrollment{
		Secret:    encoded,
		URI:       uri,
		Account:   account,
		ExpiresAt: expiresAt,
	}, nil
}

// ConfirmEnrollment verifies the code against the pending secret and,
// on success, commits it as the owner's enrolled secret and persists
// the state. A failed code leaves the pending enrollment in place.
func (s *Store) ConfirmEnrollment(owner, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	enrollment, ok := s.pending[owner]
	if !ok {
		return ErrEnrollmentNotFound
	}
	if !now.Before(enrollment.expiresAt) {
		enrollment.secret.Close()
		delete(s.pending, owner)
		return ErrEnrollmentExpired
	}

	if ok, _ := Verify(enrollment.secret.Bytes(), code, now, s.skew); !ok {
		return ErrCodeInvalid
	}

	if previous, exists := s.secrets[owner]; exists {
		previous.Close()
	}
	s.secrets[owner] = enrollment.secret
	delete(s.pending, owner)

	return s.persistLocked(now)
}

// CancelEnrollment drops any pending enrollment for the owner.
// Returns false when there was nothing to cancel.
func (s *Store) CancelEnrollment(owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	enrollment, ok := s.pending[owner]
	if !ok {
		return false
	}
	enrollment.secret.Close()
	delete(s.pending, owner)
	return true
}

// EnrollmentStatus reports the owner's enrollment state.
func (s *Store) EnrollmentStatus(owner string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropExpiredPendingLocked(s.clock.Now())

	status := Status{}
	if _, ok := s.secrets[owner]; ok {
		status.Configured = true
	}
	if enrollment, ok := s.pending[owner]; ok {
		status.Pending = true
		status.PendingExpiresAt = enrollment.expiresAt
	}
	return status
}

// VerifyCode checks a code against the owner's enrolled secret at the
// given time. This is the verifier the challenge manager calls during
// approval. Returns ErrNotEnrolled when the owner has never completed
// an enrollment, ErrCodeInvalid on a wrong code.
func (s *Store) VerifyCode(owner, code string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buffer, ok := s.secrets[owner]
	if !ok {
		return ErrNotEnrolled
	}
	if ok, _ := Verify(buffer.Bytes(), code, at, s.skew); !ok {
		return ErrCodeInvalid
	}
	return nil
}

// dropExpiredPendingLocked removes pending enrollments whose TTL has
// elapsed. Called with s.mu held from every accessor — expiry is a
// check-time decision, there is no sweeper.
func (s *Store) dropExpiredPendingLocked(now time.Time) {
	for owner, enrollment := range s.pending {
		if !now.Before(enrollment.expiresAt) {
			enrollment.secret.Close()
			delete(s.pending, owner)
		}
	}
}

// persistLocked writes the committed secrets to the state file via
// temp file and rename, mode 0600. Called with s.mu held.
func (s *Store) persistLocked(now time.Time) error {
	state := stateFile{
		Version:   stateVersion,
		UpdatedAt: now.UTC().Format(time.RFC3339),
		Secrets:   make(map[string]string, len(s.secrets)),
	}
	for owner, buffer := range s.secrets {
		state.Secrets[owner] = EncodeSecret(buffer.Bytes())
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("totp: encoding state: %w", err)
	}

	directory := filepath.Dir(s.statePath)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("totp: creating state directory %s: %w", directory, err)
	}

	temp, err := os.CreateTemp(directory, ".totp-state-*")
	if err != nil {
		return fmt.Errorf("totp: creating temp state file: %w", err)
	}
	tempPath := temp.Name()

	if err := temp.Chmod(0o600); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("totp: setting state file mode: %w", err)
	}
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("totp: writing state file: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("totp: closing state file: %w", err)
	}
	if err := os.Rename(tempPath, s.statePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("totp: replacing state file: %w", err)
	}

	secret.Zero(data)
	return nil
}
