// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kapy9250/cli-gateway/lib/action"
	"github.com/kapy9250/cli-gateway/lib/clock"
)

// Errors returned by Approve and Status.
var (
	ErrChallengeNotFound    = errors.New("grant: challenge not found")
	ErrChallengeExpired     = errors.New("grant: challenge expired")
	ErrChallengeAlreadyUsed = errors.New("grant: challenge already approved")
	ErrAttemptsExhausted    = errors.New("grant: approval attempts exhausted")
)

// State is the lifecycle state of a challenge.
type State int

const (
	StatePending State = iota
	StateApproved
	StateExpired
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateApproved:
		return "approved"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CodeVerifier checks an approval code for an owner at a point in
// time. Implemented by the TOTP enrollment store.
type CodeVerifier interface {
	VerifyCode(owner, code string, at time.Time) error
}

// Minter issues a grant once a challenge is approved. Implemented by
// Manager.
type Minter interface {
	Mint(ownerID string, fingerprint action.Fingerprint) (string, time.Time, error)
}

// Challenge is a point-in-time snapshot of a challenge, safe to hand
// across the wire. Expiry is baked into the State at snapshot time.
type Challenge struct {
	ID          string
	OwnerID     string
	Fingerprint action.Fingerprint
	Summary     string
	State       State
	Attempts    int
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Approval is the result of a successful Approve: the minted grant
// token plus the approved challenge snapshot.
type Approval struct {
	Token     string
	ExpiresAt time.Time
	Challenge Challenge
}

type challengeRecord struct {
	ownerID     string
	fingerprint action.Fingerprint
	summary     string
	approved    bool
	attempts    int
	createdAt   time.Time
	expiresAt   time.Time
}

// ChallengeManager owns pending approval challenges. A challenge is
// bound to the owner who created it: every other owner's id looks up
// nothing, so challenge ids leak no information across owners.
type ChallengeManager struct {
	clock       clock.Clock
	verifier    CodeVerifier
	minter      Minter
	ttl         time.Duration
	maxAttempts int

	mu         sync.Mutex
	challenges map[string]*challengeRecord
}

// NewChallengeManager returns a manager whose challenges live for ttl
// and allow maxAttempts approval codes before locking out.
func NewChallengeManager(clk clock.Clock, verifier CodeVerifier, minter Minter, ttl time.Duration, maxAttempts int) *ChallengeManager {
	return &ChallengeManager{
		clock:       clk,
		verifier:    verifier,
		minter:      minter,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		challenges:  make(map[string]*challengeRecord),
	}
}

// Create opens a challenge for the owner and action fingerprint. The
// summary is the human-readable description shown at approval time;
// it is display material only and never feeds back into any decision.
func (m *ChallengeManager) Create(ownerID string, fingerprint action.Fingerprint, summary string) (Challenge, error) {
	raw := make([]byte, 8)
	if _, err := rand.Read(raw); err != nil {
		return Challenge{}, fmt.Errorf("grant: generating challenge id: %w", err)
	}
	id := hex.EncodeToString(raw)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	m.pruneChallengesLocked(now)

	rec := &challengeRecord{
		ownerID:     ownerID,
		fingerprint: fingerprint,
		summary:     summary,
		createdAt:   now,
		expiresAt:   now.Add(m.ttl),
	}
	m.challenges[id] = rec
	return snapshot(id, rec, now), nil
}

// Approve verifies the code and, on success, mints a grant for the
// challenge's owner and fingerprint. The owner must match the
// creator; any other owner gets ErrChallengeNotFound. Wrong codes
// burn an attempt, and once maxAttempts are burned the challenge is
// dead even if the right code arrives later.
func (m *ChallengeManager) Approve(id, ownerID, code string) (Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	rec, ok := m.challenges[id]
	if !ok || rec.ownerID != ownerID {
		return Approval{}, ErrChallengeNotFound
	}
	if !now.Before(rec.expiresAt) {
		delete(m.challenges, id)
		return Approval{}, ErrChallengeExpired
	}
	if rec.approved {
		return Approval{}, ErrChallengeAlreadyUsed
	}
	if rec.attempts >= m.maxAttempts {
		return Approval{}, ErrAttemptsExhausted
	}

	if err := m.verifier.VerifyCode(ownerID, code, now); err != nil {
		rec.attempts++
		return Approval{}, err
	}

	token, expiresAt, err := m.minter.Mint(rec.ownerID, rec.fingerprint)
	if err != nil {
		return Approval{}, err
	}
	rec.approved = true
	return Approval{
		Token:     token,
		ExpiresAt: expiresAt,
		Challenge: snapshot(id, rec, now),
	}, nil
}

// Status returns a read-only snapshot of the challenge. Like Approve,
// it only answers to the challenge's owner.
func (m *ChallengeManager) Status(id, ownerID string) (Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.challenges[id]
	if !ok || rec.ownerID != ownerID {
		return Challenge{}, ErrChallengeNotFound
	}
	return snapshot(id, rec, m.clock.Now()), nil
}

// Pending reports the number of live, unapproved challenges.
func (m *ChallengeManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	count := 0
	for _, rec := range m.challenges {
		if !rec.approved && now.Before(rec.expiresAt) {
			count++
		}
	}
	return count
}

// pruneChallengesLocked drops challenges past their expiry. Called
// from Create only, so Approve and Status can still name expiry as
// the reason a recently-expired challenge fails.
func (m *ChallengeManager) pruneChallengesLocked(now time.Time) {
	for id, rec := range m.challenges {
		if !now.Before(rec.expiresAt) {
			delete(m.challenges, id)
		}
	}
}

func snapshot(id string, rec *challengeRecord, now time.Time) Challenge {
	state := StatePending
	switch {
	case rec.approved:
		state = StateApproved
	case !now.Before(rec.expiresAt):
		state = StateExpired
	}
	return Challenge{
		ID:          id,
		OwnerID:     rec.ownerID,
		Fingerprint: rec.fingerprint,
		Summary:     rec.summary,
		State:       state,
		Attempts:    rec.attempts,
		CreatedAt:   rec.createdAt,
		ExpiresAt:   rec.expiresAt,
	}
}
