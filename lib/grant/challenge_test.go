// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package grant

import (
	"errors"
	"testing"
	"time"

	"github.com/kapy9250/cli-gateway/lib/clock"
)

// staticVerifier accepts exactly one code per owner.
type staticVerifier struct {
	codes map[string]string
}

var errBadCode = errors.New("code invalid")

func (v staticVerifier) VerifyCode(owner, code string, _ time.Time) error {
	if v.codes[owner] != code {
		return errBadCode
	}
	return nil
}

func newTestChallengeManager(t *testing.T) (*ChallengeManager, *Manager, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	grants := NewManager(fake, time.Minute)
	verifier := staticVerifier{codes: map[string]string{"1000": "246810"}}
	challenges := NewChallengeManager(fake, verifier, grants, 5*time.Minute, 5)
	return challenges, grants, fake
}

func TestChallengeApproveFlow(t *testing.T) {
	challenges, grants, fake := newTestChallengeManager(t)
	fp := testFingerprint(t, "docker_exec")

	created, err := challenges.Create("1000", fp, "docker restart nginx")
	if err != nil {
		t.Fatal(err)
	}
	if created.State != StatePending || created.ID == "" {
		t.Fatalf("created = %+v, want pending with an id", created)
	}
	if want := fake.Now().Add(5 * time.Minute); !created.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", created.ExpiresAt, want)
	}

	approval, err := challenges.Approve(created.ID, "1000", "246810")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approval.Token == "" {
		t.Fatal("approval carried no grant token")
	}
	if approval.Challenge.State != StateApproved {
		t.Errorf("state after approve = %v, want approved", approval.Challenge.State)
	}

	// The minted grant is bound to the challenge's owner and action.
	if err := grants.Consume(approval.Token, fp, "1000"); err != nil {
		t.Fatalf("consuming minted grant: %v", err)
	}
}

func TestChallengeApproveWrongCodeBurnsAttempt(t *testing.T) {
	challenges, _, _ := newTestChallengeManager(t)
	created, err := challenges.Create("1000", testFingerprint(t, "docker_exec"), "x")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := challenges.Approve(created.ID, "1000", "000000"); !errors.Is(err, errBadCode) {
		t.Fatalf("wrong code = %v, want verifier error", err)
	}

	status, err := challenges.Status(created.ID, "1000")
	if err != nil {
		t.Fatal(err)
	}
	if status.Attempts != 1 || status.State != StatePending {
		t.Errorf("status = %+v, want 1 attempt, still pending", status)
	}

	// The right code still works after a miss.
	if _, err := challenges.Approve(created.ID, "1000", "246810"); err != nil {
		t.Fatalf("Approve after one miss: %v", err)
	}
}

func TestChallengeAttemptsExhausted(t *testing.T) {
	challenges, _, _ := newTestChallengeManager(t)
	created, err := challenges.Create("1000", testFingerprint(t, "docker_exec"), "x")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if _, err := challenges.Approve(created.ID, "1000", "000000"); !errors.Is(err, errBadCode) {
			t.Fatalf("attempt %d = %v, want verifier error", i, err)
		}
	}

	// Even the correct code is refused once the budget is gone.
	if _, err := challenges.Approve(created.ID, "1000", "246810"); !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("post-exhaustion approve = %v, want ErrAttemptsExhausted", err)
	}
}

func TestChallengeApproveTwice(t *testing.T) {
	challenges, _, _ := newTestChallengeManager(t)
	created, err := challenges.Create("1000", testFingerprint(t, "docker_exec"), "x")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := challenges.Approve(created.ID, "1000", "246810"); err != nil {
		t.Fatal(err)
	}
	if _, err := challenges.Approve(created.ID, "1000", "246810"); !errors.Is(err, ErrChallengeAlreadyUsed) {
		t.Fatalf("second approve = %v, want ErrChallengeAlreadyUsed", err)
	}
}

func TestChallengeExpiry(t *testing.T) {
	challenges, _, fake := newTestChallengeManager(t)
	created, err := challenges.Create("1000", testFingerprint(t, "docker_exec"), "x")
	if err != nil {
		t.Fatal(err)
	}

	fake.Advance(5*time.Minute + time.Second)

	status, err := challenges.Status(created.ID, "1000")
	if err != nil {
		t.Fatal(err)
	}
	if status.State != StateExpired {
		t.Errorf("state after TTL = %v, want expired", status.State)
	}

	if _, err := challenges.Approve(created.ID, "1000", "246810"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("approve after TTL = %v, want ErrChallengeExpired", err)
	}
}

func TestChallengeOwnerIsolation(t *testing.T) {
	challenges, _, _ := newTestChallengeManager(t)
	created, err := challenges.Create("1000", testFingerprint(t, "docker_exec"), "x")
	if err != nil {
		t.Fatal(err)
	}

	// A different owner cannot see, approve, or even confirm the
	// existence of the challenge.
	if _, err := challenges.Status(created.ID, "1001"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("foreign status = %v, want ErrChallengeNotFound", err)
	}
	if _, err := challenges.Approve(created.ID, "1001", "246810"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("foreign approve = %v, want ErrChallengeNotFound", err)
	}
}

func TestChallengeUnknownID(t *testing.T) {
	challenges, _, _ := newTestChallengeManager(t)
	if _, err := challenges.Status("0123456789abcdef", "1000"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("unknown id = %v, want ErrChallengeNotFound", err)
	}
}

func TestPendingCount(t *testing.T) {
	challenges, _, fake := newTestChallengeManager(t)
	fp := testFingerprint(t, "docker_exec")

	first, err := challenges.Create("1000", fp, "a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := challenges.Create("1000", fp, "b"); err != nil {
		t.Fatal(err)
	}
	if got := challenges.Pending(); got != 2 {
		t.Errorf("Pending = %d, want 2", got)
	}

	if _, err := challenges.Approve(first.ID, "1000", "246810"); err != nil {
		t.Fatal(err)
	}
	if got := challenges.Pending(); got != 1 {
		t.Errorf("Pending after approve = %d, want 1", got)
	}

	fake.Advance(6 * time.Minute)
	if got := challenges.Pending(); got != 0 {
		t.Errorf("Pending after TTL = %d, want 0", got)
	}
}
