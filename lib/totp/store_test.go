// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package totp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kapy9250/cli-gateway/lib/clock"
)

func newTestStore(t *testing.T) (*Store, *clock.FakeClock, string) {
	t.Helper()
	statePath := filepath.Join(t.TempDir(), "totp-state.json")
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store, err := NewStore(fake, statePath, "CLI Gateway", 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)
	return store, fake, statePath
}

// enroll runs the full begin/confirm flow for the owner and returns
// the committed secret bytes.
func enroll(t *testing.T, store *Store, fake *clock.FakeClock, owner string) []byte {
	t.Helper()
	enrollment, err := store.BeginEnrollment(owner, "", false)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := DecodeSecret(enrollment.Secret)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.ConfirmEnrollment(owner, Code(raw, fake.Now())); err != nil {
		t.Fatalf("ConfirmEnrollment: %v", err)
	}
	return raw
}

func TestEnrollmentLifecycle(t *testing.T) {
	store, fake, _ := newTestStore(t)

	status := store.EnrollmentStatus("1000")
	if status.Configured || status.Pending {
		t.Fatalf("fresh store status = %+v, want neither configured nor pending", status)
	}

	enrollment, err := store.BeginEnrollment("1000", "ops", false)
	if err != nil {
		t.Fatal(err)
	}
	if enrollment.Secret == "" || enrollment.URI == "" {
		t.Fatal("enrollment missing secret or URI")
	}
	if enrollment.Reused {
		t.Error("first enrollment marked reused")
	}
	if want := fake.Now().Add(10 * time.Minute); !enrollment.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", enrollment.ExpiresAt, want)
	}

	status = store.EnrollmentStatus("1000")
	if status.Configured || !status.Pending {
		t.Fatalf("post-begin status = %+v, want pending only", status)
	}

	raw, err := DecodeSecret(enrollment.Secret)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.ConfirmEnrollment("1000", Code(raw, fake.Now())); err != nil {
		t.Fatalf("ConfirmEnrollment: %v", err)
	}

	status = store.EnrollmentStatus("1000")
	if !status.Configured || status.Pending {
		t.Fatalf("post-confirm status = %+v, want configured only", status)
	}

	if err := store.VerifyCode("1000", Code(raw, fake.Now()), fake.Now()); err != nil {
		t.Errorf("VerifyCode after confirm: %v", err)
	}
}

func TestBeginEnrollmentReusesPending(t *testing.T) {
	store, _, _ := newTestStore(t)

	first, err := store.BeginEnrollment("1000", "ops", false)
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.BeginEnrollment("1000", "ops", false)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Reused || second.Secret != first.Secret {
		t.Error("second begin did not reuse the pending secret")
	}

	forced, err := store.BeginEnrollment("1000", "ops", true)
	if err != nil {
		t.Fatal(err)
	}
	if forced.Reused || forced.Secret == first.Secret {
		t.Error("forced begin did not replace the pending secret")
	}
}

func TestConfirmEnrollmentWrongCode(t *testing.T) {
	store, _, _ := newTestStore(t)

	if _, err := store.BeginEnrollment("1000", "", false); err != nil {
		t.Fatal(err)
	}
	if err := store.ConfirmEnrollment("1000", "000000"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("ConfirmEnrollment with wrong code = %v, want ErrCodeInvalid", err)
	}

	// The pending enrollment survives a failed code.
	if status := store.EnrollmentStatus("1000"); !status.Pending {
		t.Error("pending enrollment dropped after wrong code")
	}
}

func TestConfirmEnrollmentExpired(t *testing.T) {
	store, fake, _ := newTestStore(t)

	enrollment, err := store.BeginEnrollment("1000", "", false)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := DecodeSecret(enrollment.Secret)
	if err != nil {
		t.Fatal(err)
	}

	fake.Advance(10*time.Minute + time.Second)
	err = store.ConfirmEnrollment("1000", Code(raw, fake.Now()))
	if !errors.Is(err, ErrEnrollmentExpired) {
		t.Fatalf("ConfirmEnrollment after TTL = %v, want ErrEnrollmentExpired", err)
	}

	// The expired enrollment is gone; a second confirm finds nothing.
	err = store.ConfirmEnrollment("1000", Code(raw, fake.Now()))
	if !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("second confirm = %v, want ErrEnrollmentNotFound", err)
	}
}

func TestConfirmEnrollmentNotFound(t *testing.T) {
	store, _, _ := newTestStore(t)
	if err := store.ConfirmEnrollment("1000", "123456"); !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("ConfirmEnrollment with no begin = %v, want ErrEnrollmentNotFound", err)
	}
}

func TestCancelEnrollment(t *testing.T) {
	store, _, _ := newTestStore(t)

	if store.CancelEnrollment("1000") {
		t.Error("cancel with nothing pending = true, want false")
	}
	if _, err := store.BeginEnrollment("1000", "", false); err != nil {
		t.Fatal(err)
	}
	if !store.CancelEnrollment("1000") {
		t.Error("cancel with pending enrollment = false, want true")
	}
	if status := store.EnrollmentStatus("1000"); status.Pending {
		t.Error("enrollment still pending after cancel")
	}
}

func TestVerifyCodeNotEnrolled(t *testing.T) {
	store, fake, _ := newTestStore(t)
	err := store.VerifyCode("1000", "123456", fake.Now())
	if !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("VerifyCode without enrollment = %v, want ErrNotEnrolled", err)
	}

	// A pending (unconfirmed) enrollment does not count.
	if _, err := store.BeginEnrollment("1000", "", false); err != nil {
		t.Fatal(err)
	}
	err = store.VerifyCode("1000", "123456", fake.Now())
	if !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("VerifyCode with only pending enrollment = %v, want ErrNotEnrolled", err)
	}
}

func TestVerifyCodeWrongCode(t *testing.T) {
	store, fake, _ := newTestStore(t)
	raw := enroll(t, store, fake, "1000")

	wrong := Code(raw, fake.Now().Add(5*Period))
	if err := store.VerifyCode("1000", wrong, fake.Now()); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("VerifyCode with stale code = %v, want ErrCodeInvalid", err)
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	store, fake, statePath := newTestStore(t)
	raw := enroll(t, store, fake, "1000")

	info, err := os.Stat(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("state file mode = %o, want 0600", mode)
	}

	reopened, err := NewStore(fake, statePath, "CLI Gateway", 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if err := reopened.VerifyCode("1000", Code(raw, fake.Now()), fake.Now()); err != nil {
		t.Errorf("VerifyCode after reopen: %v", err)
	}
	if status := reopened.EnrollmentStatus("1000"); !status.Configured {
		t.Error("reopened store lost enrollment")
	}
}

func TestNewStoreRejectsCorruptState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "totp-state.json")
	if err := os.WriteFile(statePath, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	fake := clock.Fake(time.Now())
	if _, err := NewStore(fake, statePath, "CLI Gateway", 10*time.Minute); err == nil {
		t.Fatal("NewStore accepted corrupt state file")
	}
}
