// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"testing"
)

func TestNewFromBytesCopiesAndZerosSource(t *testing.T) {
	source := []byte("JBSWY3DPEHPK3PXP")
	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if got := buffer.Bytes(); !bytes.Equal(got, []byte("JBSWY3DPEHPK3PXP")) {
		t.Errorf("Bytes = %q, want original secret", got)
	}
	for i, b := range source {
		if b != 0 {
			t.Fatalf("source[%d] = %d, want 0 (source must be zeroed)", i, b)
		}
	}
}

func TestNewFromBytesRejectsEmpty(t *testing.T) {
	if _, err := NewFromBytes(nil); err == nil {
		t.Fatal("NewFromBytes(nil) succeeded")
	}
}

func TestEqualIsLengthAndContentSensitive(t *testing.T) {
	buffer, err := NewFromBytes([]byte("abcdef"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if !buffer.Equal([]byte("abcdef")) {
		t.Error("Equal(same) = false")
	}
	if buffer.Equal([]byte("abcdeg")) {
		t.Error("Equal(different content) = true")
	}
	if buffer.Equal([]byte("abcde")) {
		t.Error("Equal(different length) = true")
	}
}

func TestCloseZerosAndPanicsOnUse(t *testing.T) {
	buffer, err := NewFromBytes([]byte("sensitive"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Idempotent.
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Bytes after Close did not panic")
		}
	}()
	_ = buffer.Bytes()
}

func TestLen(t *testing.T) {
	buffer, err := New(20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer buffer.Close()

	if got := buffer.Len(); got != 20 {
		t.Errorf("Len = %d, want 20", got)
	}
}
