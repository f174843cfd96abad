// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

// envelope is a representative wire type using cbor struct tags.
type envelope struct {
	Action string `cbor:"action"`
	Grant  string `cbor:"grant,omitempty"`
	Lines  int    `cbor:"lines"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := envelope{
		Action: "execute",
		Grant:  "tok-abc",
		Lines:  42,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMapEncodingIsKeyOrderIndependent(t *testing.T) {
	// Two maps with the same pairs built in different insertion
	// orders must encode to identical bytes. Fingerprinting relies
	// on this.
	first := map[string]string{}
	for _, key := range []string{"path", "max_bytes", "op", "unit"} {
		first[key] = "v-" + key
	}
	second := map[string]string{}
	for _, key := range []string{"unit", "op", "max_bytes", "path"} {
		second[key] = "v-" + key
	}

	firstBytes, err := Marshal(first)
	if err != nil {
		t.Fatalf("Marshal first: %v", err)
	}
	secondBytes, err := Marshal(second)
	if err != nil {
		t.Fatalf("Marshal second: %v", err)
	}
	if !bytes.Equal(firstBytes, secondBytes) {
		t.Errorf("canonical encoding differs: %x != %x", firstBytes, secondBytes)
	}
}

func TestDecodeIntoAnyUsesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{
		"outer": map[string]any{"inner": "value"},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["outer"].(map[string]any); !ok {
		t.Fatalf("nested type = %T, want map[string]any", outer["outer"])
	}
}

func TestStreamRoundtrip(t *testing.T) {
	messages := []envelope{
		{Action: "challenge_create", Lines: 1},
		{Action: "challenge_approve", Lines: 2},
		{Action: "status"},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, message := range messages {
		if err := encoder.Encode(message); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range messages {
		var got envelope
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode message %d: %v", i, err)
		}
		if got != want {
			t.Errorf("message %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var target envelope
	err := Unmarshal([]byte(strings.Repeat("\xff", 16)), &target)
	if err == nil {
		t.Fatal("Unmarshal of garbage succeeded")
	}
}
