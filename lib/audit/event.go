// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kapy9250/cli-gateway/lib/action"
	"github.com/kapy9250/cli-gateway/lib/peercred"
	"github.com/kapy9250/cli-gateway/lib/policy"
)

// Event types.
const (
	TypeDecision   = "decision"
	TypeExecute    = "execute"
	TypeApproval   = "approval"
	TypeEnrollment = "enrollment"
)

// Digest is the redacted form of a value: its size and SHA-256. The
// digest lets an investigator confirm what was sent after the fact
// (given the original) without the trail ever containing it.
type Digest struct {
	Bytes  int    `json:"bytes" cbor:"bytes"`
	SHA256 string `json:"sha256" cbor:"sha256"`
}

// Redact reduces a value to its Digest.
func Redact(value []byte) Digest {
	sum := sha256.Sum256(value)
	return Digest{Bytes: len(value), SHA256: hex.EncodeToString(sum[:])}
}

// Event is one audit record. Fields are omitted when empty so the
// JSONL stays scannable.
type Event struct {
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
	Decision string    `json:"decision,omitempty"`
	Reason   string    `json:"reason,omitempty"`

	OwnerID string   `json:"owner_id,omitempty"`
	UID     uint32   `json:"uid,omitempty"`
	PID     int32    `json:"pid,omitempty"`
	Units   []string `json:"units,omitempty"`

	Op          string            `json:"op,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	ChallengeID string            `json:"challenge_id,omitempty"`
	Params      map[string]Digest `json:"params,omitempty"`
	Output      *Digest           `json:"output,omitempty"`

	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// NewDecision builds the event for a policy deny (or a decision
// recorded without execution).
func NewDecision(at time.Time, identity peercred.Identity, descriptor action.Descriptor, fingerprint action.Fingerprint, result policy.Result) Event {
	event := Event{
		Time:     at.UTC(),
		Type:     TypeDecision,
		Decision: result.Decision.String(),
		Reason:   result.Reason.String(),
		Op:       descriptor.Type,
		Params:   RedactParams(descriptor.Params),
	}
	if !fingerprint.IsZero() {
		event.Fingerprint = fingerprint.String()
	}
	fillIdentity(&event, identity)
	return event
}

// NewExecute builds the event for a dispatched action. The output is
// the encoded result payload (or nothing on failure); failure detail
// arrives as the error string, which handlers keep to reason codes.
func NewExecute(at time.Time, identity peercred.Identity, descriptor action.Descriptor, fingerprint action.Fingerprint, output []byte, errText string, duration time.Duration) Event {
	event := Event{
		Time:        at.UTC(),
		Type:        TypeExecute,
		Decision:    "allow",
		Op:          descriptor.Type,
		Fingerprint: fingerprint.String(),
		Params:      RedactParams(descriptor.Params),
		Error:       errText,
		DurationMS:  duration.Milliseconds(),
	}
	if output != nil {
		digest := Redact(output)
		event.Output = &digest
	}
	fillIdentity(&event, identity)
	return event
}

// NewApproval builds the event for a challenge approval attempt.
// Codes and minted tokens never appear; only the outcome does.
func NewApproval(at time.Time, identity peercred.Identity, challengeID string, errText string) Event {
	event := Event{
		Time:        at.UTC(),
		Type:        TypeApproval,
		ChallengeID: challengeID,
		Error:       errText,
	}
	if errText == "" {
		event.Decision = "allow"
	} else {
		event.Decision = "deny"
	}
	fillIdentity(&event, identity)
	return event
}

// NewEnrollment builds the event for an enrollment state change
// (begin, confirm, cancel). The op names the transition.
func NewEnrollment(at time.Time, identity peercred.Identity, op string, errText string) Event {
	event := Event{
		Time:  at.UTC(),
		Type:  TypeEnrollment,
		Op:    op,
		Error: errText,
	}
	fillIdentity(&event, identity)
	return event
}

// RedactParams redacts every parameter value, keeping the keys.
func RedactParams(params map[string]string) map[string]Digest {
	if len(params) == 0 {
		return nil
	}
	redacted := make(map[string]Digest, len(params))
	for key, value := range params {
		redacted[key] = Redact([]byte(value))
	}
	return redacted
}

func fillIdentity(event *Event, identity peercred.Identity) {
	event.OwnerID = identity.OwnerID
	event.UID = identity.UID
	event.PID = identity.PID
	event.Units = identity.Units
}
