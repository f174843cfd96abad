// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/kapy9250/cli-gateway/lib/action"
	"github.com/kapy9250/cli-gateway/lib/codec"
	"github.com/kapy9250/cli-gateway/lib/grant"
	"github.com/kapy9250/cli-gateway/lib/sysexec"
	"github.com/kapy9250/cli-gateway/lib/totp"
)

// Response is the wire envelope for every reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Reason codes owned by the bridge itself. Policy and executor codes
// come from their packages; these cover transport and the operations
// the bridge implements directly.
const (
	ReasonPeerResolution     = "peer_resolution_failed"
	ReasonRequestTooLarge    = "request_too_large"
	ReasonRequestTimeout     = "request_timeout"
	ReasonDecodeFailed       = "request_decode_failed"
	ReasonInvalidParams      = "invalid_params"
	ReasonChallengeNotFound  = "challenge_not_found"
	ReasonChallengeExpired   = "challenge_expired"
	ReasonChallengeUsed      = "challenge_already_used"
	ReasonAttemptsExhausted  = "challenge_attempts_exhausted"
	ReasonCodeInvalid        = "totp_code_invalid"
	ReasonNotEnrolled        = "totp_not_enrolled"
	ReasonEnrollmentNotFound = "enrollment_not_found"
	ReasonEnrollmentExpired  = "enrollment_expired"
	ReasonInternal           = "internal_error"
)

// wireError is an error that already knows its reason code. The
// detail, when present, is appended after ": " on the wire.
type wireError struct {
	reason string
	detail string
}

func (e *wireError) Error() string {
	if e.detail != "" {
		return e.reason + ": " + e.detail
	}
	return e.reason
}

func wireErr(reason, format string, args ...any) *wireError {
	return &wireError{reason: reason, detail: fmt.Sprintf(format, args...)}
}

// reasonFor translates any handler error into its wire string. Typed
// errors from the grant, totp, and executor packages map to their
// codes; anything unrecognized is an internal error, with the detail
// suppressed so internals never leak to clients.
func reasonFor(err error) string {
	var wire *wireError
	if errors.As(err, &wire) {
		return wire.Error()
	}

	switch {
	case errors.Is(err, grant.ErrChallengeNotFound):
		return ReasonChallengeNotFound
	case errors.Is(err, grant.ErrChallengeExpired):
		return ReasonChallengeExpired
	case errors.Is(err, grant.ErrChallengeAlreadyUsed):
		return ReasonChallengeUsed
	case errors.Is(err, grant.ErrAttemptsExhausted):
		return ReasonAttemptsExhausted
	case errors.Is(err, totp.ErrCodeInvalid):
		return ReasonCodeInvalid
	case errors.Is(err, totp.ErrNotEnrolled):
		return ReasonNotEnrolled
	case errors.Is(err, totp.ErrEnrollmentNotFound):
		return ReasonEnrollmentNotFound
	case errors.Is(err, totp.ErrEnrollmentExpired):
		return ReasonEnrollmentExpired
	}

	var actionError *sysexec.ActionError
	if errors.As(err, &actionError) {
		if actionError.Err != nil {
			return actionError.Reason + ": " + actionError.Err.Error()
		}
		return actionError.Reason
	}

	return ReasonInternal
}

// Request envelopes. Each operation decodes the raw request into its
// own struct; the shared "action" field routes, the rest is
// operation-specific.

type enrollBeginRequest struct {
	Account string `cbor:"account"`
	Force   bool   `cbor:"force"`
}

type enrollConfirmRequest struct {
	Code string `cbor:"code"`
}

type challengeCreateRequest struct {
	Descriptor action.Descriptor `cbor:"descriptor"`
	Summary    string            `cbor:"summary"`
}

type challengeApproveRequest struct {
	ChallengeID string `cbor:"challenge_id"`
	Code        string `cbor:"code"`
}

type challengeStatusRequest struct {
	ChallengeID string `cbor:"challenge_id"`
}

type executeRequest struct {
	Descriptor action.Descriptor `cbor:"descriptor"`
	Grant      string            `cbor:"grant"`
}

// Response payloads.

// StatusResult is the payload of the status operation.
type StatusResult struct {
	Version           string      `cbor:"version" json:"version"`
	UptimeSeconds     int64       `cbor:"uptime_seconds" json:"uptime_seconds"`
	Limits            LimitsInfo  `cbor:"limits" json:"limits"`
	Policy            PolicyInfo  `cbor:"policy" json:"policy"`
	Enrollment        totp.Status `cbor:"enrollment" json:"enrollment"`
	PendingChallenges int         `cbor:"pending_challenges" json:"pending_challenges"`
	OutstandingGrants int         `cbor:"outstanding_grants" json:"outstanding_grants"`
	AuditDropped      int64       `cbor:"audit_dropped" json:"audit_dropped"`
}

// LimitsInfo echoes the request limits in effect.
type LimitsInfo struct {
	MaxRequestBytes       int `cbor:"max_request_bytes" json:"max_request_bytes"`
	RequestTimeoutSeconds int `cbor:"request_timeout_seconds" json:"request_timeout_seconds"`
}

// PolicyInfo summarizes policy configuration: flag values and list
// sizes only, never the lists themselves.
type PolicyInfo struct {
	EnforceOwnerAllowlist bool `cbor:"enforce_owner_allowlist" json:"enforce_owner_allowlist"`
	EnforceUnitAllowlist  bool `cbor:"enforce_unit_allowlist" json:"enforce_unit_allowlist"`
	RequireGrantForAllOps bool `cbor:"require_grant_for_all_ops" json:"require_grant_for_all_ops"`
	AllowedOwners         int  `cbor:"allowed_owners" json:"allowed_owners"`
	AllowedUnits          int  `cbor:"allowed_units" json:"allowed_units"`
}

// ChallengeCreateResult is the payload of challenge_create.
type ChallengeCreateResult struct {
	ChallengeID string    `cbor:"challenge_id" json:"challenge_id"`
	Fingerprint string    `cbor:"fingerprint" json:"fingerprint"`
	Summary     string    `cbor:"summary" json:"summary"`
	ExpiresAt   time.Time `cbor:"expires_at" json:"expires_at"`
}

// ChallengeApproveResult is the payload of challenge_approve.
type ChallengeApproveResult struct {
	Grant     string    `cbor:"grant" json:"grant"`
	ExpiresAt time.Time `cbor:"expires_at" json:"expires_at"`
}

// ChallengeStatusResult is the payload of challenge_status.
type ChallengeStatusResult struct {
	ChallengeID string    `cbor:"challenge_id" json:"challenge_id"`
	State       string    `cbor:"state" json:"state"`
	Fingerprint string    `cbor:"fingerprint" json:"fingerprint"`
	Summary     string    `cbor:"summary" json:"summary"`
	Attempts    int       `cbor:"attempts" json:"attempts"`
	ExpiresAt   time.Time `cbor:"expires_at" json:"expires_at"`
}
