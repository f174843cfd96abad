// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"slices"

	"github.com/kapy9250/cli-gateway/lib/action"
	"github.com/kapy9250/cli-gateway/lib/audit"
	"github.com/kapy9250/cli-gateway/lib/codec"
	"github.com/kapy9250/cli-gateway/lib/peercred"
	"github.com/kapy9250/cli-gateway/lib/policy"
	"github.com/kapy9250/cli-gateway/lib/sysexec"
)

// dispatch routes one decoded request. Every operation passes the
// identity gates first; execute additionally runs the grant gate
// inside policy evaluation.
func (s *Server) dispatch(ctx context.Context, identity peercred.Identity, op string, raw codec.RawMessage) (any, error) {
	switch op {
	case "status":
		return s.handleStatus(ctx, identity)
	case "enroll_begin":
		return s.handleEnrollBegin(ctx, identity, raw)
	case "enroll_confirm":
		return s.handleEnrollConfirm(ctx, identity, raw)
	case "enroll_cancel":
		return s.handleEnrollCancel(ctx, identity)
	case "enroll_status":
		return s.handleEnrollStatus(ctx, identity)
	case "challenge_create":
		return s.handleChallengeCreate(ctx, identity, raw)
	case "challenge_approve":
		return s.handleChallengeApprove(ctx, identity, raw)
	case "challenge_status":
		return s.handleChallengeStatus(ctx, identity, raw)
	case "execute":
		return s.handleExecute(ctx, identity, raw)
	default:
		return nil, wireErr(sysexec.ReasonNotSupported, "unknown operation %q", op)
	}
}

// admit runs the identity gates for a control-plane operation. A
// denial is recorded to the audit trail before it is returned.
func (s *Server) admit(ctx context.Context, identity peercred.Identity, op string) error {
	result := s.engine.Admit(identity)
	if result.Decision == policy.Deny {
		s.recorder.Record(ctx, audit.NewDecision(
			s.clock.Now(), identity, action.Descriptor{Type: op}, action.Fingerprint{}, result))
		return wireErr(result.Reason.String(), "")
	}
	return nil
}

func (s *Server) handleStatus(ctx context.Context, identity peercred.Identity) (any, error) {
	if err := s.admit(ctx, identity, "status"); err != nil {
		return nil, err
	}

	policyCfg := s.cfg.Policy
	return StatusResult{
		Version:       s.version,
		UptimeSeconds: int64(s.clock.Now().Sub(s.startedAt).Seconds()),
		Limits: LimitsInfo{
			MaxRequestBytes:       s.cfg.Limits.MaxRequestBytes,
			RequestTimeoutSeconds: s.cfg.Limits.RequestTimeoutSeconds,
		},
		Policy: PolicyInfo{
			EnforceOwnerAllowlist: policyCfg.EnforceOwnerAllowlist,
			EnforceUnitAllowlist:  policyCfg.EnforceUnitAllowlist,
			RequireGrantForAllOps: policyCfg.RequireGrantForAllOps,
			AllowedOwners:         len(policyCfg.AllowedOwnerIDs),
			AllowedUnits:          len(policyCfg.AllowedUnits),
		},
		Enrollment:        s.enrollment.EnrollmentStatus(identity.OwnerID),
		PendingChallenges: s.challenges.Pending(),
		OutstandingGrants: s.grants.Outstanding(),
		AuditDropped:      s.recorder.Dropped(),
	}, nil
}

func (s *Server) handleEnrollBegin(ctx context.Context, identity peercred.Identity, raw codec.RawMessage) (any, error) {
	if err := s.admit(ctx, identity, "enroll_begin"); err != nil {
		return nil, err
	}

	var req enrollBeginRequest
	if err := codec.Unmarshal(raw, &req); err != nil {
		return nil, wireErr(ReasonDecodeFailed, "enroll_begin request: %v", err)
	}

	enrollment, err := s.enrollment.BeginEnrollment(identity.OwnerID, req.Account, req.Force)
	s.recorder.Record(ctx, audit.NewEnrollment(s.clock.Now(), identity, "enroll_begin", errText(err)))
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

func (s *Server) handleEnrollConfirm(ctx context.Context, identity peercred.Identity, raw codec.RawMessage) (any, error) {
	if err := s.admit(ctx, identity, "enroll_confirm"); err != nil {
		return nil, err
	}

	var req enrollConfirmRequest
	if err := codec.Unmarshal(raw, &req); err != nil {
		return nil, wireErr(ReasonDecodeFailed, "enroll_confirm request: %v", err)
	}
	if req.Code == "" {
		return nil, wireErr(ReasonInvalidParams, "code is required")
	}

	err := s.enrollment.ConfirmEnrollment(identity.OwnerID, req.Code)
	s.recorder.Record(ctx, audit.NewEnrollment(s.clock.Now(), identity, "enroll_confirm", errText(err)))
	if err != nil {
		return nil, err
	}
	return s.enrollment.EnrollmentStatus(identity.OwnerID), nil
}

func (s *Server) handleEnrollCancel(ctx context.Context, identity peercred.Identity) (any, error) {
	if err := s.admit(ctx, identity, "enroll_cancel"); err != nil {
		return nil, err
	}

	canceled := s.enrollment.CancelEnrollment(identity.OwnerID)
	if !canceled {
		return nil, wireErr(ReasonEnrollmentNotFound, "")
	}
	s.recorder.Record(ctx, audit.NewEnrollment(s.clock.Now(), identity, "enroll_cancel", ""))
	return s.enrollment.EnrollmentStatus(identity.OwnerID), nil
}

func (s *Server) handleEnrollStatus(ctx context.Context, identity peercred.Identity) (any, error) {
	if err := s.admit(ctx, identity, "enroll_status"); err != nil {
		return nil, err
	}
	return s.enrollment.EnrollmentStatus(identity.OwnerID), nil
}

func (s *Server) handleChallengeCreate(ctx context.Context, identity peercred.Identity, raw codec.RawMessage) (any, error) {
	if err := s.admit(ctx, identity, "challenge_create"); err != nil {
		return nil, err
	}

	var req challengeCreateRequest
	if err := codec.Unmarshal(raw, &req); err != nil {
		return nil, wireErr(ReasonDecodeFailed, "challenge_create request: %v", err)
	}
	if !slices.Contains(s.executor.Supported(), req.Descriptor.Type) {
		return nil, wireErr(sysexec.ReasonNotSupported, "unknown action type %q", req.Descriptor.Type)
	}

	fingerprint, err := req.Descriptor.Fingerprint()
	if err != nil {
		return nil, wireErr(ReasonInvalidParams, "%v", err)
	}

	summary := req.Summary
	if summary == "" {
		summary = req.Descriptor.Type
	}

	challenge, err := s.challenges.Create(identity.OwnerID, fingerprint, summary)
	if err != nil {
		return nil, err
	}
	return ChallengeCreateResult{
		ChallengeID: challenge.ID,
		Fingerprint: challenge.Fingerprint.String(),
		Summary:     challenge.Summary,
		ExpiresAt:   challenge.ExpiresAt,
	}, nil
}

func (s *Server) handleChallengeApprove(ctx context.Context, identity peercred.Identity, raw codec.RawMessage) (any, error) {
	if err := s.admit(ctx, identity, "challenge_approve"); err != nil {
		return nil, err
	}

	var req challengeApproveRequest
	if err := codec.Unmarshal(raw, &req); err != nil {
		return nil, wireErr(ReasonDecodeFailed, "challenge_approve request: %v", err)
	}
	if req.ChallengeID == "" || req.Code == "" {
		return nil, wireErr(ReasonInvalidParams, "challenge_id and code are required")
	}

	approval, err := s.challenges.Approve(req.ChallengeID, identity.OwnerID, req.Code)
	s.recorder.Record(ctx, audit.NewApproval(s.clock.Now(), identity, req.ChallengeID, errText(err)))
	if err != nil {
		return nil, err
	}
	return ChallengeApproveResult{
		Grant:     approval.Token,
		ExpiresAt: approval.ExpiresAt,
	}, nil
}

func (s *Server) handleChallengeStatus(ctx context.Context, identity peercred.Identity, raw codec.RawMessage) (any, error) {
	if err := s.admit(ctx, identity, "challenge_status"); err != nil {
		return nil, err
	}

	var req challengeStatusRequest
	if err := codec.Unmarshal(raw, &req); err != nil {
		return nil, wireErr(ReasonDecodeFailed, "challenge_status request: %v", err)
	}
	if req.ChallengeID == "" {
		return nil, wireErr(ReasonInvalidParams, "challenge_id is required")
	}

	challenge, err := s.challenges.Status(req.ChallengeID, identity.OwnerID)
	if err != nil {
		return nil, err
	}
	return ChallengeStatusResult{
		ChallengeID: challenge.ID,
		State:       challenge.State.String(),
		Fingerprint: challenge.Fingerprint.String(),
		Summary:     challenge.Summary,
		Attempts:    challenge.Attempts,
		ExpiresAt:   challenge.ExpiresAt,
	}, nil
}

func (s *Server) handleExecute(ctx context.Context, identity peercred.Identity, raw codec.RawMessage) (any, error) {
	var req executeRequest
	if err := codec.Unmarshal(raw, &req); err != nil {
		return nil, wireErr(ReasonDecodeFailed, "execute request: %v", err)
	}

	fingerprint, err := req.Descriptor.Fingerprint()
	if err != nil {
		return nil, wireErr(ReasonInvalidParams, "%v", err)
	}

	result := s.engine.Evaluate(identity, req.Descriptor, fingerprint, req.Grant)
	if result.Decision == policy.Deny {
		s.recorder.Record(ctx, audit.NewDecision(s.clock.Now(), identity, req.Descriptor, fingerprint, result))
		return nil, wireErr(result.Reason.String(), "")
	}

	start := s.clock.Now()
	output, err := s.executor.Execute(ctx, req.Descriptor)
	duration := s.clock.Now().Sub(start)
	if err != nil {
		s.recorder.Record(ctx, audit.NewExecute(
			s.clock.Now(), identity, req.Descriptor, fingerprint, nil, reasonFor(err), duration))
		return nil, err
	}

	encoded, err := codec.Marshal(output)
	if err != nil {
		s.recorder.Record(ctx, audit.NewExecute(
			s.clock.Now(), identity, req.Descriptor, fingerprint, nil, ReasonInternal, duration))
		return nil, wireErr(ReasonInternal, "")
	}
	s.recorder.Record(ctx, audit.NewExecute(
		s.clock.Now(), identity, req.Descriptor, fingerprint, encoded, "", duration))
	return codec.RawMessage(encoded), nil
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return reasonFor(err)
}
