// Copyright 2026 The CLI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kapy9250/cli-gateway/lib/action"
	"github.com/kapy9250/cli-gateway/lib/grant"
	"github.com/kapy9250/cli-gateway/lib/peercred"
)

// Decision is the outcome of an evaluation. The zero value is Deny so
// an uninitialized Result never reads as permission.
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	switch d {
	case Deny:
		return "deny"
	case Allow:
		return "allow"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// DenyReason says which gate denied. The string forms are wire-stable:
// they appear verbatim in responses and audit events.
type DenyReason int

const (
	DenyNone DenyReason = iota
	DenyOwnerNotAllowed
	DenyUnitNotAllowed
	DenyGrantRequired
	DenyGrantNotFound
	DenyGrantExpired
	DenyGrantReplayed
	DenyGrantMismatch
)

func (r DenyReason) String() string {
	switch r {
	case DenyNone:
		return ""
	case DenyOwnerNotAllowed:
		return "owner_not_allowed"
	case DenyUnitNotAllowed:
		return "unit_not_allowed"
	case DenyGrantRequired:
		return "grant_required"
	case DenyGrantNotFound:
		return "grant_not_found"
	case DenyGrantExpired:
		return "grant_expired"
	case DenyGrantReplayed:
		return "grant_replayed"
	case DenyGrantMismatch:
		return "grant_mismatch"
	default:
		return fmt.Sprintf("DenyReason(%d)", int(r))
	}
}

// Class partitions actions by whether they need a grant.
type Class int

const (
	// ClassPublic actions pass on identity gates alone.
	ClassPublic Class = iota

	// ClassProtected actions additionally need a single-use grant.
	ClassProtected
)

func (c Class) String() string {
	switch c {
	case ClassPublic:
		return "public"
	case ClassProtected:
		return "protected"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Classifier assigns a Class to an action. Implemented by the
// executor, which knows which of its actions mutate the system.
type Classifier interface {
	Classify(descriptor action.Descriptor) Class
}

// GrantConsumer redeems a single-use grant token. Implemented by
// grant.Manager.
type GrantConsumer interface {
	Consume(token string, fingerprint action.Fingerprint, ownerID string) error
}

// Config is the policy configuration. The zero value is permissive;
// the closed defaults live in lib/config.Default, where every boolean
// starts true and an empty allowlist with enforcement on denies
// everyone, which is the correct reading of an unconfigured gateway.
type Config struct {
	// AllowedOwnerIDs are the peer uids (as decimal strings)
	// permitted to talk to the bridge at all.
	AllowedOwnerIDs []string

	// EnforceOwnerAllowlist gates requests on AllowedOwnerIDs.
	EnforceOwnerAllowlist bool

	// AllowedUnits are the systemd units a peer may belong to.
	AllowedUnits []string

	// EnforceUnitAllowlist gates requests on AllowedUnits. A peer
	// with no resolvable units never passes this gate.
	EnforceUnitAllowlist bool

	// RequireGrantForAllOps makes every action grant-gated, including
	// ones classified public.
	RequireGrantForAllOps bool
}

// Result is the full trace of one evaluation: the decision, the gate
// that denied, and what matched along the way. Audit events carry it
// whole.
type Result struct {
	Decision Decision
	Reason   DenyReason

	// Class is the classification the grant gate acted on.
	Class Class

	// MatchedUnit is the first allowlisted unit the peer belongs to,
	// when unit enforcement is on.
	MatchedUnit string

	// GrantConsumed reports that an allow decision redeemed a token.
	GrantConsumed bool
}

// Engine evaluates requests against a fixed Config.
type Engine struct {
	config     Config
	classifier Classifier
	grants     GrantConsumer
}

// NewEngine returns an Engine. The classifier and grant consumer are
// required; the engine has no meaningful degraded mode without them.
func NewEngine(config Config, classifier Classifier, grants GrantConsumer) *Engine {
	return &Engine{config: config, classifier: classifier, grants: grants}
}

// Admit runs only the identity gates (owner and unit allowlists).
// Control-plane operations — status, enrollment, challenges — are
// never grant-gated but must still come from an authorized peer.
func (e *Engine) Admit(identity peercred.Identity) Result {
	result := Result{}

	// Gate 1: owner allowlist.
	if e.config.EnforceOwnerAllowlist {
		if !slices.Contains(e.config.AllowedOwnerIDs, identity.OwnerID) {
			result.Reason = DenyOwnerNotAllowed
			return result
		}
	}

	// Gate 2: unit allowlist. No resolved units means no match.
	if e.config.EnforceUnitAllowlist {
		matched := ""
		for _, unit := range identity.Units {
			if slices.Contains(e.config.AllowedUnits, unit) {
				matched = unit
				break
			}
		}
		if matched == "" {
			result.Reason = DenyUnitNotAllowed
			return result
		}
		result.MatchedUnit = matched
	}

	result.Decision = Allow
	return result
}

// Evaluate runs the gate pipeline for one request. The token is the
// grant presented with the request, empty when none was. The returned
// Result is Deny with a reason, or Allow; there is no third state.
//
// Gate order is part of the contract: an unauthorized owner learns
// nothing about units, grants, or even whether its token was real.
func (e *Engine) Evaluate(identity peercred.Identity, descriptor action.Descriptor, fingerprint action.Fingerprint, token string) Result {
	result := e.Admit(identity)
	result.Class = e.classifier.Classify(descriptor)
	if result.Decision == Deny {
		return result
	}
	result.Decision = Deny

	// Gate 3: grant.
	if result.Class == ClassProtected || e.config.RequireGrantForAllOps {
		if token == "" {
			result.Reason = DenyGrantRequired
			return result
		}
		if err := e.grants.Consume(token, fingerprint, identity.OwnerID); err != nil {
			result.Reason = grantDenyReason(err)
			return result
		}
		result.GrantConsumed = true
	}

	result.Decision = Allow
	return result
}

func grantDenyReason(err error) DenyReason {
	switch {
	case errors.Is(err, grant.ErrTokenExpired):
		return DenyGrantExpired
	case errors.Is(err, grant.ErrTokenReplayed):
		return DenyGrantReplayed
	case errors.Is(err, grant.ErrTokenMismatch):
		return DenyGrantMismatch
	default:
		return DenyGrantNotFound
	}
}
