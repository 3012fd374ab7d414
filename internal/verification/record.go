// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package verification drives a guild member from the intranet OAuth2
// round-trip through the rules consent to the verified role.
//
// Pending verifications live only in memory, in a Registry keyed by the
// OAuth2 state token. A record exists while the flow is in progress and is
// removed on every terminal outcome or when the Sweeper expires it.
package verification

import (
	"time"

	"codeberg.org/oliverandrich/intragate/internal/intra"
)

// Step is the phase a pending verification is in.
type Step int

const (
	// StepAwaitingIdentity is the initial step, waiting for the intranet redirect.
	StepAwaitingIdentity Step = iota
	// StepAwaitingConsent means identity and eligibility are confirmed and
	// the subject still has to accept the rules.
	StepAwaitingConsent
)

func (s Step) String() string {
	switch s {
	case StepAwaitingIdentity:
		return "awaiting_identity"
	case StepAwaitingConsent:
		return "awaiting_consent"
	default:
		return "unknown"
	}
}

// Record is a pending verification.
type Record struct { //nolint:govet // fieldalignment: readability over optimization
	State        string
	SubjectID    string
	SubjectLabel string
	CreatedAt    time.Time
	Step         Step
	Claims       *intra.Claims // set once identity is confirmed
}

// Login returns the intranet login once claims are known.
func (r Record) Login() string {
	if r.Claims == nil {
		return ""
	}
	return r.Claims.Login
}
