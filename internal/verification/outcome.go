// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification

import "time"

// Outcome is what a step of the flow resulted in.
type Outcome int

const (
	// OutcomeInvalid covers malformed, forged, replayed and expired requests.
	// They are deliberately indistinguishable to the caller.
	OutcomeInvalid Outcome = iota
	// OutcomeConsent means identity is confirmed and the rules must be accepted.
	OutcomeConsent
	OutcomeGranted
	OutcomeDeclined
	OutcomeProviderError
	OutcomeIneligible
	OutcomeGrantFailed
	// OutcomeExpired and OutcomeRevoked are only written to the audit log.
	OutcomeExpired
	OutcomeRevoked
)

var outcomeNames = map[Outcome]string{
	OutcomeInvalid:       "invalid",
	OutcomeConsent:       "consent",
	OutcomeGranted:       "granted",
	OutcomeDeclined:      "declined",
	OutcomeProviderError: "provider_error",
	OutcomeIneligible:    "ineligible",
	OutcomeGrantFailed:   "grant_failed",
	OutcomeExpired:       "expired",
	OutcomeRevoked:       "revoked",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, bool) {
	for o, name := range outcomeNames {
		if name == s {
			return o, true
		}
	}
	return OutcomeInvalid, false
}

// Result is returned to the HTTP layer by every callback-driven transition.
// The zero value is an invalid request.
type Result struct {
	Outcome Outcome
	State   string // set for OutcomeConsent, used to build the consent links
	Login   string
	Detail  string // non-sensitive summary for OutcomeProviderError
	// OperatorsAlerted is set for OutcomeGrantFailed when an operator alert
	// was delivered.
	OperatorsAlerted bool
}

// Event is a terminal outcome as recorded in the audit log.
type Event struct { //nolint:govet // fieldalignment: readability over optimization
	SubjectID    string
	SubjectLabel string
	Login        string
	Outcome      Outcome
	Detail       string
	At           time.Time
}

// NotificationKind selects the message sent to a subject.
type NotificationKind int

const (
	// NotifyVerify carries the authorization link.
	NotifyVerify NotificationKind = iota
	// NotifyGranted confirms the verified role was granted.
	NotifyGranted
)

// Notification is an out-of-band message to a subject. Rendering is left to
// the membership client.
type Notification struct {
	Kind    NotificationKind
	AuthURL string
	Login   string
}
