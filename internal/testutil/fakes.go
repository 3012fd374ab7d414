// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package testutil

import (
	"context"
	"net/url"
	"sync"

	"codeberg.org/oliverandrich/intragate/internal/intra"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"golang.org/x/oauth2"
)

// FakeAuthBaseURL is the authorization endpoint used by FakeIdentity.
const FakeAuthBaseURL = "https://intra.example/oauth/authorize"

// FakeIdentity is a scripted verification.IdentityProvider.
type FakeIdentity struct {
	Claims      *intra.Claims
	ExchangeErr error
	ClaimsErr   error

	mu        sync.Mutex
	exchanges []string
}

// AuthCodeURL returns FakeAuthBaseURL with the state attached.
func (f *FakeIdentity) AuthCodeURL(state string) string {
	return FakeAuthBaseURL + "?state=" + url.QueryEscape(state)
}

// Exchange records the code and returns ExchangeErr or a dummy token.
func (f *FakeIdentity) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	f.mu.Lock()
	f.exchanges = append(f.exchanges, code)
	f.mu.Unlock()

	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	return &oauth2.Token{AccessToken: "token-for-" + code}, nil
}

// FetchClaims returns ClaimsErr or Claims.
func (f *FakeIdentity) FetchClaims(_ context.Context, _ *oauth2.Token) (*intra.Claims, error) {
	if f.ClaimsErr != nil {
		return nil, f.ClaimsErr
	}
	return f.Claims, nil
}

// Exchanges returns the codes passed to Exchange.
func (f *FakeIdentity) Exchanges() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.exchanges...)
}

// SentNotification is a notification captured by FakeMembership.
type SentNotification struct {
	SubjectID    string
	Notification verification.Notification
}

// FakeMembership is an in-memory verification.Membership.
type FakeMembership struct {
	HasMarkerErr error
	GrantErr     error
	RevokeErr    error
	NotifyErr    error
	BroadcastErr error

	mu            sync.Mutex
	verified      map[string]bool
	grants        []string
	revokes       []string
	notifications []SentNotification
	broadcasts    []SentNotification
}

// NewFakeMembership creates a membership where the given subjects are verified.
func NewFakeMembership(verified ...string) *FakeMembership {
	f := &FakeMembership{verified: make(map[string]bool)}
	for _, id := range verified {
		f.verified[id] = true
	}
	return f
}

// HasMarker reports whether the subject holds the role.
func (f *FakeMembership) HasMarker(_ context.Context, subjectID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HasMarkerErr != nil {
		return false, f.HasMarkerErr
	}
	return f.verified[subjectID], nil
}

// GrantMarker records the grant unless GrantErr is set.
func (f *FakeMembership) GrantMarker(_ context.Context, subjectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GrantErr != nil {
		return f.GrantErr
	}
	f.grants = append(f.grants, subjectID)
	f.verified[subjectID] = true
	return nil
}

// RevokeMarker records the revocation unless RevokeErr is set.
func (f *FakeMembership) RevokeMarker(_ context.Context, subjectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RevokeErr != nil {
		return f.RevokeErr
	}
	f.revokes = append(f.revokes, subjectID)
	delete(f.verified, subjectID)
	return nil
}

// Notify records a direct message unless NotifyErr is set.
func (f *FakeMembership) Notify(_ context.Context, subjectID string, n verification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NotifyErr != nil {
		return f.NotifyErr
	}
	f.notifications = append(f.notifications, SentNotification{SubjectID: subjectID, Notification: n})
	return nil
}

// Broadcast records a fallback message unless BroadcastErr is set.
func (f *FakeMembership) Broadcast(_ context.Context, subjectID string, n verification.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BroadcastErr != nil {
		return f.BroadcastErr
	}
	f.broadcasts = append(f.broadcasts, SentNotification{SubjectID: subjectID, Notification: n})
	return nil
}

// Grants returns the subjects the role was granted to, in order.
func (f *FakeMembership) Grants() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.grants...)
}

// Revokes returns the subjects the role was revoked from, in order.
func (f *FakeMembership) Revokes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revokes...)
}

// Notifications returns the direct messages sent.
func (f *FakeMembership) Notifications() []SentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentNotification(nil), f.notifications...)
}

// Broadcasts returns the fallback messages sent.
func (f *FakeMembership) Broadcasts() []SentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentNotification(nil), f.broadcasts...)
}

// FakeAuditor collects events in memory.
type FakeAuditor struct {
	Err error

	mu     sync.Mutex
	events []verification.Event
}

// RecordOutcome stores e. The event is kept even when Err is set.
func (f *FakeAuditor) RecordOutcome(_ context.Context, e verification.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.Err
}

// Events returns the recorded events.
func (f *FakeAuditor) Events() []verification.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]verification.Event(nil), f.events...)
}

// Outcomes returns the outcomes of the recorded events.
func (f *FakeAuditor) Outcomes() []verification.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]verification.Outcome, len(f.events))
	for i, e := range f.events {
		out[i] = e.Outcome
	}
	return out
}

// Alert is a grant failure captured by FakeAlerter.
type Alert struct {
	Record verification.Record
	Cause  error
}

// FakeAlerter collects grant failure alerts.
type FakeAlerter struct {
	Err error

	mu     sync.Mutex
	alerts []Alert
}

// AlertGrantFailure records the alert.
func (f *FakeAlerter) AlertGrantFailure(_ context.Context, rec verification.Record, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, Alert{Record: rec, Cause: cause})
	return f.Err
}

// Alerts returns the captured alerts.
func (f *FakeAlerter) Alerts() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Alert(nil), f.alerts...)
}

// EligibleClaims returns claims that pass the eligibility check.
func EligibleClaims(login string) *intra.Claims {
	return &intra.Claims{
		ID:          4242,
		Login:       login,
		Email:       login + "@student.42.fr",
		DisplayName: "Jane Doe",
		CursusUsers: []intra.CursusUser{{ID: 1, CursusID: 21, Level: 3.5, Cursus: intra.Cursus{ID: 21, Name: "42cursus", Slug: "42cursus"}}},
		Campus:      []intra.Campus{{ID: 1, Name: "Paris"}},
	}
}
