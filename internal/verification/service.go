// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/intragate/internal/intra"
	"codeberg.org/oliverandrich/intragate/internal/token"
	"golang.org/x/oauth2"
)

const (
	// DefaultSweepInterval is how often expired records are removed.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultMaxAge is how long a verification may stay pending.
	DefaultMaxAge = 10 * time.Minute

	grantTimeout = 30 * time.Second
)

// ErrAlreadyVerified is returned by Start when the subject already holds the role.
var ErrAlreadyVerified = errors.New("subject is already verified")

// IdentityProvider runs the OAuth2 code flow against the intranet.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchClaims(ctx context.Context, tok *oauth2.Token) (*intra.Claims, error)
}

// Membership manages the verified role and talks to subjects.
type Membership interface {
	HasMarker(ctx context.Context, subjectID string) (bool, error)
	GrantMarker(ctx context.Context, subjectID string) error
	RevokeMarker(ctx context.Context, subjectID string) error
	// Notify sends a direct message.
	Notify(ctx context.Context, subjectID string, n Notification) error
	// Broadcast posts the message in a shared channel, mentioning the subject.
	Broadcast(ctx context.Context, subjectID string, n Notification) error
}

// Auditor records terminal outcomes.
type Auditor interface {
	RecordOutcome(ctx context.Context, e Event) error
}

// Alerter tells operators about failures they have to fix.
type Alerter interface {
	AlertGrantFailure(ctx context.Context, rec Record, cause error) error
}

// CallbackParams are the query parameters of the intranet redirect.
type CallbackParams struct {
	State string
	Code  string
	Error string
}

// Started describes a freshly created verification.
type Started struct {
	State    string
	AuthURL  string
	Notified bool
}

// Service is the verification state machine.
type Service struct {
	registry   *Registry
	identity   IdentityProvider
	membership Membership
	auditor    Auditor
	alerter    Alerter
	generate   func() (string, error)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAuditor records every terminal outcome with a.
func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithAlerter sends grant failures to a.
func WithAlerter(a Alerter) ServiceOption {
	return func(s *Service) {
		s.alerter = a
	}
}

// WithTokenGenerator replaces token.Generate.
func WithTokenGenerator(fn func() (string, error)) ServiceOption {
	return func(s *Service) {
		s.generate = fn
	}
}

// NewService creates the state machine around an injected registry.
func NewService(registry *Registry, identity IdentityProvider, membership Membership, opts ...ServiceOption) *Service {
	s := &Service{
		registry:   registry,
		identity:   identity,
		membership: membership,
		generate:   token.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry backing the service.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Pending returns the number of verifications in progress.
func (s *Service) Pending() int {
	return s.registry.Size()
}

// Start creates a pending verification for a subject and sends them the
// authorization link. A failed notification does not undo the record.
func (s *Service) Start(ctx context.Context, subjectID, label string) (*Started, error) {
	verified, err := s.membership.HasMarker(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("checking verified role: %w", err)
	}
	if verified {
		return nil, ErrAlreadyVerified
	}

	state, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("generating state: %w", err)
	}

	s.registry.Put(Record{
		State:        state,
		SubjectID:    subjectID,
		SubjectLabel: label,
		CreatedAt:    s.registry.Now(),
		Step:         StepAwaitingIdentity,
	})

	authURL := s.identity.AuthCodeURL(state)
	slog.Info("verification started", "subject_id", subjectID, "subject", label)

	return &Started{
		State:    state,
		AuthURL:  authURL,
		Notified: s.notifyWithFallback(ctx, subjectID, Notification{Kind: NotifyVerify, AuthURL: authURL}),
	}, nil
}

func (s *Service) notifyWithFallback(ctx context.Context, subjectID string, n Notification) bool {
	err := s.membership.Notify(ctx, subjectID, n)
	if err == nil {
		return true
	}
	slog.Warn("direct message failed, using fallback channel", "subject_id", subjectID, "error", err)

	if err := s.membership.Broadcast(ctx, subjectID, n); err != nil {
		slog.Error("fallback notification failed", "subject_id", subjectID, "error", err)
		return false
	}
	return true
}

// ReceiveIdentityCallback handles the intranet redirect. On success the
// record moves to StepAwaitingConsent and the result carries the state for
// the consent links.
func (s *Service) ReceiveIdentityCallback(ctx context.Context, p CallbackParams) Result {
	if p.Error != "" || p.Code == "" || !token.Valid(p.State) {
		slog.Debug("malformed identity callback",
			"has_code", p.Code != "",
			"has_state", p.State != "",
			"provider_error", p.Error,
		)
		return Result{Outcome: OutcomeInvalid}
	}

	rec, ok := s.registry.Get(p.State)
	if !ok || rec.Step != StepAwaitingIdentity {
		slog.Debug("identity callback for unknown state")
		return Result{Outcome: OutcomeInvalid}
	}

	tok, err := s.identity.Exchange(ctx, p.Code)
	if err != nil {
		return s.providerFailure(ctx, rec, err)
	}

	claims, err := s.identity.FetchClaims(ctx, tok)
	if err != nil {
		return s.providerFailure(ctx, rec, err)
	}

	if reason := intra.Ineligibility(claims); reason != "" {
		if !s.finishIdentityStep(rec) {
			return Result{Outcome: OutcomeInvalid}
		}
		rec.Claims = claims
		slog.Info("subject not eligible",
			"subject_id", rec.SubjectID,
			"login", rec.Login(),
			"reason", reason,
		)
		s.audit(ctx, rec, OutcomeIneligible, reason)
		return Result{Outcome: OutcomeIneligible, Login: rec.Login()}
	}

	advanced := s.registry.Update(rec.State, func(r *Record) bool {
		if r.Step != StepAwaitingIdentity {
			return false
		}
		r.Step = StepAwaitingConsent
		r.Claims = claims
		return true
	})
	if !advanced {
		// Swept or consumed while the provider calls were in flight.
		slog.Debug("record vanished during identity confirmation", "subject_id", rec.SubjectID)
		return Result{Outcome: OutcomeInvalid}
	}

	slog.Info("identity confirmed", "subject_id", rec.SubjectID, "login", claims.Login)
	return Result{Outcome: OutcomeConsent, State: rec.State, Login: claims.Login}
}

// finishIdentityStep removes a record that failed identity confirmation. It
// reports false when the record already left the identity step, e.g. because
// a duplicate callback for the same state reached consent first; that record
// must survive.
func (s *Service) finishIdentityStep(rec Record) bool {
	if _, ok := s.registry.Take(rec.State, StepAwaitingIdentity); !ok {
		slog.Debug("stale identity callback ignored", "subject_id", rec.SubjectID)
		return false
	}
	return true
}

func (s *Service) providerFailure(ctx context.Context, rec Record, err error) Result {
	if !s.finishIdentityStep(rec) {
		return Result{Outcome: OutcomeInvalid}
	}

	summary := "identity provider request failed"
	var perr *intra.ProviderError
	if errors.As(err, &perr) {
		summary = perr.Summary()
	}

	slog.Warn("identity provider failure", "subject_id", rec.SubjectID, "error", err)
	s.audit(ctx, rec, OutcomeProviderError, summary)
	return Result{Outcome: OutcomeProviderError, Detail: summary}
}

// Accept finalizes a consent-pending verification by granting the role.
// The record is consumed before the grant, so a replayed or double-submitted
// accept can never grant twice.
func (s *Service) Accept(ctx context.Context, state string) Result {
	rec, ok := s.take(state)
	if !ok {
		slog.Debug("accept for unknown state")
		return Result{Outcome: OutcomeInvalid}
	}

	// The record is gone, so finish the grant even if the browser disconnects.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grantTimeout)
	defer cancel()

	if err := s.membership.GrantMarker(ctx, rec.SubjectID); err != nil {
		slog.Error("granting verified role failed",
			"subject_id", rec.SubjectID,
			"login", rec.Login(),
			"error", err,
		)
		s.audit(ctx, rec, OutcomeGrantFailed, err.Error())
		return Result{Outcome: OutcomeGrantFailed, Login: rec.Login(), OperatorsAlerted: s.alert(ctx, rec, err)}
	}

	slog.Info("subject verified", "subject_id", rec.SubjectID, "login", rec.Login())

	if err := s.membership.Notify(ctx, rec.SubjectID, Notification{Kind: NotifyGranted, Login: rec.Login()}); err != nil {
		slog.Warn("failed to send verification confirmation", "subject_id", rec.SubjectID, "error", err)
	}

	s.audit(ctx, rec, OutcomeGranted, "")
	return Result{Outcome: OutcomeGranted, Login: rec.Login()}
}

// alert reports a grant failure to operators and whether the alert went out.
func (s *Service) alert(ctx context.Context, rec Record, cause error) bool {
	if s.alerter == nil {
		return false
	}
	if err := s.alerter.AlertGrantFailure(ctx, rec, cause); err != nil {
		slog.Warn("failed to send operator alert", "error", err)
		return false
	}
	return true
}

// Decline ends a consent-pending verification without touching the role.
func (s *Service) Decline(ctx context.Context, state string) Result {
	rec, ok := s.take(state)
	if !ok {
		slog.Debug("decline for unknown state")
		return Result{Outcome: OutcomeInvalid}
	}

	slog.Info("rules declined", "subject_id", rec.SubjectID, "login", rec.Login())
	s.audit(ctx, rec, OutcomeDeclined, "")
	return Result{Outcome: OutcomeDeclined, Login: rec.Login()}
}

// take consumes a consent-pending record. Malformed states never reach the
// registry.
func (s *Service) take(state string) (Record, bool) {
	if !token.Valid(state) {
		return Record{}, false
	}
	return s.registry.Take(state, StepAwaitingConsent)
}

// Revoke removes the verified role from a subject. Used by administrators.
func (s *Service) Revoke(ctx context.Context, subjectID, label string) error {
	if err := s.membership.RevokeMarker(ctx, subjectID); err != nil {
		return fmt.Errorf("revoking verified role: %w", err)
	}

	slog.Info("verified role revoked", "subject_id", subjectID, "subject", label)
	s.audit(ctx, Record{SubjectID: subjectID, SubjectLabel: label}, OutcomeRevoked, "")
	return nil
}

func (s *Service) audit(ctx context.Context, rec Record, outcome Outcome, detail string) {
	recordOutcome(ctx, s.auditor, Event{
		SubjectID:    rec.SubjectID,
		SubjectLabel: rec.SubjectLabel,
		Login:        rec.Login(),
		Outcome:      outcome,
		Detail:       detail,
		At:           s.registry.Now(),
	})
}

func recordOutcome(ctx context.Context, auditor Auditor, e Event) {
	if auditor == nil {
		return
	}
	if err := auditor.RecordOutcome(ctx, e); err != nil {
		slog.Warn("failed to record verification outcome",
			"subject_id", e.SubjectID,
			"outcome", e.Outcome.String(),
			"error", err,
		)
	}
}
