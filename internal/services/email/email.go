// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email sends operator alerts over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeberg.org/oliverandrich/intragate/internal/config"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/wneessen/go-mail"
)

// Service sends alerts to the configured operators.
type Service struct {
	cfg     *config.SMTPConfig
	baseURL string
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig, baseURL string) (*Service, error) {
	if cfg.Host == "" {
		return nil, errors.New("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("SMTP from address is required")
	}
	if len(cfg.AlertTo) == 0 {
		return nil, errors.New("at least one alert recipient is required")
	}

	return &Service{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// AlertGrantFailure tells operators that a member passed every check but the
// role could not be assigned. This is almost always a bot permission problem.
func (s *Service) AlertGrantFailure(ctx context.Context, rec verification.Record, cause error) error {
	msg, err := s.grantFailureMessage(rec, cause)
	if err != nil {
		return err
	}
	return s.send(ctx, msg)
}

func (s *Service) grantFailureMessage(rec verification.Record, cause error) (*mail.Msg, error) {
	login := rec.Login()
	if login == "" {
		login = "(unknown)"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "The verified role could not be granted.\n\n")
	fmt.Fprintf(&body, "Discord member: %s (%s)\n", rec.SubjectLabel, rec.SubjectID)
	fmt.Fprintf(&body, "Intranet login: %s\n", login)
	fmt.Fprintf(&body, "Started: %s\n", rec.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&body, "Error: %v\n\n", cause)
	fmt.Fprintf(&body, "Check that the bot role is above the verified role and has\n")
	fmt.Fprintf(&body, "the Manage Roles permission, then run /verify for this member.\n")
	fmt.Fprintf(&body, "\nSent by intragate at %s\n", s.baseURL)

	return s.newMessage(fmt.Sprintf("[intragate] role grant failed for %s", login), body.String())
}

func (s *Service) newMessage(subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return nil, fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(s.cfg.AlertTo...); err != nil {
		return nil, fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// send delivers msg via SMTP using go-mail.
func (s *Service) send(ctx context.Context, msg *mail.Msg) error {
	// Build client options
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(15 * time.Second),
	}

	// Configure TLS based on config and port
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	// Add authentication if credentials are provided
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

// Compile-time check that *Service implements verification.Alerter.
var _ verification.Alerter = (*Service)(nil)
