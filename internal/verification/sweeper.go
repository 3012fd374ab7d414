// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package verification

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically removes verifications that were abandoned.
type Sweeper struct {
	registry *Registry
	auditor  Auditor
	interval time.Duration
	maxAge   time.Duration
}

// NewSweeper creates a sweeper. auditor may be nil.
func NewSweeper(registry *Registry, interval, maxAge time.Duration, auditor Auditor) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Sweeper{
		registry: registry,
		auditor:  auditor,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("sweeper started", "interval", s.interval, "max_age", s.maxAge)

	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce removes expired records and returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	expired := s.registry.SweepExpired(s.maxAge)

	if len(expired) == 0 {
		slog.Debug("sweep finished", "removed", 0, "pending", s.registry.Size())
		return 0
	}

	for _, rec := range expired {
		recordOutcome(ctx, s.auditor, Event{
			SubjectID:    rec.SubjectID,
			SubjectLabel: rec.SubjectLabel,
			Login:        rec.Login(),
			Outcome:      OutcomeExpired,
			Detail:       rec.Step.String(),
			At:           s.registry.Now(),
		})
	}

	slog.Info("expired pending verifications", "removed", len(expired), "pending", s.registry.Size())
	return len(expired)
}
