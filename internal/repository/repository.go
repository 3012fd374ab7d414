// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package repository reads and writes the verification audit log.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeberg.org/oliverandrich/intragate/internal/models"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/vinovest/sqlx"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// DefaultLimit caps list queries without an explicit limit.
const DefaultLimit = 50

// Repository wraps sqlx for audit log access.
type Repository struct {
	db *sqlx.DB
}

// New creates a new Repository instance.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying connection.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// RecordOutcome stores a terminal outcome. It implements verification.Auditor.
func (r *Repository) RecordOutcome(ctx context.Context, e verification.Event) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_events (subject_id, subject_label, login, outcome, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SubjectID, e.SubjectLabel, e.Login, e.Outcome.String(), e.Detail, at.UTC())
	if err != nil {
		return fmt.Errorf("inserting verification event: %w", err)
	}
	return nil
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	SubjectID string
	Outcome   string
	Limit     int
}

// ListEvents returns audit events matching the filter, newest first.
func (r *Repository) ListEvents(ctx context.Context, f EventFilter) ([]models.VerificationEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.SubjectID != "" {
		where = append(where, "subject_id = ?")
		args = append(args, f.SubjectID)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT * FROM verification_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	events := []models.VerificationEvent{}
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, err
	}
	return events, nil
}

// LatestEvent returns the newest event for a subject.
func (r *Repository) LatestEvent(ctx context.Context, subjectID string) (*models.VerificationEvent, error) {
	events, err := r.ListEvents(ctx, EventFilter{SubjectID: subjectID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return &events[0], nil
}

// CountEventsByOutcome counts events created at or after since, keyed by outcome.
func (r *Repository) CountEventsByOutcome(ctx context.Context, since time.Time) (map[string]int64, error) {
	var rows []struct {
		Outcome string `db:"outcome"`
		Count   int64  `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT outcome, count(*) AS count FROM verification_events WHERE created_at >= ? GROUP BY outcome`,
		since.UTC())
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.Count
	}
	return counts, nil
}

// Compile-time check that *Repository implements verification.Auditor.
var _ verification.Auditor = (*Repository)(nil)
