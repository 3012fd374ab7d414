// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package models holds the rows stored in the audit database.
package models

import "time"

// VerificationEvent is a terminal outcome of a verification flow.
type VerificationEvent struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64     `db:"id" json:"id"`
	SubjectID    string    `db:"subject_id" json:"subject_id"`
	SubjectLabel string    `db:"subject_label" json:"subject_label"`
	Login        string    `db:"login" json:"login"`
	Outcome      string    `db:"outcome" json:"outcome"`
	Detail       string    `db:"detail" json:"detail,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
