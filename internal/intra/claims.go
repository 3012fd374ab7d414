// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package intra

import "time"

// Claims is the subset of the intranet /v2/me payload used for eligibility.
type Claims struct { //nolint:govet // fieldalignment: readability over optimization
	ID          int64        `json:"id"`
	Login       string       `json:"login"`
	Email       string       `json:"email"`
	DisplayName string       `json:"displayname"`
	Staff       bool         `json:"staff?"`
	Active      *bool        `json:"active?,omitempty"`
	CursusUsers []CursusUser `json:"cursus_users"`
	Campus      []Campus     `json:"campus"`
}

// CursusUser is a program membership of the subject.
type CursusUser struct { //nolint:govet // fieldalignment: readability over optimization
	ID       int64      `json:"id"`
	CursusID int64      `json:"cursus_id"`
	Level    float64    `json:"level"`
	BeginAt  *time.Time `json:"begin_at"`
	EndAt    *time.Time `json:"end_at"`
	Cursus   Cursus     `json:"cursus"`
}

// Cursus describes a program.
type Cursus struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Campus is a location the subject is affiliated with.
type Campus struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Reasons returned by Ineligibility.
const (
	ReasonMissingClaims = "missing_claims"
	ReasonMissingLogin  = "missing_login"
	ReasonMissingEmail  = "missing_email"
	ReasonStaff         = "staff"
	ReasonNoCursus      = "no_cursus"
	ReasonNoCampus      = "no_campus"
	ReasonInactive      = "inactive"
)

// IsEligible reports whether the claims allow the subject to be verified.
func IsEligible(c *Claims) bool {
	return Ineligibility(c) == ""
}

// Ineligibility returns the first rule the claims fail, or "" when they pass.
// The reason is meant for logs and the audit trail, not for end users.
func Ineligibility(c *Claims) string {
	switch {
	case c == nil:
		return ReasonMissingClaims
	case c.Login == "":
		return ReasonMissingLogin
	case c.Email == "":
		return ReasonMissingEmail
	case c.Staff:
		return ReasonStaff
	case len(c.CursusUsers) == 0:
		return ReasonNoCursus
	case len(c.Campus) == 0:
		return ReasonNoCampus
	case c.Active != nil && !*c.Active:
		return ReasonInactive
	}
	return ""
}
