// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package templates_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/intragate/internal/catalog"
	"codeberg.org/oliverandrich/intragate/internal/templates"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, c.Render(context.Background(), &b))
	return b.String()
}

const state = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestOutcome(t *testing.T) {
	tests := []struct {
		name     string
		result   verification.Result
		contains string
	}{
		{"granted", verification.Result{Outcome: verification.OutcomeGranted, Login: "jdoe"}, "You are verified"},
		{"declined", verification.Result{Outcome: verification.OutcomeDeclined}, "Rules declined"},
		{"provider error", verification.Result{Outcome: verification.OutcomeProviderError, Detail: "token exchange failed (HTTP 503)"}, "token exchange failed (HTTP 503)"},
		{"ineligible", verification.Result{Outcome: verification.OutcomeIneligible}, "Not eligible"},
		{"grant failed", verification.Result{Outcome: verification.OutcomeGrantFailed}, "the role could not be assigned"},
		{"invalid", verification.Result{Outcome: verification.OutcomeInvalid}, "Invalid or expired link"},
		{"consent", verification.Result{Outcome: verification.OutcomeConsent, State: state, Login: "jdoe"}, "Accept the rules"},
	}

	seen := make(map[string]string)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := render(t, templates.Outcome(tt.result))

			assert.True(t, strings.HasPrefix(html, "<!doctype html>"))
			assert.Contains(t, html, tt.contains)
			for other, page := range seen {
				assert.NotEqual(t, page, html, "page must differ from %s", other)
			}
			seen[tt.name] = html
		})
	}
}

func TestOutcome_GrantFailedFollowUp(t *testing.T) {
	tests := []struct {
		name     string
		alerted  bool
		contains string
		excludes string
	}{
		{"alert sent", true, "The server team has been notified.", "has been logged"},
		{"no alert", false, "The problem has been logged for the server team.", "has been notified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := render(t, templates.Outcome(verification.Result{
				Outcome:          verification.OutcomeGrantFailed,
				OperatorsAlerted: tt.alerted,
			}))

			assert.Contains(t, html, tt.contains)
			assert.NotContains(t, html, tt.excludes)
		})
	}
}

func TestOutcome_ProviderDetailEscaped(t *testing.T) {
	html := render(t, templates.Outcome(verification.Result{
		Outcome: verification.OutcomeProviderError,
		Detail:  `profile lookup failed <HTTP 502>`,
	}))

	assert.Contains(t, html, `<p class="detail">profile lookup failed &lt;HTTP 502&gt;</p>`)
}

func TestOutcome_ExpiredMatchesInvalid(t *testing.T) {
	expired := render(t, templates.Outcome(verification.Result{Outcome: verification.OutcomeExpired}))
	invalid := render(t, templates.Outcome(verification.Result{Outcome: verification.OutcomeInvalid}))

	assert.Equal(t, invalid, expired)
}

func TestConsent(t *testing.T) {
	html := render(t, templates.Consent(state, "jdoe"))

	assert.Contains(t, html, `href="/auth/rules/accept?state=`+state+`"`)
	assert.Contains(t, html, `href="/auth/rules/decline?state=`+state+`"`)
	assert.Contains(t, html, "Welcome, jdoe.")
}

func TestPagesEscapeInput(t *testing.T) {
	html := render(t, templates.Outcome(verification.Result{
		Outcome: verification.OutcomeGranted,
		Login:   `<script>alert(1)</script>`,
	}))

	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestPagesDoNotLeakState(t *testing.T) {
	for _, o := range []verification.Outcome{
		verification.OutcomeGranted,
		verification.OutcomeDeclined,
		verification.OutcomeInvalid,
		verification.OutcomeGrantFailed,
	} {
		html := render(t, templates.Outcome(verification.Result{Outcome: o, State: state}))
		assert.NotContains(t, html, state, o.String())
	}
}

func TestNotFound(t *testing.T) {
	assert.Contains(t, render(t, templates.NotFound()), "Page not found")
}

func TestPagesUseCatalogOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.toml")
	require.NoError(t, os.WriteFile(path, []byte(`consent_rules = "No <b>spoilers</b>."`), 0o600))
	require.NoError(t, catalog.Load(path))
	t.Cleanup(func() { require.NoError(t, catalog.Load("")) })

	html := render(t, templates.Consent(state, "jdoe"))

	assert.Contains(t, html, "No &lt;b&gt;spoilers&lt;/b&gt;.")
	assert.Contains(t, html, "Accept the rules")
}

func TestLayout(t *testing.T) {
	html := render(t, templates.NotFound())

	assert.Contains(t, html, `<html lang="en">`)
	assert.Contains(t, html, "<title>Not found | intragate</title>")
	assert.True(t, strings.HasSuffix(html, "</main></body></html>"))
}
