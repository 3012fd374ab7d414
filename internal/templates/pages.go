// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package templates renders the pages shown at the end of each step of the
// verification flow. Markup lives in the .templ files; page text comes from
// the message catalog.
package templates

//go:generate templ generate

import (
	"net/url"

	"codeberg.org/oliverandrich/intragate/internal/catalog"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/a-h/templ"
)

// Paths of the consent endpoints.
const (
	AcceptPath  = "/auth/rules/accept"
	DeclinePath = "/auth/rules/decline"
)

type pageView struct {
	Title      string
	Heading    string
	Paragraphs []string
	Detail     string // shown verbatim below the text, escaped
}

type consentView struct {
	Title        string
	Heading      string
	Paragraphs   []string
	AcceptURL    string
	DeclineURL   string
	AcceptLabel  string
	DeclineLabel string
}

// Outcome maps a verification result to its page.
func Outcome(res verification.Result) templ.Component {
	t := catalog.T

	switch res.Outcome {
	case verification.OutcomeConsent:
		return Consent(res.State, res.Login)
	case verification.OutcomeGranted:
		return outcomePage(pageView{
			Title:      t("verified_title"),
			Heading:    t("verified_heading"),
			Paragraphs: []string{welcome(res.Login, t("verified_body")), t("verified_close")},
		})
	case verification.OutcomeDeclined:
		return outcomePage(pageView{
			Title:      t("declined_title"),
			Heading:    t("declined_title"),
			Paragraphs: []string{t("declined_body"), t("declined_retry")},
		})
	case verification.OutcomeProviderError:
		return outcomePage(pageView{
			Title:      t("provider_error_title"),
			Heading:    t("provider_error_title"),
			Paragraphs: []string{t("provider_error_body"), t("restart")},
			Detail:     res.Detail,
		})
	case verification.OutcomeIneligible:
		return outcomePage(pageView{
			Title:      t("ineligible_title"),
			Heading:    t("ineligible_title"),
			Paragraphs: []string{t("ineligible_body"), t("ineligible_hint")},
		})
	case verification.OutcomeGrantFailed:
		followUp := t("grant_failed_logged")
		if res.OperatorsAlerted {
			followUp = t("grant_failed_notified")
		}
		return outcomePage(pageView{
			Title:      t("grant_failed_title"),
			Heading:    t("grant_failed_title"),
			Paragraphs: []string{t("grant_failed_body"), followUp + " " + t("restart")},
		})
	default:
		return outcomePage(pageView{
			Title:      t("invalid_title"),
			Heading:    t("invalid_title"),
			Paragraphs: []string{t("invalid_body"), t("restart")},
		})
	}
}

// Consent asks the subject to accept the server rules.
func Consent(state, login string) templ.Component {
	q := url.Values{"state": {state}}.Encode()
	return consentPage(consentView{
		Title:        catalog.T("consent_title"),
		Heading:      catalog.T("consent_heading"),
		Paragraphs:   []string{welcome(login, catalog.T("consent_confirmed")), catalog.T("consent_rules")},
		AcceptURL:    AcceptPath + "?" + q,
		DeclineURL:   DeclinePath + "?" + q,
		AcceptLabel:  catalog.T("consent_accept"),
		DeclineLabel: catalog.T("consent_decline"),
	})
}

// NotFound is the 404 page.
func NotFound() templ.Component {
	return outcomePage(pageView{
		Title:      catalog.T("not_found_title"),
		Heading:    catalog.T("not_found_heading"),
		Paragraphs: []string{catalog.T("not_found_body")},
	})
}

// welcome prefixes msg with a greeting when the login is known.
func welcome(login, msg string) string {
	if login == "" {
		return msg
	}
	return catalog.TData("greeting", map[string]any{"Login": login}) + " " + msg
}
