// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package intra talks to the 42 intranet: the OAuth2 code flow and the
// claims endpoint used to decide whether a subject may be verified.
package intra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Default intranet endpoints.
const (
	DefaultAuthURL    = "https://api.intra.42.fr/oauth/authorize"
	DefaultTokenURL   = "https://api.intra.42.fr/oauth/token"
	DefaultAPIBaseURL = "https://api.intra.42.fr"
	DefaultScope      = "public"

	requestTimeout = 15 * time.Second
)

// ProviderError is returned when the intranet cannot be reached or answers
// with a non-2xx status.
type ProviderError struct {
	Err        error
	Op         string
	StatusCode int // 0 when no response was received
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("intra: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("intra: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Summary is a short description safe to show to end users.
func (e *ProviderError) Summary() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (HTTP %d)", e.Op, e.StatusCode)
	}
	return e.Op + " failed (network error)"
}

// Config holds the OAuth2 application settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	Scopes       []string
}

// Client exchanges authorization codes and fetches claims.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	apiBaseURL string
}

// NewClient creates a Client, filling in the public intranet endpoints
// for anything left empty.
func NewClient(cfg Config) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{DefaultScope}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: requestTimeout},
		apiBaseURL: strings.TrimSuffix(cfg.APIBaseURL, "/"),
	}
}

// AuthCodeURL returns the authorize URL carrying client_id, redirect_uri,
// response_type=code, scope and the given state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		perr := &ProviderError{Op: "token exchange", Err: err}
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			perr.StatusCode = rerr.Response.StatusCode
		}
		return nil, perr
	}
	return tok, nil
}

// FetchClaims loads the authenticated subject's profile.
func (c *Client) FetchClaims(ctx context.Context, tok *oauth2.Token) (*Claims, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := c.oauth.Client(ctx, tok)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/v2/me", nil)
	if err != nil {
		return nil, fmt.Errorf("building claims request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProviderError{Op: "fetch claims", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{
			Op:         "fetch claims",
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	var claims Claims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, &ProviderError{Op: "fetch claims", Err: fmt.Errorf("decoding claims: %w", err)}
	}
	return &claims, nil
}
