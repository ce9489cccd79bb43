// Package google implements the Gmail and Calendar provider clients and
// the Google OAuth flow used to obtain their tokens.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Permission tags understood by the scope table.
const (
	PermGmail    = "google_gmail"
	PermCalendar = "google_calendar"
)

// scopes per permission: gmail needs read for triage and send for the
// approved reply action; calendar needs read for freebusy and write for
// event insert.
var scopeTable = map[string][]string{
	PermGmail: {
		"https://www.googleapis.com/auth/gmail.readonly",
		"https://www.googleapis.com/auth/gmail.send",
	},
	PermCalendar: {
		"https://www.googleapis.com/auth/calendar.readonly",
		"https://www.googleapis.com/auth/calendar.events",
	},
}

// ScopesFor maps permission tags to the deduplicated OAuth scope list.
func ScopesFor(perms []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range perms {
		for _, s := range scopeTable[p] {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// OAuth performs the Google authorization-code flow.
type OAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	httpClient   *http.Client
}

// NewOAuth creates the OAuth helper.
func NewOAuth(clientID, clientSecret, redirectURI string) *OAuth {
	return &OAuth{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		httpClient:   &http.Client{Timeout: 20 * time.Second},
	}
}

// AuthURL builds the consent-screen URL for the given permissions.
// Offline access with forced consent so a refresh token is granted.
func (o *OAuth) AuthURL(perms []string, state string) string {
	q := url.Values{}
	q.Set("client_id", o.ClientID)
	q.Set("redirect_uri", o.RedirectURI)
	q.Set("response_type", "code")
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("scope", strings.Join(ScopesFor(perms), " "))
	q.Set("state", state)
	return "https://accounts.google.com/o/oauth2/v2/auth?" + q.Encode()
}

// Token is the result of a code exchange.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// ExpiresAt converts the relative expiry to an absolute instant.
func (t *Token) ExpiresAt(now time.Time) time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Exchange trades an authorization code for tokens.
func (o *OAuth) Exchange(ctx context.Context, code string) (*Token, error) {
	form := url.Values{}
	form.Set("client_id", o.ClientID)
	form.Set("client_secret", o.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", o.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://oauth2.googleapis.com/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("google oauth: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google oauth: exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("google oauth: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google oauth: exchange failed (status %d): %s", resp.StatusCode, body)
	}

	var tok Token
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("google oauth: parse token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("google oauth: no access_token in response")
	}
	return &tok, nil
}
