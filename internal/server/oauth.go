package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cliniq/clawd/internal/credentials"
	"github.com/cliniq/clawd/internal/slackwork"
)

// stateTTL bounds how long an OAuth redirect may sit unfinished.
const stateTTL = 15 * time.Minute

// stateClaims is the signed OAuth state round-tripped through the
// provider. Signing prevents callback forgery binding tokens to a
// different user.
type stateClaims struct {
	UserID string   `json:"uid"`
	RunID  string   `json:"rid,omitempty"`
	Perms  []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

func (s *Server) signState(userID, runID string, perms []string) (string, error) {
	now := s.now()
	claims := stateClaims{
		UserID: userID,
		RunID:  runID,
		Perms:  perms,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Server.StateSecret))
}

func (s *Server) parseState(state string) (*stateClaims, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.Server.StateSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("invalid state: %w", err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("invalid state (userId missing)")
	}
	return &claims, nil
}

func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}
	permsParam := q.Get("perms")
	if permsParam == "" {
		permsParam = "google_gmail"
	}
	var perms []string
	for _, p := range strings.Split(permsParam, ",") {
		if p = strings.TrimSpace(p); p != "" {
			perms = append(perms, p)
		}
	}

	state, err := s.signState(userID, q.Get("runId"), perms)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "state signing failed")
		return
	}
	http.Redirect(w, r, s.oauth.AuthURL(perms, state), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" || q.Get("state") == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	claims, err := s.parseState(q.Get("state"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tok, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, "token exchange failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	err = s.creds.Upsert(r.Context(), &credentials.Connection{
		UserID:       claims.UserID,
		Provider:     credentials.ProviderGoogle,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt(s.now()),
		Scope:        tok.Scope,
	})
	if err != nil {
		http.Error(w, "credential store failed", http.StatusInternalServerError)
		return
	}
	connectedPage(w, "Google connected", "You can close this window and go back to the assistant.")
}

func (s *Server) handleSlackStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("userId"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}
	state, err := s.signState(userID, q.Get("runId"), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "state signing failed")
		return
	}
	http.Redirect(w, r, slackwork.AuthURL(s.cfg.Slack.ClientID, s.cfg.Slack.RedirectURI, state), http.StatusFound)
}

func (s *Server) handleSlackCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing code", http.StatusBadRequest)
		return
	}
	claims, err := s.parseState(q.Get("state"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ex, err := slackwork.Exchange(r.Context(), s.cfg.Slack.ClientID, s.cfg.Slack.ClientSecret, code, s.cfg.Slack.RedirectURI)
	if err != nil {
		http.Error(w, "Slack OAuth failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	err = s.creds.Upsert(r.Context(), &credentials.Connection{
		UserID:       claims.UserID,
		Provider:     credentials.ProviderSlack,
		TeamID:       ex.TeamID,
		TeamName:     ex.TeamName,
		ProviderUser: ex.UserID,
		AccessToken:  ex.AccessToken,
	})
	if err != nil {
		http.Error(w, "credential store failed", http.StatusInternalServerError)
		return
	}
	connectedPage(w, "Slack connected", "You can close this tab and run again.")
}

func connectedPage(w http.ResponseWriter, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<html><body style="font-family:system-ui;padding:24px">
<h3>%s &#9989;</h3>
<p>%s</p>
</body></html>`, title, detail)
}
