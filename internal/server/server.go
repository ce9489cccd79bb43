// Package server exposes the HTTP API: run creation and streaming,
// one-shot approvals, the approved Gmail/Calendar actions, and the
// per-provider OAuth flows.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cliniq/clawd/internal/approval"
	"github.com/cliniq/clawd/internal/config"
	"github.com/cliniq/clawd/internal/credentials"
	"github.com/cliniq/clawd/internal/google"
	"github.com/cliniq/clawd/internal/handlers"
	"github.com/cliniq/clawd/internal/runstore"
)

// Server wires the HTTP surface to the stores and handler deps.
type Server struct {
	cfg       *config.Config
	runs      *runstore.Store
	approvals *approval.Ledger
	creds     credentials.Store
	deps      *handlers.Deps
	oauth     *google.OAuth
	now       func() time.Time
}

// New assembles the server. deps carries the handler dependencies; the
// Google OAuth helper is built from the config.
func New(cfg *config.Config, runs *runstore.Store, creds credentials.Store, deps *handlers.Deps) *Server {
	return &Server{
		cfg:       cfg,
		runs:      runs,
		approvals: approval.NewLedger(),
		creds:     creds,
		deps:      deps,
		oauth:     google.NewOAuth(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURI),
		now:       time.Now,
	}
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /run", s.handleCreateRun)
	mux.HandleFunc("GET /run/{id}", s.handleGetRun)
	mux.HandleFunc("GET /run/{id}/stream", s.handleStream)
	mux.HandleFunc("POST /run/{runId}/approve", s.handleApprove)

	mux.HandleFunc("POST /gmail/send", s.handleGmailSend)
	mux.HandleFunc("POST /calendar/create", s.handleCalendarCreate)

	mux.HandleFunc("GET /auth/google/start", s.handleGoogleStart)
	mux.HandleFunc("GET /auth/google/callback", s.handleGoogleCallback)
	mux.HandleFunc("GET /slack/oauth/start", s.handleSlackStart)
	mux.HandleFunc("GET /slack/oauth/callback", s.handleSlackCallback)

	mux.HandleFunc("GET /debug/approvals", s.handleDebugApprovals)

	return s.cors(mux)
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.cfg.Server.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// cors mirrors the allowed origin back on every response and answers
// preflights. Requests without an Origin header (curl, server-to-server)
// pass through untouched.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDebugApprovals(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("runId")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "runId required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"runId": runID,
		"keys":  s.approvals.KeysForRun(runID),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(into)
}
