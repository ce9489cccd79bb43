package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cliniq/clawd/internal/approval"
	"github.com/cliniq/clawd/internal/credentials"
	"github.com/cliniq/clawd/internal/handlers"
	"github.com/cliniq/clawd/internal/router"
	"github.com/cliniq/clawd/internal/runstore"
)

type createRunBody struct {
	Prompt string `json:"prompt"`
	UserID string `json:"userId"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var body createRunBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	prompt := strings.TrimSpace(body.Prompt)
	userID := strings.TrimSpace(body.UserID)
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt required")
		return
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	run := s.runs.Create(prompt)
	s.runs.Emit(run.ID, runstore.LevelInfo, "Run created", nil)
	s.runs.Emit(run.ID, runstore.LevelInfo, "Starting router", nil)

	go s.execute(run.ID, userID, prompt)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "runId": run.ID})
}

// execute drives one run to a terminal state. It owns its own context:
// the run outlives the request that created it.
func (s *Server) execute(runID, userID, prompt string) {
	ctx := context.Background()
	emit := func(level runstore.Level, message string, data map[string]any) {
		s.runs.Emit(runID, level, message, data)
	}

	decision := router.Route(prompt, func(message string, data map[string]any) {
		emit(runstore.LevelInfo, message, data)
	})
	emit(runstore.LevelInfo, "Router decision", map[string]any{
		"intent":     decision.Intent,
		"handler":    decision.Handler,
		"confidence": decision.Confidence,
	})

	req := handlers.Request{
		RunID:    runID,
		UserID:   userID,
		Prompt:   prompt,
		Decision: decision,
	}

	if needsAny(decision.RequiredPermissions, router.PermGmail, router.PermCalendar) {
		conn, err := s.creds.Lookup(ctx, userID, credentials.ProviderGoogle)
		if err != nil {
			s.runs.Fail(runID, "credential lookup failed: "+err.Error())
			return
		}
		if !conn.Usable(s.now()) {
			s.finishNeedingGoogle(runID, userID, decision.RequiredPermissions, emit)
			return
		}
		req.GoogleToken = conn.AccessToken
	}

	if needsAny(decision.RequiredPermissions, router.PermSlackRead) {
		conn, err := s.creds.Lookup(ctx, userID, credentials.ProviderSlack)
		if err != nil {
			s.runs.Fail(runID, "credential lookup failed: "+err.Error())
			return
		}
		if !conn.Usable(s.now()) {
			s.finishNeedingSlack(runID, userID, prompt, emit)
			return
		}
		req.SlackToken = conn.AccessToken
		req.TeamID = conn.TeamID
		req.TeamName = conn.TeamName
	}

	emit(runstore.LevelInfo, "Executing plan", map[string]any{"plan": decision.Plan})
	output := handlers.Dispatch(ctx, s.deps, req, emit)
	emit(runstore.LevelInfo, "Execution complete", nil)
	s.runs.Finish(runID, output)
}

func needsAny(perms []string, wanted ...string) bool {
	for _, p := range perms {
		for _, w := range wanted {
			if p == w {
				return true
			}
		}
	}
	return false
}

func (s *Server) finishNeedingGoogle(runID, userID string, perms []string, emit handlers.EmitFunc) {
	var googlePerms []string
	for _, p := range perms {
		if p == router.PermGmail || p == router.PermCalendar {
			googlePerms = append(googlePerms, p)
		}
	}
	authURL := fmt.Sprintf("%s/auth/google/start?userId=%s&runId=%s&perms=%s",
		s.cfg.Server.PublicBaseURL,
		url.QueryEscape(userID), url.QueryEscape(runID),
		url.QueryEscape(strings.Join(googlePerms, ",")))

	emit(runstore.LevelWarn, "Permission required", map[string]any{
		"kind":    "google_oauth",
		"perms":   strings.Join(googlePerms, ","),
		"authUrl": authURL,
	})
	s.runs.Finish(runID, handlers.ClarifyOutput{
		Kind:     handlers.KindClarify,
		Question: "Connect Google, then run again.",
	})
}

func (s *Server) finishNeedingSlack(runID, userID, prompt string, emit handlers.EmitFunc) {
	authURL := fmt.Sprintf("%s/slack/oauth/start?userId=%s&runId=%s",
		s.cfg.Server.PublicBaseURL, url.QueryEscape(userID), url.QueryEscape(runID))

	emit(runstore.LevelWarn, "Slack permission required", map[string]any{
		"kind":    "slack_oauth",
		"perms":   router.PermSlackRead,
		"authUrl": authURL,
	})
	s.runs.Finish(runID, handlers.ClarifyOutput{
		Kind:     handlers.KindClarify,
		Prompt:   prompt,
		Question: "Connect Slack to analyze open loops, then run again.",
		SuggestedCommands: []string{
			"In Slack: what are my open loops across channels and DMs?",
			"In Slack: what are the top unanswered questions from the last 14 days?",
		},
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run := s.runs.Get(r.PathValue("id"))
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"run": map[string]any{
			"id":          run.ID,
			"status":      run.Status,
			"finalOutput": run.FinalOutput,
			"error":       run.Error,
		},
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")
	var body map[string]any
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	action, _ := body["action"].(string)
	if action == "" {
		writeError(w, http.StatusBadRequest, "action required")
		return
	}

	approvalID := firstString(body, "approvalId", "id", "draftId", "messageId")
	payload := approval.Payload{}
	for k, v := range body {
		payload[k] = v
	}
	payload["id"] = approvalID

	entityID, fullKey := s.approvals.Set(runID, action, payload)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"stored": map[string]any{
			"id":  entityID,
			"key": fullKey,
		},
	})
}

func firstString(body map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := body[k].(string); ok {
			if t := strings.TrimSpace(s); t != "" {
				return t
			}
		}
	}
	return ""
}
