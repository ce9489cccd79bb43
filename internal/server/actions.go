package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cliniq/clawd/internal/approval"
	"github.com/cliniq/clawd/internal/credentials"
	"github.com/cliniq/clawd/internal/google"
)

// Approval actions gated by the ledger.
const (
	actionGmailSend      = "gmail_send"
	actionCalendarCreate = "calendar_create"
)

type gmailSendBody struct {
	RunID      string `json:"runId"`
	UserID     string `json:"userId"`
	MessageID  string `json:"messageId"`
	ToEmail    string `json:"toEmail"`
	Subject    string `json:"subject"`
	ReplyText  string `json:"replyText"`
	ThreadID   string `json:"threadId"`
	InReplyTo  string `json:"inReplyTo"`
	References string `json:"references"`
}

func (s *Server) handleGmailSend(w http.ResponseWriter, r *http.Request) {
	var body gmailSendBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	for _, required := range []struct{ name, value string }{
		{"userId", body.UserID},
		{"runId", body.RunID},
		{"messageId", body.MessageID},
		{"toEmail", body.ToEmail},
		{"subject", body.Subject},
		{"replyText", body.ReplyText},
	} {
		if strings.TrimSpace(required.value) == "" {
			writeError(w, http.StatusBadRequest, required.name+" required")
			return
		}
	}

	if s.approvals.Consume(body.RunID, actionGmailSend, body.MessageID) == nil {
		writeError(w, http.StatusForbidden, "Not approved (or expired)")
		return
	}

	conn, err := s.creds.Lookup(r.Context(), body.UserID, credentials.ProviderGoogle)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "credential lookup failed")
		return
	}
	if !conn.Usable(s.now()) {
		writeError(w, http.StatusUnauthorized, "Missing Google token")
		return
	}

	id, err := s.deps.Gmail.SendReply(r.Context(), conn.AccessToken, google.ReplyMessage{
		To:         body.ToEmail,
		Subject:    body.Subject,
		Body:       body.ReplyText,
		ThreadID:   body.ThreadID,
		InReplyTo:  body.InReplyTo,
		References: body.References,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

type calendarCreateBody struct {
	RunID               string `json:"runId"`
	UserID              string `json:"userId"`
	DraftID             string `json:"draftId"`
	ApprovalID          string `json:"approvalId"`
	Title               string `json:"title"`
	Start               string `json:"start"`
	End                 string `json:"end"`
	Timezone            string `json:"timezone"`
	Meet                *bool  `json:"meet"`
	CreateWithoutInvite bool   `json:"createWithoutInvite"`
	Attendees           []struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"attendees"`
}

func (s *Server) handleCalendarCreate(w http.ResponseWriter, r *http.Request) {
	var body calendarCreateBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	for _, required := range []struct{ name, value string }{
		{"userId", body.UserID},
		{"runId", body.RunID},
		{"draftId", body.DraftID},
		{"title", body.Title},
	} {
		if strings.TrimSpace(required.value) == "" {
			writeError(w, http.StatusBadRequest, required.name+" required")
			return
		}
	}
	if body.Start == "" || body.End == "" {
		writeError(w, http.StatusBadRequest, "start/end required")
		return
	}

	approvalID := strings.TrimSpace(body.ApprovalID)
	if approvalID == "" {
		approvalID = body.DraftID
	}
	if s.approvals.Consume(body.RunID, actionCalendarCreate, approvalID) == nil {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"ok":    false,
			"error": "Not approved (or expired)",
			"debug": map[string]any{
				"runId":      body.RunID,
				"draftId":    body.DraftID,
				"approvalId": approvalID,
				"expected":   approval.ExpectedKey(body.RunID, actionCalendarCreate, approvalID),
				"keys":       s.approvals.KeysForRun(body.RunID),
			},
		})
		return
	}

	conn, err := s.creds.Lookup(r.Context(), body.UserID, credentials.ProviderGoogle)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "credential lookup failed")
		return
	}
	if !conn.Usable(s.now()) {
		writeError(w, http.StatusUnauthorized, "Missing Google token")
		return
	}

	timezone := body.Timezone
	if timezone == "" {
		timezone = s.cfg.Assistant.Timezone
	}
	meet := true
	if body.Meet != nil {
		meet = *body.Meet
	}

	// createWithoutInvite drops attendees entirely: the event is created
	// on the user's calendar and the invite goes out later, by hand.
	var attendees []google.EventAttendee
	if !body.CreateWithoutInvite {
		for _, a := range body.Attendees {
			email := strings.TrimSpace(a.Email)
			if email == "" {
				continue
			}
			attendees = append(attendees, google.EventAttendee{Email: email, DisplayName: strings.TrimSpace(a.Name)})
		}
	}

	created, err := s.deps.Calendar.InsertEvent(r.Context(), conn.AccessToken, google.EventRequest{
		Title:     body.Title,
		StartISO:  body.Start,
		EndISO:    body.End,
		Timezone:  timezone,
		Meet:      meet,
		Attendees: attendees,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("event insert failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "event": created})
}
