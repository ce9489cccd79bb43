package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cliniq/clawd/internal/google"
	"github.com/cliniq/clawd/internal/runstore"
)

// Candidate query: unread inbox mail from the last day, with the bulk
// categories filtered server-side.
const triageQuery = "newer_than:1d in:inbox is:unread -category:promotions -category:social -category:forums"

const (
	triageListCap = 50
	triageMetaCap = 40
)

var autoSubjects = []string{
	"receipt", "order summary", "invoice", "payment received",
	"security alert", "login attempt", "verification code", "otp",
	"sign-in", "new device", "password reset",
}

var autoSenders = []string{
	"notifications@", "alert@", "updates@", "receipts@", "billing@", "noreply@",
}

// looksAutomated filters mail nobody replies to: notifications,
// newsletters, receipts, and auth chatter that slips past the
// category filters.
func looksAutomated(from, subject, snippet string) bool {
	t := strings.ToLower(from + " " + subject + " " + snippet)

	for _, k := range []string{"no-reply", "noreply", "do not reply"} {
		if strings.Contains(t, k) {
			return true
		}
	}
	for _, k := range []string{"unsubscribe", "newsletter", "marketing"} {
		if strings.Contains(t, k) {
			return true
		}
	}
	for _, k := range []string{"medium.com", "substack", "beehiiv", "convertkit"} {
		if strings.Contains(t, k) {
			return true
		}
	}
	if strings.Contains(t, "digest") && strings.Contains(t, "your") {
		return true
	}
	for _, k := range autoSubjects {
		if strings.Contains(t, k) {
			return true
		}
	}
	for _, k := range autoSenders {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

// truncateBytes shortens s to at most max bytes, backing off to the
// previous rune boundary so the cut never leaves invalid UTF-8.
func truncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// fallbackDraftBody is the deterministic reply used when the model is
// unavailable or returns nothing useful.
func fallbackDraftBody(snippet, signature string) string {
	short := strings.TrimSpace(snippet)
	truncated := false
	if len(short) > 180 {
		short = truncateBytes(short, 180)
		truncated = true
	}
	var b strings.Builder
	b.WriteString("Hi — thanks for reaching out.\n\n")
	if short != "" {
		b.WriteString("I saw your note (“" + short)
		if truncated {
			b.WriteString("…")
		}
		b.WriteString("”).\n\n")
	} else {
		b.WriteString("I saw your note.\n\n")
	}
	b.WriteString("Can you share the specific next step you want from me, and by when?\n\n")
	b.WriteString("– " + signature)
	return b.String()
}

type triageCandidate struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	Subject  string `json:"subject"`
	Snippet  string `json:"snippet"`
	threadID string
	toEmail  string
	rfcID    string
}

type triagePick struct {
	MessageID      string `json:"messageId"`
	Why            string `json:"why"`
	SuggestedReply string `json:"suggestedReply"`
}

func pickTopWithDrafts(ctx context.Context, llm LLM, candidates []triageCandidate, n int) ([]triagePick, error) {
	system := fmt.Sprintf(`You triage emails for a busy founder.

Goal: pick the %d emails most worth replying to TODAY.

Return JSON only.`, n)

	schemaHint := `{
  "top": [
    { "messageId": "string", "why": "string", "suggestedReply": "string" }
  ]
}`

	payload, _ := json.MarshalIndent(candidates, "", "  ")
	var out struct {
		Top []triagePick `json:"top"`
	}
	if err := llm.CompleteJSON(ctx, system, "Emails:\n"+string(payload), schemaHint, &out); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
	}
	var picks []triagePick
	for _, p := range out.Top {
		if known[p.MessageID] {
			picks = append(picks, p)
		}
		if len(picks) >= n {
			break
		}
	}
	return picks, nil
}

func gmailTriage(ctx context.Context, deps *Deps, req Request, emit EmitFunc) (any, error) {
	emit(runstore.LevelInfo, "Gmail triage: preparing", nil)
	if req.GoogleToken == "" {
		return nil, fmt.Errorf("missing Gmail token (did OAuth complete?)")
	}

	emit(runstore.LevelInfo, "Gmail triage: listing candidate emails", map[string]any{"query": triageQuery})
	ids, err := deps.Gmail.ListMessageIDs(ctx, req.GoogleToken, triageQuery, triageListCap)
	if err != nil {
		return nil, err
	}
	emit(runstore.LevelInfo, "Gmail triage: fetched message ids", map[string]any{"count": len(ids)})

	if len(ids) > triageMetaCap {
		ids = ids[:triageMetaCap]
	}
	var candidates []triageCandidate
	for _, id := range ids {
		meta, err := deps.Gmail.GetMessageMeta(ctx, req.GoogleToken, id)
		if err != nil {
			emit(runstore.LevelWarn, "Gmail triage: message skipped", map[string]any{"id": id, "error": err.Error()})
			continue
		}
		if meta.From == "" || meta.Subject == "" {
			continue
		}
		if looksAutomated(meta.From, meta.Subject, meta.Snippet) {
			continue
		}
		replyAddr := meta.ReplyTo
		if replyAddr == "" {
			replyAddr = meta.From
		}
		candidates = append(candidates, triageCandidate{
			ID:       meta.ID,
			From:     meta.From,
			Subject:  meta.Subject,
			Snippet:  meta.Snippet,
			threadID: meta.ThreadID,
			toEmail:  google.ExtractEmailAddress(replyAddr),
			rfcID:    meta.RFCMessageID,
		})
	}

	if len(candidates) == 0 {
		emit(runstore.LevelInfo, "Gmail triage: no reply-worthy candidates after filtering", nil)
		return GmailTriageOutput{
			Kind:  KindGmailTriage,
			Query: triageQuery,
			Top:   []TriageItem{},
			Note:  "No unread inbox emails in last 24h looked reply-worthy (after filtering newsletters/receipts/automation).",
		}, nil
	}

	limit := deps.Cfg.TriageLimit
	if limit <= 0 {
		limit = 5
	}
	emit(runstore.LevelInfo, "Gmail triage: ranking and drafting with model", map[string]any{"candidates": len(candidates)})

	picks, err := pickTopWithDrafts(ctx, deps.LLM, candidates, limit)
	if err != nil {
		emit(runstore.LevelWarn, "Gmail triage: model failed, using safe fallback drafts", map[string]any{"error": err.Error()})
		picks = nil
	} else if len(picks) == 0 {
		emit(runstore.LevelWarn, "Gmail triage: model returned empty selection, using fallback", nil)
	}
	if len(picks) == 0 {
		for _, c := range candidates {
			picks = append(picks, triagePick{
				MessageID:      c.ID,
				Why:            "Fallback selection (model unavailable).",
				SuggestedReply: fallbackDraftBody(c.Snippet, deps.Cfg.SignatureName),
			})
			if len(picks) >= limit {
				break
			}
		}
	}

	byID := make(map[string]triageCandidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}
	var top []TriageItem
	for _, p := range picks {
		c, ok := byID[p.MessageID]
		if !ok {
			continue
		}
		body := strings.TrimSpace(p.SuggestedReply)
		if body == "" {
			body = fallbackDraftBody(c.Snippet, deps.Cfg.SignatureName)
		}
		top = append(top, TriageItem{
			MessageID: c.ID,
			ThreadID:  c.threadID,
			From:      c.From,
			Subject:   c.Subject,
			Snippet:   c.Snippet,
			Why:       p.Why,
			Draft: DraftReply{
				To:         c.toEmail,
				Subject:    c.Subject,
				Body:       body,
				ThreadID:   c.threadID,
				InReplyTo:  c.rfcID,
				References: c.rfcID,
			},
		})
	}

	summary := make([]map[string]string, 0, len(top))
	for _, t := range top {
		summary = append(summary, map[string]string{"from": t.From, "subject": t.Subject})
	}
	emit(runstore.LevelInfo, "Gmail triage: top candidates selected", map[string]any{"top": summary})

	return GmailTriageOutput{Kind: KindGmailTriage, Query: triageQuery, Top: top}, nil
}
