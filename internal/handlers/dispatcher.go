package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/cliniq/clawd/internal/config"
	"github.com/cliniq/clawd/internal/google"
	"github.com/cliniq/clawd/internal/router"
	"github.com/cliniq/clawd/internal/runstore"
	"github.com/cliniq/clawd/internal/slackwork"
)

// LLM is the completion surface handlers use for drafting and ranking.
type LLM interface {
	CompleteJSON(ctx context.Context, system, user, schemaHint string, out any) error
}

// GmailAPI is the Gmail surface used by the triage handler.
type GmailAPI interface {
	ListMessageIDs(ctx context.Context, token, query string, max int) ([]string, error)
	GetMessageMeta(ctx context.Context, token, id string) (*google.MessageMeta, error)
	SendReply(ctx context.Context, token string, reply google.ReplyMessage) (string, error)
}

// CalendarAPI is the Calendar surface used by the scheduling handler.
type CalendarAPI interface {
	FreeBusy(ctx context.Context, token, startISO, endISO, timezone string) ([]google.BusyWindow, error)
	InsertEvent(ctx context.Context, token string, ev google.EventRequest) (*google.CreatedEvent, error)
}

// SlackAPI is the workspace surface used by the open-loop scan.
type SlackAPI interface {
	ListConversations(ctx context.Context, token string) ([]slackwork.Conversation, error)
	RecentMessages(ctx context.Context, token string, conv slackwork.Conversation, oldest time.Time, limit int) ([]slackwork.Message, error)
	Permalink(ctx context.Context, token, channel, ts string) (string, error)
}

// WebFetcher downloads one public page.
type WebFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Deps bundles everything a handler may need. Nil members are allowed
// for intents that will not be dispatched.
type Deps struct {
	LLM      LLM
	Gmail    GmailAPI
	Calendar CalendarAPI
	Slack    SlackAPI
	Web      WebFetcher
	Cfg      config.AssistantConfig
	Now      func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Request is one dispatched run. Tokens are resolved by the caller
// before dispatch; the permission gate already ran.
type Request struct {
	RunID       string
	UserID      string
	Prompt      string
	Decision    router.Decision
	GoogleToken string
	SlackToken  string
	TeamID      string
	TeamName    string
}

// EmitFunc appends one event to the run stream.
type EmitFunc func(level runstore.Level, message string, data map[string]any)

// Dispatch runs the handler named by the routing decision. It always
// returns a usable output: handler errors become an error output after
// an error-level event, and panics are contained the same way.
func Dispatch(ctx context.Context, deps *Deps, req Request, emit EmitFunc) (out any) {
	handler := req.Decision.Handler
	defer func() {
		if r := recover(); r != nil {
			emit(runstore.LevelError, "Handler crashed", map[string]any{"handler": handler, "panic": fmt.Sprint(r)})
			out = ErrorOutput{Kind: KindError, Error: fmt.Sprintf("handler crashed: %v", r), Handler: handler, Intent: req.Decision.Intent}
		}
	}()

	emit(runstore.LevelInfo, "Handler selected: "+handler, map[string]any{
		"intent":     req.Decision.Intent,
		"confidence": req.Decision.Confidence,
	})

	var (
		result any
		err    error
	)
	switch handler {
	case router.HandlerGmailTriage:
		result, err = gmailTriage(ctx, deps, req, emit)
	case router.HandlerCalendar:
		result, err = calendarSchedule(ctx, deps, req, emit)
	case router.HandlerWebAnalysis:
		result, err = webAnalysis(ctx, deps, req, emit)
	case router.HandlerSlackOpenLoops:
		result, err = slackOpenLoops(ctx, deps, req, emit)
	case router.HandlerResearch:
		result, err = researchReport(ctx, deps, req, emit)
	case router.HandlerFallbackChat:
		result, err = fallbackChat(ctx, deps, req, emit)
	default:
		emit(runstore.LevelWarn, "Unknown handler requested. Forcing clarify.", map[string]any{"handler": handler})
		return ClarifyOutput{
			Kind:     KindClarify,
			Prompt:   req.Prompt,
			Question: "I can triage emails, schedule calendar events, analyze websites, or scan Slack. What should I do?",
			SuggestedCommands: []string{
				"Check top priority emails today and draft replies",
				"Schedule a meeting with Partha at 3 PM tomorrow",
				"Analyze a public website and suggest improvements",
				"In Slack: what are my open loops?",
			},
		}
	}
	if err != nil {
		emit(runstore.LevelError, "Handler error", map[string]any{"handler": handler, "error": err.Error()})
		return ErrorOutput{Kind: KindError, Error: err.Error(), Handler: handler, Intent: req.Decision.Intent}
	}
	return result
}
