package router

import (
	"strings"
	"testing"
)

func TestSlackOverrideBeatsEverything(t *testing.T) {
	prompts := []string{
		"In Slack: what are my open loops?",
		"Check slack for open loops about email replies and meetings",
		"slack open loops across channels and DMs please",
	}
	for _, p := range prompts {
		d := Route(p, nil)
		if d.Intent != IntentSlackOpenLoops {
			t.Errorf("%q: expected slack intent, got %s", p, d.Intent)
		}
		if len(d.RequiredPermissions) != 1 || d.RequiredPermissions[0] != PermSlackRead {
			t.Errorf("%q: expected slack_read permission, got %v", p, d.RequiredPermissions)
		}
	}
}

func TestCalendarHardOverride(t *testing.T) {
	d := Route("Schedule a meeting with Alex at 3 PM on 12 March", nil)
	if d.Intent != IntentCalendar {
		t.Fatalf("expected calendar intent, got %s", d.Intent)
	}
	if d.Confidence < 0.75 {
		t.Fatalf("expected confidence >= 0.75, got %f", d.Confidence)
	}
	if d.Extracted["forced"] != "looksLikeCalendar" {
		t.Fatalf("expected the hard-override marker, got %v", d.Extracted)
	}
}

func TestGmailVocabularyBlocksCalendarOverride(t *testing.T) {
	d := Route("Reply to the email about the meeting schedule", nil)
	if d.Intent == IntentCalendar {
		t.Fatalf("gmail vocabulary should block the calendar override, got %s", d.Intent)
	}
}

func TestGmailTriageRouting(t *testing.T) {
	d := Route("Check my top priority emails today and draft replies", nil)
	if d.Intent != IntentGmailTriage {
		t.Fatalf("expected gmail_triage, got %s", d.Intent)
	}
	if d.Handler != HandlerGmailTriage {
		t.Fatalf("unexpected handler: %s", d.Handler)
	}
	if d.Confidence < 0.6 {
		t.Fatalf("expected confidence floor 0.6, got %f", d.Confidence)
	}
}

func TestWebAnalysisExtractsURLs(t *testing.T) {
	d := Route("Compare stripe.com and https://adyen.com homepage and suggest improvements", nil)
	if d.Intent != IntentWebAnalysis {
		t.Fatalf("expected web analysis, got %s", d.Intent)
	}
	urls, ok := d.Extracted["urls"].([]string)
	if !ok || len(urls) < 2 {
		t.Fatalf("expected at least 2 urls, got %v", d.Extracted["urls"])
	}
	if !strings.HasPrefix(urls[0], "https://") {
		t.Fatalf("bare domains must be prefixed: %s", urls[0])
	}
}

func TestUnknownFallback(t *testing.T) {
	d := Route("tell me a joke", nil)
	if d.Intent != IntentUnknown {
		t.Fatalf("expected unknown, got %s", d.Intent)
	}
	if d.Handler != HandlerFallbackChat {
		t.Fatalf("unexpected handler: %s", d.Handler)
	}
	if d.Confidence != 0.3 {
		t.Fatalf("expected fixed low confidence, got %f", d.Confidence)
	}
	if len(d.Plan) == 0 {
		t.Fatal("fallback should carry a clarification plan")
	}
}

func TestTypoNormalization(t *testing.T) {
	d := Route("check my mails in the inbox and draft a respond", nil)
	if d.Intent != IntentGmailTriage {
		t.Fatalf("typo-normalized prompt should route to gmail, got %s", d.Intent)
	}
}

func TestNeverPanics(t *testing.T) {
	for _, p := range []string{"", "   ", strings.Repeat("a", 100000), "\x00\xff", "???!!!"} {
		d := Route(p, nil)
		if d.Intent == "" {
			t.Fatalf("empty decision for %q", p)
		}
	}
}

func TestConfidenceCurve(t *testing.T) {
	if got := confidenceFrom(0, 0, 0); got != 0.25 {
		t.Fatalf("zero scores should give 0.25, got %f", got)
	}
	// Decisive wins score higher than close calls.
	decisive := confidenceFrom(4, 0, 0)
	close_ := confidenceFrom(2, 2, 0)
	if decisive <= close_ {
		t.Fatalf("decisive (%f) should beat close call (%f)", decisive, close_)
	}
	if got := confidenceFrom(10, 0, 0); got > 0.92 {
		t.Fatalf("confidence must be capped at 0.92, got %f", got)
	}
}

func TestTraceReceivesScores(t *testing.T) {
	var messages []string
	Route("check my email inbox", func(msg string, data map[string]any) {
		messages = append(messages, msg)
	})
	if len(messages) < 2 {
		t.Fatalf("expected router trace messages, got %v", messages)
	}
}
