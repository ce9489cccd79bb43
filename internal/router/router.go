// Package router classifies a free-text prompt into a routing decision:
// which handler runs, what permissions it needs, and how confident the
// match is. Classification is deterministic rule tables and scoring; no
// learning, no network calls.
package router

import (
	"regexp"
	"sort"
	"strings"
)

// Intent tags.
const (
	IntentGmailTriage    = "gmail_triage"
	IntentCalendar       = "calendar_schedule"
	IntentResearch       = "research_report"
	IntentWebAnalysis    = "web_public_analysis"
	IntentSlackOpenLoops = "slack_open_loops"
	IntentUnknown        = "unknown"
)

// Handler tags.
const (
	HandlerGmailTriage    = "gmail_triage_v1"
	HandlerCalendar       = "calendar_schedule_v1"
	HandlerResearch       = "research_report_v1"
	HandlerWebAnalysis    = "web_public_analysis_v1"
	HandlerSlackOpenLoops = "slack_open_loops_v1"
	HandlerFallbackChat   = "fallback_chat_v1"
)

// Permission tags.
const (
	PermGmail     = "google_gmail"
	PermCalendar  = "google_calendar"
	PermWebSearch = "web_search"
	PermSlackRead = "slack_read"
)

// Decision is the router's output. Plan steps are informational only.
type Decision struct {
	Intent              string         `json:"intent"`
	Handler             string         `json:"handler"`
	RequiredPermissions []string       `json:"required_permissions"`
	Plan                []string       `json:"plan"`
	Confidence          float64        `json:"confidence"`
	Extracted           map[string]any `json:"extracted,omitempty"`
}

// TraceFunc receives router progress messages for the run's event log.
type TraceFunc func(message string, data map[string]any)

var (
	wordSlack     = regexp.MustCompile(`\bslack\b`)
	wordOpenLoops = regexp.MustCompile(`\b(open loops|open-loop|follow[- ]?ups|pending|unanswered|stuck|blocked)\b`)
	wordWorkspace = regexp.MustCompile(`\b(workspace|channels|dms|threads)\b`)

	calVerbs     = regexp.MustCompile(`\b(schedule|book|set up|setup|reschedule|meeting|call|sync|catch up)\b`)
	calOrdinal   = regexp.MustCompile(`\b(\d{1,2})(st|nd|rd|th)\b`)
	calMonth     = regexp.MustCompile(`\b(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)\b`)
	calYear      = regexp.MustCompile(`\b(20\d{2})\b`)
	calTimeOfDay = regexp.MustCompile(`\b(\d{1,2})(:\d{2})?\s?(am|pm)\b`)

	gmailVocab = regexp.MustCompile(`\b(email|emails|inbox|reply|replies|gmail|messages)\b`)

	urlPattern = regexp.MustCompile(`(?i)https?://[^\s]+|[a-z0-9\-]+\.(com|io|ai)`)

	spaceRun = regexp.MustCompile(`\s+`)
)

var gmailSignals = []string{
	"email", "mail", "mails", "inbox", "gmail", "unread",
	"reply", "draft", "respond", "thread", "priority",
}

var calSignals = []string{
	"schedule", "meeting", "calendar", "invite", "google meet", "gmeet", "availability",
}

var researchSignals = []string{
	"research", "report", "compare", "pricing", "strategy", "summarize", "analysis",
}

var gmailHints = []string{
	"top priority email", "top emails", "triage", "draft reply", "draft replies",
	"worth replying", "reply today", "inbox today",
}

var calHints = []string{
	"schedule a meeting", "set up a meeting", "book a meeting", "calendar invite",
}

var resHints = []string{
	"write a report", "with citations", "compare", "do research",
}

// typoFixes is a small fixed table; no fuzzy matching, routing stays
// deterministic and cheap.
var typoFixes = []struct{ pattern *regexp.Regexp; repl string }{
	{regexp.MustCompile(`\btoda\b`), "today"},
	{regexp.MustCompile(`\breplying\b`), "reply"},
	{regexp.MustCompile(`\bemails\b`), "email"},
	{regexp.MustCompile(`\bmails\b`), "mail"},
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("’", "'", "‘", "'").Replace(s)
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func hasAny(p string, words []string) bool {
	for _, w := range words {
		if strings.Contains(p, w) {
			return true
		}
	}
	return false
}

func scoreBySignals(p string, signals []string) int {
	score := 0
	for _, w := range signals {
		if strings.Contains(p, w) {
			score++
		}
	}
	return score
}

func scoreWeb(prompt string) int {
	p := strings.ToLower(prompt)
	score := 0
	if strings.Contains(p, "website") || strings.Contains(p, "homepage") {
		score++
	}
	if strings.Contains(p, "compare") || strings.Contains(p, "vs") {
		score++
	}
	if strings.Contains(p, ".com") {
		score++
	}
	if strings.Contains(p, "improve") || strings.Contains(p, "audit") {
		score++
	}
	return score
}

func scoreSlack(prompt string) int {
	p := strings.ToLower(prompt)
	score := 0
	if wordSlack.MatchString(p) {
		score += 3
	}
	if wordOpenLoops.MatchString(p) {
		score += 2
	}
	if wordWorkspace.MatchString(p) {
		score++
	}
	return score
}

// confidenceFrom maps the three raw scores to a confidence value: a base
// term growing with the winner's score plus a margin bonus, capped. It is
// not a probability.
func confidenceFrom(gmail, cal, res int) float64 {
	scores := []int{gmail, cal, res}
	sort.Sort(sort.Reverse(sort.IntSlice(scores)))
	top, second := scores[0], scores[1]
	if top == 0 {
		return 0.25
	}
	margin := float64(top - second)
	base := 0.55 + min(0.25, float64(top)*0.06)
	bonus := min(0.20, margin*0.08)
	return min(0.92, base+bonus)
}

// ExtractURLs pulls URL-shaped substrings out of the raw prompt,
// prefixing bare domains with https://.
func ExtractURLs(prompt string) []string {
	var urls []string
	for _, m := range urlPattern.FindAllString(prompt, -1) {
		if strings.HasPrefix(m, "http://") || strings.HasPrefix(m, "https://") {
			urls = append(urls, m)
		} else {
			urls = append(urls, "https://"+m)
		}
	}
	return urls
}

func looksLikeCalendar(p string) bool {
	return calVerbs.MatchString(p) ||
		calOrdinal.MatchString(p) ||
		calMonth.MatchString(p) ||
		calYear.MatchString(p) ||
		calTimeOfDay.MatchString(p)
}

func looksLikeGmail(p string) bool {
	return gmailVocab.MatchString(p)
}

func slackPlan() []string {
	return []string{
		"Request Slack access (per run)",
		"Pull recent messages across channels + DMs",
		"Detect open loops (commitments, unanswered Qs, stalled threads, ownership gaps)",
		"Rank by risk + age",
		"Return crisp action list with permalinks",
	}
}

func calendarPlan() []string {
	return []string{
		"Request Calendar access (per run)",
		"Parse date/time/attendees",
		"Check availability",
		"Propose event draft",
		"Ask approval",
		"Create meeting + Meet link",
	}
}

func gmailPlan() []string {
	return []string{
		"Request Gmail access (per run)",
		"Search emails for today",
		"Rank by urgency + reply-needed",
		"Pick top candidates",
		"Draft replies",
		"Ask approval to send/copy",
	}
}

func webPlan() []string {
	return []string{
		"Fetch public pages",
		"Extract structure and copy",
		"Score UI and messaging",
		"Compare patterns (if multiple sites)",
		"Summarize improvements",
	}
}

func researchPlan() []string {
	return []string{
		"Clarify scope if needed",
		"Search sources",
		"Extract key points",
		"Synthesize",
		"Generate structured report with citations",
	}
}

func unknownDecision(p string) Decision {
	return Decision{
		Intent:              IntentUnknown,
		Handler:             HandlerFallbackChat,
		RequiredPermissions: []string{},
		Plan: []string{
			"Ask 1 clarifying question OR provide best-effort guidance",
			"Suggest the next runnable command",
		},
		Confidence: 0.3,
		Extracted:  map[string]any{"normalizedPrompt": p},
	}
}

// Route classifies a prompt. It never panics: any internal failure
// degrades to the unknown fallback decision. trace may be nil.
func Route(prompt string, trace TraceFunc) (decision Decision) {
	if trace == nil {
		trace = func(string, map[string]any) {}
	}
	defer func() {
		if r := recover(); r != nil {
			decision = unknownDecision(normalize(prompt))
		}
	}()

	trace("Router: analyzing intent", nil)

	p0 := normalize(prompt)
	p := p0
	for _, fix := range typoFixes {
		p = fix.pattern.ReplaceAllString(p, fix.repl)
	}

	gmailScore := scoreBySignals(p, gmailSignals)
	calScore := scoreBySignals(p, calSignals)
	resScore := scoreBySignals(p, researchSignals)
	slackScore := scoreSlack(prompt)

	trace("Router: signal scores", map[string]any{
		"gmailScore": gmailScore,
		"calScore":   calScore,
		"resScore":   resScore,
		"slackScore": slackScore,
	})

	gmailHint := hasAny(p, gmailHints)
	calHint := hasAny(p, calHints)
	resHint := hasAny(p, resHints)

	// Slack override runs before everything else.
	if slackScore >= 3 {
		return Decision{
			Intent:              IntentSlackOpenLoops,
			Handler:             HandlerSlackOpenLoops,
			RequiredPermissions: []string{PermSlackRead},
			Plan:                slackPlan(),
			Confidence:          0.82,
			Extracted:           map[string]any{"normalizedPrompt": p0},
		}
	}

	// Hard override: clearly scheduling, and not about inbox/reply.
	calLike := looksLikeCalendar(p)
	gmailLike := looksLikeGmail(p)
	if calLike && !gmailLike {
		conf := max(0.75, confidenceFrom(gmailScore, calScore+2, resScore))
		return Decision{
			Intent:              IntentCalendar,
			Handler:             HandlerCalendar,
			RequiredPermissions: []string{PermCalendar},
			Plan:                calendarPlan(),
			Confidence:          conf,
			Extracted:           map[string]any{"normalizedPrompt": p, "forced": "looksLikeCalendar"},
		}
	}

	conf := confidenceFrom(gmailScore, calScore, resScore)

	// Web public analysis needs no auth; URLs come from the raw prompt.
	if scoreWeb(prompt) >= 2 {
		return Decision{
			Intent:              IntentWebAnalysis,
			Handler:             HandlerWebAnalysis,
			RequiredPermissions: []string{},
			Plan:                webPlan(),
			Confidence:          0.8,
			Extracted: map[string]any{
				"urls":             ExtractURLs(prompt),
				"normalizedPrompt": p0,
			},
		}
	}

	gmailWins := (gmailScore > max(calScore, resScore) && gmailScore >= 1) ||
		(gmailHint && !calHint && !resHint)
	calWins := (calScore > max(gmailScore, resScore) && calScore >= 1) ||
		(calHint && !gmailHint && !resHint)
	resWins := resScore >= 1 || resHint

	// Tie-break: equal nonzero gmail/cal scores lean calendar when the
	// prompt reads like scheduling.
	if !gmailWins && !calWins && gmailScore == calScore && gmailScore >= 1 {
		if looksLikeCalendar(p) && !looksLikeGmail(p) {
			return Decision{
				Intent:              IntentCalendar,
				Handler:             HandlerCalendar,
				RequiredPermissions: []string{PermCalendar},
				Plan:                calendarPlan(),
				Confidence:          max(0.65, conf),
				Extracted:           map[string]any{"normalizedPrompt": p, "tieBreak": "calendar"},
			}
		}
	}

	if gmailWins {
		return Decision{
			Intent:              IntentGmailTriage,
			Handler:             HandlerGmailTriage,
			RequiredPermissions: []string{PermGmail},
			Plan:                gmailPlan(),
			Confidence:          max(0.6, conf),
			Extracted:           map[string]any{"normalizedPrompt": p},
		}
	}

	if calWins {
		return Decision{
			Intent:              IntentCalendar,
			Handler:             HandlerCalendar,
			RequiredPermissions: []string{PermCalendar},
			Plan:                calendarPlan(),
			Confidence:          max(0.6, conf),
			Extracted:           map[string]any{"normalizedPrompt": p},
		}
	}

	if resWins {
		return Decision{
			Intent:              IntentResearch,
			Handler:             HandlerResearch,
			RequiredPermissions: []string{PermWebSearch},
			Plan:                researchPlan(),
			Confidence:          max(0.55, conf),
			Extracted:           map[string]any{"normalizedPrompt": p},
		}
	}

	return unknownDecision(p)
}
