// Package handlers implements the prompt handlers behind each routed
// intent and the dispatcher that selects among them. Handlers never let
// an error escape: failures become an error output plus an error-level
// run event, so the run itself still finishes.
package handlers

// Output kinds. Every handler result carries one so clients can render
// without sniffing the shape.
const (
	KindGmailTriage      = "gmail_triage"
	KindCalendarSchedule = "calendar_schedule"
	KindResearchReport   = "research_report"
	KindWebAnalysis      = "web_public_analysis"
	KindSlackOpenLoops   = "slack_open_loops"
	KindClarify          = "clarify"
	KindError            = "error"
)

// DraftReply is a proposed Gmail reply awaiting approval.
type DraftReply struct {
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	ThreadID   string `json:"threadId,omitempty"`
	InReplyTo  string `json:"inReplyTo,omitempty"`
	References string `json:"references,omitempty"`
}

// TriageItem is one inbox message picked as needing a reply.
type TriageItem struct {
	MessageID string     `json:"messageId"`
	ThreadID  string     `json:"threadId,omitempty"`
	From      string     `json:"from"`
	Subject   string     `json:"subject"`
	Snippet   string     `json:"snippet,omitempty"`
	Why       string     `json:"why"`
	Draft     DraftReply `json:"draft"`
}

// GmailTriageOutput lists reply-worthy messages with draft replies.
type GmailTriageOutput struct {
	Kind  string       `json:"kind"`
	Query string       `json:"query"`
	Top   []TriageItem `json:"top"`
	Note  string       `json:"note,omitempty"`
}

// EventDraft is a proposed calendar event awaiting approval.
type EventDraft struct {
	DraftID             string          `json:"draftId"`
	Title               string          `json:"title"`
	Start               string          `json:"start"`
	End                 string          `json:"end"`
	Timezone            string          `json:"timezone"`
	Meet                bool            `json:"meet"`
	Attendees           []DraftAttendee `json:"attendees"`
	CreateWithoutInvite bool            `json:"createWithoutInvite"`
	Notes               []string        `json:"notes,omitempty"`
}

// DraftAttendee is one proposed invitee, possibly without an email yet.
type DraftAttendee struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// CalendarScheduleOutput proposes one event draft.
type CalendarScheduleOutput struct {
	Kind       string     `json:"kind"`
	DraftEvent EventDraft `json:"draftEvent"`
	Note       string     `json:"note,omitempty"`
}

// ReportSection is one block of a research report.
type ReportSection struct {
	Heading string   `json:"heading"`
	Bullets []string `json:"bullets"`
}

// ResearchReportOutput is a prompt-only research summary.
type ResearchReportOutput struct {
	Kind     string          `json:"kind"`
	Title    string          `json:"title"`
	Sections []ReportSection `json:"sections"`
	Note     string          `json:"note,omitempty"`
}

// PaletteColor is one observed page color with its frequency.
type PaletteColor struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// SiteMetrics are prompt-agnostic measurements used for comparison.
type SiteMetrics struct {
	HeroLength        int `json:"heroLength"`
	CTACount          int `json:"ctaCount"`
	NavCount          int `json:"navCount"`
	TrustMentions     int `json:"trustMentions"`
	PricingMentions   int `json:"pricingMentions"`
	DeveloperMentions int `json:"developerMentions"`
}

// SiteExtract is everything pulled out of one fetched page.
type SiteExtract struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	H1          string         `json:"h1,omitempty"`
	H2          []string       `json:"h2,omitempty"`
	CTAs        []string       `json:"ctas,omitempty"`
	NavLinks    []string       `json:"navLinks,omitempty"`
	Palette     []PaletteColor `json:"palette,omitempty"`
	Metrics     SiteMetrics    `json:"metrics"`
}

// SiteResult is one analyzed URL, successful or not.
type SiteResult struct {
	URL     string       `json:"url"`
	OK      bool         `json:"ok"`
	Error   string       `json:"error,omitempty"`
	Extract *SiteExtract `json:"extract,omitempty"`
}

// Recommendation is one actionable suggestion from a site analysis.
type Recommendation struct {
	Title     string   `json:"title"`
	AppliesTo string   `json:"appliesTo"` // "site_a", "site_b", "both"
	Rationale string   `json:"rationale"`
	Actions   []string `json:"actions"`
	Evidence  []string `json:"evidence,omitempty"`
}

// WebAnalysisOutput audits one or two public sites.
type WebAnalysisOutput struct {
	Kind            string           `json:"kind"`
	Question        string           `json:"question"`
	Focus           string           `json:"focus"` // "copy", "color", "ux", "general"
	Answer          string           `json:"answer"`
	Recommendations []Recommendation `json:"recommendations"`
	Sites           []SiteResult     `json:"sites"`
	Note            string           `json:"note,omitempty"`
}

// Open-loop classifications and severities.
const (
	LoopStalled    = "stalled_thread"
	LoopUnanswered = "unanswered_question"
	LoopCommitment = "broken_commitment"
	LoopOwnership  = "ownership_gap"

	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// OpenLoop is one unresolved Slack thread surfaced by the scan.
type OpenLoop struct {
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	Title     string `json:"title"`
	Where     string `json:"where"`
	AgeDays   int    `json:"ageDays"`
	Excerpt   string `json:"excerpt,omitempty"`
	Permalink string `json:"permalink,omitempty"`
}

// Workspace identifies the scanned Slack workspace.
type Workspace struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// SlackOpenLoopsOutput lists the ranked open loops.
type SlackOpenLoopsOutput struct {
	Kind       string     `json:"kind"`
	Workspace  Workspace  `json:"workspace"`
	WindowDays int        `json:"windowDays"`
	Summary    string     `json:"summary"`
	Items      []OpenLoop `json:"items"`
	Note       string     `json:"note,omitempty"`
}

// ClarifyOutput asks the user to resubmit with more detail.
type ClarifyOutput struct {
	Kind              string   `json:"kind"`
	Prompt            string   `json:"prompt"`
	Question          string   `json:"question"`
	SuggestedCommands []string `json:"suggested_commands,omitempty"`
}

// ErrorOutput is the terminal output of a handler that failed.
type ErrorOutput struct {
	Kind    string `json:"kind"`
	Error   string `json:"error"`
	Handler string `json:"handler,omitempty"`
	Intent  string `json:"intent,omitempty"`
}
