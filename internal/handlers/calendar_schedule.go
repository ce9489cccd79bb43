package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cliniq/clawd/internal/runstore"
)

var monthNums = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04", "may": "05", "jun": "06",
	"jul": "07", "aug": "08", "sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

var (
	dayMonthYearPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)?\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\s+(20\d{2})\b`)
	isoDatePattern      = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	tzOffsetPattern     = regexp.MustCompile(`[+-]\d\d:\d\d$`)
	emailPattern        = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)
)

// parseDateFromPrompt recognizes "13th October 2026" and "2026-10-13"
// forms directly, so a flaky model cannot lose an explicit date.
func parseDateFromPrompt(prompt string) string {
	p := strings.ToLower(prompt)

	if m := dayMonthYearPattern.FindStringSubmatch(p); m != nil {
		dd := m[1]
		if len(dd) == 1 {
			dd = "0" + dd
		}
		if mm := monthNums[m[3][:3]]; mm != "" {
			return m[4] + "-" + mm + "-" + dd
		}
	}
	if m := isoDatePattern.FindStringSubmatch(p); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3]
	}
	return ""
}

// safeIsoWithOffset keeps a full ISO timestamp as-is and tags a bare
// local one with the configured UTC offset.
func safeIsoWithOffset(iso, offset string) string {
	if tzOffsetPattern.MatchString(iso) || strings.HasSuffix(iso, "Z") {
		return iso
	}
	return iso + offset
}

// addMinutes shifts an ISO timestamp, keeping its zone offset.
func addMinutes(iso string, mins int) (string, error) {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", iso, err)
	}
	return t.Add(time.Duration(mins) * time.Minute).Format(time.RFC3339), nil
}

func extractEmailMaybe(s string) string {
	return emailPattern.FindString(s)
}

type eventFields struct {
	Title         string `json:"title"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	DurationMins  int    `json:"durationMins"`
	AttendeeName  string `json:"attendeeName"`
	AttendeeEmail string `json:"attendeeEmail"`
}

func calendarSchedule(ctx context.Context, deps *Deps, req Request, emit EmitFunc) (any, error) {
	emit(runstore.LevelInfo, "Calendar: parsing prompt", map[string]any{"prompt": req.Prompt})

	cfg := deps.Cfg
	timezone := cfg.Timezone
	if timezone == "" {
		timezone = "Asia/Kolkata"
	}
	offset := cfg.UTCOffset
	if offset == "" {
		offset = "+05:30"
	}
	defaultTime := cfg.DefaultTime
	if defaultTime == "" {
		defaultTime = "11:00"
	}
	defaultDuration := cfg.DefaultDuration
	if defaultDuration <= 0 {
		defaultDuration = 30
	}

	dateHint := parseDateFromPrompt(req.Prompt)

	system := fmt.Sprintf(`You extract calendar event details for a busy founder in India.

Return JSON only.

Rules:
- timezone must be %q
- If time is missing, choose a sensible default time: %s local.
- durationMins default %d if missing.
- If attendee email is not present in the prompt, leave attendee.email empty and set createWithoutInvite=true.
- Title should be short and human. Use "Meeting with <Name>" if attendee exists.

Return fields:
- title
- date (YYYY-MM-DD) if mentioned, else empty string
- time (HH:mm) 24h if mentioned, else empty string
- durationMins (number)
- attendeeName (string, may be empty)
- attendeeEmail (string, may be empty)
`, timezone, defaultTime, defaultDuration)

	schemaHint := fmt.Sprintf(`{
  "title": "string",
  "date": "string",
  "time": "string",
  "durationMins": %d,
  "attendeeName": "string",
  "attendeeEmail": "string"
}`, defaultDuration)

	var parsed eventFields
	if err := deps.LLM.CompleteJSON(ctx, system, req.Prompt, schemaHint, &parsed); err != nil {
		emit(runstore.LevelWarn, "Calendar: model extraction failed, relying on prompt parsing", map[string]any{"error": err.Error()})
	}

	date := strings.TrimSpace(dateHint)
	if date == "" {
		date = strings.TrimSpace(parsed.Date)
	}
	if date == "" {
		// Creating an event without a date is never safe.
		emit(runstore.LevelWarn, "Calendar: missing date in prompt. Need a date to proceed.", nil)
		return ClarifyOutput{
			Kind:     KindClarify,
			Prompt:   req.Prompt,
			Question: "Which date should I schedule this on? (e.g., 3 March, 10 AM)",
			SuggestedCommands: []string{
				"Schedule a meeting with Prajwalita on 3rd March at 11 AM",
				"Schedule a 30-min meeting tomorrow at 4 PM",
			},
		}, nil
	}

	startTime := strings.TrimSpace(parsed.Time)
	if startTime == "" {
		startTime = defaultTime
	}
	duration := parsed.DurationMins
	if duration <= 0 {
		duration = defaultDuration
	}

	startLocal := safeIsoWithOffset(date+"T"+startTime+":00", offset)
	endLocal, err := addMinutes(startLocal, duration)
	if err != nil {
		return nil, fmt.Errorf("calendar: bad start timestamp: %w", err)
	}

	attendeeName := strings.TrimSpace(parsed.AttendeeName)
	attendeeEmail := extractEmailMaybe(parsed.AttendeeEmail)
	var attendees []DraftAttendee
	if attendeeName != "" || attendeeEmail != "" {
		attendees = append(attendees, DraftAttendee{Name: attendeeName, Email: attendeeEmail})
	}
	createWithoutInvite := len(attendees) > 0 && attendeeEmail == ""

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		if attendeeName != "" {
			title = "Meeting with " + attendeeName
		} else {
			title = "Meeting"
		}
	}

	draft := EventDraft{
		DraftID:             fmt.Sprintf("draft_%s_%d", req.RunID, deps.now().UnixMilli()),
		Title:               title,
		Start:               startLocal,
		End:                 endLocal,
		Timezone:            timezone,
		Meet:                true,
		Attendees:           attendees,
		CreateWithoutInvite: createWithoutInvite,
	}
	if createWithoutInvite {
		draft.Notes = []string{
			"Attendee email is missing — I can create the event without an invite.",
			"You can add the attendee later once you have the email.",
		}
	}

	// Availability check is best-effort; a failure only costs the note.
	if req.GoogleToken != "" && deps.Calendar != nil {
		emit(runstore.LevelInfo, "Calendar: checking availability", nil)
		busy, err := deps.Calendar.FreeBusy(ctx, req.GoogleToken, startLocal, endLocal, timezone)
		switch {
		case err != nil:
			emit(runstore.LevelWarn, "Calendar: availability check skipped/failed", map[string]any{"error": err.Error()})
		case len(busy) > 0:
			draft.Notes = append(draft.Notes,
				"Your calendar looks busy in that window. You can still create it, but you may want to adjust the time.")
			emit(runstore.LevelWarn, "Calendar: time conflicts detected", map[string]any{"busy": busy})
		default:
			emit(runstore.LevelInfo, "Calendar: time looks free.", nil)
		}
	} else {
		emit(runstore.LevelWarn, "Calendar: availability check skipped/failed", map[string]any{"error": "missing Calendar token"})
	}

	emit(runstore.LevelInfo, "Calendar: draft prepared", map[string]any{"draft": draft})

	return CalendarScheduleOutput{
		Kind:       KindCalendarSchedule,
		DraftEvent: draft,
		Note:       "Ready for approval to create the event.",
	}, nil
}
