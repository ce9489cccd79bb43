package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Calendar is a minimal Google Calendar API client.
type Calendar struct {
	apiBase    string
	httpClient *http.Client
}

// NewCalendar creates a Calendar client. apiBase overrides are for tests.
func NewCalendar(apiBase string) *Calendar {
	if apiBase == "" {
		apiBase = "https://www.googleapis.com/calendar/v3"
	}
	return &Calendar{
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Calendar) doJSON(ctx context.Context, token, method, u string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("calendar: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calendar: execute request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("calendar: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("calendar: API error (status %d): %s", resp.StatusCode, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("calendar: parse response: %w", err)
		}
	}
	return nil
}

// BusyWindow is one occupied interval from a freebusy response.
type BusyWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// FreeBusy queries the primary calendar for busy windows in [start, end).
func (c *Calendar) FreeBusy(ctx context.Context, token, startISO, endISO, timezone string) ([]BusyWindow, error) {
	payload := map[string]any{
		"timeMin":  startISO,
		"timeMax":  endISO,
		"timeZone": timezone,
		"items":    []map[string]string{{"id": "primary"}},
	}
	body, _ := json.Marshal(payload)

	var resp struct {
		Calendars map[string]struct {
			Busy []BusyWindow `json:"busy"`
		} `json:"calendars"`
	}
	if err := c.doJSON(ctx, token, http.MethodPost, c.apiBase+"/freeBusy", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return resp.Calendars["primary"].Busy, nil
}

// EventAttendee is one invitee on an event insert.
type EventAttendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// EventRequest describes an event to create on the primary calendar.
type EventRequest struct {
	Title     string
	StartISO  string
	EndISO    string
	Timezone  string
	Meet      bool
	Attendees []EventAttendee
}

// CreatedEvent is the subset of the insert response surfaced to clients.
type CreatedEvent struct {
	ID          string `json:"id"`
	HTMLLink    string `json:"htmlLink"`
	HangoutLink string `json:"hangoutLink"`
	Summary     string `json:"summary"`
}

// InsertEvent creates the event, requesting a Meet conference when asked.
func (c *Calendar) InsertEvent(ctx context.Context, token string, ev EventRequest) (*CreatedEvent, error) {
	body := map[string]any{
		"summary": ev.Title,
		"start":   map[string]string{"dateTime": ev.StartISO, "timeZone": ev.Timezone},
		"end":     map[string]string{"dateTime": ev.EndISO, "timeZone": ev.Timezone},
	}
	if len(ev.Attendees) > 0 {
		body["attendees"] = ev.Attendees
	}
	confVersion := 0
	if ev.Meet {
		confVersion = 1
		body["conferenceData"] = map[string]any{
			"createRequest": map[string]any{
				"requestId":             "clawd_" + uuid.NewString(),
				"conferenceSolutionKey": map[string]string{"type": "hangoutsMeet"},
			},
		}
	}
	payload, _ := json.Marshal(body)

	var created CreatedEvent
	u := fmt.Sprintf("%s/calendars/primary/events?conferenceDataVersion=%d", c.apiBase, confVersion)
	if err := c.doJSON(ctx, token, http.MethodPost, u, bytes.NewReader(payload), &created); err != nil {
		return nil, err
	}
	return &created, nil
}
