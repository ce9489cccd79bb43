package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Gmail is a minimal Gmail API client over the REST surface.
type Gmail struct {
	apiBase    string
	httpClient *http.Client
}

// NewGmail creates a Gmail client. apiBase overrides are for tests.
func NewGmail(apiBase string) *Gmail {
	if apiBase == "" {
		apiBase = "https://gmail.googleapis.com/gmail/v1"
	}
	return &Gmail{
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// MessageMeta is the metadata slice of one message used for triage.
type MessageMeta struct {
	ID           string
	ThreadID     string
	From         string
	ReplyTo      string
	Subject      string
	Snippet      string
	RFCMessageID string
}

func (g *Gmail) doJSON(ctx context.Context, token, method, u string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("gmail: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmail: execute request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("gmail: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gmail: API error (status %d): %s", resp.StatusCode, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("gmail: parse response: %w", err)
		}
	}
	return nil
}

// ListMessageIDs runs a search query and returns up to max message ids.
func (g *Gmail) ListMessageIDs(ctx context.Context, token, query string, max int) ([]string, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("maxResults", strconv.Itoa(max))

	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	u := g.apiBase + "/users/me/messages?" + q.Encode()
	if err := g.doJSON(ctx, token, http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// GetMessageMeta fetches the headers and snippet of one message.
func (g *Gmail) GetMessageMeta(ctx context.Context, token, id string) (*MessageMeta, error) {
	q := url.Values{}
	q.Set("format", "metadata")
	for _, h := range []string{"From", "Reply-To", "Subject", "Date", "Message-ID", "References"} {
		q.Add("metadataHeaders", h)
	}

	var resp struct {
		ID       string `json:"id"`
		ThreadID string `json:"threadId"`
		Snippet  string `json:"snippet"`
		Payload  struct {
			Headers []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"headers"`
		} `json:"payload"`
	}
	u := g.apiBase + "/users/me/messages/" + url.PathEscape(id) + "?" + q.Encode()
	if err := g.doJSON(ctx, token, http.MethodGet, u, nil, &resp); err != nil {
		return nil, err
	}

	header := func(name string) string {
		for _, h := range resp.Payload.Headers {
			if strings.EqualFold(h.Name, name) {
				return h.Value
			}
		}
		return ""
	}
	return &MessageMeta{
		ID:           resp.ID,
		ThreadID:     resp.ThreadID,
		From:         header("From"),
		ReplyTo:      header("Reply-To"),
		Subject:      header("Subject"),
		Snippet:      resp.Snippet,
		RFCMessageID: header("Message-ID"),
	}, nil
}

// SendReply encodes and sends an RFC-822 reply, threading it when a
// thread id is supplied. Returns the sent message id.
func (g *Gmail) SendReply(ctx context.Context, token string, reply ReplyMessage) (string, error) {
	raw := base64.RawURLEncoding.EncodeToString([]byte(reply.RFC822()))
	payload := map[string]any{"raw": raw}
	if reply.ThreadID != "" {
		payload["threadId"] = reply.ThreadID
	}
	body, _ := json.Marshal(payload)

	var resp struct {
		ID string `json:"id"`
	}
	u := g.apiBase + "/users/me/messages/send"
	if err := g.doJSON(ctx, token, http.MethodPost, u, bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// ReplyMessage carries the fields of an outgoing reply.
type ReplyMessage struct {
	To         string
	Subject    string
	Body       string
	ThreadID   string
	InReplyTo  string
	References string
}

var reSubject = regexp.MustCompile(`(?i)^re:`)

// NormalizeReSubject prefixes "Re: " unless the subject already has it.
func NormalizeReSubject(subject string) string {
	s := strings.TrimSpace(subject)
	if s == "" {
		return "Re:"
	}
	if reSubject.MatchString(s) {
		return s
	}
	return "Re: " + s
}

// RFC822 renders the reply as a raw RFC-822 message with reply threading
// headers when available.
func (r ReplyMessage) RFC822() string {
	lines := []string{
		"To: " + r.To,
		"Subject: " + NormalizeReSubject(r.Subject),
		`Content-Type: text/plain; charset="UTF-8"`,
		"MIME-Version: 1.0",
	}
	if r.InReplyTo != "" {
		lines = append(lines, "In-Reply-To: "+r.InReplyTo)
	}
	if r.References != "" {
		lines = append(lines, "References: "+r.References)
	}
	lines = append(lines, "", strings.TrimSpace(r.Body)+"\r\n")
	return strings.Join(lines, "\r\n")
}

var emailAngle = regexp.MustCompile(`<([^>]+)>`)

// ExtractEmailAddress pulls the bare address out of a From/Reply-To
// header, falling back to the raw value.
func ExtractEmailAddress(from string) string {
	if m := emailAngle.FindStringSubmatch(from); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(from)
}
