package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cliniq/clawd/internal/config"
	"github.com/cliniq/clawd/internal/credentials"
	"github.com/cliniq/clawd/internal/google"
	"github.com/cliniq/clawd/internal/handlers"
	"github.com/cliniq/clawd/internal/runstore"
)

type stubLLM struct{ err error }

func (s *stubLLM) CompleteJSON(context.Context, string, string, string, any) error {
	if s.err != nil {
		return s.err
	}
	return fmt.Errorf("no canned response")
}

type stubGmail struct {
	sent []google.ReplyMessage
}

func (s *stubGmail) ListMessageIDs(context.Context, string, string, int) ([]string, error) {
	return nil, nil
}

func (s *stubGmail) GetMessageMeta(context.Context, string, string) (*google.MessageMeta, error) {
	return nil, fmt.Errorf("not found")
}

func (s *stubGmail) SendReply(_ context.Context, _ string, reply google.ReplyMessage) (string, error) {
	s.sent = append(s.sent, reply)
	return "sent-99", nil
}

type stubCalendar struct {
	inserted []google.EventRequest
}

func (s *stubCalendar) FreeBusy(context.Context, string, string, string, string) ([]google.BusyWindow, error) {
	return nil, nil
}

func (s *stubCalendar) InsertEvent(_ context.Context, _ string, ev google.EventRequest) (*google.CreatedEvent, error) {
	s.inserted = append(s.inserted, ev)
	return &google.CreatedEvent{ID: "ev9", HTMLLink: "https://cal/ev9", Summary: ev.Title}, nil
}

type stubWeb struct{ pages map[string]string }

func (s *stubWeb) Fetch(_ context.Context, u string) (string, error) {
	if html, ok := s.pages[u]; ok {
		return html, nil
	}
	return "", fmt.Errorf("fetch failed 403")
}

type fixture struct {
	srv   *Server
	ts    *httptest.Server
	runs  *runstore.Store
	creds *credentials.MemoryStore
	gmail *stubGmail
	cal   *stubCalendar
	web   *stubWeb
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			Addr:           ":8787",
			PublicBaseURL:  "http://localhost:8787",
			AllowedOrigins: []string{"http://localhost:5173"},
			StateSecret:    "test-secret",
		},
		Google:    config.GoogleConfig{ClientID: "gcid", ClientSecret: "gsec", RedirectURI: "http://localhost:8787/auth/google/callback"},
		Slack:     config.SlackConfig{ClientID: "scid", ClientSecret: "ssec", RedirectURI: "http://localhost:8787/slack/oauth/callback"},
		Assistant: config.AssistantConfig{Timezone: "Asia/Kolkata", UTCOffset: "+05:30", DefaultTime: "11:00", DefaultDuration: 30, TriageLimit: 5, SlackWindowDays: 30, SignatureName: "Partha"},
	}

	gmail := &stubGmail{}
	cal := &stubCalendar{}
	web := &stubWeb{pages: map[string]string{}}
	deps := &handlers.Deps{
		LLM: &stubLLM{err: fmt.Errorf("model down")}, Gmail: gmail, Calendar: cal, Web: web,
		Cfg: cfg.Assistant,
	}

	runs := runstore.NewStore(nil)
	creds := credentials.NewMemoryStore()
	srv := New(cfg, runs, creds, deps)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, ts: ts, runs: runs, creds: creds, gmail: gmail, cal: cal, web: web}
}

func (f *fixture) postJSON(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(body)
	resp, err := http.Post(f.ts.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	return resp, out
}

func (f *fixture) waitDone(t *testing.T, runID string) *runstore.Run {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		run := f.runs.Get(runID)
		if run != nil && run.Status != runstore.StatusRunning {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", runID)
	return nil
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestCreateRunValidation(t *testing.T) {
	f := newFixture(t)
	resp, out := f.postJSON(t, "/run", map[string]string{"userId": "u1"})
	if resp.StatusCode != http.StatusBadRequest || out["error"] != "prompt required" {
		t.Fatalf("expected prompt validation, got %d %v", resp.StatusCode, out)
	}
	resp, out = f.postJSON(t, "/run", map[string]string{"prompt": "hello"})
	if resp.StatusCode != http.StatusBadRequest || out["error"] != "userId required" {
		t.Fatalf("expected userId validation, got %d %v", resp.StatusCode, out)
	}
}

func TestRunWebAnalysisEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.web.pages["https://a.com"] = `<html><head><title>A</title></head><body><h1>Ship faster</h1></body></html>`

	resp, out := f.postJSON(t, "/run", map[string]string{
		"prompt": "analyze https://a.com and suggest improvements",
		"userId": "u1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %v", resp.StatusCode, out)
	}
	runID, _ := out["runId"].(string)
	if !strings.HasPrefix(runID, "run_") {
		t.Fatalf("unexpected run id: %v", out)
	}

	run := f.waitDone(t, runID)
	if run.Status != runstore.StatusDone {
		t.Fatalf("run ended %s: %s", run.Status, run.Error)
	}
	wa, ok := run.FinalOutput.(handlers.WebAnalysisOutput)
	if !ok || wa.Kind != handlers.KindWebAnalysis {
		t.Fatalf("unexpected output: %#v", run.FinalOutput)
	}
	if len(wa.Sites) != 1 || !wa.Sites[0].OK {
		t.Fatalf("unexpected sites: %+v", wa.Sites)
	}
}

func TestRunPermissionGateGoogle(t *testing.T) {
	f := newFixture(t)
	_, out := f.postJSON(t, "/run", map[string]string{
		"prompt": "check my top priority emails today and draft replies",
		"userId": "u1",
	})
	runID := out["runId"].(string)

	run := f.waitDone(t, runID)
	if run.Status != runstore.StatusDone {
		t.Fatalf("gate should finish the run, got %s", run.Status)
	}
	clar, ok := run.FinalOutput.(handlers.ClarifyOutput)
	if !ok || !strings.Contains(clar.Question, "Connect Google") {
		t.Fatalf("expected google clarify, got %#v", run.FinalOutput)
	}

	var sawAuthURL bool
	_, events, _ := f.runs.Snapshot(runID)
	for _, e := range events {
		if e.Message == "Permission required" {
			if u, _ := e.Data["authUrl"].(string); strings.Contains(u, "/auth/google/start?userId=u1") {
				sawAuthURL = true
			}
		}
	}
	if !sawAuthURL {
		t.Fatal("expected a Permission required event carrying the auth URL")
	}
}

func TestRunPermissionGatePassesWithCredentials(t *testing.T) {
	f := newFixture(t)
	f.creds.Upsert(context.Background(), &credentials.Connection{
		UserID: "u1", Provider: credentials.ProviderGoogle, AccessToken: "tok",
	})

	_, out := f.postJSON(t, "/run", map[string]string{
		"prompt": "check my top priority emails today and draft replies",
		"userId": "u1",
	})
	run := f.waitDone(t, out["runId"].(string))
	if run.Status != runstore.StatusDone {
		t.Fatalf("run ended %s: %s", run.Status, run.Error)
	}
	// Empty inbox from the stub Gmail still produces a triage output.
	tri, ok := run.FinalOutput.(handlers.GmailTriageOutput)
	if !ok || tri.Kind != handlers.KindGmailTriage {
		t.Fatalf("expected triage output, got %#v", run.FinalOutput)
	}
}

func TestApproveThenGmailSend(t *testing.T) {
	f := newFixture(t)
	f.creds.Upsert(context.Background(), &credentials.Connection{
		UserID: "u1", Provider: credentials.ProviderGoogle, AccessToken: "tok",
	})

	_, approveOut := f.postJSON(t, "/run/run_abc/approve", map[string]any{
		"action":    "gmail_send",
		"messageId": "m1",
		"toEmail":   "ana@x.com",
	})
	stored := approveOut["stored"].(map[string]any)
	if stored["id"] != "m1" {
		t.Fatalf("unexpected stored approval: %v", approveOut)
	}

	sendBody := map[string]string{
		"runId": "run_abc", "userId": "u1", "messageId": "m1",
		"toEmail": "ana@x.com", "subject": "Budget", "replyText": "Approved.",
		"threadId": "t1",
	}
	resp, out := f.postJSON(t, "/gmail/send", sendBody)
	if resp.StatusCode != http.StatusOK || out["id"] != "sent-99" {
		t.Fatalf("send failed: %d %v", resp.StatusCode, out)
	}
	if len(f.gmail.sent) != 1 || f.gmail.sent[0].To != "ana@x.com" {
		t.Fatalf("unexpected sent reply: %+v", f.gmail.sent)
	}

	// Approval is one-shot.
	resp, out = f.postJSON(t, "/gmail/send", sendBody)
	if resp.StatusCode != http.StatusForbidden || out["error"] != "Not approved (or expired)" {
		t.Fatalf("second send should be rejected, got %d %v", resp.StatusCode, out)
	}
}

func TestGmailSendWithoutApproval(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.postJSON(t, "/gmail/send", map[string]string{
		"runId": "run_x", "userId": "u1", "messageId": "m9",
		"toEmail": "a@b.c", "subject": "s", "replyText": "r",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestCalendarCreateFlow(t *testing.T) {
	f := newFixture(t)
	f.creds.Upsert(context.Background(), &credentials.Connection{
		UserID: "u1", Provider: credentials.ProviderGoogle, AccessToken: "tok",
	})

	f.postJSON(t, "/run/run_cal/approve", map[string]any{
		"action":  "calendar_create",
		"draftId": "draft_run_cal_1",
	})

	resp, out := f.postJSON(t, "/calendar/create", map[string]any{
		"runId": "run_cal", "userId": "u1", "draftId": "draft_run_cal_1",
		"title": "Meeting with Ana",
		"start": "2026-03-12T11:00:00+05:30", "end": "2026-03-12T11:30:00+05:30",
		"createWithoutInvite": true,
		"attendees":           []map[string]string{{"name": "Ana", "email": "ana@x.com"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create failed: %d %v", resp.StatusCode, out)
	}
	if len(f.cal.inserted) != 1 {
		t.Fatal("event not inserted")
	}
	if len(f.cal.inserted[0].Attendees) != 0 {
		t.Fatal("createWithoutInvite should strip attendees")
	}
	if !f.cal.inserted[0].Meet {
		t.Fatal("meet should default to true")
	}
}

func TestCalendarCreateRejectedWithDebug(t *testing.T) {
	f := newFixture(t)
	resp, out := f.postJSON(t, "/calendar/create", map[string]any{
		"runId": "run_cal", "userId": "u1", "draftId": "d1",
		"title": "X", "start": "s", "end": "e",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	debug, ok := out["debug"].(map[string]any)
	if !ok || debug["expected"] != "run_cal:calendar_create:d1" {
		t.Fatalf("expected debug key info, got %v", out)
	}
}

func TestStreamReplaysFinishedRun(t *testing.T) {
	f := newFixture(t)
	run := f.runs.Create("hello")
	f.runs.Emit(run.ID, runstore.LevelInfo, "Run created", nil)
	f.runs.Finish(run.ID, map[string]string{"kind": "clarify"})

	resp, err := http.Get(f.ts.URL + "/run/" + run.ID + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %s", ct)
	}
	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	body := buf.String()
	if !strings.Contains(body, "event: hello") || !strings.Contains(body, "Run created") {
		t.Fatalf("stream missing replay:\n%s", body)
	}
}

func TestStreamDeliversTerminalEnvelopeOnLiveRun(t *testing.T) {
	f := newFixture(t)
	run := f.runs.Create("hello")

	resp, err := http.Get(f.ts.URL + "/run/" + run.ID + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	// Finish the run only after the stream is open: the done envelope
	// must arrive either via replay or via the live channel, never fall
	// between the two.
	f.runs.Emit(run.ID, runstore.LevelInfo, "Run created", nil)
	f.runs.Finish(run.ID, map[string]string{"kind": "clarify"})

	buf := new(bytes.Buffer)
	buf.ReadFrom(resp.Body)
	body := buf.String()
	if !strings.Contains(body, "event: hello") || !strings.Contains(body, "Run created") {
		t.Fatalf("stream missing events:\n%s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Fatalf("stream missing terminal envelope:\n%s", body)
	}
}

func TestStreamUnknownRun(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.ts.URL + "/run/run_nope/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetRun(t *testing.T) {
	f := newFixture(t)
	run := f.runs.Create("hi")
	f.runs.Fail(run.ID, "boom")

	resp, out := func() (*http.Response, map[string]any) {
		resp, err := http.Get(f.ts.URL + "/run/" + run.ID)
		if err != nil {
			t.Fatal(err)
		}
		var m map[string]any
		json.NewDecoder(resp.Body).Decode(&m)
		resp.Body.Close()
		return resp, m
	}()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	info := out["run"].(map[string]any)
	if info["status"] != "failed" || info["error"] != "boom" {
		t.Fatalf("unexpected run info: %v", info)
	}
}

func TestStateSignAndParse(t *testing.T) {
	f := newFixture(t)
	state, err := f.srv.signState("u1", "run_9", []string{"google_gmail"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := f.srv.parseState(state)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u1" || claims.RunID != "run_9" || len(claims.Perms) != 1 {
		t.Fatalf("claims round trip: %+v", claims)
	}

	f.srv.cfg.Server.StateSecret = "other-secret"
	if _, err := f.srv.parseState(state); err == nil {
		t.Fatal("tampered secret should fail verification")
	}
}

func TestGoogleStartRedirects(t *testing.T) {
	f := newFixture(t)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(f.ts.URL + "/auth/google/start?userId=u1&perms=google_gmail,google_calendar")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if !strings.Contains(loc, "accounts.google.com") || !strings.Contains(loc, "state=") {
		t.Fatalf("unexpected location: %s", loc)
	}
}

func TestCORSHeaders(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodOptions, f.ts.URL+"/run", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatal("allowed origin not mirrored")
	}

	req, _ = http.NewRequest(http.MethodOptions, f.ts.URL+"/run", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unknown origin must not be allowed")
	}
}
