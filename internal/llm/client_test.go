package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func TestCompleteJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", auth)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		msgs := req["messages"].([]any)
		system := msgs[0].(map[string]any)["content"].(string)
		if !strings.Contains(system, "Return ONLY valid JSON. Schema:") {
			t.Errorf("schema hint not appended: %s", system)
		}
		w.Write([]byte(completionBody(`{"title":"Meeting with Sam","durationMins":30}`)))
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, "", 0.2)
	var out struct {
		Title        string `json:"title"`
		DurationMins int    `json:"durationMins"`
	}
	err := c.CompleteJSON(context.Background(), "extract", "schedule with Sam", `{"title":"string"}`, &out)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if out.Title != "Meeting with Sam" || out.DurationMins != 30 {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestCompleteJSONAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, "", 0)
	var out map[string]any
	if err := c.CompleteJSON(context.Background(), "s", "u", "", &out); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestCompleteJSONNonJSONContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("sure! here's the JSON you asked for")))
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, "", 0)
	var out map[string]any
	if err := c.CompleteJSON(context.Background(), "s", "u", "", &out); err == nil {
		t.Fatal("expected error when content is not JSON")
	}
}

func TestCompleteJSONMissingKey(t *testing.T) {
	c := NewClient("", "http://localhost:1", "", 0)
	var out map[string]any
	if err := c.CompleteJSON(context.Background(), "s", "u", "", &out); err == nil {
		t.Fatal("expected error without API key")
	}
}
