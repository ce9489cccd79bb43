package slackwork

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newStub(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL + "/")
}

func TestListConversationsTwoTypePasses(t *testing.T) {
	var typeParams []string
	_, c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "conversations.list") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		r.ParseForm()
		types := r.Form.Get("types")
		typeParams = append(typeParams, types)
		channels := []map[string]any{}
		if strings.Contains(types, "public_channel") {
			channels = append(channels, map[string]any{"id": "C1", "name": "eng"})
		} else {
			channels = append(channels, map[string]any{"id": "D1", "is_im": true})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ok":                true,
			"channels":          channels,
			"response_metadata": map[string]string{"next_cursor": ""},
		})
	})

	convs, err := c.ListConversations(context.Background(), "xoxp-test")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if len(typeParams) != 2 {
		t.Fatalf("expected 2 list calls, got %d", len(typeParams))
	}
	if !strings.Contains(typeParams[0], "private_channel") || !strings.Contains(typeParams[1], "im") {
		t.Fatalf("unexpected type passes: %v", typeParams)
	}
	if convs[0].Label() != "#eng" || convs[1].Label() != "DM" {
		t.Fatalf("unexpected labels: %s %s", convs[0].Label(), convs[1].Label())
	}
}

func TestRecentMessagesSkipsSubtypesAndEmpty(t *testing.T) {
	_, c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"type": "message", "ts": "1700000300.1", "user": "U1", "text": "can you review the PR?", "reply_count": 0},
				{"type": "message", "ts": "1700000200.1", "user": "U2", "text": "U3 joined", "subtype": "channel_join"},
				{"type": "message", "ts": "1700000100.1", "user": "U3", "text": "   "},
				{"type": "message", "ts": "1700000000.1", "user": "U1", "text": "I'll ship it friday", "thread_ts": "1700000000.1", "reply_count": 4},
			},
			"response_metadata": map[string]string{"next_cursor": ""},
		})
	})

	msgs, err := c.RecentMessages(context.Background(), "xoxp-test",
		Conversation{ID: "C1", Name: "eng"}, time.Now().Add(-30*24*time.Hour), 220)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after filtering, got %d", len(msgs))
	}
	if msgs[0].Text != "can you review the PR?" || msgs[0].ChannelName != "#eng" {
		t.Fatalf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].ThreadTS != "1700000000.1" || msgs[1].ReplyCount != 4 {
		t.Fatalf("thread fields lost: %+v", msgs[1])
	}
}

func TestRecentMessagesHonorsLimit(t *testing.T) {
	msgsJSON := []map[string]any{}
	for i := 0; i < 10; i++ {
		msgsJSON = append(msgsJSON, map[string]any{
			"type": "message", "ts": "1700000000.1", "user": "U1", "text": "hello",
		})
	}
	_, c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"ok":                true,
			"messages":          msgsJSON,
			"response_metadata": map[string]string{"next_cursor": "more"},
		})
	})

	msgs, err := c.RecentMessages(context.Background(), "xoxp-test",
		Conversation{ID: "C1"}, time.Now().Add(-time.Hour), 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("limit not honored: got %d", len(msgs))
	}
}

func TestPermalink(t *testing.T) {
	_, c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "chat.getPermalink") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"ok":        true,
			"permalink": "https://ws.slack.com/archives/C1/p1700000000",
		})
	})

	link, err := c.Permalink(context.Background(), "xoxp-test", "C1", "1700000000.1")
	if err != nil {
		t.Fatalf("permalink: %v", err)
	}
	if !strings.Contains(link, "archives/C1") {
		t.Fatalf("unexpected permalink: %s", link)
	}
}

func TestAuthURL(t *testing.T) {
	u := AuthURL("cid", "http://localhost:8787/auth/slack/callback", "state-token")
	for _, want := range []string{
		"slack.com/oauth/v2/authorize",
		"client_id=cid",
		"state=state-token",
		"channels%3Ahistory",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("auth url missing %q: %s", want, u)
		}
	}
}
