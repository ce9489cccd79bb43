// Package slackwork wraps the Slack Web API surface used by the
// open-loop scan: conversation listing, trailing-window history, and
// permalink resolution, plus the OAuth v2 flow.
package slackwork

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

// Conversation is one channel, DM, or group DM.
type Conversation struct {
	ID     string
	Name   string
	IsIM   bool
	IsMPIM bool
}

// Label renders the human-facing location name.
func (c Conversation) Label() string {
	if c.Name != "" {
		return "#" + c.Name
	}
	if c.IsIM {
		return "DM"
	}
	return "Channel"
}

// Message is one Slack message relevant to loop detection.
type Message struct {
	Channel     string
	ChannelName string
	TS          string
	User        string
	Text        string
	ThreadTS    string
	ReplyCount  int
}

// Client scans a workspace with a user token.
type Client struct {
	apiURL string
}

// NewClient creates a scan client. apiURL overrides the Slack endpoint
// for tests; it must end with a slash when set.
func NewClient(apiURL string) *Client {
	return &Client{apiURL: apiURL}
}

func (c *Client) api(token string) *slack.Client {
	opts := []slack.Option{}
	if c.apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(c.apiURL))
	}
	return slack.New(token, opts...)
}

// listPages caps pagination per conversation type group.
const listPages = 20

// ListConversations pages through channels, then IMs and group DMs,
// excluding archived conversations.
func (c *Client) ListConversations(ctx context.Context, token string) ([]Conversation, error) {
	api := c.api(token)
	var all []Conversation

	page := func(types []string) error {
		cursor := ""
		for i := 0; i < listPages; i++ {
			channels, next, err := api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
				Limit:           200,
				Cursor:          cursor,
				Types:           types,
				ExcludeArchived: true,
			})
			if err != nil {
				return fmt.Errorf("slack: list conversations: %w", err)
			}
			for _, ch := range channels {
				all = append(all, Conversation{
					ID:     ch.ID,
					Name:   ch.Name,
					IsIM:   ch.IsIM,
					IsMPIM: ch.IsMpIM,
				})
			}
			if next == "" {
				break
			}
			cursor = next
		}
		return nil
	}

	if err := page([]string{"public_channel", "private_channel"}); err != nil {
		return nil, err
	}
	if err := page([]string{"im", "mpim"}); err != nil {
		return nil, err
	}
	return all, nil
}

// historyPages caps pagination within one conversation.
const historyPages = 12

// RecentMessages pulls messages newer than oldest from one conversation,
// skipping subtyped (joins, edits) and empty messages, up to limit.
func (c *Client) RecentMessages(ctx context.Context, token string, conv Conversation, oldest time.Time, limit int) ([]Message, error) {
	api := c.api(token)
	var out []Message
	cursor := ""
	oldestTS := fmt.Sprintf("%d", oldest.Unix())

	for i := 0; i < historyPages; i++ {
		resp, err := api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: conv.ID,
			Limit:     200,
			Cursor:    cursor,
			Oldest:    oldestTS,
		})
		if err != nil {
			return nil, fmt.Errorf("slack: conversation history: %w", err)
		}
		for _, m := range resp.Messages {
			text := strings.Join(strings.Fields(m.Text), " ")
			if text == "" || m.SubType != "" {
				continue
			}
			out = append(out, Message{
				Channel:     conv.ID,
				ChannelName: conv.Label(),
				TS:          m.Timestamp,
				User:        m.User,
				Text:        text,
				ThreadTS:    m.ThreadTimestamp,
				ReplyCount:  m.ReplyCount,
			})
			if len(out) >= limit {
				return out, nil
			}
		}
		cursor = resp.ResponseMetaData.NextCursor
		if cursor == "" {
			break
		}
	}
	return out, nil
}

// Permalink resolves the canonical link for one message.
func (c *Client) Permalink(ctx context.Context, token, channel, ts string) (string, error) {
	link, err := c.api(token).GetPermalinkContext(ctx, &slack.PermalinkParameters{
		Channel: channel,
		Ts:      ts,
	})
	if err != nil {
		return "", fmt.Errorf("slack: permalink: %w", err)
	}
	return link, nil
}

// oauthScopes are the read-only scopes requested for open-loop scans.
var oauthScopes = []string{
	"channels:read", "channels:history",
	"groups:read", "groups:history",
	"im:read", "im:history",
	"mpim:read", "mpim:history",
	"users:read", "users:read.email",
}

// AuthURL builds the Slack OAuth v2 consent URL.
func AuthURL(clientID, redirectURI, state string) string {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("scope", strings.Join(oauthScopes, ","))
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	return "https://slack.com/oauth/v2/authorize?" + q.Encode()
}

// ExchangeResult is the outcome of an OAuth v2 code exchange. The user
// token is preferred over the bot token when both are granted.
type ExchangeResult struct {
	AccessToken string
	TeamID      string
	TeamName    string
	UserID      string
}

// Exchange trades an authorization code for a workspace token.
func Exchange(ctx context.Context, clientID, clientSecret, code, redirectURI string) (*ExchangeResult, error) {
	resp, err := slack.GetOAuthV2ResponseContext(ctx, &http.Client{Timeout: 20 * time.Second},
		clientID, clientSecret, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("slack: oauth exchange: %w", err)
	}
	token := resp.AuthedUser.AccessToken
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		return nil, fmt.Errorf("slack: oauth exchange returned no access token")
	}
	return &ExchangeResult{
		AccessToken: token,
		TeamID:      resp.Team.ID,
		TeamName:    resp.Team.Name,
		UserID:      resp.AuthedUser.ID,
	}, nil
}
