package handlers

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cliniq/clawd/internal/runstore"
	"github.com/cliniq/clawd/internal/slackwork"
)

const (
	maxScannedConversations = 35
	maxMessagesPerConv      = 220
	openLoopLimit           = 12
)

var (
	questionPattern   = regexp.MustCompile(`\b(can we|should we|how do|why|what do we|what should)\b`)
	commitmentPattern = regexp.MustCompile(`\b(i('| a)m|i will|i'll|let me|i can|i can do|i will do)\b`)
	ownershipPattern  = regexp.MustCompile(`\b(someone should|we should|needs to be|it would be good to|can someone)\b`)
	mentionPattern    = regexp.MustCompile(`(?i)@[a-z0-9._-]+`)
	closurePattern    = regexp.MustCompile(`\b(done|shipped|merged|fixed|resolved|closed|decided|approved|pushed)\b`)
)

func looksLikeQuestion(t string) bool {
	s := strings.ToLower(t)
	return strings.Contains(s, "?") || questionPattern.MatchString(s)
}

func looksLikeCommitment(t string) bool {
	return commitmentPattern.MatchString(strings.ToLower(t))
}

func looksLikeOwnershipGap(t string) bool {
	return ownershipPattern.MatchString(strings.ToLower(t)) && !mentionPattern.MatchString(t)
}

func looksLikeClosure(t string) bool {
	return closurePattern.MatchString(strings.ToLower(t))
}

func tsSeconds(ts string) float64 {
	f, _ := strconv.ParseFloat(ts, 64)
	return f
}

func ageInDays(now time.Time, tsSec float64) int {
	d := int(now.Sub(time.Unix(int64(tsSec), 0)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func excerpt(t string) string {
	return truncateBytes(t, 160)
}

var severityWeight = map[string]int{
	SeverityHigh:   30,
	SeverityMedium: 18,
	SeverityLow:    8,
}

func severityForAge(age, highAt int) string {
	if age >= highAt {
		return SeverityHigh
	}
	return SeverityMedium
}

// classifyThread turns one thread into zero or more open-loop items.
// A closure keyword anywhere in the thread suppresses everything.
func classifyThread(now time.Time, msgs []slackwork.Message) []OpenLoop {
	root := msgs[0]
	last := msgs[len(msgs)-1]
	age := ageInDays(now, tsSeconds(last.TS))
	text := root.Text

	for _, m := range msgs {
		if looksLikeClosure(m.Text) {
			return nil
		}
	}

	var items []OpenLoop
	if len(msgs) >= 6 && age >= 5 {
		items = append(items, OpenLoop{
			Type: LoopStalled, Severity: severityForAge(age, 10),
			Title: "Stalled thread", Where: root.ChannelName,
			AgeDays: age, Excerpt: excerpt(text),
		})
	}

	replyCount := root.ReplyCount
	if replyCount == 0 {
		replyCount = len(msgs) - 1
	}
	if looksLikeQuestion(text) && replyCount <= 1 && age >= 3 {
		items = append(items, OpenLoop{
			Type: LoopUnanswered, Severity: severityForAge(age, 7),
			Title: "Unanswered question", Where: root.ChannelName,
			AgeDays: age, Excerpt: excerpt(text),
		})
	}
	if looksLikeCommitment(text) && age >= 2 {
		items = append(items, OpenLoop{
			Type: LoopCommitment, Severity: severityForAge(age, 7),
			Title: "Possibly broken commitment", Where: root.ChannelName,
			AgeDays: age, Excerpt: excerpt(text),
		})
	}
	if looksLikeOwnershipGap(text) && age >= 2 {
		items = append(items, OpenLoop{
			Type: LoopOwnership, Severity: SeverityLow,
			Title: "Ownership gap", Where: root.ChannelName,
			AgeDays: age, Excerpt: excerpt(text),
		})
	}
	return items
}

func slackOpenLoops(ctx context.Context, deps *Deps, req Request, emit EmitFunc) (any, error) {
	if req.SlackToken == "" {
		return nil, fmt.Errorf("missing Slack token (did OAuth complete?)")
	}

	windowDays := deps.Cfg.SlackWindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	now := deps.now()
	oldest := now.Add(-time.Duration(windowDays) * 24 * time.Hour)

	emit(runstore.LevelInfo, "Slack: listing conversations", nil)
	convs, err := deps.Slack.ListConversations(ctx, req.SlackToken)
	if err != nil {
		return nil, err
	}
	emit(runstore.LevelInfo, "Slack: pulling recent messages", map[string]any{
		"conversations": len(convs),
		"windowDays":    windowDays,
	})

	picked := convs
	if len(picked) > maxScannedConversations {
		picked = picked[:maxScannedConversations]
	}

	var allMsgs []slackwork.Message
	for _, c := range picked {
		msgs, err := deps.Slack.RecentMessages(ctx, req.SlackToken, c, oldest, maxMessagesPerConv)
		if err != nil {
			emit(runstore.LevelWarn, "Slack: conversation skipped", map[string]any{"conv": c.Label(), "error": err.Error()})
			continue
		}
		allMsgs = append(allMsgs, msgs...)
	}

	sort.Slice(allMsgs, func(i, j int) bool {
		return tsSeconds(allMsgs[i].TS) < tsSeconds(allMsgs[j].TS)
	})

	byThread := make(map[string][]slackwork.Message)
	var threadOrder []string
	for _, m := range allMsgs {
		threadTS := m.ThreadTS
		if threadTS == "" {
			threadTS = m.TS
		}
		key := m.Channel + ":" + threadTS
		if _, ok := byThread[key]; !ok {
			threadOrder = append(threadOrder, key)
		}
		byThread[key] = append(byThread[key], m)
	}

	var items []OpenLoop
	for _, key := range threadOrder {
		items = append(items, classifyThread(now, byThread[key])...)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return severityWeight[items[i].Severity]+items[i].AgeDays >
			severityWeight[items[j].Severity]+items[j].AgeDays
	})
	if len(items) > openLoopLimit {
		items = items[:openLoopLimit]
	}
	if items == nil {
		items = []OpenLoop{}
	}

	// Permalinks are best-effort; the scan result stands without them.
	for i := range items {
		prefix := items[i].Excerpt
		if len(prefix) > 40 {
			prefix = prefix[:40]
		}
		for _, m := range allMsgs {
			if m.ChannelName == items[i].Where && strings.HasPrefix(m.Text, prefix) {
				if link, err := deps.Slack.Permalink(ctx, req.SlackToken, m.Channel, m.TS); err == nil {
					items[i].Permalink = link
				}
				break
			}
		}
	}

	summary := fmt.Sprintf("Found %d high-leverage open loops to close (sampled %d conversations).", len(items), len(picked))
	if len(items) == 0 {
		summary = fmt.Sprintf("No obvious open loops detected in the last %d days (based on sampled channels).", windowDays)
	}

	out := SlackOpenLoopsOutput{
		Kind:       KindSlackOpenLoops,
		Workspace:  Workspace{ID: req.TeamID, Name: req.TeamName},
		WindowDays: windowDays,
		Summary:    summary,
		Items:      items,
	}
	if len(convs) > maxScannedConversations {
		out.Note = fmt.Sprintf("Sampled %d conversations for speed.", maxScannedConversations)
	}
	return out, nil
}
