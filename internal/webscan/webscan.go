// Package webscan fetches public web pages and extracts the structural
// signals used by the public-site analysis handler: titles, headings,
// calls to action, navigation, color palette, and copy metrics.
package webscan

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
)

const userAgent = "ClawdBot/1.0 (public web analysis)"

// Scanner fetches and dissects public pages.
type Scanner struct {
	httpClient *http.Client
}

// NewScanner creates a Scanner with the given fetch timeout.
func NewScanner(timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Scanner{httpClient: &http.Client{Timeout: timeout}}
}

// Fetch downloads one page as HTML. Non-2xx statuses are errors.
func (s *Scanner) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("webscan: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("webscan: fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("webscan: fetch %s: status %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("webscan: read %s: %w", pageURL, err)
	}
	return string(body), nil
}

var (
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// StripTags removes scripts, styles, and markup, collapsing whitespace.
func StripTags(html string) string {
	s := scriptPattern.ReplaceAllString(html, " ")
	s = tagPattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// Title returns the document title, stripped and collapsed.
func Title(html string) string {
	if m := titlePattern.FindStringSubmatch(html); len(m) == 2 {
		return StripTags(m[1])
	}
	return ""
}

// MetaContent reads the content attribute of a named meta tag. It
// accepts both name= and property= forms in either attribute order.
func MetaContent(html, name string) string {
	pats := []string{
		`(?is)<meta[^>]+(?:name|property)=["']` + regexp.QuoteMeta(name) + `["'][^>]+content=["']([^"']*)["']`,
		`(?is)<meta[^>]+content=["']([^"']*)["'][^>]+(?:name|property)=["']` + regexp.QuoteMeta(name) + `["']`,
	}
	for _, p := range pats {
		if m := regexp.MustCompile(p).FindStringSubmatch(html); len(m) == 2 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

var (
	h1Pattern = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	h2Pattern = regexp.MustCompile(`(?is)<h2[^>]*>(.*?)</h2>`)
)

// H1 returns the first level-one heading.
func H1(html string) string {
	if m := h1Pattern.FindStringSubmatch(html); len(m) == 2 {
		return StripTags(m[1])
	}
	return ""
}

// H2s returns up to six level-two headings.
func H2s(html string) []string {
	var out []string
	for _, m := range h2Pattern.FindAllStringSubmatch(html, -1) {
		if t := StripTags(m[1]); t != "" {
			out = append(out, t)
		}
		if len(out) >= 6 {
			break
		}
	}
	return out
}

var (
	buttonPattern  = regexp.MustCompile(`(?is)<button[^>]*>(.*?)</button>`)
	ctaLinkPattern = regexp.MustCompile(`(?is)<a[^>]+class=["'][^"']*(?:btn|button|cta)[^"']*["'][^>]*>(.*?)</a>`)
)

// CTAs collects button and button-styled link labels, up to ten.
// Labels shorter than 2 or longer than 48 characters are noise.
func CTAs(html string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(matches [][]string) {
		for _, m := range matches {
			label := StripTags(m[1])
			if len(label) < 2 || len(label) > 48 || seen[label] {
				continue
			}
			seen[label] = true
			out = append(out, label)
			if len(out) >= 10 {
				return
			}
		}
	}
	add(buttonPattern.FindAllStringSubmatch(html, -1))
	if len(out) < 10 {
		add(ctaLinkPattern.FindAllStringSubmatch(html, -1))
	}
	return out
}

var (
	navBlockPattern = regexp.MustCompile(`(?is)<nav[^>]*>(.*?)</nav>`)
	anchorPattern   = regexp.MustCompile(`(?is)<a[^>]*>(.*?)</a>`)
)

// NavLinks returns up to ten link labels from the first nav block.
func NavLinks(html string) []string {
	m := navBlockPattern.FindStringSubmatch(html)
	if len(m) != 2 {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, a := range anchorPattern.FindAllStringSubmatch(m[1], -1) {
		label := StripTags(a[1])
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
		if len(out) >= 10 {
			break
		}
	}
	return out
}

var (
	hexColorPattern = regexp.MustCompile(`#(?:[0-9a-fA-F]{6}|[0-9a-fA-F]{3})\b`)
	rgbColorPattern = regexp.MustCompile(`rgba?\(\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})`)
)

func normalizeHex(h string) string {
	h = strings.ToLower(h)
	if len(h) == 4 {
		return "#" + strings.Repeat(string(h[1]), 2) + strings.Repeat(string(h[2]), 2) + strings.Repeat(string(h[3]), 2)
	}
	return h
}

// Palette extracts the most frequent colors on the page, hex-normalized,
// most common first, up to eight. A theme-color meta tag counts too.
func Palette(html string) []string {
	counts := make(map[string]int)
	for _, h := range hexColorPattern.FindAllString(html, -1) {
		counts[normalizeHex(h)]++
	}
	for _, m := range rgbColorPattern.FindAllStringSubmatch(html, -1) {
		var r, g, b int
		fmt.Sscanf(m[1], "%d", &r)
		fmt.Sscanf(m[2], "%d", &g)
		fmt.Sscanf(m[3], "%d", &b)
		if r <= 255 && g <= 255 && b <= 255 {
			counts[fmt.Sprintf("#%02x%02x%02x", r, g, b)]++
		}
	}
	if tc := MetaContent(html, "theme-color"); tc != "" && hexColorPattern.MatchString(tc) {
		counts[normalizeHex(tc)]++
	}

	type cc struct {
		color string
		n     int
	}
	ranked := make([]cc, 0, len(counts))
	for c, n := range counts {
		ranked = append(ranked, cc{c, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].n != ranked[j].n {
			return ranked[i].n > ranked[j].n
		}
		return ranked[i].color < ranked[j].color
	})
	out := make([]string, 0, 8)
	for _, r := range ranked {
		out = append(out, r.color)
		if len(out) >= 8 {
			break
		}
	}
	return out
}

// Copy-signal vocabularies for the text metrics.
var (
	trustWords     = []string{"trusted", "secure", "certified", "guarantee", "testimonial", "customers", "reviews", "soc 2", "gdpr"}
	pricingWords   = []string{"pricing", "price", "free", "trial", "plan", "per month", "/mo", "subscribe"}
	developerWords = []string{"api", "sdk", "docs", "documentation", "developer", "integration", "cli", "open source"}
)

// Metrics are coarse copy measurements for one page.
type Metrics struct {
	WordCount         int `json:"wordCount"`
	TrustMentions     int `json:"trustMentions"`
	PricingMentions   int `json:"pricingMentions"`
	DeveloperMentions int `json:"developerMentions"`
}

func countMentions(text string, words []string) int {
	n := 0
	for _, w := range words {
		n += strings.Count(text, w)
	}
	return n
}

// Measure computes the copy metrics from the visible page text.
func Measure(html string) Metrics {
	text := strings.ToLower(StripTags(html))
	return Metrics{
		WordCount:         len(strings.Fields(text)),
		TrustMentions:     countMentions(text, trustWords),
		PricingMentions:   countMentions(text, pricingWords),
		DeveloperMentions: countMentions(text, developerWords),
	}
}
