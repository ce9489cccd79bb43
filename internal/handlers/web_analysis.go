package handlers

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cliniq/clawd/internal/runstore"
	"github.com/cliniq/clawd/internal/webscan"
)

const maxAnalyzedSites = 2

var (
	colorFocusPattern = regexp.MustCompile(`(?i)\b(color|colour|palette|branding|brand|theme|typography|font)\b`)
	copyFocusPattern  = regexp.MustCompile(`(?i)\b(copy|messaging|positioning|tone|headline|tagline|hero|value prop|value proposition)\b`)
	uxFocusPattern    = regexp.MustCompile(`(?i)\b(ux|ui|improve|audit|conversion|clarity|above the fold|landing|homepage)\b`)
)

func detectFocus(prompt string) string {
	switch {
	case colorFocusPattern.MatchString(prompt):
		return "color"
	case copyFocusPattern.MatchString(prompt):
		return "copy"
	case uxFocusPattern.MatchString(prompt):
		return "ux"
	default:
		return "general"
	}
}

func analyzeSite(ctx context.Context, web WebFetcher, pageURL string) SiteResult {
	html, err := web.Fetch(ctx, pageURL)
	if err != nil {
		return SiteResult{URL: pageURL, OK: false, Error: err.Error()}
	}

	description := webscan.MetaContent(html, "description")
	if description == "" {
		description = webscan.MetaContent(html, "og:description")
	}
	extract := &SiteExtract{
		Title:       webscan.Title(html),
		Description: description,
		H1:          webscan.H1(html),
		H2:          webscan.H2s(html),
		CTAs:        webscan.CTAs(html),
		NavLinks:    webscan.NavLinks(html),
	}
	for i, c := range webscan.Palette(html) {
		// Rank position stands in for the raw count; the scan already
		// sorted by frequency.
		extract.Palette = append(extract.Palette, PaletteColor{Value: c, Count: 8 - i})
	}
	m := webscan.Measure(html)
	extract.Metrics = SiteMetrics{
		HeroLength:        len(extract.H1),
		CTACount:          len(extract.CTAs),
		NavCount:          len(extract.NavLinks),
		TrustMentions:     m.TrustMentions,
		PricingMentions:   m.PricingMentions,
		DeveloperMentions: m.DeveloperMentions,
	}
	return SiteResult{URL: pageURL, OK: true, Extract: extract}
}

type comparisonHints struct {
	clearerHero   bool
	fewerCTAs     bool
	strongerTrust bool
}

func compareSites(a, b *SiteExtract) comparisonHints {
	am, bm := a.Metrics, b.Metrics
	return comparisonHints{
		clearerHero:   am.HeroLength > 0 && (bm.HeroLength == 0 || am.HeroLength < bm.HeroLength),
		fewerCTAs:     am.CTACount > 0 && am.CTACount < bm.CTACount,
		strongerTrust: am.TrustMentions > bm.TrustMentions,
	}
}

func paletteValues(p []PaletteColor) string {
	if len(p) == 0 {
		return "n/a"
	}
	vals := make([]string, len(p))
	for i, c := range p {
		vals[i] = c.Value
	}
	return strings.Join(vals, ", ")
}

func auditRecommendations(site SiteResult) []Recommendation {
	x := site.Extract
	m := x.Metrics
	var recs []Recommendation

	heroRationale := "If your H1 is generic, you lose differentiation fast."
	if m.HeroLength > 70 {
		heroRationale = "Your H1 is long; long headlines reduce instant comprehension."
	}
	rec := Recommendation{
		Title:     "Clarify the primary value proposition in the first headline",
		AppliesTo: "site_a",
		Rationale: heroRationale,
		Actions: []string{
			"Make the H1 outcome-led (what users achieve), not feature-led.",
			"Add a subheadline that names the target user + timeframe/result.",
		},
	}
	if x.H1 != "" {
		rec.Evidence = []string{fmt.Sprintf("H1: %q", x.H1)}
	}
	recs = append(recs, rec)

	ctaRationale := "A single primary CTA improves conversion clarity."
	if m.CTACount >= 4 {
		ctaRationale = "Too many calls-to-action creates decision paralysis."
	}
	rec = Recommendation{
		Title:     "Reduce competing CTAs above the fold",
		AppliesTo: "site_a",
		Rationale: ctaRationale,
		Actions: []string{
			"Keep 1 primary CTA and 1 secondary (max) in the hero.",
			"Push secondary actions below the first scroll.",
		},
	}
	if len(x.CTAs) > 0 {
		rec.Evidence = []string{"CTAs spotted: " + strings.Join(x.CTAs, " | ")}
	}
	recs = append(recs, rec)

	trustRationale := "Trust cues should appear before feature detail for higher conversion."
	if m.TrustMentions == 0 {
		trustRationale = "There are few explicit trust/compliance cues on the page text."
	}
	recs = append(recs, Recommendation{
		Title:     "Increase trust signals earlier",
		AppliesTo: "site_a",
		Rationale: trustRationale,
		Actions: []string{
			"Add a short trust strip: security/compliance/uptime + 2-5 recognizable customer logos.",
			"Place it immediately after the hero (or within the hero).",
		},
	})
	return recs
}

func compareRecommendations(focus string, a, b SiteResult) (string, []Recommendation) {
	ax, bx := a.Extract, b.Extract
	ah := compareSites(ax, bx)
	bh := compareSites(bx, ax)
	var recs []Recommendation

	heroEvidence := []string{fmt.Sprintf("Hero length A=%d, B=%d", ax.Metrics.HeroLength, bx.Metrics.HeroLength)}
	ctaEvidence := []string{fmt.Sprintf("CTA count A=%d, B=%d", ax.Metrics.CTACount, bx.Metrics.CTACount)}

	switch focus {
	case "copy":
		recs = append(recs, Recommendation{
			Title:     "Borrow the sharper value proposition framing",
			AppliesTo: "both",
			Rationale: "The strongest site leads with a concrete outcome and a narrow promise. The weaker site usually drifts into generic category language.",
			Actions: []string{
				"Rewrite the weaker site's H1 to be outcome-led (result), and move \"what it is\" to the subheadline.",
				"Make the first 2-3 sections reinforce the same promise (no product catalog immediately).",
			},
			Evidence: []string{
				h1Evidence("Site A", ax.H1),
				h1Evidence("Site B", bx.H1),
			},
		})
		if target := pickTarget(ah.clearerHero, bh.clearerHero); target != "" {
			recs = append(recs, Recommendation{
				Title:     "Adopt the shorter, faster-to-parse hero headline",
				AppliesTo: target,
				Rationale: "Shorter hero headlines are usually easier to understand in under 2 seconds.",
				Actions: []string{
					"Cut hero headline length by 30-50%.",
					"Remove qualifiers and stack detail into the subheadline.",
				},
				Evidence: heroEvidence,
			})
		}
		if target := pickTarget(ah.strongerTrust, bh.strongerTrust); target != "" {
			recs = append(recs, Recommendation{
				Title:     "Move trust/compliance language higher (borrow trust-first structure)",
				AppliesTo: target,
				Rationale: "Trust signals early reduce anxiety and increase conversion for high-consideration products.",
				Actions: []string{
					"Add a trust strip right after the hero: compliance/security/uptime + logos.",
					"Use specific proof (numbers, certifications) instead of vague claims.",
				},
				Evidence: []string{fmt.Sprintf("Trust mentions A=%d, B=%d", ax.Metrics.TrustMentions, bx.Metrics.TrustMentions)},
			})
		}
		return "If you're copying anything, copy the *structure*: outcome-led hero, then trust proof, then a simple next step. Then copy the *tone*: confident, specific, and low-noise.", recs

	case "color":
		recs = append(recs, Recommendation{
			Title:     "Borrow one accent color, not the whole palette",
			AppliesTo: "both",
			Rationale: "Most strong brands use neutral backgrounds + one consistent accent. Borrowing everything makes you look derivative.",
			Actions: []string{
				"Pick 1 accent color from the reference site and apply it only to: primary buttons, links, highlights.",
				"Keep backgrounds neutral and typography high-contrast.",
				"Ensure accessible contrast (especially button text).",
			},
			Evidence: []string{
				"Site A palette: " + paletteValues(ax.Palette),
				"Site B palette: " + paletteValues(bx.Palette),
			},
		})
		recs = append(recs, Recommendation{
			Title:     "Standardize your UI color roles",
			AppliesTo: "both",
			Rationale: "Great UI feels consistent because colors map to roles, not random sections.",
			Actions: []string{
				"Define roles: background, surface, text, muted, border, accent, accent-hover, success, warning, danger.",
				"Replace ad-hoc colors with tokens.",
			},
		})
		return "I extracted a best-effort palette from inline styles. For accurate branding guidance, we can also fetch the main CSS later. For now: borrow a single accent and keep everything else neutral and consistent.", recs

	default: // ux and general
		recs = append(recs, Recommendation{
			Title:     "Reduce above-the-fold clutter (copy the simpler hero layout)",
			AppliesTo: "both",
			Rationale: "The first screen should communicate one thing and one next step.",
			Actions: []string{
				"Keep 1 primary CTA, 1 secondary CTA max.",
				"Delay feature grids and product catalogs until after the first scroll.",
			},
			Evidence: append(ctaEvidence, fmt.Sprintf("Nav links A=%d, B=%d", ax.Metrics.NavCount, bx.Metrics.NavCount)),
		})
		if target := pickTarget(ah.fewerCTAs, bh.fewerCTAs); target != "" {
			recs = append(recs, Recommendation{
				Title:     "Borrow the tighter CTA discipline",
				AppliesTo: target,
				Rationale: "Fewer CTAs usually means clearer conversion intent.",
				Actions: []string{
					"Cut hero CTAs down to 1 primary + 1 secondary.",
					"Move everything else below the fold.",
				},
				Evidence: ctaEvidence,
			})
		}
		return "High leverage improvements usually come from structure, not features: clearer hero promise, fewer competing CTAs, and trust proof placed earlier.", recs
	}
}

// pickTarget names the weaker site when exactly one side wins a hint.
func pickTarget(aWins, bWins bool) string {
	if aWins {
		return "site_b"
	}
	if bWins {
		return "site_a"
	}
	return ""
}

func h1Evidence(label, h1 string) string {
	if h1 == "" {
		return label + " H1 not found"
	}
	return fmt.Sprintf("%s H1: %q", label, h1)
}

func webAnalysis(ctx context.Context, deps *Deps, req Request, emit EmitFunc) (any, error) {
	urls := extractedURLs(req.Decision.Extracted)
	if len(urls) == 0 {
		return nil, fmt.Errorf("no URLs found to analyze")
	}
	if len(urls) > maxAnalyzedSites {
		urls = urls[:maxAnalyzedSites]
	}
	focus := detectFocus(req.Prompt)
	emit(runstore.LevelInfo, "Analyzing public websites", map[string]any{"urls": urls, "focus": focus})

	sites := make([]SiteResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			sites[i] = analyzeSite(gctx, deps.Web, u)
			return nil
		})
	}
	g.Wait()

	out := WebAnalysisOutput{
		Kind:     KindWebAnalysis,
		Question: req.Prompt,
		Focus:    focus,
		Sites:    sites,
	}

	var okSites []SiteResult
	anyFailed := false
	for _, s := range sites {
		if s.OK {
			okSites = append(okSites, s)
		} else {
			anyFailed = true
			emit(runstore.LevelWarn, "Site could not be analyzed", map[string]any{"url": s.URL, "error": s.Error})
		}
	}
	if anyFailed {
		out.Note = "Some sites restrict automated access or render heavily client-side. Coverage will improve over time."
	}

	switch {
	case len(okSites) == 0:
		out.Answer = "I couldn't reliably fetch/parse those pages right now. Try again or provide a specific page URL (not just the domain)."
		out.Recommendations = []Recommendation{}
	case len(okSites) == 1:
		out.Recommendations = auditRecommendations(okSites[0])
		if focus == "color" {
			out.Answer = "I can infer a rough palette from inline styles, but to be accurate we should also fetch the main CSS. For now: borrow one primary accent, keep neutral backgrounds, and ensure contrast."
		} else {
			out.Answer = "Here are the highest-leverage homepage improvements based on what I could extract."
		}
	default:
		out.Answer, out.Recommendations = compareRecommendations(focus, okSites[0], okSites[1])
	}
	return out, nil
}

func extractedURLs(extracted map[string]any) []string {
	raw, ok := extracted["urls"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, u := range v {
			if s, ok := u.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
