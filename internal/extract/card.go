package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/traffic-cli/internal/domain"
)

// cardSelectors locate card-like result blocks, most specific first.
var cardSelectors = []string{
	"[data-domain]",
	".result-card",
	".website-card",
	".card",
	"article",
	"li",
}

// Labeled metric phrases the upstream has rendered at one point or another.
var (
	visitLabels    = []string{"Total Visits", "Monthly Visits", "Visits"}
	durationLabels = []string{"Avg. Visit Duration", "Avg. Duration", "Avg Duration", "Visit Duration"}
	pagesLabels    = []string{"Pages per Visit", "Pages / Visit", "Pages/Visit"}
	bounceLabels   = []string{"Bounce Rate", "Bounce"}
)

// proximityWindow bounds how far after a label its value may sit once the
// exact "label value" phrasing stops matching.
const proximityWindow = 80

// CardStrategy extracts one record per card-like element: locate a domain
// token, then pattern-match labeled metric phrases inside the card's text.
type CardStrategy struct{}

func (c *CardStrategy) Name() string { return "card" }

func (c *CardStrategy) Extract(p *Page, requested *domain.Set) []Candidate {
	for _, sel := range cardSelectors {
		cards := p.Find(sel)
		if cards.Length() == 0 {
			continue
		}
		var cands []Candidate
		cards.Each(func(_ int, card *goquery.Selection) {
			if cand, ok := extractCard(card, requested); ok {
				cands = append(cands, cand)
			}
		})
		if len(cands) > 0 {
			return cands
		}
	}
	return nil
}

func extractCard(card *goquery.Selection, requested *domain.Set) (Candidate, bool) {
	text := CollapseSpace(card.Text())
	dom := cardDomain(card, text, requested)
	if dom == "" {
		return Candidate{}, false
	}

	cand := Candidate{
		Domain:   dom,
		Visits:   firstLabelValue(text, visitLabels, suffixedNumRe, proximityWindow),
		Duration: firstLabelValue(text, durationLabels, durationTokRe, proximityWindow),
		Pages:    firstLabelValue(text, pagesLabels, floatTokRe, proximityWindow),
		Bounce:   firstLabelValue(text, bounceLabels, percentTokRe, proximityWindow),
	}
	if !cand.complete() {
		return Candidate{}, false
	}
	return cand, true
}

// cardDomain locates the card's domain token: data attribute, then link and
// heading text, then any domain-shaped token, then a substring match
// against the requested set.
func cardDomain(card *goquery.Selection, text string, requested *domain.Set) string {
	if v, ok := card.Attr("data-domain"); ok && v != "" {
		return v
	}

	var found string
	card.Find("a, h1, h2, h3, h4, h5, h6, strong, b").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if tok := firstDomainToken(el.Text()); tok != "" {
			found = tok
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	if tok := firstDomainToken(text); tok != "" {
		return tok
	}

	// Last resort: the requested set tells us what to look for.
	lower := strings.ToLower(text)
	for _, d := range requested.Domains() {
		bare, www := domain.Variants(d)
		if strings.Contains(lower, bare) || strings.Contains(lower, www) {
			return d
		}
	}
	return ""
}
