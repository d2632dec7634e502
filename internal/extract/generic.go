package extract

import (
	"regexp"
	"strings"

	"github.com/sells-group/traffic-cli/internal/domain"
)

// fallbackVisitsRe requires a magnitude suffix or at least four plain
// digits, so clock and percentage fragments never win the fallback.
var fallbackVisitsRe = regexp.MustCompile(`\b[0-9]+(?:\.[0-9]+)?[KMBkmb]\b|\b[0-9]{4,}\b`)

// window sizes around a domain's first textual occurrence. Metrics for a
// domain render after its name in every layout seen so far; the small
// leading slack absorbs reordered markup.
const (
	windowBefore = 60
	windowAfter  = 300
)

// GenericStrategy is the last rung: scan the whole visible text for each
// requested domain and pull metric tokens out of a fixed-width window of
// surrounding text. Survives any markup change that keeps the numbers near
// the names.
type GenericStrategy struct{}

func (g *GenericStrategy) Name() string { return "generic" }

func (g *GenericStrategy) Extract(p *Page, requested *domain.Set) []Candidate {
	// Search and slice the same lowered string. Case mapping changes byte
	// length for some runes, so indexes into the lowered text do not line
	// up with the original on non-ASCII pages.
	text := strings.ToLower(p.Text)

	var cands []Candidate
	for _, d := range requested.Domains() {
		bare, www := domain.Variants(d)
		idx := strings.Index(text, www)
		if idx < 0 {
			idx = strings.Index(text, bare)
		}
		if idx < 0 {
			continue
		}

		start := idx - windowBefore
		if start < 0 {
			start = 0
		}
		end := idx + windowAfter
		if end > len(text) {
			end = len(text)
		}
		if start > end {
			start = end
		}
		window := text[start:end]

		cand := Candidate{
			Domain:   d,
			Visits:   firstLabelValue(window, visitLabels, suffixedNumRe, proximityWindow),
			Duration: durationTokRe.FindString(window),
			Pages:    firstLabelValue(window, pagesLabels, floatTokRe, proximityWindow),
			Bounce:   percentTokRe.FindString(window),
		}
		// Without labels, the first suffixed number after the domain name is
		// the visit count in every layout observed. The stricter token shape
		// keeps clock fragments ("00:14:24") from matching.
		if cand.Visits == "" {
			after := text[idx:end]
			cand.Visits = fallbackVisitsRe.FindString(stripDomainPrefix(after))
		}
		if cand.complete() {
			cands = append(cands, cand)
		}
	}
	return cands
}

// stripDomainPrefix drops the leading domain token so its TLD digits (e.g.
// "web3.io") are not mistaken for a metric.
func stripDomainPrefix(s string) string {
	if tok := domainTokenRe.FindStringIndex(s); tok != nil && tok[0] == 0 {
		return s[tok[1]:]
	}
	return s
}
