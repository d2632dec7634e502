package extract

import "github.com/PuerkitoBio/goquery"

// StructuralSelectors is the ordered list the session manager polls for
// before attempting extraction. Any single match counts.
var StructuralSelectors = []string{
	"table tbody tr",
	"[data-domain]",
	".result-card",
	".website-card",
	".card",
	"article",
}

// StructurallyReady reports whether any structural selector matches the
// snapshot.
func StructurallyReady(p *Page) bool {
	for _, sel := range StructuralSelectors {
		if p.Has(sel) {
			return true
		}
	}
	return false
}

// SelectorHits counts how many elements each known row and card selector
// matches in the snapshot. Fed into the diagnostic report so layout drift
// upstream shows up as selectors going quiet.
func SelectorHits(p *Page) map[string]int {
	out := make(map[string]int)
	for _, sel := range rowSelectors {
		if n := p.Find(sel).Length(); n > 0 {
			out[sel] = n
		}
	}
	for _, sel := range cardSelectors {
		if n := p.Find(sel).Length(); n > 0 {
			out[sel] = n
		}
	}
	return out
}

// ContentReady is the content-readiness predicate: at least fraction of the
// visible card-like elements contain both a domain-shaped token and a
// metric-shaped token. A page that never satisfies it is still extracted
// from, just later; readiness only decides when to stop waiting.
func ContentReady(p *Page, fraction float64) bool {
	for _, sel := range cardSelectors {
		cards := p.Find(sel)
		total := cards.Length()
		if total == 0 {
			continue
		}
		ready := 0
		cards.Each(func(_ int, card *goquery.Selection) {
			text := CollapseSpace(card.Text())
			if HasDomainToken(text) && HasMetricToken(text) {
				ready++
			}
		})
		return float64(ready) >= fraction*float64(total)
	}
	return false
}
