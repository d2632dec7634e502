package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/traffic-cli/internal/domain"
)

// rowSelectors locate row-like structures, most specific first.
var rowSelectors = []string{
	"table tbody tr",
	"table tr",
	"[role='row']",
	".table-row",
}

// column roles inferred from header text.
type colRole int

const (
	colNone colRole = iota
	colDomain
	colVisits
	colDuration
	colPages
	colBounce
)

// TabularStrategy extracts one record per row from table-like markup,
// inferring column roles from header text and falling back to the
// positional layout the upstream has historically used.
type TabularStrategy struct{}

func (t *TabularStrategy) Name() string { return "tabular" }

func (t *TabularStrategy) Extract(p *Page, requested *domain.Set) []Candidate {
	for _, sel := range rowSelectors {
		rows := p.Find(sel)
		if rows.Length() < 1 {
			continue
		}
		if cands := t.extractRows(rows); len(cands) > 0 {
			return cands
		}
	}
	return nil
}

func (t *TabularStrategy) extractRows(rows *goquery.Selection) []Candidate {
	// Selectors scoped to tbody skip the header row, so look for it in the
	// enclosing table first.
	header := rows.First().Closest("table").Find("thead tr").First()
	if header.Length() == 0 {
		header = rows.First()
	}
	roles := headerRoles(header)

	var cands []Candidate
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := cellTexts(row)
		if len(cells) < 2 {
			return
		}
		cand := buildFromCells(cells, roles)
		if cand.Domain != "" && cand.complete() {
			cands = append(cands, cand)
		}
	})
	return cands
}

// headerRoles maps column index to role from the header row's text, or nil
// when the header doesn't say anything recognizable.
func headerRoles(header *goquery.Selection) map[int]colRole {
	roles := make(map[int]colRole)
	header.Find("th, td").Each(func(i int, cell *goquery.Selection) {
		switch h := strings.ToLower(CollapseSpace(cell.Text())); {
		case strings.Contains(h, "domain") || strings.Contains(h, "website") || strings.Contains(h, "site"):
			roles[i] = colDomain
		case strings.Contains(h, "visit") && strings.Contains(h, "page"),
			strings.Contains(h, "pages"):
			roles[i] = colPages
		case strings.Contains(h, "visit") || strings.Contains(h, "traffic"):
			roles[i] = colVisits
		case strings.Contains(h, "duration") || strings.Contains(h, "time"):
			roles[i] = colDuration
		case strings.Contains(h, "bounce"):
			roles[i] = colBounce
		}
	})
	if len(roles) < 2 {
		return nil
	}
	return roles
}

func cellTexts(row *goquery.Selection) []string {
	var cells []string
	row.Find("td, th, [role='cell']").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, CollapseSpace(cell.Text()))
	})
	return cells
}

// positional defaults: domain, visits, duration, pages, bounce.
var positionalRoles = []colRole{colDomain, colVisits, colDuration, colPages, colBounce}

func buildFromCells(cells []string, roles map[int]colRole) Candidate {
	var cand Candidate
	for i, text := range cells {
		role, ok := roles[i]
		if !ok {
			if roles != nil || i >= len(positionalRoles) {
				continue
			}
			role = positionalRoles[i]
		}
		switch role {
		case colDomain:
			cand.Domain = firstDomainToken(text)
		case colVisits:
			cand.Visits = suffixedNumRe.FindString(text)
		case colDuration:
			cand.Duration = durationTokRe.FindString(text)
		case colPages:
			cand.Pages = floatTokRe.FindString(text)
		case colBounce:
			cand.Bounce = percentTokRe.FindString(text)
		}
	}
	return cand
}
