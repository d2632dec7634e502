// Package extract turns a rendered upstream page into structured traffic
// candidates via an ordered strategy ladder. The upstream markup is
// unversioned and adversarial; every strategy here is a best-effort
// heuristic, and each one is pure over a parsed Page so it can be tested
// against captured HTML fixtures.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Page wraps a rendered document snapshot for the strategies to consume.
type Page struct {
	doc *goquery.Document

	// HTML is the raw serialized markup; the existence check scans it so
	// domains rendered only in attributes still count as present.
	HTML string

	// Text is the whitespace-collapsed visible text of the page.
	Text string
}

var spaceRe = regexp.MustCompile(`\s+`)

// NewPage parses rendered HTML into a Page.
func NewPage(html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}
	return &Page{
		doc:  doc,
		HTML: html,
		Text: CollapseSpace(doc.Text()),
	}, nil
}

// Has reports whether any element matches the selector.
func (p *Page) Has(selector string) bool {
	return p.doc.Find(selector).Length() > 0
}

// Find exposes the underlying document query for the strategies.
func (p *Page) Find(selector string) *goquery.Selection {
	return p.doc.Find(selector)
}

// Contains reports whether needle occurs anywhere in the raw markup,
// case-insensitively.
func (p *Page) Contains(needle string) bool {
	return strings.Contains(strings.ToLower(p.HTML), strings.ToLower(needle))
}

// CollapseSpace trims and squeezes all runs of whitespace to single spaces.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
