package extract

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/traffic-cli/internal/domain"
	"github.com/sells-group/traffic-cli/internal/model"
	"github.com/sells-group/traffic-cli/internal/parse"
)

// ErrDomainNotFound is the per-domain error recorded when a requested domain
// never appeared anywhere in the rendered output.
const ErrDomainNotFound = "domain not found in results"

// Metric sanity bounds. Values outside are rejected (field nulled), never
// clamped.
const (
	minPagesPerVisit = 0.1
	maxPagesPerVisit = 20
	maxBounceRate    = 100
)

// Outcome is a resolved sub-batch: exactly one record per requested domain.
type Outcome struct {
	Records []model.TrafficRecord

	// Strategy names the ladder rung that produced the candidates.
	Strategy string

	// ConfirmedZeros lists domains resolved to zero traffic by the
	// existence check. The check is itself a substring heuristic, so these
	// are surfaced to the diagnostic report for operator review rather
	// than silently trusted.
	ConfirmedZeros []string
}

// Resolve reconciles ladder candidates against the requested set, parses
// metric text, and disambiguates existence-vs-zero for every requested
// domain that matched no candidate. Unmatched candidates are discarded,
// never fabricated into new rows.
func Resolve(p *Page, requested *domain.Set, cands []Candidate, strategy string, monthYear string, now time.Time) Outcome {
	log := zap.L().With(zap.String("component", "extract.resolve"))
	checked := now.UTC()

	matched := make(map[string]model.TrafficRecord, len(cands))
	for _, c := range cands {
		d, ok := requested.Match(c.Domain)
		if !ok {
			log.Debug("discarding unrequested candidate", zap.String("token", c.Domain))
			continue
		}
		if _, dup := matched[d]; dup {
			continue
		}
		matched[d] = buildRecord(d, c, monthYear, checked)
	}

	out := Outcome{Strategy: strategy}
	for _, d := range requested.Domains() {
		if rec, ok := matched[d]; ok {
			out.Records = append(out.Records, rec)
			continue
		}

		bare, www := domain.Variants(d)
		if p != nil && (p.Contains(bare) || p.Contains(www)) {
			// Listed upstream but no metric matched any pattern: a
			// confirmed zero, not a failure.
			out.Records = append(out.Records, model.ZeroRecord(d, monthYear, now))
			out.ConfirmedZeros = append(out.ConfirmedZeros, d)
			continue
		}
		out.Records = append(out.Records, model.ErrorRecord(d, monthYear, ErrDomainNotFound, now))
	}
	return out
}

// buildRecord parses a candidate's raw tokens. A token that fails to parse
// or falls outside its valid range nulls that single field only.
func buildRecord(d string, c Candidate, monthYear string, checked time.Time) model.TrafficRecord {
	rec := model.TrafficRecord{
		Domain:    d,
		MonthYear: monthYear,
		CheckedAt: &checked,
	}

	rec.MonthlyVisits = parse.SuffixedNumber(c.Visits)
	rec.AvgSessionDurationSeconds = parse.Duration(c.Duration)

	if v := parse.Percentage(c.Bounce); v != nil && *v >= 0 && *v <= maxBounceRate {
		rec.BounceRate = v
	}
	if v := parse.Float(c.Pages); v != nil && *v >= minPagesPerVisit && *v <= maxPagesPerVisit {
		rec.PagesPerVisit = v
	}
	return rec
}
