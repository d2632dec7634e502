package extract

import (
	"go.uber.org/zap"

	"github.com/sells-group/traffic-cli/internal/domain"
)

// Candidate is one domain's metrics as raw text, before parsing and
// reconciliation.
type Candidate struct {
	Domain   string // token as it appeared on the page
	Visits   string
	Duration string
	Pages    string
	Bounce   string
}

// complete reports whether the candidate carries at least one metric token.
func (c Candidate) complete() bool {
	return c.Visits != "" || c.Duration != "" || c.Pages != "" || c.Bounce != ""
}

// Strategy is one rung of the extraction ladder: a pure function from a
// rendered page and the requested domain set to candidate records.
type Strategy interface {
	Name() string
	Extract(p *Page, requested *domain.Set) []Candidate
}

// Ladder tries strategies in order; the first one yielding any candidate
// wins for the whole sub-batch. Results are never merged across strategies.
type Ladder struct {
	strategies []Strategy
}

// NewLadder builds the default ladder: tabular, then card, then generic.
func NewLadder() *Ladder {
	return &Ladder{strategies: []Strategy{
		&TabularStrategy{},
		&CardStrategy{},
		&GenericStrategy{},
	}}
}

// Run executes the ladder and returns the winning candidates and the name
// of the strategy that produced them ("" when every rung came up empty).
func (l *Ladder) Run(p *Page, requested *domain.Set) ([]Candidate, string) {
	log := zap.L().With(zap.String("component", "extract.ladder"))
	for _, s := range l.strategies {
		cands := s.Extract(p, requested)
		if len(cands) > 0 {
			log.Debug("strategy produced candidates",
				zap.String("strategy", s.Name()),
				zap.Int("candidates", len(cands)),
			)
			return cands, s.Name()
		}
		log.Debug("strategy empty, trying next", zap.String("strategy", s.Name()))
	}
	return nil, ""
}
