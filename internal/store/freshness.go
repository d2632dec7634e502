package store

import (
	"time"

	"github.com/sells-group/traffic-cli/internal/config"
	"github.com/sells-group/traffic-cli/internal/model"
)

// FreshnessPolicy encodes the upstream's monthly release rhythm. The
// provider publishes a month's data partway into the following month; the
// cutoff day is that lag plus a safety buffer.
type FreshnessPolicy struct {
	// CutoffDay is the day of month on/after which the current month's
	// snapshot is expected to exist upstream.
	CutoffDay int

	// MaxAgeDays bounds the age of a current-month snapshot.
	MaxAgeDays int

	// PrevMonthMaxAgeDays bounds the age of a previous-month snapshot in
	// the pre-cutoff window. Looser than MaxAgeDays: before the cutoff it
	// is the best data that can exist.
	PrevMonthMaxAgeDays int
}

// PolicyFromConfig lifts the configured freshness knobs into a policy.
func PolicyFromConfig(cfg config.StoreConfig) FreshnessPolicy {
	return FreshnessPolicy{
		CutoffDay:           cfg.FreshCutoffDay,
		MaxAgeDays:          cfg.MaxAgeDays,
		PrevMonthMaxAgeDays: cfg.PrevMonthMaxAgeDays,
	}
}

// RequiredMonth returns the snapshot period a fresh record must belong to
// at the given instant.
func (p FreshnessPolicy) RequiredMonth(now time.Time) string {
	if now.UTC().Day() < p.CutoffDay {
		return model.PreviousMonthYear(now)
	}
	return model.CurrentMonthYear(now)
}

// IsFresh decides whether a cached record still answers for its domain.
// Metricless records (failures, never-attempted) are never fresh, so they
// always trigger re-extraction.
func (p FreshnessPolicy) IsFresh(rec *model.TrafficRecord, now time.Time) bool {
	if rec == nil || rec.CheckedAt == nil || !rec.HasMetrics() {
		return false
	}

	now = now.UTC()
	ageDays := now.Sub(rec.CheckedAt.UTC()).Hours() / 24

	current := model.CurrentMonthYear(now)
	previous := model.PreviousMonthYear(now)

	if now.Day() < p.CutoffDay {
		// The current month's data may not exist upstream yet; the
		// previous month is authoritative under its looser bound. A
		// current-month snapshot written early is newer still.
		switch rec.MonthYear {
		case current:
			return ageDays <= float64(p.MaxAgeDays)
		case previous:
			return ageDays <= float64(p.PrevMonthMaxAgeDays)
		}
		return false
	}

	// On/after the cutoff only the current month answers.
	return rec.MonthYear == current && ageDays <= float64(p.MaxAgeDays)
}
