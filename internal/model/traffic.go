package model

import "time"

// MonthYearLayout is the snapshot period format ("2006-01").
const MonthYearLayout = "2006-01"

// TrafficRecord holds one domain's traffic metrics for one snapshot month.
// Nil metric pointers mean "unknown / extraction failed"; a zero value is a
// real, meaningful measurement.
type TrafficRecord struct {
	Domain                    string     `json:"domain"`
	MonthlyVisits             *int64     `json:"monthlyVisits"`
	AvgSessionDurationSeconds *int64     `json:"avgSessionDurationSeconds"`
	BounceRate                *float64   `json:"bounceRate"`
	PagesPerVisit             *float64   `json:"pagesPerVisit"`
	CheckedAt                 *time.Time `json:"checkedAt"`
	MonthYear                 string     `json:"monthYear"`
	Error                     string     `json:"error,omitempty"`
}

// HasMetrics reports whether any metric field was extracted (zero counts).
func (r *TrafficRecord) HasMetrics() bool {
	return r.MonthlyVisits != nil ||
		r.AvgSessionDurationSeconds != nil ||
		r.BounceRate != nil ||
		r.PagesPerVisit != nil
}

// CurrentMonthYear formats now as a snapshot period.
func CurrentMonthYear(now time.Time) string {
	return now.UTC().Format(MonthYearLayout)
}

// PreviousMonthYear formats the month before now as a snapshot period.
func PreviousMonthYear(now time.Time) string {
	return now.UTC().AddDate(0, -1, 0).Format(MonthYearLayout)
}

// ErrorRecord builds a failed-extraction record for a domain.
func ErrorRecord(domain, monthYear, errMsg string, now time.Time) TrafficRecord {
	checked := now.UTC()
	return TrafficRecord{
		Domain:    domain,
		MonthYear: monthYear,
		CheckedAt: &checked,
		Error:     errMsg,
	}
}

// ZeroRecord builds a confirmed-zero record: the upstream listed the domain
// but exposed no parsable metrics.
func ZeroRecord(domain, monthYear string, now time.Time) TrafficRecord {
	checked := now.UTC()
	zero := int64(0)
	return TrafficRecord{
		Domain:        domain,
		MonthlyVisits: &zero,
		MonthYear:     monthYear,
		CheckedAt:     &checked,
	}
}

// BatchRequest is the caller-facing input to a batch extraction call.
type BatchRequest struct {
	Domains     []string `json:"domains"`
	BypassCache bool     `json:"bypassCache,omitempty"`
}

// BatchMetadata summarizes how a batch call was served.
type BatchMetadata struct {
	TotalDomains     int      `json:"totalDomains"`
	BatchesProcessed int      `json:"batchesProcessed"`
	CacheHits        int      `json:"cacheHits"`
	CacheMisses      int      `json:"cacheMisses"`
	Errors           []string `json:"errors"`
}

// BatchResult is the caller-facing output of a batch extraction call.
// Results are ordered identically to the normalized, deduplicated input.
type BatchResult struct {
	Results  []TrafficRecord `json:"results"`
	Metadata BatchMetadata   `json:"metadata"`
}
