// Package report aggregates extraction diagnostics across a batch run:
// which strategies fired, how failures classify, and which domains came
// back as confirmed zero-traffic results.
package report

import (
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Failure classes.
const (
	FailureTimeout  = "timeout"
	FailureBrowser  = "browser"
	FailureNotFound = "not_found"
	FailureStore    = "store"
	FailureOther    = "other"
)

// Collector accumulates diagnostics. All methods are safe for concurrent
// use and are no-ops on a nil receiver, so callers can run without one.
type Collector struct {
	mu sync.Mutex

	startedAt      time.Time
	strategyHits   map[string]int
	selectorHits   map[string]int
	failures       map[string]int
	failedDomains  []string
	confirmedZeros []string
	cacheHits      int
	cacheMisses    int
	retried        int
	backgrounded   int
}

func NewCollector() *Collector {
	return &Collector{
		startedAt:    time.Now().UTC(),
		strategyHits: make(map[string]int),
		selectorHits: make(map[string]int),
		failures:     make(map[string]int),
	}
}

// StrategyHit records that a strategy produced n candidate rows.
func (c *Collector) StrategyHit(name string, n int) {
	if c == nil || name == "" {
		return
	}
	c.mu.Lock()
	c.strategyHits[name] += n
	c.mu.Unlock()
}

// SelectorHits merges per-selector element counts from one rendered page.
func (c *Collector) SelectorHits(hits map[string]int) {
	if c == nil || len(hits) == 0 {
		return
	}
	c.mu.Lock()
	for sel, n := range hits {
		c.selectorHits[sel] += n
	}
	c.mu.Unlock()
}

// Failure records one failed domain under the given class.
func (c *Collector) Failure(class, domain string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.failures[class]++
	c.failedDomains = append(c.failedDomains, domain)
	c.mu.Unlock()
}

// ConfirmedZeros flags domains that appeared upstream with no measurable
// traffic. These are easy to mistake for extraction misses; the report
// calls them out so an operator can spot-check.
func (c *Collector) ConfirmedZeros(domains []string) {
	if c == nil || len(domains) == 0 {
		return
	}
	c.mu.Lock()
	c.confirmedZeros = append(c.confirmedZeros, domains...)
	c.mu.Unlock()
}

// Cache records the batch's hit/miss split.
func (c *Collector) Cache(hits, misses int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cacheHits += hits
	c.cacheMisses += misses
	c.mu.Unlock()
}

// Retried counts a synchronous retry attempt.
func (c *Collector) Retried() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.retried++
	c.mu.Unlock()
}

// Backgrounded counts domains handed to the background retry queue.
func (c *Collector) Backgrounded(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.backgrounded += n
	c.mu.Unlock()
}

// ClassifyError maps an error to a failure class by message shape.
func ClassifyError(err error) string {
	if err == nil {
		return FailureOther
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return FailureTimeout
	case strings.Contains(msg, "browser") || strings.Contains(msg, "target closed") || strings.Contains(msg, "websocket"):
		return FailureBrowser
	case strings.Contains(msg, "not found in results"):
		return FailureNotFound
	case strings.Contains(msg, "sqlite") || strings.Contains(msg, "postgres"):
		return FailureStore
	default:
		return FailureOther
	}
}

// Report is a point-in-time snapshot of a collector.
type Report struct {
	GeneratedAt     time.Time      `yaml:"generated_at" json:"generatedAt"`
	DurationSeconds float64        `yaml:"duration_seconds" json:"durationSeconds"`
	CacheHits       int            `yaml:"cache_hits" json:"cacheHits"`
	CacheMisses     int            `yaml:"cache_misses" json:"cacheMisses"`
	StrategyHits    map[string]int `yaml:"strategy_hits,omitempty" json:"strategyHits,omitempty"`
	SelectorHits    map[string]int `yaml:"selector_hits,omitempty" json:"selectorHits,omitempty"`
	Failures        map[string]int `yaml:"failures,omitempty" json:"failures,omitempty"`
	FailedDomains   []string       `yaml:"failed_domains,omitempty" json:"failedDomains,omitempty"`
	ConfirmedZeros  []string       `yaml:"confirmed_zeros,omitempty" json:"confirmedZeros,omitempty"`
	SyncRetries     int            `yaml:"sync_retries" json:"syncRetries"`
	Backgrounded    int            `yaml:"backgrounded" json:"backgrounded"`
}

// Snapshot freezes the collector's current state.
func (c *Collector) Snapshot() Report {
	if c == nil {
		return Report{GeneratedAt: time.Now().UTC()}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	r := Report{
		GeneratedAt:     now,
		DurationSeconds: now.Sub(c.startedAt).Seconds(),
		CacheHits:       c.cacheHits,
		CacheMisses:     c.cacheMisses,
		StrategyHits:    make(map[string]int, len(c.strategyHits)),
		SelectorHits:    make(map[string]int, len(c.selectorHits)),
		Failures:        make(map[string]int, len(c.failures)),
		FailedDomains:   append([]string(nil), c.failedDomains...),
		ConfirmedZeros:  append([]string(nil), c.confirmedZeros...),
		SyncRetries:     c.retried,
		Backgrounded:    c.backgrounded,
	}
	for k, v := range c.strategyHits {
		r.StrategyHits[k] = v
	}
	for k, v := range c.selectorHits {
		r.SelectorHits[k] = v
	}
	for k, v := range c.failures {
		r.Failures[k] = v
	}
	sort.Strings(r.FailedDomains)
	sort.Strings(r.ConfirmedZeros)
	return r
}

// WriteYAML renders the report for operators.
func (r Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return eris.Wrap(err, "report: encode yaml")
	}
	return eris.Wrap(enc.Close(), "report: close encoder")
}
