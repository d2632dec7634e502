// Package batch orchestrates a traffic-metrics run: cache lookups, sub-batch
// scheduling against the shared browser, extraction, retries, and persistence.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/traffic-cli/internal/config"
	"github.com/sells-group/traffic-cli/internal/domain"
	"github.com/sells-group/traffic-cli/internal/extract"
	"github.com/sells-group/traffic-cli/internal/model"
	"github.com/sells-group/traffic-cli/internal/report"
	"github.com/sells-group/traffic-cli/internal/resilience"
	"github.com/sells-group/traffic-cli/internal/store"
)

// Renderer produces the upstream comparison page for a group of domains.
type Renderer interface {
	Render(ctx context.Context, domains []string) (*extract.Page, error)
}

// Enqueuer hands failed domains to a decoupled retry path.
type Enqueuer interface {
	Enqueue(domains []string)
}

// Runner drives batches end to end. Safe for concurrent Run calls; the
// renderer serializes browser access internally.
type Runner struct {
	cfg    config.BatchConfig
	retry  resilience.RetryConfig
	policy store.FreshnessPolicy
	store  store.Store
	render Renderer
	ladder *extract.Ladder
	queue  Enqueuer
	diag   *report.Collector
	log    *zap.Logger
	now    func() time.Time
}

// maxSubBatchSize is the upstream comparison page's hard domain limit.
const maxSubBatchSize = 10

// NewRunner wires a runner. queue and diag may be nil.
func NewRunner(cfg config.BatchConfig, retry resilience.RetryConfig, policy store.FreshnessPolicy, st store.Store, render Renderer, queue Enqueuer, diag *report.Collector) *Runner {
	if cfg.SubBatchSize <= 0 || cfg.SubBatchSize > maxSubBatchSize {
		cfg.SubBatchSize = maxSubBatchSize
	}
	return &Runner{
		cfg:    cfg,
		retry:  retry,
		policy: policy,
		store:  st,
		render: render,
		ladder: extract.NewLadder(),
		queue:  queue,
		diag:   diag,
		log:    zap.L().With(zap.String("component", "batch")),
		now:    time.Now,
	}
}

// Run processes one batch request and returns per-domain records in the
// order the domains first appeared in the request.
func (r *Runner) Run(ctx context.Context, req model.BatchRequest) (*model.BatchResult, error) {
	ordered := domain.Dedupe(domain.Clean(req.Domains))
	if len(ordered) == 0 {
		return nil, eris.New("batch: no valid domains in request")
	}

	meta := model.BatchMetadata{TotalDomains: len(ordered)}
	results := make(map[string]model.TrafficRecord, len(ordered))

	misses := ordered
	if !req.BypassCache {
		misses = r.cacheCheck(ctx, ordered, results, &meta)
	}
	meta.CacheMisses = len(misses)
	r.diag.Cache(meta.CacheHits, meta.CacheMisses)

	chunks := domain.Chunk(misses, r.cfg.SubBatchSize)
	meta.BatchesProcessed = len(chunks)
	r.log.Info("starting batch",
		zap.Int("domains", len(ordered)),
		zap.Int("cache_hits", meta.CacheHits),
		zap.Int("sub_batches", len(chunks)),
	)

	var mu sync.Mutex
	merge := func(recs []model.TrafficRecord) {
		mu.Lock()
		for _, rec := range recs {
			results[domain.CacheKey(rec.Domain)] = rec
		}
		mu.Unlock()
	}

	waveSize := r.cfg.MaxConcurrent
	if waveSize <= 0 {
		waveSize = 1
	}
	limiter := rate.NewLimiter(rate.Every(r.cfg.WaveDelay()), 1)

	// Full waves of up to K sub-batches, paced by the inter-wave delay.
	for start := 0; start < len(chunks); start += waveSize {
		if err := limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "batch: wave delay")
		}

		end := start + waveSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, chunk := range chunks[start:end] {
			chunk := chunk
			g.Go(func() error {
				// One sub-batch failing, panicking, or timing out never
				// aborts its siblings; everything folds into per-domain
				// error records.
				defer func() {
					if rec := recover(); rec != nil {
						r.log.Error("sub-batch panicked", zap.Any("panic", rec))
						merge(r.fillMissing(nil, chunk, eris.Errorf("sub-batch panic: %v", rec)))
					}
				}()
				merge(r.processSubBatch(gctx, chunk))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	out := make([]model.TrafficRecord, 0, len(ordered))
	monthYear := r.policy.RequiredMonth(r.now())
	for _, d := range ordered {
		rec, ok := results[domain.CacheKey(d)]
		if !ok {
			rec = model.ErrorRecord(d, monthYear, "no result produced", r.now())
		}
		if rec.Error != "" {
			meta.Errors = append(meta.Errors, rec.Domain+": "+rec.Error)
		}
		out = append(out, rec)
	}
	return &model.BatchResult{Results: out, Metadata: meta}, nil
}

// cacheCheck fills results with fresh cached records and returns the
// domains that still need extraction.
func (r *Runner) cacheCheck(ctx context.Context, ordered []string, results map[string]model.TrafficRecord, meta *model.BatchMetadata) []string {
	cached, err := r.store.GetBatch(ctx, ordered)
	if err != nil {
		// A broken cache degrades to a full extraction run.
		r.log.Warn("cache lookup failed, extracting all domains", zap.Error(err))
		return ordered
	}

	now := r.now()
	var misses []string
	for _, d := range ordered {
		rec, ok := cached[domain.CacheKey(d)]
		if ok && r.policy.IsFresh(&rec, now) {
			results[domain.CacheKey(d)] = rec
			meta.CacheHits++
			continue
		}
		misses = append(misses, d)
	}
	return misses
}

// processSubBatch renders and extracts one group of domains with the
// synchronous retry policy. It always returns a record per domain.
func (r *Runner) processSubBatch(ctx context.Context, domains []string) []model.TrafficRecord {
	subCtx, cancel := context.WithTimeout(ctx, r.cfg.SubBatchTimeout())
	defer cancel()

	cfg := r.retry
	logRetry := resilience.RetryLogger("batch", "extract sub-batch")
	cfg.OnRetry = func(attempt int, err error) {
		r.diag.Retried()
		logRetry(attempt, err)
	}

	recs, err := resilience.DoVal(subCtx, cfg, func(ctx context.Context) ([]model.TrafficRecord, error) {
		return r.Extract(ctx, domains)
	})
	if err == nil {
		r.persist(ctx, recs)
		return recs
	}

	r.log.Warn("sub-batch failed after retries",
		zap.Int("domains", len(domains)),
		zap.Error(err),
	)
	if r.queue != nil {
		r.queue.Enqueue(domains)
		r.diag.Backgrounded(len(domains))
	}

	// Keep whatever the last attempt salvaged; everything else gets an
	// explicit error record.
	recs = r.fillMissing(recs, domains, err)
	r.persist(ctx, recs)
	return recs
}

// Extract performs a single render-and-extract pass. A result set with no
// metrics at all is reported as a transient error so retry policies can
// act on it. The background retry queue calls this directly.
func (r *Runner) Extract(ctx context.Context, domains []string) ([]model.TrafficRecord, error) {
	page, err := r.render.Render(ctx, domains)
	if err != nil {
		return nil, eris.Wrap(err, "batch: render comparison page")
	}

	requested := domain.NewSet(domains)
	cands, strategy := r.ladder.Run(page, requested)

	now := r.now()
	out := extract.Resolve(page, requested, cands, strategy, r.policy.RequiredMonth(now), now)
	r.diag.StrategyHit(out.Strategy, len(cands))
	r.diag.SelectorHits(extract.SelectorHits(page))
	r.diag.ConfirmedZeros(out.ConfirmedZeros)

	if resilience.TotalFailure(out.Records) {
		return out.Records, resilience.NewTransientError(eris.New("batch: no metrics extracted for any domain"))
	}
	return out.Records, nil
}

func (r *Runner) fillMissing(recs []model.TrafficRecord, domains []string, cause error) []model.TrafficRecord {
	// The last attempt's records are kept as-is, per-domain errors
	// included; only domains it produced nothing for get a new record.
	have := make(map[string]bool, len(recs))
	for _, rec := range recs {
		have[domain.CacheKey(rec.Domain)] = true
	}
	kept := recs

	class := report.ClassifyError(cause)
	now := r.now()
	monthYear := r.policy.RequiredMonth(now)
	msg := eris.Cause(cause).Error()
	for _, d := range domains {
		if have[domain.CacheKey(d)] {
			continue
		}
		r.diag.Failure(class, d)
		kept = append(kept, model.ErrorRecord(d, monthYear, msg, now))
	}
	return kept
}

func (r *Runner) persist(ctx context.Context, recs []model.TrafficRecord) {
	for _, rec := range recs {
		if err := r.store.UpsertSnapshot(ctx, rec); err != nil {
			r.diag.Failure(report.FailureStore, rec.Domain)
			r.log.Error("persist record", zap.String("domain", rec.Domain), zap.Error(err))
		}
	}
}
