package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/traffic-cli/internal/model"
)

// RetryFunc re-runs extraction for a set of domains.
type RetryFunc func(ctx context.Context, domains []string) ([]model.TrafficRecord, error)

// SnapshotWriter persists records recovered by background retries.
type SnapshotWriter interface {
	UpsertSnapshot(ctx context.Context, rec model.TrafficRecord) error
}

// BackgroundQueue retries domains that failed on the synchronous path,
// decoupled from any caller's request/response cycle. Each enqueued group
// waits an initial grace period (the upstream is usually still unhappy
// right after a failure), then retries on a looser backoff schedule and
// persists whatever newly succeeds. Callers are never blocked and never
// see these results directly; they re-query the store.
type BackgroundQueue struct {
	grace  time.Duration
	cfg    RetryConfig
	fn     RetryFunc
	writer SnapshotWriter
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
}

// NewBackgroundQueue builds a queue. Close must be called to stop it.
func NewBackgroundQueue(grace time.Duration, cfg RetryConfig, fn RetryFunc, writer SnapshotWriter) *BackgroundQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundQueue{
		grace:  grace,
		cfg:    cfg,
		fn:     fn,
		writer: writer,
		log:    zap.L().With(zap.String("component", "resilience.background")),
		ctx:    ctx,
		cancel: cancel,
		stop:   make(chan struct{}),
	}
}

// Enqueue schedules a background retry for the given domains and returns
// immediately. Empty input is a no-op.
func (q *BackgroundQueue) Enqueue(domains []string) {
	if len(domains) == 0 {
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.log.Warn("queue closed, dropping retry request", zap.Int("domains", len(domains)))
		return
	}
	q.wg.Add(1)
	q.mu.Unlock()

	id := uuid.New().String()
	q.log.Info("scheduling background retry",
		zap.String("id", id),
		zap.Int("domains", len(domains)),
		zap.Duration("grace", q.grace),
	)

	go func() {
		defer q.wg.Done()
		q.run(id, domains)
	}()
}

func (q *BackgroundQueue) run(id string, domains []string) {
	timer := time.NewTimer(q.grace)
	defer timer.Stop()
	select {
	case <-q.ctx.Done():
		return
	case <-q.stop:
		// Shutting down mid-grace: retry now instead of dropping the work.
	case <-timer.C:
	}

	cfg := q.cfg
	cfg.OnRetry = RetryLogger("resilience.background", "extract "+id)

	records, err := DoVal(q.ctx, cfg, func(ctx context.Context) ([]model.TrafficRecord, error) {
		recs, err := q.fn(ctx, domains)
		if err != nil {
			return recs, err
		}
		if TotalFailure(recs) {
			return recs, NewTransientError(errTotalFailure)
		}
		return recs, nil
	})
	if err != nil {
		q.log.Warn("background retry exhausted",
			zap.String("id", id),
			zap.Int("domains", len(domains)),
			zap.Error(err),
		)
		return
	}

	var persisted int
	for _, rec := range records {
		if !rec.HasMetrics() {
			continue
		}
		if err := q.writer.UpsertSnapshot(q.ctx, rec); err != nil {
			q.log.Error("persist background result",
				zap.String("domain", rec.Domain),
				zap.Error(err),
			)
			continue
		}
		persisted++
	}
	q.log.Info("background retry complete",
		zap.String("id", id),
		zap.Int("recovered", persisted),
	)
}

// Close stops accepting work and drains: in-flight retries run to
// completion (grace waits are cut short, not abandoned) before the queue's
// context is cancelled.
func (q *BackgroundQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.wg.Wait()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stop)
	q.wg.Wait()
	q.cancel()
}
