package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/traffic-cli/internal/config"
	"github.com/sells-group/traffic-cli/internal/extract"
	"github.com/sells-group/traffic-cli/internal/model"
	"github.com/sells-group/traffic-cli/internal/resilience"
	"github.com/sells-group/traffic-cli/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	cached   map[string]model.TrafficRecord
	cacheErr error
	upserts  []model.TrafficRecord
}

func (f *fakeStore) UpsertSnapshot(_ context.Context, rec model.TrafficRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, rec)
	return nil
}

func (f *fakeStore) GetBatch(_ context.Context, _ []string) (map[string]model.TrafficRecord, error) {
	if f.cacheErr != nil {
		return nil, f.cacheErr
	}
	if f.cached == nil {
		return map[string]model.TrafficRecord{}, nil
	}
	return f.cached, nil
}

func (f *fakeStore) GetLatest(_ context.Context, _ string) (*model.TrafficRecord, error) {
	return nil, nil
}

func (f *fakeStore) PruneSnapshots(_ context.Context, _ int) (int64, error) { return 0, nil }
func (f *fakeStore) Migrate(_ context.Context) error                        { return nil }
func (f *fakeStore) Close() error                                           { return nil }

func (f *fakeStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

// fakeRenderer serves a canned comparison table for whatever domains are
// requested, optionally failing or panicking on the first few calls.
type fakeRenderer struct {
	mu          sync.Mutex
	calls       int
	failures    int
	panics      int
	delay       time.Duration
	inflight    int
	maxInflight int
	batches     [][]string
}

func (f *fakeRenderer) Render(_ context.Context, domains []string) (*extract.Page, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	f.batches = append(f.batches, append([]string(nil), domains...))
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()

	if call <= f.panics {
		panic(fmt.Sprintf("selector walk out of bounds on call %d", call))
	}
	if call <= f.failures {
		return nil, resilience.NewTransientError(fmt.Errorf("browser: navigate attempt %d", call))
	}

	var rows strings.Builder
	for i, d := range domains {
		fmt.Fprintf(&rows, `<tr><td>%s</td><td>%d.5K</td><td>00:02:0%d</td><td>3.1</td><td>40.%d%%</td></tr>`, d, i+1, i%10, i%10)
	}
	html := `<html><body><table>
		<thead><tr><th>Website</th><th>Monthly Visits</th><th>Avg Duration</th><th>Pages / Visit</th><th>Bounce Rate</th></tr></thead>
		<tbody>` + rows.String() + `</tbody></table></body></html>`
	return extract.NewPage(html)
}

func (f *fakeRenderer) maxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInflight
}

func (f *fakeRenderer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeQueue struct {
	mu      sync.Mutex
	batches [][]string
}

func (f *fakeQueue) Enqueue(domains []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, domains)
}

func testBatchConfig() config.BatchConfig {
	return config.BatchConfig{
		SubBatchSize:   10,
		MaxConcurrent:  3,
		WaveDelaySecs:  0,
		SubBatchBudget: 60,
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func testPolicy() store.FreshnessPolicy {
	return store.FreshnessPolicy{CutoffDay: 12, MaxAgeDays: 35, PrevMonthMaxAgeDays: 45}
}

func TestRunExtractsAndPersists(t *testing.T) {
	st := &fakeStore{}
	rnd := &fakeRenderer{}
	r := NewRunner(testBatchConfig(), fastRetry(), testPolicy(), st, rnd, nil, nil)

	res, err := r.Run(context.Background(), model.BatchRequest{
		Domains: []string{"alpha.com", "beta.com"},
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)

	assert.Equal(t, "alpha.com", res.Results[0].Domain)
	require.NotNil(t, res.Results[0].MonthlyVisits)
	assert.Equal(t, int64(1500), *res.Results[0].MonthlyVisits)
	assert.Equal(t, "beta.com", res.Results[1].Domain)
	assert.Equal(t, int64(2500), *res.Results[1].MonthlyVisits)

	assert.Equal(t, 2, res.Metadata.TotalDomains)
	assert.Equal(t, 0, res.Metadata.CacheHits)
	assert.Equal(t, 2, res.Metadata.CacheMisses)
	assert.Equal(t, 1, res.Metadata.BatchesProcessed)
	assert.Empty(t, res.Metadata.Errors)
	assert.Equal(t, 2, st.upsertCount())
}

func TestRunNormalizesAndDeduplicates(t *testing.T) {
	st := &fakeStore{}
	rnd := &fakeRenderer{}
	r := NewRunner(testBatchConfig(), fastRetry(), testPolicy(), st, rnd, nil, nil)

	res, err := r.Run(context.Background(), model.BatchRequest{
		Domains: []string{"Example.com/", "WWW.EXAMPLE.COM", "invalid_domain"},
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "example.com", res.Results[0].Domain)
	assert.Equal(t, 1, res.Metadata.TotalDomains)
}

func TestRunRejectsEmptyInput(t *testing.T) {
	r := NewRunner(testBatchConfig(), fastRetry(), testPolicy(), &fakeStore{}, &fakeRenderer{}, nil, nil)

	_, err := r.Run(context.Background(), model.BatchRequest{Domains: []string{"not a domain", ""}})
	assert.Error(t, err)
}

func TestRunServesFreshCacheWithoutRendering(t *testing.T) {
	now := time.Now().UTC()
	visits := int64(9000)
	st := &fakeStore{cached: map[string]model.TrafficRecord{
		"alpha.com": {
			Domain:        "alpha.com",
			MonthlyVisits: &visits,
			MonthYear:     testPolicy().RequiredMonth(now),
			CheckedAt:     &now,
		},
	}}
	rnd := &fakeRenderer{}
	r := NewRunner(testBatchConfig(), fastRetry(), testPolicy(), st, rnd, nil, nil)

	res, err := r.Run(context.Background(), model.BatchRequest{Domains: []string{"alpha.com"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Metadata.CacheHits)
	assert.Equal(t, 0, res.Metadata.CacheMisses)
	assert.Equal(t, 0, res.Metadata.BatchesProcessed)
	assert.Equal(t, int64(9000), *res.Results[0].MonthlyVisits)
	assert.Equal(t, 0, rnd.callCount())
}

func TestRunBypassCacheIgnoresFreshRecords(t *testing.T) {
	now := time.Now().UTC()
	visits := int64(9000)
	st := &fakeStore{cached: map[string]model.TrafficRecord{
		"alpha.com": {
			Domain:        "alpha.com",
			MonthlyVisits: &visits,
			MonthYear:     testPolicy().RequiredMonth(now),
			CheckedAt:     &now,
		},
	}}
	rnd := &fakeRenderer{}
	r := NewRunner(testBatchConfig(), fastRetry(), testPolicy(), st, rnd, nil, nil)

	res, err := r.Run(context.Background(), model.BatchRequest{
		Domains:     []string{"alpha.com"},
		BypassCache: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Metadata.CacheHits)
	assert.Equal(t, 1, rnd.callCount())
	assert.Equal(t, int64(1500), *res.Results[0].MonthlyVisits)
}

func TestRunCacheErrorDegradesToExtraction(t *testing.T) {
	st := &fakeStore{cacheErr: fmt.Errorf("sqlite: database is locked")}
	rnd := &fakeRenderer{}
	r := NewRunner(testBatchConfig(), fastRetry(), testPolicy(), st, rnd, nil, nil)

	res, err := r.Run(context.Background(), model.BatchRequest{Domains: []string{"alpha.com"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Metadata.CacheMisses)
	assert.Equal(t, 1, rnd.callCount())
}

func TestRunChunksIntoSubBatches(t *testing.T) {
	st := &fakeStore{}
	rnd := &fakeRenderer{}
	r := NewRunner(testBatchConfig(), fastRetry(), testPolicy(), st, rnd, nil, nil)

	domains := make([]string, 0, 23)
	for i := 0; i < 23; i++ {
		domains = append(domains, fmt.Sprintf("site%02d.com", i))
	}
	res, err := r.Run(context.Background(), model.BatchRequest{Domains: domains})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Metadata.BatchesProcessed)
	assert.Equal(t, 3, rnd.callCount())
	require.Len(t, res.Results, 23)
	for i, rec := range res.Results {
		assert.Equal(t, domains[i], rec.Domain)
		assert.NotNil(t, rec.MonthlyVisits)
	}
}

func TestRunRetriesTransientRenderFailure(t *testing.T) {
	st := &fakeStore{}
	rnd := &fakeRenderer{failures: 1}
	r := NewRunner(testBatchConfig(), fastRetry(), testPolicy(), st, rnd, nil, nil)

	res, err := r.Run(context.Background(), model.BatchRequest{Domains: []string{"alpha.com"}})
	require.NoError(t, err)
	assert.Equal(t, 2, rnd.callCount())
	assert.Empty(t, res.Metadata.Errors)
	require.NotNil(t, res.Results[0].MonthlyVisits)
}

func TestRunExhaustedRetriesYieldErrorRecordsAndEnqueue(t *testing.T) {
	st := &fakeStore{}
	rnd := &fakeRenderer{failures: 100}
	q := &fakeQueue{}
	r := NewRunner(testBatchConfig(), fastRetry(), testPolicy(), st, rnd, q, nil)

	res, err := r.Run(context.Background(), model.BatchRequest{Domains: []string{"alpha.com", "beta.com"}})
	require.NoError(t, err)

	require.Len(t, res.Metadata.Errors, 2)
	for _, rec := range res.Results {
		assert.False(t, rec.HasMetrics())
		assert.NotEmpty(t, rec.Error)
	}
	require.Len(t, q.batches, 1)
	assert.Equal(t, []string{"alpha.com", "beta.com"}, q.batches[0])

	// Error records still land in the store so last_error is queryable.
	assert.Equal(t, 2, st.upsertCount())
}

func TestRunPanickingSubBatchContained(t *testing.T) {
	st := &fakeStore{}
	rnd := &fakeRenderer{panics: 1}
	cfg := testBatchConfig()
	cfg.MaxConcurrent = 1
	r := NewRunner(cfg, fastRetry(), testPolicy(), st, rnd, nil, nil)

	domains := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		domains = append(domains, fmt.Sprintf("site%02d.com", i))
	}
	res, err := r.Run(context.Background(), model.BatchRequest{Domains: domains})
	require.NoError(t, err)
	require.Len(t, res.Results, 12)

	require.Len(t, res.Metadata.Errors, 10)
	for _, rec := range res.Results[:10] {
		assert.False(t, rec.HasMetrics())
		assert.NotEmpty(t, rec.Error)
	}
	for _, rec := range res.Results[10:] {
		assert.True(t, rec.HasMetrics(), "sibling sub-batch should survive a panic: %s", rec.Domain)
	}
}

func TestRunWaveRunsSubBatchesConcurrently(t *testing.T) {
	st := &fakeStore{}
	rnd := &fakeRenderer{delay: 100 * time.Millisecond}
	cfg := testBatchConfig()
	cfg.MaxConcurrent = 2
	cfg.WaveDelaySecs = 1
	r := NewRunner(cfg, fastRetry(), testPolicy(), st, rnd, nil, nil)

	domains := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		domains = append(domains, fmt.Sprintf("site%02d.com", i))
	}

	startedAt := time.Now()
	res, err := r.Run(context.Background(), model.BatchRequest{Domains: domains})
	require.NoError(t, err)

	// Both sub-batches belong to the first wave: they start together, not
	// one per wave-delay tick.
	assert.Equal(t, 2, res.Metadata.BatchesProcessed)
	assert.Equal(t, 2, rnd.maxConcurrent())
	assert.Less(t, time.Since(startedAt), time.Second)
}

func TestRunOneSubBatchFailureDoesNotAbortSiblings(t *testing.T) {
	st := &fakeStore{}
	// First render call fails and its retries fail; serialized sub-batches
	// mean exactly the first sub-batch burns all attempts.
	rnd := &fakeRenderer{failures: 3}
	cfg := testBatchConfig()
	cfg.MaxConcurrent = 1
	r := NewRunner(cfg, fastRetry(), testPolicy(), st, rnd, nil, nil)

	domains := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		domains = append(domains, fmt.Sprintf("site%02d.com", i))
	}
	res, err := r.Run(context.Background(), model.BatchRequest{Domains: domains})
	require.NoError(t, err)
	require.Len(t, res.Results, 12)

	assert.Len(t, res.Metadata.Errors, 10)
	for _, rec := range res.Results[10:] {
		assert.True(t, rec.HasMetrics(), "second sub-batch should have succeeded: %s", rec.Domain)
	}
}
