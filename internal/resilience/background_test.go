package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sells-group/traffic-cli/internal/model"
)

type memWriter struct {
	mu   sync.Mutex
	recs []model.TrafficRecord
}

func (w *memWriter) UpsertSnapshot(_ context.Context, rec model.TrafficRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recs = append(w.recs, rec)
	return nil
}

func (w *memWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.recs)
}

func metricRecord(domain string, visits int64) model.TrafficRecord {
	now := time.Now()
	return model.TrafficRecord{
		Domain:        domain,
		MonthlyVisits: &visits,
		MonthYear:     model.CurrentMonthYear(now),
		CheckedAt:     &now,
	}
}

func TestBackgroundQueue_PersistsRecoveredResults(t *testing.T) {
	w := &memWriter{}
	var attempts int
	var mu sync.Mutex

	fn := func(_ context.Context, domains []string) ([]model.TrafficRecord, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return nil, NewTransientError(errors.New("upstream still down"))
		}
		out := make([]model.TrafficRecord, 0, len(domains))
		for _, d := range domains {
			out = append(out, metricRecord(d, 100))
		}
		return out, nil
	}

	q := NewBackgroundQueue(5*time.Millisecond, RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}, fn, w)

	q.Enqueue([]string{"a.com", "b.com"})
	q.Close() // waits for the in-flight retry

	if got := w.count(); got != 2 {
		t.Fatalf("persisted %d records, want 2", got)
	}
}

func TestBackgroundQueue_DoesNotPersistMetriclessRecords(t *testing.T) {
	w := &memWriter{}
	fn := func(_ context.Context, domains []string) ([]model.TrafficRecord, error) {
		// One success, one still-failed record.
		return []model.TrafficRecord{
			metricRecord("a.com", 50),
			model.ErrorRecord("b.com", "2025-06", "domain not found in results", time.Now()),
		}, nil
	}

	q := NewBackgroundQueue(time.Millisecond, RetryConfig{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
	}, fn, w)
	q.Enqueue([]string{"a.com", "b.com"})
	q.Close()

	if got := w.count(); got != 1 {
		t.Fatalf("persisted %d records, want 1", got)
	}
}

func TestBackgroundQueue_CloseDrainsGraceWait(t *testing.T) {
	w := &memWriter{}
	fn := func(_ context.Context, domains []string) ([]model.TrafficRecord, error) {
		out := make([]model.TrafficRecord, 0, len(domains))
		for _, d := range domains {
			out = append(out, metricRecord(d, 10))
		}
		return out, nil
	}

	// A grace period far longer than the test: Close must cut the wait
	// short and still run the retry, not abandon it.
	q := NewBackgroundQueue(time.Hour, RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond}, fn, w)
	q.Enqueue([]string{"a.com"})
	q.Close()

	if got := w.count(); got != 1 {
		t.Fatalf("persisted %d records, want 1", got)
	}
}

func TestBackgroundQueue_EnqueueAfterCloseIsDropped(t *testing.T) {
	called := false
	q := NewBackgroundQueue(time.Millisecond, RetryConfig{MaxAttempts: 1}, func(_ context.Context, _ []string) ([]model.TrafficRecord, error) {
		called = true
		return nil, nil
	}, &memWriter{})
	q.Close()
	q.Enqueue([]string{"a.com"})
	if called {
		t.Error("retry func should not run after Close")
	}
}

func TestBackgroundQueue_EmptyEnqueueIsNoop(t *testing.T) {
	called := false
	q := NewBackgroundQueue(time.Millisecond, RetryConfig{}, func(_ context.Context, _ []string) ([]model.TrafficRecord, error) {
		called = true
		return nil, nil
	}, &memWriter{})
	q.Enqueue(nil)
	q.Close()
	if called {
		t.Error("retry func should not run for empty input")
	}
}

func TestTotalFailure(t *testing.T) {
	if !TotalFailure(nil) {
		t.Error("empty set is a total failure")
	}

	allErrors := []model.TrafficRecord{
		model.ErrorRecord("a.com", "2025-06", "x", time.Now()),
		model.ErrorRecord("b.com", "2025-06", "y", time.Now()),
	}
	if !TotalFailure(allErrors) {
		t.Error("all-error set is a total failure")
	}

	// A confirmed zero is data, not failure.
	withZero := append(allErrors, model.ZeroRecord("c.com", "2025-06", time.Now()))
	if TotalFailure(withZero) {
		t.Error("a confirmed zero should not count as failure")
	}
}
