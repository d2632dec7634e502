package main

import (
	"bufio"
	"context"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/traffic-cli/internal/batch"
	"github.com/sells-group/traffic-cli/internal/browser"
	"github.com/sells-group/traffic-cli/internal/config"
	"github.com/sells-group/traffic-cli/internal/model"
	"github.com/sells-group/traffic-cli/internal/report"
	"github.com/sells-group/traffic-cli/internal/resilience"
	"github.com/sells-group/traffic-cli/internal/store"
)

// runtimeEnv bundles everything a batch-processing command needs.
type runtimeEnv struct {
	Store   store.Store
	Session *browser.Session
	Runner  *batch.Runner
	Queue   *resilience.BackgroundQueue
	Diag    *report.Collector
}

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

func initEnv(ctx context.Context) (*runtimeEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	session := browser.NewSession(cfg.Browser)
	diag := report.NewCollector()
	policy := store.PolicyFromConfig(cfg.Store)

	// The queue re-runs the runner's extraction path, so build the queue
	// against a forward reference and wire the runner to it.
	var runner *batch.Runner
	queue := resilience.NewBackgroundQueue(
		time.Duration(cfg.Retry.BackgroundGraceSecs)*time.Second,
		backgroundRetryConfig(cfg.Retry),
		func(ctx context.Context, domains []string) ([]model.TrafficRecord, error) {
			return runner.Extract(ctx, domains)
		},
		st,
	)
	runner = batch.NewRunner(cfg.Batch, syncRetryConfig(cfg.Retry), policy, st, session, queue, diag)

	return &runtimeEnv{
		Store:   st,
		Session: session,
		Runner:  runner,
		Queue:   queue,
		Diag:    diag,
	}, nil
}

func (e *runtimeEnv) Close() {
	e.Queue.Close()
	e.Session.Close()
	e.Store.Close()
}

func syncRetryConfig(c config.RetryConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: time.Duration(c.InitialBackoffMillis) * time.Millisecond,
		MaxBackoff:     time.Duration(c.MaxBackoffSecs) * time.Second,
		Multiplier:     2.0,
	}
}

func backgroundRetryConfig(c config.RetryConfig) resilience.RetryConfig {
	out := syncRetryConfig(c)
	out.MaxAttempts = c.BackgroundAttempts
	return out
}

// readDomainArgs collects domains from positional args, a comma-separated
// flag value, and an optional one-per-line file.
func readDomainArgs(args []string, list, file string) ([]string, error) {
	domains := append([]string(nil), args...)
	for _, d := range strings.Split(list, ",") {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, eris.Wrapf(err, "open domains file %s", file)
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			domains = append(domains, line)
		}
		if err := scanner.Err(); err != nil {
			return nil, eris.Wrapf(err, "read domains file %s", file)
		}
	}
	if len(domains) == 0 {
		return nil, eris.New("no domains given: pass args, --domains, or --file")
	}
	return domains, nil
}
