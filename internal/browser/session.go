// Package browser owns the single shared rendering process and the
// short-lived per-sub-batch tab contexts opened against it. One Chrome
// process serves every batch in the process lifetime; isolation between
// concurrent sub-batches comes from per-tab contexts, not per-batch
// processes.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/traffic-cli/internal/config"
	"github.com/sells-group/traffic-cli/internal/domain"
	"github.com/sells-group/traffic-cli/internal/extract"
)

// Session owns the lazily-launched browser singleton. Launch is serialized:
// concurrent callers block on the same mutex rather than racing to spawn
// duplicate processes, and a disconnected browser is relaunched exactly once
// by whichever caller observes it first.
type Session struct {
	cfg config.BrowserConfig
	log *zap.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewSession creates an unlaunched Session. The browser process starts on
// the first Render call.
func NewSession(cfg config.BrowserConfig) *Session {
	return &Session{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "browser.session")),
	}
}

// ensure launches the shared browser if it is missing or disconnected.
// Callers must not hold s.mu.
func (s *Session) ensure(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browserCtx != nil && s.browserCtx.Err() == nil {
		return s.browserCtx, nil
	}

	if s.browserCancel != nil {
		s.log.Warn("shared browser disconnected, relaunching")
		s.teardownLocked()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(s.cfg.UserAgent),
	)

	// The allocator hangs off Background, not the caller's ctx: the process
	// outlives individual batch calls.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}),
	)

	// Force the process to actually start so launch failures surface here,
	// not on the first navigation.
	launchCtx, cancel := context.WithTimeout(browserCtx, s.cfg.NavTimeout())
	defer cancel()
	if err := chromedp.Run(launchCtx); err != nil {
		allocCancel()
		browserCancel()
		return nil, eris.Wrap(err, "browser: launch")
	}

	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.log.Info("shared browser launched", zap.Bool("headless", s.cfg.Headless))
	return s.browserCtx, nil
}

func (s *Session) teardownLocked() {
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.browserCtx = nil
}

// invalidate marks the shared browser dead so the next Render relaunches.
func (s *Session) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// Close shuts the shared browser down.
func (s *Session) Close() {
	s.invalidate()
}

// CompareURL builds the upstream URL for a sub-batch: the comma-joined bare
// (no www) forms of up to 10 canonical domains.
func (s *Session) CompareURL(domains []string) string {
	bare := make([]string, 0, len(domains))
	for _, d := range domains {
		b, _ := domain.Variants(d)
		bare = append(bare, b)
	}
	return fmt.Sprintf(s.cfg.URLTemplate, url.QueryEscape(strings.Join(bare, ",")))
}

// Render navigates an isolated tab to the comparison page for the given
// domains and returns a parsed snapshot. The tab (cookies and all) is
// discarded afterward; the shared process stays up for the next sub-batch.
func (s *Session) Render(ctx context.Context, domains []string) (*extract.Page, error) {
	browserCtx, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	tab, cancelRun := context.WithTimeout(tabCtx, s.cfg.NavTimeout()+s.cfg.ReadyTimeout())
	defer cancelRun()

	// The tab honors the caller's cancellation without tying the shared
	// browser to the caller's context.
	go func() {
		select {
		case <-ctx.Done():
			cancelRun()
		case <-tab.Done():
		}
	}()

	if err := blockSubresources(tab); err != nil {
		return nil, err
	}

	target := s.CompareURL(domains)
	s.log.Debug("navigating", zap.String("url", target), zap.Int("domains", len(domains)))

	if err := chromedp.Run(tab, chromedp.Navigate(target)); err != nil {
		if browserCtx.Err() != nil {
			s.invalidate()
		}
		return nil, eris.Wrapf(err, "browser: navigate %s", target)
	}

	page, err := s.awaitReady(tab, domains)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// awaitReady polls the tab until the structural selectors and the content
// readiness predicate are satisfied, or the readiness timeout lapses. On
// timeout it degrades gracefully: whatever rendered is returned for the
// ladder to chew on.
func (s *Session) awaitReady(tab context.Context, domains []string) (*extract.Page, error) {
	requested := domain.NewSet(domains)
	deadline := time.Now().Add(s.cfg.ReadyTimeout())

	var last *extract.Page
	for {
		var html string
		if err := chromedp.Run(tab, chromedp.OuterHTML("html", &html)); err != nil {
			if last != nil {
				return last, nil
			}
			return nil, eris.Wrap(err, "browser: snapshot")
		}

		page, err := extract.NewPage(html)
		if err == nil {
			last = page
			if extract.StructurallyReady(page) && contentReadyFor(page, requested, s.cfg.ReadyFraction) {
				return page, nil
			}
		}

		if time.Now().After(deadline) {
			if last == nil {
				return nil, eris.New("browser: nothing rendered before readiness timeout")
			}
			s.log.Warn("readiness predicate unsatisfied, extracting from partial render",
				zap.Int("domains", len(domains)),
			)
			return last, nil
		}

		select {
		case <-tab.Done():
			if last != nil {
				return last, nil
			}
			return nil, eris.Wrap(tab.Err(), "browser: tab closed while waiting")
		case <-time.After(s.cfg.PollInterval()):
		}
	}
}

// contentReadyFor applies the content predicate, additionally requiring that
// at least one requested domain is visible so a results page for someone
// else's query never counts as ready.
func contentReadyFor(page *extract.Page, requested *domain.Set, fraction float64) bool {
	if !extract.ContentReady(page, fraction) {
		return false
	}
	for _, d := range requested.Domains() {
		bare, www := domain.Variants(d)
		if page.Contains(bare) || page.Contains(www) {
			return true
		}
	}
	return false
}
