package browser

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// blockedType reports whether a resource type is non-essential for metric
// extraction. Scripts and documents stay; everything cosmetic is dropped at
// the network layer for speed.
func blockedType(t network.ResourceType) bool {
	switch t {
	case network.ResourceTypeImage,
		network.ResourceTypeFont,
		network.ResourceTypeStylesheet,
		network.ResourceTypeMedia:
		return true
	default:
		return false
	}
}

// blockSubresources intercepts the tab's requests and fails any blocked
// resource type before it hits the wire.
func blockSubresources(tab context.Context) error {
	chromedp.ListenTarget(tab, func(ev interface{}) {
		e, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(tab)
			ectx := cdp.WithExecutor(tab, c.Target)
			if blockedType(e.ResourceType) {
				_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ectx)
				return
			}
			_ = fetch.ContinueRequest(e.RequestID).Do(ectx)
		}()
	})

	if err := chromedp.Run(tab, fetch.Enable()); err != nil {
		return eris.Wrap(err, "browser: enable request interception")
	}
	return nil
}
