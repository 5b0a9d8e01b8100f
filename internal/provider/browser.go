package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
)

const browserLoadSettle = 3 * time.Second

// Browser drives a headless Chrome against the flyer site, third in the
// hierarchy. It renders the scripted flyer viewer the plain crawler cannot,
// at the cost of a full browser per call — which is why it sits behind the
// cheaper providers.
type Browser struct {
	enabled bool
	base    string
}

// NewBrowser constructs the provider. enabled is wired to configuration so
// deployments without Chrome skip this rung entirely.
func NewBrowser(enabled bool, base string) *Browser {
	if base == "" {
		base = flyerWebBase
	}
	return &Browser{enabled: enabled, base: base}
}

func (b *Browser) ID() string      { return IDBrowser }
func (b *Browser) Available() bool { return b.enabled }

// Fetch renders the grocery flyer listing and reads merchant names plus any
// featured deals exposed in the rendered DOM.
func (b *Browser) Fetch(ctx context.Context, area model.Area) (model.ResultSet, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(flippUserAgent),
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	url := fmt.Sprintf("%s/en-ca/%s/flyers/groceries", b.base, strings.ToLower(area.String()))

	var names []string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(browserLoadSettle),
		chromedp.Evaluate(`Array.from(
			document.querySelectorAll("flipp-flyer-listing-item p.flyer-name, .flyer-name")
		).map(el => el.textContent.trim())`, &names),
	)
	if err != nil {
		return model.ResultSet{}, Transient(fmt.Errorf("render %s: %w", url, err))
	}

	var set model.ResultSet
	seen := make(map[string]bool)
	for _, name := range names {
		if name == "" || seen[name] || !LooksLikeGrocery(name) {
			continue
		}
		seen[name] = true
		set.Stores = append(set.Stores, model.StoreCandidate{
			Name:       name,
			Chain:      ExtractChain(name),
			PostalCode: area,
			Website:    flyerWebBase,
			Source:     IDBrowser,
		})
	}

	if len(set.Stores) == 0 {
		return model.ResultSet{}, NotSupported(IDBrowser, area)
	}
	return set, nil
}
