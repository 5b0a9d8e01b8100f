package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocolly/colly/v2"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
)

const flyerWebBase = "https://flipp.com"

// FlyerWeb crawls the public flyer listing pages, second in the hierarchy.
// It only yields store candidates — the listing page carries merchant names
// but offers hide behind scripted flyer viewers, which is the browser
// provider's job.
type FlyerWeb struct {
	base           string
	allowedDomains []string
}

// NewFlyerWeb constructs the provider. base overrides the production site
// (used by tests); empty means the default.
func NewFlyerWeb(base string) *FlyerWeb {
	allowed := []string(nil)
	if base == "" {
		base = flyerWebBase
		allowed = []string{"flipp.com"}
	}
	return &FlyerWeb{base: base, allowedDomains: allowed}
}

func (w *FlyerWeb) ID() string      { return IDFlyerWeb }
func (w *FlyerWeb) Available() bool { return true }

// Fetch crawls the grocery flyer listing for the area.
func (w *FlyerWeb) Fetch(ctx context.Context, area model.Area) (model.ResultSet, error) {
	opts := []colly.CollectorOption{
		colly.UserAgent(flippUserAgent),
		colly.StdlibContext(ctx),
	}
	if len(w.allowedDomains) > 0 {
		opts = append(opts, colly.AllowedDomains(w.allowedDomains...))
	}
	c := colly.NewCollector(opts...)

	var set model.ResultSet
	seen := make(map[string]bool)

	c.OnHTML("flipp-flyer-listing-item, .flyer-listing-item", func(e *colly.HTMLElement) {
		name := strings.TrimSpace(e.ChildText("p.flyer-name"))
		if name == "" {
			name = strings.TrimSpace(e.ChildText(".flyer-name"))
		}
		if name == "" || seen[name] || !LooksLikeGrocery(name) {
			return
		}
		seen[name] = true
		set.Stores = append(set.Stores, model.StoreCandidate{
			Name:       name,
			Chain:      ExtractChain(name),
			PostalCode: area,
			Website:    flyerWebBase,
			FlyerURL:   e.Request.AbsoluteURL(e.ChildAttr("a", "href")),
			Source:     IDFlyerWeb,
		})
	})

	url := fmt.Sprintf("%s/en-ca/%s/flyers/groceries", w.base, strings.ToLower(area.String()))
	if err := c.Visit(url); err != nil {
		return model.ResultSet{}, Transient(fmt.Errorf("visit %s: %w", url, err))
	}
	c.Wait()

	if len(set.Stores) == 0 {
		return model.ResultSet{}, NotSupported(IDFlyerWeb, area)
	}
	return set, nil
}
