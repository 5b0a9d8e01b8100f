package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
)

const (
	flippBaseURL     = "https://backflipp.wishabi.com/flipp"
	flippUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	flippHTTPTimeout = 15 * time.Second
	flippMerchantMax = 10 // cap offers searches per area
)

var flippSearchPause = 500 * time.Millisecond

// flippSearchTerms seed the merchant discovery for an area.
var flippSearchTerms = []string{"grocery", "supermarket", "No Frills", "Loblaws", "Metro", "Sobeys"}

// Flipp is the aggregator-API provider, first in the fallback hierarchy.
// It talks to the backflipp search endpoint that powers the Flipp site.
type Flipp struct {
	client *resty.Client
}

// NewFlipp constructs the provider. baseURL overrides the production
// endpoint (used by tests); empty means the default.
func NewFlipp(baseURL string) *Flipp {
	if baseURL == "" {
		baseURL = flippBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(flippHTTPTimeout).
		SetHeader("User-Agent", flippUserAgent).
		SetHeader("Accept", "application/json, text/plain, */*").
		SetHeader("Accept-Language", "en-CA,en;q=0.9")
	return &Flipp{client: client}
}

func (f *Flipp) ID() string      { return IDFlippAPI }
func (f *Flipp) Available() bool { return true }

// flippResponse mirrors the backflipp items/search payload.
type flippResponse struct {
	Items []flippItem `json:"items"`
}

type flippItem struct {
	Name          string        `json:"name"`
	Merchant      flippMerchant `json:"merchant"`
	MerchantName  string        `json:"merchant_name"`
	Price         string        `json:"price"`
	CurrentPrice  string        `json:"current_price"`
	OriginalPrice string        `json:"original_price"`
	Brand         string        `json:"brand"`
	Category      string        `json:"category"`
	Unit          string        `json:"unit"`
	ValidFrom     string        `json:"valid_from"`
	ValidTo       string        `json:"valid_to"`
	Featured      bool          `json:"featured"`
	Description   string        `json:"description"`
	ImageURL      string        `json:"image_url"`
}

type flippMerchant struct {
	Name string `json:"name"`
}

func (i flippItem) merchantName() string {
	if i.Merchant.Name != "" {
		return i.Merchant.Name
	}
	return i.MerchantName
}

// Fetch discovers grocery merchants for the area, then pulls current offers
// per merchant. Searches are paced so one Fetch does not hammer the API even
// though the global rate limiter only gates whole provider calls.
func (f *Flipp) Fetch(ctx context.Context, area model.Area) (model.ResultSet, error) {
	merchants, err := f.searchMerchants(ctx, area)
	if err != nil {
		return model.ResultSet{}, err
	}
	if len(merchants) == 0 {
		return model.ResultSet{}, NotSupported(IDFlippAPI, area)
	}

	var set model.ResultSet
	for i, name := range merchants {
		if i >= flippMerchantMax {
			break
		}
		if i > 0 {
			if err := pause(ctx, flippSearchPause); err != nil {
				return set, err
			}
		}

		offers, err := f.searchOffers(ctx, area, name)
		if err != nil {
			// One merchant failing does not void the others.
			continue
		}
		set.Stores = append(set.Stores, model.StoreCandidate{
			Name:       name,
			Chain:      ExtractChain(name),
			Address:    "",
			PostalCode: area,
			Website:    "https://flipp.com",
			Source:     IDFlippAPI,
		})
		set.Offers = append(set.Offers, offers...)
	}
	return set, nil
}

// searchMerchants queries the item search with grocery seed terms and
// collects the unique grocery merchants appearing in the results.
func (f *Flipp) searchMerchants(ctx context.Context, area model.Area) ([]string, error) {
	seen := make(map[string]bool)
	var merchants []string

	for i, term := range flippSearchTerms {
		if i > 0 {
			if err := pause(ctx, flippSearchPause); err != nil {
				return merchants, err
			}
		}

		var out flippResponse
		resp, err := f.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"locale":      "en-ca",
				"postal_code": area.Display(),
				"q":           term,
			}).
			SetResult(&out).
			Get("/items/search")
		if err != nil {
			return nil, Transient(fmt.Errorf("flipp search %q: %w", term, err))
		}
		if err := classifyHTTPStatus(resp.StatusCode()); err != nil {
			return nil, err
		}

		for _, item := range out.Items {
			name := item.merchantName()
			if name == "" || seen[name] || !LooksLikeGrocery(name) {
				continue
			}
			seen[name] = true
			merchants = append(merchants, name)
		}
	}
	return merchants, nil
}

func (f *Flipp) searchOffers(ctx context.Context, area model.Area, merchant string) ([]model.OfferCandidate, error) {
	var out flippResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"locale":      "en-ca",
			"postal_code": area.Display(),
			"q":           merchant,
		}).
		SetResult(&out).
		Get("/items/search")
	if err != nil {
		return nil, Transient(fmt.Errorf("flipp offers for %q: %w", merchant, err))
	}
	if err := classifyHTTPStatus(resp.StatusCode()); err != nil {
		return nil, err
	}

	offers := make([]model.OfferCandidate, 0, len(out.Items))
	for _, item := range out.Items {
		if offer, ok := item.toOffer(merchant, area); ok {
			offers = append(offers, offer)
		}
	}
	return offers, nil
}

func (i flippItem) toOffer(merchant string, area model.Area) (model.OfferCandidate, bool) {
	if i.Name == "" {
		return model.OfferCandidate{}, false
	}

	price := ParsePrice(i.Price)
	if price == 0 {
		price = ParsePrice(i.CurrentPrice)
	}
	return model.OfferCandidate{
		StoreName:     merchant,
		ProductName:   i.Name,
		Brand:         i.Brand,
		Category:      i.Category,
		Price:         price,
		OriginalPrice: ParsePrice(i.OriginalPrice),
		Unit:          i.Unit,
		StartDate:     ParseDate(i.ValidFrom),
		EndDate:       ParseDate(i.ValidTo),
		FeaturedDeal:  i.Featured,
		Description:   i.Description,
		ImageURL:      i.ImageURL,
		PostalCode:    area,
		Source:        IDFlippAPI,
	}, true
}

// classifyHTTPStatus maps a response code to the error taxonomy: 429 and
// 5xx are transient, other non-200s terminal for this provider.
func classifyHTTPStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return Transient(fmt.Errorf("upstream returned %d", code))
	default:
		return Terminal(fmt.Errorf("upstream returned %d", code))
	}
}

// pause waits d or until ctx expires.
func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
