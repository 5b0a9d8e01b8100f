// Package model defines shared data structures for the scraping service.
package model

import "time"

// StoreCandidate is a grocery store discovered by a provider.
// Provenance (Source) is never dropped: after merging, the winning record
// keeps its source and a count of the duplicates it superseded.
type StoreCandidate struct {
	Name       string `json:"name"`
	Chain      string `json:"chain,omitempty"`
	Address    string `json:"address"`
	PostalCode Area   `json:"postalCode"`
	Phone      string `json:"phone,omitempty"`
	Website    string `json:"website,omitempty"`
	FlyerURL   string `json:"flyerUrl,omitempty"`
	Latitude   string `json:"latitude,omitempty"`
	Longitude  string `json:"longitude,omitempty"`
	Source     string `json:"source"`     // provider ID that produced this record
	SourceRank int    `json:"sourceRank"` // position in the fallback hierarchy (0 = primary)
	// Superseded counts the distinct sources whose duplicates this record
	// absorbed during merging; SupersededSources names them so re-merging
	// a duplicate from a known source changes nothing.
	Superseded        int      `json:"superseded,omitempty"`
	SupersededSources []string `json:"supersededSources,omitempty"`
}

// OfferCandidate is a price/deal discovered by a provider.
type OfferCandidate struct {
	StoreName         string    `json:"storeName"`
	ProductName       string    `json:"productName"`
	Brand             string    `json:"brand,omitempty"`
	Category          string    `json:"category,omitempty"`
	Price             float64   `json:"price"`
	OriginalPrice     float64   `json:"originalPrice,omitempty"`
	Unit              string    `json:"unit,omitempty"`
	StartDate         time.Time `json:"startDate"`
	EndDate           time.Time `json:"endDate"`
	FeaturedDeal      bool      `json:"featuredDeal,omitempty"`
	Description       string    `json:"description,omitempty"`
	ImageURL          string    `json:"imageUrl,omitempty"`
	PostalCode        Area      `json:"postalCode"`
	Source            string    `json:"source"`
	ScrapedAt         time.Time `json:"scrapedAt"`
	Superseded        int       `json:"superseded,omitempty"`
	SupersededSources []string  `json:"supersededSources,omitempty"`
}

// Expired reports whether the offer's validity window has closed as of now.
func (o OfferCandidate) Expired(now time.Time) bool {
	return !o.EndDate.IsZero() && o.EndDate.Before(now)
}

// WindowOverlaps reports whether two validity windows intersect. Offers with
// zero dates are treated as always-valid and overlap everything.
func (o OfferCandidate) WindowOverlaps(other OfferCandidate) bool {
	if o.StartDate.IsZero() || o.EndDate.IsZero() ||
		other.StartDate.IsZero() || other.EndDate.IsZero() {
		return true
	}
	return !o.EndDate.Before(other.StartDate) && !other.EndDate.Before(o.StartDate)
}

// ResultSet is the accumulated output of one orchestration run.
type ResultSet struct {
	Stores []StoreCandidate `json:"stores"`
	Offers []OfferCandidate `json:"offers"`
}

// Empty reports whether the set holds no records at all.
func (r ResultSet) Empty() bool {
	return len(r.Stores) == 0 && len(r.Offers) == 0
}
