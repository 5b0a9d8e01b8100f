package provider

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var priceJunk = regexp.MustCompile(`[^\d.,]`)

// ParsePrice extracts a numeric price from free text ("$3.99", "2,49 €",
// "1,234.56"). Unparseable input yields 0.
func ParsePrice(raw string) float64 {
	s := priceJunk.ReplaceAllString(raw, "")
	if s == "" {
		return 0
	}

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		// "1,234.56" — comma is a thousands separator
		s = strings.ReplaceAll(s, ",", "")
	case strings.Contains(s, ","):
		parts := strings.Split(s, ",")
		if len(parts[len(parts)-1]) <= 2 {
			// "2,49" — comma decimal
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			// "1,234" — thousands separator
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// chains maps lowercase markers to canonical chain names.
var chains = map[string]string{
	"no frills":   "No Frills",
	"loblaws":     "Loblaws",
	"metro":       "Metro",
	"sobeys":      "Sobeys",
	"foodland":    "Foodland",
	"freshco":     "FreshCo",
	"giant tiger": "Giant Tiger",
	"walmart":     "Walmart",
}

// ExtractChain derives the chain name from a store name, defaulting to the
// store name itself for independents.
func ExtractChain(storeName string) string {
	lower := strings.ToLower(storeName)
	for marker, chain := range chains {
		if strings.Contains(lower, marker) {
			return chain
		}
	}
	return storeName
}

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
}

// ParseDate parses the date layouts the flyer services emit. A zero time
// means "no date" and callers apply their defaults.
func ParseDate(raw string) time.Time {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// groceryMarkers filters merchant names down to grocery stores.
var groceryMarkers = []string{"grocery", "market", "frills", "loblaws", "metro", "sobeys", "food"}

// LooksLikeGrocery reports whether a merchant name reads like a grocery
// store. The flyer aggregators list everything from pharmacies to
// electronics; only grocery merchants are worth an offers search.
func LooksLikeGrocery(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range groceryMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
