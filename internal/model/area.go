package model

import (
	"fmt"
	"strings"
)

// Area is a canonicalized postal code identifying a scraping target.
// The canonical form is uppercase with all whitespace removed; it is the
// key under which stores, offers and scrape jobs are stored.
type Area string

// NewArea canonicalizes a raw postal code. Empty (after stripping) input
// is rejected — everything downstream assumes a non-empty key.
func NewArea(raw string) (Area, error) {
	cleaned := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if cleaned == "" {
		return "", fmt.Errorf("postal code is empty")
	}
	return Area(cleaned), nil
}

func (a Area) String() string { return string(a) }

// Display renders the area the way upstream flyer services expect it:
// Canadian six-character codes get the conventional middle space
// ("M5V3A8" → "M5V 3A8"), everything else is returned as-is.
func (a Area) Display() string {
	if len(a) == 6 {
		return string(a[:3]) + " " + string(a[3:])
	}
	return string(a)
}
