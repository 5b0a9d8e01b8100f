package model_test

import (
	"testing"
	"time"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
)

func TestNewArea_Canonicalizes(t *testing.T) {
	cases := []struct {
		raw  string
		want model.Area
	}{
		{"M5V 3A8", "M5V3A8"},
		{"m5v3a8", "M5V3A8"},
		{"  m5v 3a8  ", "M5V3A8"},
		{"k1a\t0b1", "K1A0B1"},
		{"90210", "90210"},
	}
	for _, c := range cases {
		got, err := model.NewArea(c.raw)
		if err != nil {
			t.Errorf("NewArea(%q) unexpected error: %v", c.raw, err)
			continue
		}
		if got != c.want {
			t.Errorf("NewArea(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestNewArea_RejectsEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "\t\n"} {
		if _, err := model.NewArea(raw); err == nil {
			t.Errorf("NewArea(%q) expected error, got nil", raw)
		}
	}
}

func TestArea_Display(t *testing.T) {
	cases := []struct {
		area model.Area
		want string
	}{
		{"M5V3A8", "M5V 3A8"},
		{"90210", "90210"},
		{"SW1A1AA", "SW1A1AA"},
	}
	for _, c := range cases {
		if got := c.area.Display(); got != c.want {
			t.Errorf("Display(%q) = %q, want %q", c.area, got, c.want)
		}
	}
}

func TestOfferCandidate_WindowOverlaps(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	mk := func(start, end int) model.OfferCandidate {
		return model.OfferCandidate{StartDate: day(start), EndDate: day(end)}
	}

	cases := []struct {
		name string
		a, b model.OfferCandidate
		want bool
	}{
		{"identical", mk(1, 7), mk(1, 7), true},
		{"partial overlap", mk(1, 7), mk(5, 12), true},
		{"touching edges", mk(1, 7), mk(7, 14), true},
		{"disjoint", mk(1, 7), mk(8, 14), false},
		{"zero dates always overlap", model.OfferCandidate{}, mk(1, 7), true},
	}
	for _, c := range cases {
		if got := c.a.WindowOverlaps(c.b); got != c.want {
			t.Errorf("%s: WindowOverlaps = %v, want %v", c.name, got, c.want)
		}
		if got := c.b.WindowOverlaps(c.a); got != c.want {
			t.Errorf("%s (reversed): WindowOverlaps = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestOfferCandidate_Expired(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	expired := model.OfferCandidate{EndDate: now.AddDate(0, 0, -1)}
	current := model.OfferCandidate{EndDate: now.AddDate(0, 0, 3)}
	undated := model.OfferCandidate{}

	if !expired.Expired(now) {
		t.Error("offer ending yesterday should be expired")
	}
	if current.Expired(now) {
		t.Error("offer ending in 3 days should not be expired")
	}
	if undated.Expired(now) {
		t.Error("offer without dates should never be expired")
	}
}
