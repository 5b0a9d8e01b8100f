package scrapejob_test

import (
	"testing"

	"github.com/divaadaan/grocery-ai-planner/internal/scrapejob"
)

// ── ParseStatus ────────────────────────────────────────────────────────────

func TestParseStatus_ValidValues(t *testing.T) {
	valid := []string{"pending", "running", "completed", "failed", "cancelled"}
	for _, s := range valid {
		got, err := scrapejob.ParseStatus(s)
		if err != nil {
			t.Errorf("ParseStatus(%q) returned unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("ParseStatus(%q) = %q, want %q", s, got, s)
		}
	}
}

func TestParseStatus_InvalidValue(t *testing.T) {
	_, err := scrapejob.ParseStatus("UNKNOWN")
	if err == nil {
		t.Error("ParseStatus(\"UNKNOWN\") expected error, got nil")
	}
}

func TestParseStatus_EmptyString(t *testing.T) {
	_, err := scrapejob.ParseStatus("")
	if err == nil {
		t.Error("ParseStatus(\"\") expected error, got nil")
	}
}

// ParseStatus must be case-sensitive — uppercase variants must not be valid.
func TestParseStatus_CaseSensitive(t *testing.T) {
	uppercase := []string{"PENDING", "RUNNING", "COMPLETED", "FAILED", "CANCELLED"}
	for _, s := range uppercase {
		_, err := scrapejob.ParseStatus(s)
		if err == nil {
			t.Errorf("ParseStatus(%q) should reject uppercase value, got nil error", s)
		}
	}
}

// ── IsTransitionAllowed — valid (forward) transitions ─────────────────────

func TestIsTransitionAllowed_ValidForward(t *testing.T) {
	cases := []struct {
		from scrapejob.Status
		to   scrapejob.Status
	}{
		{scrapejob.StatusPending, scrapejob.StatusRunning},
		{scrapejob.StatusRunning, scrapejob.StatusCompleted},
		{scrapejob.StatusRunning, scrapejob.StatusFailed},
	}
	for _, c := range cases {
		if !scrapejob.IsTransitionAllowed(c.from, c.to) {
			t.Errorf("IsTransitionAllowed(%s → %s) should be true", c.from, c.to)
		}
	}
}

// ── IsTransitionAllowed — cancellation from any non-terminal state ─────────

func TestIsTransitionAllowed_ToCancelled(t *testing.T) {
	nonTerminals := []scrapejob.Status{
		scrapejob.StatusPending,
		scrapejob.StatusRunning,
	}
	for _, from := range nonTerminals {
		if !scrapejob.IsTransitionAllowed(from, scrapejob.StatusCancelled) {
			t.Errorf("IsTransitionAllowed(%s → cancelled) should be true", from)
		}
	}
}

// ── IsTransitionAllowed — terminal states have no outgoing transitions ─────

func TestIsTransitionAllowed_FromTerminal(t *testing.T) {
	terminals := []scrapejob.Status{
		scrapejob.StatusCompleted,
		scrapejob.StatusFailed,
		scrapejob.StatusCancelled,
	}
	targets := []scrapejob.Status{
		scrapejob.StatusPending,
		scrapejob.StatusRunning,
		scrapejob.StatusCompleted,
		scrapejob.StatusFailed,
		scrapejob.StatusCancelled,
	}
	for _, from := range terminals {
		for _, to := range targets {
			if scrapejob.IsTransitionAllowed(from, to) {
				t.Errorf("IsTransitionAllowed(%s → %s) should be false (terminal state)", from, to)
			}
		}
	}
}

// ── IsTransitionAllowed — completion requires a running job ────────────────

func TestIsTransitionAllowed_PendingCannotComplete(t *testing.T) {
	for _, to := range []scrapejob.Status{scrapejob.StatusCompleted, scrapejob.StatusFailed} {
		if scrapejob.IsTransitionAllowed(scrapejob.StatusPending, to) {
			t.Errorf("IsTransitionAllowed(pending → %s) should be false (must run first)", to)
		}
	}
}

// ── IsTransitionAllowed — backwards movements are forbidden ───────────────

func TestIsTransitionAllowed_Backwards(t *testing.T) {
	if scrapejob.IsTransitionAllowed(scrapejob.StatusRunning, scrapejob.StatusPending) {
		t.Error("IsTransitionAllowed(running → pending) should be false (backwards)")
	}
}

// ── IsTransitionAllowed — self-transitions are forbidden ──────────────────

func TestIsTransitionAllowed_Self(t *testing.T) {
	all := []scrapejob.Status{
		scrapejob.StatusPending, scrapejob.StatusRunning,
		scrapejob.StatusCompleted, scrapejob.StatusFailed, scrapejob.StatusCancelled,
	}
	for _, s := range all {
		if scrapejob.IsTransitionAllowed(s, s) {
			t.Errorf("IsTransitionAllowed(%s → %s) should be false (self)", s, s)
		}
	}
}

// ── IsTerminal ─────────────────────────────────────────────────────────────

func TestIsTerminal(t *testing.T) {
	cases := []struct {
		status scrapejob.Status
		want   bool
	}{
		{scrapejob.StatusPending, false},
		{scrapejob.StatusRunning, false},
		{scrapejob.StatusCompleted, true},
		{scrapejob.StatusFailed, true},
		{scrapejob.StatusCancelled, true},
	}
	for _, c := range cases {
		if got := scrapejob.IsTerminal(c.status); got != c.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", c.status, got, c.want)
		}
	}
}
