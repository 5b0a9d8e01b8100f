// Package provider defines the acquisition method contract and its error
// taxonomy. Four variants implement it: the Flipp aggregator API, the flyer
// web crawler, the headless-browser scraper and the vision/OCR clients. The
// orchestrator only ever sees this interface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
)

// Provider IDs in the canonical fallback order.
const (
	IDFlippAPI = "flipp_api"
	IDFlyerWeb = "flyer_web"
	IDBrowser  = "browser"
	IDPDFOCR   = "pdf_ocr"
	IDVision   = "vision_ai"
)

// Provider is one acquisition method. Fetch must honor ctx: the orchestrator
// passes the job deadline through as a per-call timeout.
type Provider interface {
	// ID identifies the method in attempt records and rate-limiter keys.
	ID() string
	// Available reports whether the method is configured and usable.
	// Unavailable providers are skipped without an attempt record.
	Available() bool
	// Fetch returns candidate stores and/or offers for the area, or fails
	// with a classified error.
	Fetch(ctx context.Context, area model.Area) (model.ResultSet, error)
}

// ─── Error taxonomy ──────────────────────────────────────────────────────────

// Error kinds. transient errors are retried; terminal-provider means this
// method cannot serve this area and the orchestrator should move on;
// terminal-job ends the whole run.
const (
	KindTransient        = "transient"
	KindTerminalProvider = "terminal-provider"
	KindTimeout          = "timeout"
	KindCancelled        = "cancelled"
)

// Error attaches a classification to a provider failure.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) *Error { return &Error{Kind: KindTransient, Err: err} }

// Terminal wraps err as unretryable for this provider/area combination.
func Terminal(err error) *Error { return &Error{Kind: KindTerminalProvider, Err: err} }

// NotSupported is the terminal error for an area a provider cannot serve.
func NotSupported(providerID string, area model.Area) *Error {
	return Terminal(fmt.Errorf("%s does not cover area %s", providerID, area))
}

// Classify returns the error kind for any error a provider call can produce.
// Context cancellation and deadline are distinguished so the orchestrator can
// report "cancelled" vs "timeout"; network timeouts are transient; anything
// unclassified is treated as transient, since scraping failures are more
// often flaky than structural.
func Classify(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return KindTransient
	}
	return KindTransient
}
