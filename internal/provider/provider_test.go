package provider_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/divaadaan/grocery-ai-planner/internal/provider"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"explicit transient", provider.Transient(errors.New("503")), provider.KindTransient},
		{"explicit terminal", provider.Terminal(errors.New("bad area")), provider.KindTerminalProvider},
		{"not supported", provider.NotSupported("flipp_api", "M5V3A8"), provider.KindTerminalProvider},
		{"wrapped classified error", fmt.Errorf("fetch: %w", provider.Terminal(errors.New("auth"))), provider.KindTerminalProvider},
		{"context canceled", context.Canceled, provider.KindCancelled},
		{"wrapped cancel", fmt.Errorf("call: %w", context.Canceled), provider.KindCancelled},
		{"deadline exceeded", context.DeadlineExceeded, provider.KindTimeout},
		{"net timeout", timeoutErr{}, provider.KindTransient},
		{"unclassified", errors.New("mystery"), provider.KindTransient},
	}
	for _, c := range cases {
		if got := provider.Classify(c.err); got != c.want {
			t.Errorf("%s: Classify = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := provider.Transient(inner)
	if !errors.Is(err, inner) {
		t.Error("provider.Error must unwrap to the inner error")
	}
}
