package payouts

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		kind      string
		retryable bool
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout, true},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, KindTimeout, true},
		{"5xx", statusError(503, "", "unavailable", nil), KindHTTP, true},
		{"429", statusError(429, "rate-limited", "slow down", nil), KindHTTP, true},
		{"408", statusError(408, "", "timeout", nil), KindHTTP, true},
		{"400", statusError(400, "bad-request", "invalid", nil), KindHTTP, false},
		{"404", statusError(404, "", "no such wallet", nil), KindHTTP, false},
		{"invalid destination", invalidDestination("no mobile", nil), KindInvalidDestination, false},
		{"missing channel", channelMissing("none"), KindChannelMissing, false},
		{"unknown", errors.New("boom"), KindUnknown, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Kind != tc.kind || got.Retryable != tc.retryable {
				t.Fatalf("got kind=%s retryable=%v want kind=%s retryable=%v", got.Kind, got.Retryable, tc.kind, tc.retryable)
			}
		})
	}
	if Classify(nil) != nil {
		t.Fatal("nil error classifies to nil")
	}
}
