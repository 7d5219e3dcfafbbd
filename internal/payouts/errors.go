package payouts

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error kinds stored in provider_error.kind.
const (
	KindTimeout            = "timeout"
	KindNetwork            = "network"
	KindHTTP               = "http"
	KindInvalidDestination = "invalid_destination"
	KindChannelMissing     = "channel_not_configured"
	KindRejected           = "rejected"
	KindUnknown            = "unknown"
)

// ChannelError is a classified disbursement failure.
type ChannelError struct {
	Kind       string
	Retryable  bool
	StatusCode int
	Code       string
	Message    string
	cause      error
}

func (e *ChannelError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("payout channel %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("payout channel %s: %s", e.Kind, e.Message)
}

func (e *ChannelError) Unwrap() error { return e.cause }

// RetryableStatus reports whether an HTTP status is worth another attempt.
func RetryableStatus(status int) bool {
	switch {
	case status >= 500:
		return true
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

func statusError(status int, code, message string, cause error) *ChannelError {
	return &ChannelError{
		Kind:       KindHTTP,
		Retryable:  RetryableStatus(status),
		StatusCode: status,
		Code:       code,
		Message:    message,
		cause:      cause,
	}
}

func invalidDestination(message string, cause error) *ChannelError {
	return &ChannelError{Kind: KindInvalidDestination, Message: message, cause: cause}
}

func channelMissing(message string) *ChannelError {
	return &ChannelError{Kind: KindChannelMissing, Message: message}
}

// Classify maps any error from a channel into a ChannelError.
func Classify(err error) *ChannelError {
	if err == nil {
		return nil
	}
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ChannelError{Kind: KindTimeout, Retryable: true, Message: err.Error(), cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		kind := KindNetwork
		if netErr.Timeout() {
			kind = KindTimeout
		}
		return &ChannelError{Kind: kind, Retryable: true, Message: err.Error(), cause: err}
	}
	// Unknown transport failures are assumed transient; the attempt cap bounds them.
	return &ChannelError{Kind: KindUnknown, Retryable: true, Message: err.Error(), cause: err}
}
