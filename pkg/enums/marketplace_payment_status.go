package enums

import "fmt"

// MarketplacePaymentStatus tracks a checkout attempt. Every value except pending is terminal.
type MarketplacePaymentStatus string

const (
	MarketplacePaymentPending   MarketplacePaymentStatus = "pending"
	MarketplacePaymentPaid      MarketplacePaymentStatus = "paid"
	MarketplacePaymentFailed    MarketplacePaymentStatus = "failed"
	MarketplacePaymentExpired   MarketplacePaymentStatus = "expired"
	MarketplacePaymentCancelled MarketplacePaymentStatus = "cancelled"
)

var validMarketplacePaymentStatuses = []MarketplacePaymentStatus{
	MarketplacePaymentPending,
	MarketplacePaymentPaid,
	MarketplacePaymentFailed,
	MarketplacePaymentExpired,
	MarketplacePaymentCancelled,
}

// String implements fmt.Stringer.
func (s MarketplacePaymentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known MarketplacePaymentStatus.
func (s MarketplacePaymentStatus) IsValid() bool {
	for _, candidate := range validMarketplacePaymentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s MarketplacePaymentStatus) IsTerminal() bool {
	return s.IsValid() && s != MarketplacePaymentPending
}

// ParseMarketplacePaymentStatus converts raw input into a MarketplacePaymentStatus.
func ParseMarketplacePaymentStatus(value string) (MarketplacePaymentStatus, error) {
	for _, candidate := range validMarketplacePaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid marketplace payment status %q", value)
}
