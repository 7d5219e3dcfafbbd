package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateMarketplacePayment OutboxAggregateType = "marketplace_payment"
	AggregatePayout             OutboxAggregateType = "payout"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateMarketplacePayment,
	AggregatePayout,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventMarketplacePaymentCreated       OutboxEventType = "marketplace_payment_created"
	EventMarketplacePaymentStatusChanged OutboxEventType = "marketplace_payment_status_changed"
	EventPayoutCreated                   OutboxEventType = "payout_created"
	EventPayoutSucceeded                 OutboxEventType = "payout_succeeded"
	EventPayoutFailed                    OutboxEventType = "payout_failed"
	EventPayoutCancelled                 OutboxEventType = "payout_cancelled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventMarketplacePaymentCreated,
	EventMarketplacePaymentStatusChanged,
	EventPayoutCreated,
	EventPayoutSucceeded,
	EventPayoutFailed,
	EventPayoutCancelled,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
