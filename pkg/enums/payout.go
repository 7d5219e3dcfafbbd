package enums

import "fmt"

// PayoutChannel is the method a field owner receives net proceeds through.
type PayoutChannel string

const (
	PayoutChannelWave         PayoutChannel = "wave"
	PayoutChannelOrangeMoney  PayoutChannel = "orange_money"
	PayoutChannelPayDunyaPush PayoutChannel = "paydunya_push"
	PayoutChannelBankTransfer PayoutChannel = "bank_transfer"
)

var validPayoutChannels = []PayoutChannel{
	PayoutChannelWave,
	PayoutChannelOrangeMoney,
	PayoutChannelPayDunyaPush,
	PayoutChannelBankTransfer,
}

func (c PayoutChannel) String() string {
	return string(c)
}

// IsValid reports whether the value is a known PayoutChannel.
func (c PayoutChannel) IsValid() bool {
	for _, candidate := range validPayoutChannels {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParsePayoutChannel converts raw input into a PayoutChannel.
func ParsePayoutChannel(value string) (PayoutChannel, error) {
	for _, candidate := range validPayoutChannels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout channel %q", value)
}

// PayoutStatus tracks a disbursement. Only processing is non-terminal.
type PayoutStatus string

const (
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusSucceeded  PayoutStatus = "succeeded"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCancelled  PayoutStatus = "cancelled"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusProcessing,
	PayoutStatusSucceeded,
	PayoutStatusFailed,
	PayoutStatusCancelled,
}

func (s PayoutStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PayoutStatus.
func (s PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func (s PayoutStatus) IsTerminal() bool {
	return s.IsValid() && s != PayoutStatusProcessing
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
