package types

import (
	"database/sql/driver"
	"strings"
)

// PayoutDestination mirrors the fields.payout_destination jsonb column.
// Which members are meaningful depends on the field's payout channel.
type PayoutDestination struct {
	Mobile        string `json:"mobile,omitempty"`
	WithdrawMode  string `json:"withdraw_mode,omitempty"`
	StripeAccount string `json:"stripe_account,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
}

func (d PayoutDestination) Value() (driver.Value, error) {
	return jsonValue(d)
}

func (d *PayoutDestination) Scan(value interface{}) error {
	if value == nil {
		*d = PayoutDestination{}
		return nil
	}
	return jsonScan(value, d, "payout destination")
}

// HasMobile reports whether a mobile money number is configured.
func (d PayoutDestination) HasMobile() bool {
	return strings.TrimSpace(d.Mobile) != ""
}
