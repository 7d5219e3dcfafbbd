package payments

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const maxCommissionBPS = 10000

var bpsDivisor = decimal.NewFromInt(maxCommissionBPS)

// Split divides amount into the platform fee and the owner's net share.
// fee = round_half_up(amount * bps / 10000); net = amount - fee.
func Split(amountCFA int64, bps int) (fee, net int64, err error) {
	if amountCFA <= 0 {
		return 0, 0, fmt.Errorf("amount must be positive, got %d", amountCFA)
	}
	if bps < 0 || bps > maxCommissionBPS {
		return 0, 0, fmt.Errorf("commission rate %d bps out of range [0, %d]", bps, maxCommissionBPS)
	}
	// decimal.Round rounds half away from zero, which is half-up for positive amounts.
	fee = decimal.NewFromInt(amountCFA).
		Mul(decimal.NewFromInt(int64(bps))).
		Div(bpsDivisor).
		Round(0).
		IntPart()
	return fee, amountCFA - fee, nil
}
