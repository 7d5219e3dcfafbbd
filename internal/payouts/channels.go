package payouts

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	"github.com/fieldbook/fieldbook-backend/pkg/paydunya"
	pkgstripe "github.com/fieldbook/fieldbook-backend/pkg/stripe"
	"github.com/fieldbook/fieldbook-backend/pkg/types"
	"github.com/fieldbook/fieldbook-backend/pkg/wave"
)

// DisburseRequest is one attempt to pay the owner. IdempotencyKey is the
// payout's key and never changes across attempts.
type DisburseRequest struct {
	PayoutID       uuid.UUID
	IdempotencyKey string
	AmountCFA      int64
	Currency       string
	Destination    types.PayoutDestination
	Reference      string
}

type DisburseResult struct {
	ProviderID string
}

type Channel interface {
	Disburse(ctx context.Context, req DisburseRequest) (*DisburseResult, error)
}

// Channels indexes adapters by payout channel.
type Channels map[enums.PayoutChannel]Channel

type waveSender interface {
	SendPayout(ctx context.Context, p wave.PayoutParams) (*wave.Payout, error)
}

// WaveChannel pays into the owner's Wave wallet.
type WaveChannel struct {
	client waveSender
}

func NewWaveChannel(client waveSender) *WaveChannel {
	return &WaveChannel{client: client}
}

func (c *WaveChannel) Disburse(ctx context.Context, req DisburseRequest) (*DisburseResult, error) {
	if !req.Destination.HasMobile() {
		return nil, invalidDestination("wave payout requires a mobile number", nil)
	}
	out, err := c.client.SendPayout(ctx, wave.PayoutParams{
		AmountCFA:       req.AmountCFA,
		Currency:        req.Currency,
		Mobile:          strings.TrimSpace(req.Destination.Mobile),
		Name:            req.Destination.AccountName,
		ClientReference: req.Reference,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return nil, fromWave(err)
	}
	return &DisburseResult{ProviderID: out.ID}, nil
}

func fromWave(err error) error {
	if errors.Is(err, wave.ErrInvalidMobile) {
		return invalidDestination(err.Error(), err)
	}
	var apiErr *wave.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.StatusCode, apiErr.Code, apiErr.Message, err)
	}
	return err
}

type paydunyaDisburser interface {
	Disburse(ctx context.Context, p paydunya.DisburseParams) (string, error)
}

// PayDunyaChannel pushes funds through PayDunya disburse. A fixed withdraw
// mode makes it the Orange Money channel; otherwise the owner's mode is used.
type PayDunyaChannel struct {
	client       paydunyaDisburser
	withdrawMode string
	callbackURL  string
}

func NewOrangeMoneyChannel(client paydunyaDisburser, withdrawMode, callbackURL string) *PayDunyaChannel {
	return &PayDunyaChannel{client: client, withdrawMode: withdrawMode, callbackURL: callbackURL}
}

func NewPayDunyaPushChannel(client paydunyaDisburser, callbackURL string) *PayDunyaChannel {
	return &PayDunyaChannel{client: client, callbackURL: callbackURL}
}

func (c *PayDunyaChannel) Disburse(ctx context.Context, req DisburseRequest) (*DisburseResult, error) {
	mode := c.withdrawMode
	if mode == "" {
		mode = strings.TrimSpace(req.Destination.WithdrawMode)
	}
	if mode == "" {
		return nil, invalidDestination("paydunya payout requires a withdraw mode", nil)
	}
	alias := strings.TrimPrefix(strings.TrimSpace(req.Destination.Mobile), "+")
	if alias == "" {
		return nil, invalidDestination("paydunya payout requires a mobile number", nil)
	}
	id, err := c.client.Disburse(ctx, paydunya.DisburseParams{
		AccountAlias: alias,
		AmountCFA:    req.AmountCFA,
		WithdrawMode: mode,
		DisburseID:   req.IdempotencyKey,
		CallbackURL:  c.callbackURL,
	})
	if err != nil {
		return nil, fromPayDunya(err)
	}
	return &DisburseResult{ProviderID: id}, nil
}

func fromPayDunya(err error) error {
	if errors.Is(err, paydunya.ErrInvalidDisburse) {
		return invalidDestination(err.Error(), err)
	}
	var apiErr *paydunya.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr.StatusCode, apiErr.Code, apiErr.Message, err)
	}
	return err
}

type stripeTransferrer interface {
	Transfer(ctx context.Context, p pkgstripe.TransferParams) (string, error)
}

// BankTransferChannel moves funds to the owner's Stripe connected account.
type BankTransferChannel struct {
	client stripeTransferrer
}

func NewBankTransferChannel(client stripeTransferrer) *BankTransferChannel {
	return &BankTransferChannel{client: client}
}

func (c *BankTransferChannel) Disburse(ctx context.Context, req DisburseRequest) (*DisburseResult, error) {
	account := strings.TrimSpace(req.Destination.StripeAccount)
	if !strings.HasPrefix(account, "acct_") {
		return nil, invalidDestination("bank transfer requires a connected stripe account", nil)
	}
	id, err := c.client.Transfer(ctx, pkgstripe.TransferParams{
		AmountCFA:      req.AmountCFA,
		Currency:       req.Currency,
		Destination:    account,
		IdempotencyKey: req.IdempotencyKey,
		Reference:      req.Reference,
	})
	if err != nil {
		if status, ok := pkgstripe.HTTPStatus(err); ok {
			return nil, statusError(status, pkgstripe.ErrorCode(err), err.Error(), err)
		}
		return nil, err
	}
	return &DisburseResult{ProviderID: id}, nil
}
