// Package gateways builds the PayDunya, Wave and Stripe clients enabled by
// configuration and exposes them as checkout providers, payout channels and
// webhook verifiers.
package gateways

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fieldbook/fieldbook-backend/internal/payments"
	"github.com/fieldbook/fieldbook-backend/internal/payouts"
	"github.com/fieldbook/fieldbook-backend/internal/webhooks/marketplace"
	"github.com/fieldbook/fieldbook-backend/pkg/config"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
	"github.com/fieldbook/fieldbook-backend/pkg/paydunya"
	"github.com/fieldbook/fieldbook-backend/pkg/stripe"
	"github.com/fieldbook/fieldbook-backend/pkg/wave"
)

var errNoGateway = errors.New("no payment gateway configured")

type Gateways struct {
	PayDunya *paydunya.Client
	Wave     *wave.Client
	Stripe   *stripe.Client

	callbackURL     string
	orangeMoneyMode string
}

// New builds a client for every gateway whose credentials are present.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*Gateways, error) {
	g := &Gateways{
		callbackURL:     cfg.Marketplace.CallbackURL,
		orangeMoneyMode: cfg.Payouts.OrangeMoneyWithdrawal,
	}
	var err error
	if cfg.PayDunya.Enabled() {
		if g.PayDunya, err = paydunya.NewClient(cfg.PayDunya, logg); err != nil {
			return nil, fmt.Errorf("paydunya client: %w", err)
		}
	}
	if cfg.Wave.Enabled() {
		if g.Wave, err = wave.NewClient(cfg.Wave, logg); err != nil {
			return nil, fmt.Errorf("wave client: %w", err)
		}
	}
	if cfg.Stripe.Enabled() {
		if g.Stripe, err = stripe.NewClient(ctx, cfg.Stripe, logg); err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
	}
	if g.PayDunya == nil && g.Wave == nil && g.Stripe == nil {
		return nil, errNoGateway
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "gateways", g.Names()), "gateways.initialized")
	}
	return g, nil
}

// Names lists the enabled gateways in a stable order.
func (g *Gateways) Names() []string {
	var out []string
	if g.PayDunya != nil {
		out = append(out, enums.PaymentProviderPayDunya.String())
	}
	if g.Wave != nil {
		out = append(out, enums.PaymentProviderWaveDirect.String())
	}
	if g.Stripe != nil {
		out = append(out, enums.PaymentProviderStripe.String())
	}
	sort.Strings(out)
	return out
}

func (g *Gateways) CheckoutProviders() payments.Providers {
	var ps []payments.Provider
	if g.PayDunya != nil {
		ps = append(ps, payments.NewPayDunyaProvider(g.PayDunya))
	}
	if g.Wave != nil {
		ps = append(ps, payments.NewWaveProvider(g.Wave))
	}
	if g.Stripe != nil {
		ps = append(ps, payments.NewStripeProvider(g.Stripe))
	}
	return payments.NewProviders(ps...)
}

// PayoutChannels maps each payout channel onto the gateway that disburses it.
// Orange Money and PayDunya push both go through PayDunya disbursements.
func (g *Gateways) PayoutChannels() payouts.Channels {
	channels := payouts.Channels{}
	if g.Wave != nil {
		channels[enums.PayoutChannelWave] = payouts.NewWaveChannel(g.Wave)
	}
	if g.PayDunya != nil {
		channels[enums.PayoutChannelOrangeMoney] = payouts.NewOrangeMoneyChannel(g.PayDunya, g.orangeMoneyMode, g.callbackURL)
		channels[enums.PayoutChannelPayDunyaPush] = payouts.NewPayDunyaPushChannel(g.PayDunya, g.callbackURL)
	}
	if g.Stripe != nil {
		channels[enums.PayoutChannelBankTransfer] = payouts.NewBankTransferChannel(g.Stripe)
	}
	return channels
}

func (g *Gateways) Verifiers() marketplace.Verifiers {
	var vs []marketplace.Verifier
	if g.PayDunya != nil {
		vs = append(vs, marketplace.NewPayDunyaVerifier(g.PayDunya.MasterKey()))
	}
	if g.Wave != nil {
		vs = append(vs, marketplace.NewWaveVerifier(g.Wave))
	}
	if g.Stripe != nil {
		vs = append(vs, marketplace.NewStripeVerifier(g.Stripe))
	}
	return marketplace.NewVerifiers(vs...)
}
