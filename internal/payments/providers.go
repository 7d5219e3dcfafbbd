package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	"github.com/fieldbook/fieldbook-backend/pkg/paydunya"
	pkgstripe "github.com/fieldbook/fieldbook-backend/pkg/stripe"
	"github.com/fieldbook/fieldbook-backend/pkg/wave"
)

// CheckoutRequest is what every payment provider needs to open a hosted checkout.
type CheckoutRequest struct {
	AmountCFA       int64
	Currency        string
	ClientReference string
	SessionID       uuid.UUID
	CallbackURL     string
	ReturnURL       string
	CancelURL       string
	Description     string
}

// ProviderSession is the provider's answer. Token is what webhooks quote back.
type ProviderSession struct {
	CheckoutURL string
	Token       string
}

type Provider interface {
	Name() enums.PaymentProvider
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*ProviderSession, error)
}

// Providers indexes the configured providers by name.
type Providers map[enums.PaymentProvider]Provider

func NewProviders(ps ...Provider) Providers {
	out := make(Providers, len(ps))
	for _, p := range ps {
		if p != nil {
			out[p.Name()] = p
		}
	}
	return out
}

type paydunyaInvoicer interface {
	CreateInvoice(ctx context.Context, p paydunya.InvoiceParams) (*paydunya.Invoice, error)
}

type PayDunyaProvider struct {
	client paydunyaInvoicer
}

func NewPayDunyaProvider(client paydunyaInvoicer) *PayDunyaProvider {
	return &PayDunyaProvider{client: client}
}

func (p *PayDunyaProvider) Name() enums.PaymentProvider { return enums.PaymentProviderPayDunya }

func (p *PayDunyaProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*ProviderSession, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("paydunya not configured")
	}
	inv, err := p.client.CreateInvoice(ctx, paydunya.InvoiceParams{
		AmountCFA:       req.AmountCFA,
		Description:     req.Description,
		ClientReference: req.ClientReference,
		SessionID:       req.SessionID.String(),
		CallbackURL:     req.CallbackURL,
		ReturnURL:       req.ReturnURL,
		CancelURL:       req.CancelURL,
	})
	if err != nil {
		return nil, err
	}
	return &ProviderSession{CheckoutURL: inv.CheckoutURL, Token: inv.Token}, nil
}

type waveCheckout interface {
	CreateCheckoutSession(ctx context.Context, p wave.CheckoutParams) (*wave.CheckoutSession, error)
}

type WaveProvider struct {
	client waveCheckout
}

func NewWaveProvider(client waveCheckout) *WaveProvider {
	return &WaveProvider{client: client}
}

func (p *WaveProvider) Name() enums.PaymentProvider { return enums.PaymentProviderWaveDirect }

func (p *WaveProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*ProviderSession, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("wave not configured")
	}
	errorURL := req.CancelURL
	if errorURL == "" {
		errorURL = req.ReturnURL
	}
	sess, err := p.client.CreateCheckoutSession(ctx, wave.CheckoutParams{
		AmountCFA:       req.AmountCFA,
		Currency:        req.Currency,
		ClientReference: req.ClientReference,
		SessionID:       req.SessionID.String(),
		SuccessURL:      req.ReturnURL,
		ErrorURL:        errorURL,
	})
	if err != nil {
		return nil, err
	}
	return &ProviderSession{CheckoutURL: sess.LaunchURL, Token: sess.ID}, nil
}

type stripeCheckout interface {
	CreateCheckoutSession(ctx context.Context, p pkgstripe.CheckoutParams) (*pkgstripe.CheckoutSession, error)
}

type StripeProvider struct {
	client stripeCheckout
}

func NewStripeProvider(client stripeCheckout) *StripeProvider {
	return &StripeProvider{client: client}
}

func (p *StripeProvider) Name() enums.PaymentProvider { return enums.PaymentProviderStripe }

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*ProviderSession, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("stripe not configured")
	}
	sess, err := p.client.CreateCheckoutSession(ctx, pkgstripe.CheckoutParams{
		AmountCFA:       req.AmountCFA,
		Currency:        req.Currency,
		ClientReference: req.ClientReference,
		SessionID:       req.SessionID.String(),
		Description:     req.Description,
		SuccessURL:      req.ReturnURL,
		CancelURL:       req.CancelURL,
	})
	if err != nil {
		return nil, err
	}
	return &ProviderSession{CheckoutURL: sess.URL, Token: sess.ID}, nil
}
