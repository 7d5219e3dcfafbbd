package gateways

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbook/fieldbook-backend/pkg/config"
	"github.com/fieldbook/fieldbook-backend/pkg/enums"
	"github.com/fieldbook/fieldbook-backend/pkg/logger"
)

func TestNewRequiresAGateway(t *testing.T) {
	_, err := New(context.Background(), &config.Config{}, logger.Nop())
	assert.ErrorIs(t, err, errNoGateway)
}

func TestWaveAndPayDunyaOnly(t *testing.T) {
	cfg := &config.Config{
		Wave: config.WaveConfig{APIKey: "wave-key", WebhookSecret: "wave-secret"},
		PayDunya: config.PayDunyaConfig{
			MasterKey:  "master",
			PrivateKey: "private",
			Token:      "token",
		},
		Payouts:     config.PayoutsConfig{OrangeMoneyWithdrawal: "orange-money-senegal"},
		Marketplace: config.MarketplaceConfig{CallbackURL: "https://api.fieldbook.test/marketplace/webhook"},
	}
	g, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{"paydunya", "wave_direct"}, g.Names())

	providers := g.CheckoutProviders()
	assert.Len(t, providers, 2)
	assert.Contains(t, providers, enums.PaymentProviderWaveDirect)
	assert.NotContains(t, providers, enums.PaymentProviderStripe)

	channels := g.PayoutChannels()
	assert.Len(t, channels, 3)
	assert.NotContains(t, channels, enums.PayoutChannelBankTransfer)

	verifiers := g.Verifiers()
	assert.Contains(t, verifiers, enums.PaymentProviderPayDunya)
	assert.Contains(t, verifiers, enums.PaymentProviderWaveDirect)
	assert.NotContains(t, verifiers, enums.PaymentProviderStripe)
}
