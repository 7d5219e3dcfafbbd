package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/fieldbook/fieldbook-backend/pkg/db/models"
)

// partialIndexes mirror the goose migrations; AutoMigrate cannot express them.
var partialIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_marketplace_payments_reservation_pending ON marketplace_payments (reservation_id) WHERE status = 'pending'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_marketplace_payments_provider_token ON marketplace_payments (provider_token) WHERE provider_token IS NOT NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payouts_payment_active ON payouts (marketplace_payment_id) WHERE status <> 'cancelled'`,
	`CREATE INDEX IF NOT EXISTS idx_payouts_retry_due ON payouts (next_retry_at) WHERE status = 'processing'`,
}

// AutoMigrateSchema builds the schema through GORM for sqlite runs. Postgres
// deployments use the goose migrations instead.
func AutoMigrateSchema(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.Reservation{},
		&models.Field{},
		&models.MarketplacePayment{},
		&models.Payout{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	for _, stmt := range partialIndexes {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
