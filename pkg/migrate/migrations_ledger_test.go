package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fieldbook/fieldbook-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMarketplacePaymentsMigrationEnforcesLedgerRules(t *testing.T) {
	content := readMigration(t, "*_create_marketplace_payments.sql")

	checks := []string{
		"CREATE TYPE marketplace_payment_status AS ENUM ('pending', 'paid', 'failed', 'expired', 'cancelled')",
		"CHECK (fee_platform_cfa + net_to_owner_cfa = amount_cfa)",
		"ux_marketplace_payments_client_reference",
		"ON marketplace_payments (reservation_id) WHERE status = 'pending'",
		"webhook_received_at timestamptz",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPayoutsMigrationEnforcesSingleActivePayout(t *testing.T) {
	content := readMigration(t, "*_create_payouts.sql")

	checks := []string{
		"CREATE TYPE payout_status AS ENUM ('processing', 'succeeded', 'failed', 'cancelled')",
		"ux_payouts_idempotency_key ON payouts (idempotency_key)",
		"ON payouts (marketplace_payment_id) WHERE status <> 'cancelled'",
		"locked_until",
		"idx_payouts_retry_due",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirectoryIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Payout Notes")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_payout_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestCreateSQLMigrationRejectsReusedName(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260301090200_create_payouts.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("seed migration: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "Create Payouts"); err == nil {
		t.Fatal("expected a reused migration name to be rejected")
	}
	if _, err := migrate.CreateSQLMigration(dir, "create_payouts_retry_index"); err != nil {
		t.Fatalf("a distinct name should be accepted: %v", err)
	}
}

func TestValidateDirRejectsBrokenLedgerMigrations(t *testing.T) {
	cases := map[string]map[string]string{
		"unbalanced statement block": {
			"20260301090000_create_payouts.sql": "-- +goose Up\n-- +goose StatementBegin\nDO $$ BEGIN NULL; END $$;\n-- +goose Down\n",
		},
		"down before up": {
			"20260301090000_create_payouts.sql": "-- +goose Down\n-- +goose Up\n",
		},
		"repeated name": {
			"20260301090000_create_payouts.sql": "-- +goose Up\n-- +goose Down\n",
			"20260302090000_create_payouts.sql": "-- +goose Up\n-- +goose Down\n",
		},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			for file, body := range files {
				if err := os.WriteFile(filepath.Join(dir, file), []byte(body), 0o644); err != nil {
					t.Fatalf("write %s: %v", file, err)
				}
			}
			if err := migrate.ValidateDir(dir); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
