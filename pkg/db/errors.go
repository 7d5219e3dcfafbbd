package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation  = "23505"
	sqliteUniquePrefix = "UNIQUE constraint failed: "
	pqUniqueMessage    = "duplicate key value"
)

// uniqueIndexColumns maps the ledger's unique indexes to the "table.column"
// list sqlite reports in place of the index name.
var uniqueIndexColumns = map[string]string{
	"ux_marketplace_payments_client_reference":   "marketplace_payments.client_reference",
	"ux_marketplace_payments_session_id":         "marketplace_payments.session_id",
	"ux_marketplace_payments_provider_token":     "marketplace_payments.provider_token",
	"ux_marketplace_payments_reservation_pending": "marketplace_payments.reservation_id",
	"ux_payouts_idempotency_key":                 "payouts.idempotency_key",
	"ux_payouts_payment_active":                  "payouts.marketplace_payment_id",
	"ux_outbox_dlq_event_id":                     "outbox_dlq.event_id",
}

// IsUniqueViolation reports whether err is a unique constraint violation. When
// constraintName is set, the violated constraint (or index) must match it.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}

	msg := err.Error()
	if idx := strings.Index(msg, sqliteUniquePrefix); idx >= 0 {
		if constraintName == "" {
			return true
		}
		return sqliteConstraintMatches(msg[idx+len(sqliteUniquePrefix):], constraintName)
	}
	if !strings.Contains(msg, pqUniqueMessage) {
		return false
	}
	return constraintName == "" || strings.Contains(msg, `"`+constraintName+`"`)
}

// sqliteConstraintMatches compares the failed column list (or "index 'name'"
// for expression indexes) against the named index.
func sqliteConstraintMatches(failed, constraintName string) bool {
	failed = strings.TrimSpace(failed)
	if strings.HasPrefix(failed, "index ") {
		return strings.Trim(strings.TrimPrefix(failed, "index "), "'\"") == constraintName
	}
	columns, ok := uniqueIndexColumns[constraintName]
	if !ok {
		return false
	}
	return failed == columns
}
