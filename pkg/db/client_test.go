package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := NewFromGorm(db)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "panicked"}).Error; err != nil {
				return err
			}
			panic("boom")
		})
	}()

	var count int64
	if err := db.Model(&testModel{}).Where("name = ?", "panicked").Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected panic to roll back, got %d rows", count)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_payouts_payment_active"}
	if !IsUniqueViolation(fmt.Errorf("insert payout: %w", pgErr), "ux_payouts_payment_active") {
		t.Fatal("expected wrapped pg unique violation to match")
	}
	if IsUniqueViolation(pgErr, "ux_marketplace_payments_reservation_pending") {
		t.Fatal("constraint name mismatch should not match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: payouts.marketplace_payment_id"), "ux_payouts_payment_active") {
		t.Fatal("expected sqlite unique violation to match")
	}
	refErr := errors.New("UNIQUE constraint failed: marketplace_payments.client_reference")
	if IsUniqueViolation(refErr, "ux_marketplace_payments_reservation_pending") {
		t.Fatal("client reference collision must not read as a pending reservation conflict")
	}
	if !IsUniqueViolation(refErr, "ux_marketplace_payments_client_reference") {
		t.Fatal("expected client reference index to match")
	}
	if IsUniqueViolation(refErr, "ux_unknown") {
		t.Fatal("unknown index names never match sqlite column lists")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: index 'ux_payouts_payment_active'"), "ux_payouts_payment_active") {
		t.Fatal("expected sqlite index form to match")
	}
	if !IsUniqueViolation(errors.New(`pq: duplicate key value violates unique constraint "ux_payouts_idempotency_key"`), "ux_payouts_idempotency_key") {
		t.Fatal("expected pq message to match")
	}
	if IsUniqueViolation(nil, "") || IsUniqueViolation(errors.New("timeout"), "") {
		t.Fatal("unexpected match")
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}
