package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type deliveryStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookDeliveryKey(provider, deliveryID string) string
}

// IdempotencyGuard short-circuits exact redeliveries of a provider event.
type IdempotencyGuard struct {
	store deliveryStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store deliveryStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("delivery store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports whether the delivery was already seen, marking it otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, provider, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookDeliveryKey(provider, deliveryID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook delivery key: %w", err)
	}
	return !set, nil
}

// Release forgets a delivery so a provider retry is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, provider, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.store.WebhookDeliveryKey(provider, deliveryID))
}
