package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopflow/shopflow-backend/pkg/redis"
)

const deliveryScope = "identity-events"

// DeliveryGuard short-circuits exact redeliveries of the same transport message.
type DeliveryGuard interface {
	// Claim marks deliveryID as in progress; false means it was already claimed.
	Claim(ctx context.Context, deliveryID string) (bool, error)
	// Release forgets deliveryID so a retry is processed again.
	Release(ctx context.Context, deliveryID string) error
}

// RedisDeliveryGuard stores delivery marks with SETNX under a TTL.
type RedisDeliveryGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewRedisDeliveryGuard(store redis.IdempotencyStore, ttl time.Duration) (*RedisDeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &RedisDeliveryGuard{store: store, ttl: ttl}, nil
}

func (g *RedisDeliveryGuard) Claim(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}
	key := g.store.IdempotencyKey(deliveryScope, deliveryID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set delivery key: %w", err)
	}
	return set, nil
}

func (g *RedisDeliveryGuard) Release(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(deliveryScope, deliveryID))
}
