package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRedisDeliveryGuardClaimAndRelease(t *testing.T) {
	store := newFakeIdempotencyStore()
	guard, err := NewRedisDeliveryGuard(store, time.Hour)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	ctx := context.Background()

	fresh, err := guard.Claim(ctx, "msg_1")
	if err != nil || !fresh {
		t.Fatalf("expected first claim to succeed, got %v (%v)", fresh, err)
	}
	if _, ok := store.values["sf:idempotency:identity-events:msg_1"]; !ok {
		t.Fatalf("expected namespaced key, got %v", store.values)
	}
	if store.ttls["sf:idempotency:identity-events:msg_1"] != time.Hour {
		t.Fatal("expected ttl to be applied")
	}

	fresh, err = guard.Claim(ctx, "msg_1")
	if err != nil || fresh {
		t.Fatalf("expected repeat claim to be rejected, got %v (%v)", fresh, err)
	}

	if err := guard.Release(ctx, "msg_1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	fresh, err = guard.Claim(ctx, "msg_1")
	if err != nil || !fresh {
		t.Fatalf("expected claim after release to succeed, got %v (%v)", fresh, err)
	}
}

func TestRedisDeliveryGuardErrors(t *testing.T) {
	if _, err := NewRedisDeliveryGuard(nil, time.Hour); err == nil {
		t.Fatal("expected error for nil store")
	}
	store := newFakeIdempotencyStore()
	guard, err := NewRedisDeliveryGuard(store, time.Hour)
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	if _, err := guard.Claim(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty delivery id")
	}

	store.err = errors.New("connection refused")
	if _, err := guard.Claim(context.Background(), "msg_2"); err == nil {
		t.Fatal("expected store error to surface")
	}
}

type fakeIdempotencyStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = "1"
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "sf:idempotency:" + scope + ":" + id
}

func (f *fakeIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	if f.err != nil {
		return f.err
	}
	for _, key := range keys {
		delete(f.values, key)
		delete(f.ttls, key)
	}
	return nil
}
