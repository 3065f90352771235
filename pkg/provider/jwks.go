package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwks"
	"golang.org/x/sync/singleflight"
)

const defaultKeyRefreshInterval = time.Minute

// ErrUnknownSigningKey is returned when neither the cached nor a freshly
// fetched key set carries the requested key id.
var ErrUnknownSigningKey = errors.New("unknown session signing key")

type keySetFetcher interface {
	Get(ctx context.Context, params *jwks.GetParams) (*clerk.JSONWebKeySet, error)
}

// KeySet caches the provider's session signing keys. An unknown key id
// triggers at most one refetch per refresh interval.
type KeySet struct {
	fetcher  keySetFetcher
	interval time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	keys      map[string]*clerk.JSONWebKey
	fetchedAt time.Time
	group     singleflight.Group
}

// NewKeySet builds a JWKS-backed key set authenticated with secretKey.
func NewKeySet(secretKey string, opts ...Option) (*KeySet, error) {
	cfg, err := ClientConfig(secretKey, opts...)
	if err != nil {
		return nil, err
	}
	return newKeySet(jwks.NewClient(cfg), defaultKeyRefreshInterval), nil
}

func newKeySet(fetcher keySetFetcher, interval time.Duration) *KeySet {
	return &KeySet{
		fetcher:  fetcher,
		interval: interval,
		now:      time.Now,
		keys:     map[string]*clerk.JSONWebKey{},
	}
}

// Key returns the signing key for kid.
func (k *KeySet) Key(ctx context.Context, kid string) (*clerk.JSONWebKey, error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, fmt.Errorf("%w: token has no key id", ErrUnknownSigningKey)
	}
	if key, ok := k.cached(kid); ok {
		return key, nil
	}
	if !k.refreshDue() {
		return nil, ErrUnknownSigningKey
	}

	if _, err, _ := k.group.Do("jwks", func() (any, error) {
		return nil, k.refresh(ctx)
	}); err != nil {
		return nil, err
	}
	if key, ok := k.cached(kid); ok {
		return key, nil
	}
	return nil, ErrUnknownSigningKey
}

func (k *KeySet) cached(kid string) (*clerk.JSONWebKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[kid]
	return key, ok
}

func (k *KeySet) refreshDue() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.fetchedAt.IsZero() || k.now().Sub(k.fetchedAt) >= k.interval
}

func (k *KeySet) refresh(ctx context.Context) error {
	set, err := k.fetcher.Get(ctx, &jwks.GetParams{})
	if err != nil {
		return fmt.Errorf("fetch session signing keys: %w", err)
	}
	keys := map[string]*clerk.JSONWebKey{}
	if set == nil {
		set = &clerk.JSONWebKeySet{}
	}
	for _, key := range set.Keys {
		if key != nil && key.KeyID != "" {
			keys[key.KeyID] = key
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = keys
	k.fetchedAt = k.now()
	return nil
}
