package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	clerkjwt "github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/golang-jwt/jwt/v5"

	"github.com/shopflow/shopflow-backend/pkg/config"
)

// SessionVerifier turns a raw session token into verified claims.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*SessionClaims, error)
}

// KeySource resolves the provider's public signing key by key id.
type KeySource interface {
	Key(ctx context.Context, kid string) (*clerk.JSONWebKey, error)
}

// ProviderVerifier checks RS256 session tokens against the provider's JWKS.
type ProviderVerifier struct {
	keys   KeySource
	issuer string
	leeway time.Duration
}

// NewProviderVerifier builds a verifier backed by keys. An empty issuer
// accepts any issuer the provider SDK accepts.
func NewProviderVerifier(keys KeySource, cfg config.SessionConfig) (*ProviderVerifier, error) {
	if keys == nil {
		return nil, errors.New("session key source is required")
	}
	return &ProviderVerifier{keys: keys, issuer: strings.TrimSpace(cfg.Issuer), leeway: cfg.Leeway}, nil
}

func (v *ProviderVerifier) Verify(ctx context.Context, token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, err
	}
	kid, _ := parsed.Header["kid"].(string)
	key, err := v.keys.Key(ctx, kid)
	if err != nil {
		return nil, err
	}

	verified, err := clerkjwt.Verify(ctx, &clerkjwt.VerifyParams{
		Token:  token,
		JWK:    key,
		Leeway: v.leeway,
	})
	if err != nil {
		return nil, err
	}
	if v.issuer != "" && verified.Issuer != v.issuer {
		return nil, fmt.Errorf("unexpected issuer %q", verified.Issuer)
	}
	if strings.TrimSpace(verified.Subject) == "" || claims.ExternalID() == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// SecretVerifier checks HS256 tokens signed with a shared secret, as issued
// by provider JWT templates with a custom signing key.
type SecretVerifier struct {
	cfg config.SessionConfig
}

// NewSecretVerifier requires cfg.Secret.
func NewSecretVerifier(cfg config.SessionConfig) (*SecretVerifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("session secret is required")
	}
	return &SecretVerifier{cfg: cfg}, nil
}

func (v *SecretVerifier) Verify(_ context.Context, token string) (*SessionClaims, error) {
	return ParseSessionToken(v.cfg, token)
}
