package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopflow/shopflow-backend/pkg/config"
)

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		Secret: "secret",
		Issuer: "https://clerk.shopflow.test",
	}
}

func TestMintAndParseSessionToken(t *testing.T) {
	cfg := testSessionConfig()
	now := time.Now().UTC()

	token, err := MintSessionToken(cfg, now, time.Hour, SessionTokenPayload{
		Subject:  "user_2abc",
		Email:    "ada@example.com",
		FullName: "Ada Lovelace",
		Username: "ada",
		Role:     "seller",
	})
	if err != nil {
		t.Fatalf("mint session token: %v", err)
	}

	claims, err := ParseSessionToken(cfg, token)
	if err != nil {
		t.Fatalf("parse session token: %v", err)
	}

	if claims.ExternalID() != "user_2abc" {
		t.Fatalf("unexpected subject %q", claims.ExternalID())
	}
	if claims.Email != "ada@example.com" || claims.FullName != "Ada Lovelace" || claims.Username != "ada" {
		t.Fatalf("profile claims not preserved: %+v", claims)
	}
	if claims.Metadata.Role != "seller" {
		t.Fatalf("expected metadata role seller, got %q", claims.Metadata.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}
}

func TestParseSessionTokenRejectsWrongIssuer(t *testing.T) {
	cfg := testSessionConfig()
	token, err := MintSessionToken(cfg, time.Now(), time.Hour, SessionTokenPayload{Subject: "user_1"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	other := cfg
	other.Issuer = "https://evil.test"
	if _, err := ParseSessionToken(other, token); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
}

func TestParseSessionTokenRejectsExpired(t *testing.T) {
	cfg := testSessionConfig()
	token, err := MintSessionToken(cfg, time.Now().Add(-2*time.Hour), time.Hour, SessionTokenPayload{Subject: "user_1"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err = ParseSessionToken(cfg, token)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestParseSessionTokenRejectsTamperedSignature(t *testing.T) {
	cfg := testSessionConfig()
	token, err := MintSessionToken(cfg, time.Now(), time.Hour, SessionTokenPayload{Subject: "user_1"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := cfg
	other.Secret = "different"
	if _, err := ParseSessionToken(other, token); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
	if !strings.Contains(token, ".") {
		t.Fatal("expected compact jwt")
	}
}

func TestParseSessionTokenRequiresSubject(t *testing.T) {
	cfg := testSessionConfig()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseSessionToken(cfg, signed); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestMintSessionTokenValidatesInput(t *testing.T) {
	if _, err := MintSessionToken(config.SessionConfig{}, time.Now(), time.Hour, SessionTokenPayload{Subject: "u"}); err == nil {
		t.Fatal("expected missing secret to fail")
	}
	if _, err := MintSessionToken(testSessionConfig(), time.Now(), time.Hour, SessionTokenPayload{}); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}
