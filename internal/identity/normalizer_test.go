package identity

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopflow/shopflow-backend/pkg/auth"
)

func TestNormalizeWebhookShapePrefersPrimaryAddress(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "user_2abc",
		"email_addresses": [
			{"id": "idn_1", "email_address": "secondary@example.com"},
			{"id": "idn_2", "email_address": "Primary@Example.com"}
		],
		"primary_email_address_id": "idn_2",
		"first_name": "Ada",
		"last_name": "Lovelace",
		"image_url": "https://img.clerk.com/ada.png",
		"public_metadata": {"role": "seller"},
		"updated_at": 1700000000000
	}`)

	got, err := NewNormalizer("").Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Shape != ShapeWebhook {
		t.Fatalf("expected webhook shape, got %s", got.Shape)
	}
	if got.ExternalID != "user_2abc" || got.Email != "primary@example.com" || got.EmailSynthesized {
		t.Fatalf("unexpected identity %+v", got)
	}
	if got.DisplayName != "Ada Lovelace" {
		t.Fatalf("unexpected display name %q", got.DisplayName)
	}
	if got.AvatarURL != "https://img.clerk.com/ada.png" || got.MetadataRole != "seller" {
		t.Fatalf("unexpected avatar/role %+v", got)
	}
	if got.Version != 1700000000000 {
		t.Fatalf("unexpected version %d", got.Version)
	}
}

func TestNormalizeFallsBackToFirstAddress(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "user_1",
		"email_addresses": [{"id": "idn_1", "email_address": "first@example.com"}],
		"primary_email_address_id": "idn_missing"
	}`)
	got, err := NewNormalizer("").Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Email != "first@example.com" {
		t.Fatalf("expected first address, got %q", got.Email)
	}
	if got.DisplayName != "first" {
		t.Fatalf("expected email local-part as name, got %q", got.DisplayName)
	}
}

func TestNormalizeIgnoresProviderUsernames(t *testing.T) {
	cases := map[string]json.RawMessage{
		"webhook": json.RawMessage(`{
			"id": "user_9",
			"email_addresses": [{"id": "e1", "email_address": "alice@example.com"}],
			"primary_email_address_id": "e1",
			"username": "al99"
		}`),
		"sdk": json.RawMessage(`{
			"id": "user_9",
			"emailAddresses": [{"id": "e1", "emailAddress": "alice@example.com"}],
			"primaryEmailAddressId": "e1",
			"fullName": "Alice Liddell",
			"username": "al99"
		}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := NewNormalizer("").Normalize(raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.DisplayName != "alice" {
				t.Fatalf("expected email local-part display name, got %q", got.DisplayName)
			}
		})
	}
}

func TestNormalizeFallsBackToTopLevelEmail(t *testing.T) {
	raw := json.RawMessage(`{"id": "user_1", "email_addresses": [], "email_address": "top@example.com"}`)
	got, err := NewNormalizer("").Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Email != "top@example.com" || got.EmailSynthesized {
		t.Fatalf("expected top-level email, got %+v", got)
	}
}

func TestNormalizeSynthesizesPlaceholderEmail(t *testing.T) {
	got, err := NewNormalizer("").Normalize(json.RawMessage(`{"id": "abc123"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.EmailSynthesized {
		t.Fatal("expected synthesized flag")
	}
	if got.Email != "abc123@clerk.local" || !strings.Contains(got.Email, "abc123") {
		t.Fatalf("unexpected synthesized email %q", got.Email)
	}
	if got.DisplayName != "abc123" {
		t.Fatalf("expected local-part display name, got %q", got.DisplayName)
	}
}

func TestNormalizeCustomPlaceholderDomain(t *testing.T) {
	got, err := NewNormalizer("users.invalid").Normalize(json.RawMessage(`{"id": "abc123"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Email != "abc123@users.invalid" {
		t.Fatalf("unexpected email %q", got.Email)
	}
}

func TestNormalizeSDKShape(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "user_sdk",
		"emailAddresses": [{"id": "e1", "emailAddress": "sdk@example.com"}],
		"primaryEmailAddressId": "e1",
		"firstName": "Grace",
		"lastName": "",
		"imageUrl": "https://img.example.com/g.png",
		"publicMetadata": {"role": "user"}
	}`)
	got, err := NewNormalizer("").Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Shape != ShapeSDK || got.Email != "sdk@example.com" || got.DisplayName != "Grace" {
		t.Fatalf("unexpected identity %+v", got)
	}
}

func TestNormalizeFlatShape(t *testing.T) {
	raw := json.RawMessage(`{"clerkId": "user_flat", "email": "flat@example.com", "name": "Flat User", "imageUrl": "/a.png"}`)
	got, err := NewNormalizer("").Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Shape != ShapeFlat || got.ExternalID != "user_flat" || got.DisplayName != "Flat User" {
		t.Fatalf("unexpected identity %+v", got)
	}
}

func TestNormalizeLiteralUserName(t *testing.T) {
	raw := json.RawMessage(`{"clerkId": "user_x", "email": "@"}`)
	got, err := NewNormalizer("").Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DisplayName == "" {
		t.Fatal("display name must never be empty")
	}
}

func TestNormalizeRejectsMissingIdentity(t *testing.T) {
	cases := map[string]string{
		"empty id":     `{"id": "  ", "email_address": "x@example.com"}`,
		"no id field":  `{"email_address": "x@example.com"}`,
		"not object":   `["user_1"]`,
		"null":         `null`,
		"empty clerk":  `{"clerkId": ""}`,
		"empty string": ``,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewNormalizer("").Normalize(json.RawMessage(raw))
			if !errors.Is(err, ErrMissingIdentity) {
				t.Fatalf("expected ErrMissingIdentity, got %v", err)
			}
		})
	}
}

func TestNormalizeUnrecognizedShape(t *testing.T) {
	_, err := NewNormalizer("").Normalize(json.RawMessage(`{"object": "user"}`))
	if !errors.Is(err, ErrUnrecognizedShape) {
		t.Fatalf("expected ErrUnrecognizedShape, got %v", err)
	}
}

func TestSubjectID(t *testing.T) {
	n := NewNormalizer("")
	id, err := n.SubjectID(json.RawMessage(`{"id": "user_del", "deleted": true, "object": "user"}`))
	if err != nil || id != "user_del" {
		t.Fatalf("unexpected subject %q (%v)", id, err)
	}
	if _, err := n.SubjectID(json.RawMessage(`{"deleted": true}`)); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
}

func TestFromSessionClaims(t *testing.T) {
	claims := &auth.SessionClaims{
		Username:         "ada",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user_claims"},
	}
	got, err := NewNormalizer("").FromSessionClaims(claims)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Provisional || got.Shape != ShapeSession {
		t.Fatalf("expected provisional session identity, got %+v", got)
	}
	if got.Email != "user_claims@clerk.local" || !got.EmailSynthesized {
		t.Fatalf("expected synthesized email, got %q", got.Email)
	}
	if got.DisplayName != "ada" {
		t.Fatalf("expected username as display name, got %q", got.DisplayName)
	}

	claims.Email = "ada@example.com"
	claims.FullName = "Ada L"
	got, err = NewNormalizer("").FromSessionClaims(claims)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Email != "ada@example.com" || got.DisplayName != "Ada L" {
		t.Fatalf("expected claim email and full name, got %+v", got)
	}

	if _, err := NewNormalizer("").FromSessionClaims(nil); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity for nil claims, got %v", err)
	}
}
