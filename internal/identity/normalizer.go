package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopflow/shopflow-backend/pkg/auth"
)

const (
	defaultPlaceholderDomain = "clerk.local"
	fallbackDisplayName      = "User"
)

var (
	// ErrMissingIdentity marks payloads that carry no usable subject id.
	ErrMissingIdentity = errors.New("identity payload has no usable id")
	// ErrUnrecognizedShape is returned when no known payload shape matches.
	ErrUnrecognizedShape = fmt.Errorf("%w: unrecognized payload shape", ErrMissingIdentity)
)

// Shape names the payload variant an identity was parsed from.
type Shape string

const (
	ShapeWebhook Shape = "webhook"
	ShapeSDK     Shape = "sdk"
	ShapeFlat    Shape = "flat"
	ShapeSession Shape = "session"
)

// NormalizedIdentity is the canonical identity shape consumed by the repository.
type NormalizedIdentity struct {
	ExternalID       string
	Email            string
	EmailSynthesized bool
	DisplayName      string
	AvatarURL        string
	MetadataRole     string
	// Version is the provider's updated-at stamp in milliseconds, zero when unknown.
	Version int64
	// Provisional identities come from best-effort sources and only ever create records.
	Provisional bool
	Shape       Shape
}

// Normalizer turns heterogeneous provider payloads into NormalizedIdentity values.
type Normalizer struct {
	placeholderDomain string
	variants          []variant
}

// NewNormalizer builds a normalizer that synthesizes emails under placeholderDomain.
func NewNormalizer(placeholderDomain string) Normalizer {
	domain := strings.TrimSpace(placeholderDomain)
	if domain == "" {
		domain = defaultPlaceholderDomain
	}
	return Normalizer{
		placeholderDomain: domain,
		variants:          []variant{sdkVariant{}, webhookVariant{}, flatVariant{}},
	}
}

// Normalize parses raw using the first matching variant and applies the
// email and display-name fallback chains.
func (n Normalizer) Normalize(raw json.RawMessage) (NormalizedIdentity, error) {
	n = n.withDefaults()
	fields, err := topLevelFields(raw)
	if err != nil {
		return NormalizedIdentity{}, err
	}

	for _, v := range n.variants {
		if !v.matches(fields) {
			continue
		}
		c, err := v.decode(raw)
		if err != nil {
			return NormalizedIdentity{}, fmt.Errorf("decode %s payload: %w", v.shape(), err)
		}
		return n.finish(c, v.shape(), false)
	}
	return NormalizedIdentity{}, ErrUnrecognizedShape
}

// SubjectID extracts only the subject id, as needed for deletions.
func (n Normalizer) SubjectID(raw json.RawMessage) (string, error) {
	fields, err := topLevelFields(raw)
	if err != nil {
		return "", err
	}
	for _, key := range []string{"id", "clerkId"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		var id string
		if err := json.Unmarshal(value, &id); err == nil && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id), nil
		}
	}
	return "", ErrMissingIdentity
}

// FromSessionClaims builds a provisional identity from an authenticated session.
func (n Normalizer) FromSessionClaims(claims *auth.SessionClaims) (NormalizedIdentity, error) {
	if claims == nil {
		return NormalizedIdentity{}, ErrMissingIdentity
	}
	n = n.withDefaults()
	c := candidate{
		id:           claims.ExternalID(),
		primaryEmail: claims.Email,
		fullName:     claims.FullName,
		username:     claims.Username,
		metadataRole: claims.Metadata.Role,
	}
	return n.finish(c, ShapeSession, true)
}

// Provisional marks an identity as best-effort so it never overwrites stored fields.
func Provisional(id NormalizedIdentity) NormalizedIdentity {
	id.Provisional = true
	return id
}

// withDefaults makes the zero Normalizer usable.
func (n Normalizer) withDefaults() Normalizer {
	if len(n.variants) == 0 || n.placeholderDomain == "" {
		return NewNormalizer(n.placeholderDomain)
	}
	return n
}

func (n Normalizer) finish(c candidate, shape Shape, provisional bool) (NormalizedIdentity, error) {
	id := strings.TrimSpace(c.id)
	if id == "" {
		return NormalizedIdentity{}, ErrMissingIdentity
	}

	email, synthesized := n.resolveEmail(id, c)
	return NormalizedIdentity{
		ExternalID:       id,
		Email:            email,
		EmailSynthesized: synthesized,
		DisplayName:      resolveDisplayName(c, email),
		AvatarURL:        strings.TrimSpace(c.avatarURL),
		MetadataRole:     strings.TrimSpace(c.metadataRole),
		Version:          c.version,
		Provisional:      provisional,
		Shape:            shape,
	}, nil
}

func (n Normalizer) resolveEmail(id string, c candidate) (string, bool) {
	primaryID := strings.TrimSpace(c.primaryEmailID)
	if primaryID != "" {
		for _, addr := range c.addresses {
			if addr.id == primaryID && cleanEmail(addr.email) != "" {
				return cleanEmail(addr.email), false
			}
		}
	}
	for _, addr := range c.addresses {
		if email := cleanEmail(addr.email); email != "" {
			return email, false
		}
	}
	if email := cleanEmail(c.primaryEmail); email != "" {
		return email, false
	}
	return fmt.Sprintf("%s@%s", id, n.placeholderDomain), true
}

func resolveDisplayName(c candidate, email string) string {
	if name := strings.TrimSpace(strings.TrimSpace(c.givenName) + " " + strings.TrimSpace(c.familyName)); name != "" {
		return name
	}
	if name := strings.TrimSpace(c.fullName); name != "" {
		return name
	}
	if name := strings.TrimSpace(c.username); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(email, "@"); ok && strings.TrimSpace(local) != "" {
		return local
	}
	return fallbackDisplayName
}

func cleanEmail(value string) string {
	email := strings.ToLower(strings.TrimSpace(value))
	if !strings.Contains(email, "@") {
		return ""
	}
	return email
}

func topLevelFields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrMissingIdentity
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: payload is not an object: %v", ErrMissingIdentity, err)
	}
	return fields, nil
}
