package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

const (
	HeaderWebhookID        = "svix-id"
	HeaderWebhookTimestamp = "svix-timestamp"
	HeaderWebhookSignature = "svix-signature"
)

var (
	ErrMissingSignatureHeaders = errors.New("missing webhook signature headers")
	ErrInvalidSignature        = errors.New("invalid webhook signature")
)

// WebhookVerifier checks provider webhook signatures with the delivery
// service's own verifier, timestamp tolerance included.
type WebhookVerifier struct {
	webhook *svix.Webhook
}

// NewWebhookVerifier accepts the "whsec_"-prefixed endpoint secret.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("webhook secret is required")
	}
	wh, err := svix.NewWebhook(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	return &WebhookVerifier{webhook: wh}, nil
}

// Verify checks the signature headers against body.
func (v *WebhookVerifier) Verify(headers http.Header, body []byte) error {
	if strings.TrimSpace(headers.Get(HeaderWebhookID)) == "" ||
		strings.TrimSpace(headers.Get(HeaderWebhookTimestamp)) == "" ||
		strings.TrimSpace(headers.Get(HeaderWebhookSignature)) == "" {
		return ErrMissingSignatureHeaders
	}
	if err := v.webhook.Verify(body, headers); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// Sign produces the timestamp and signature headers for id, sentAt and body.
// Used by tests and local tooling.
func (v *WebhookVerifier) Sign(id string, sentAt time.Time, body []byte) (timestamp, signature string, err error) {
	signature, err = v.webhook.Sign(id, sentAt, body)
	if err != nil {
		return "", "", err
	}
	return fmt.Sprintf("%d", sentAt.Unix()), signature, nil
}
