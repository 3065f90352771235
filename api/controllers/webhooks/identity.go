package webhooks

import (
	"io"
	"net/http"

	"github.com/shopflow/shopflow-backend/api/responses"
	"github.com/shopflow/shopflow-backend/internal/identity"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"github.com/shopflow/shopflow-backend/pkg/logger"
	"github.com/shopflow/shopflow-backend/pkg/provider"
)

const maxWebhookBody = 1 << 20

type signatureVerifier interface {
	Verify(headers http.Header, body []byte) error
}

type webhookAck struct {
	Received bool             `json:"received"`
	Outcome  identity.Outcome `json:"outcome,omitempty"`
}

// IdentityWebhook receives provider user events. Every parseable delivery
// is acknowledged with 200, including ones that fail verification or
// processing, so the provider never retries into a redelivery storm. A nil
// verifier disables signature checks.
func IdentityWebhook(handler identity.Handler, verifier signatureVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if handler == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity handler unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		deliveryID := r.Header.Get(provider.HeaderWebhookID)
		if verifier != nil {
			if err := verifier.Verify(r.Header, payload); err != nil {
				logg.Warn(logg.WithField(ctx, "delivery_id", deliveryID), "identity webhook signature rejected: "+err.Error())
				responses.WriteSuccess(w, webhookAck{Received: false})
				return
			}
		}

		evt, err := identity.DecodeEvent(payload, identity.SourceWebhook, deliveryID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}

		// Handler failures are logged by the handler itself.
		outcome, _ := handler.Handle(ctx, evt)
		responses.WriteSuccess(w, webhookAck{Received: true, Outcome: outcome})
	}
}

// IdentityWebhookLive answers the provider's endpoint liveness check.
func IdentityWebhookLive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}
