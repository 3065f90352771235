package controllers

import (
	"net/http"

	"github.com/shopflow/shopflow-backend/api/middleware"
	"github.com/shopflow/shopflow-backend/api/responses"
	"github.com/shopflow/shopflow-backend/api/validators"
	cartsvc "github.com/shopflow/shopflow-backend/internal/cart"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"github.com/shopflow/shopflow-backend/pkg/logger"
	"github.com/shopflow/shopflow-backend/pkg/types"
)

type cartPayload struct {
	Cart types.Cart `json:"cart" validate:"required"`
}

// CartFetch returns the caller's session cart.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		cart, err := svc.GetCart(r.Context(), middleware.ExternalIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartPayload{Cart: cart.Normalized()})
	}
}

// CartReplace overwrites the caller's session cart with the posted one.
func CartReplace(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload cartPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subject := cartsvc.Subject{
			ExternalID: middleware.ExternalIDFromContext(r.Context()),
			Claims:     middleware.ClaimsFromContext(r.Context()),
		}
		cart, err := svc.ReplaceCart(r.Context(), subject, payload.Cart)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, cartPayload{Cart: cart.Normalized()})
	}
}
