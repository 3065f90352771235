package controllers

import (
	"context"
	"net/http"

	"github.com/shopflow/shopflow-backend/api/middleware"
	"github.com/shopflow/shopflow-backend/api/responses"
	"github.com/shopflow/shopflow-backend/api/validators"
	"github.com/shopflow/shopflow-backend/internal/identity"
	"github.com/shopflow/shopflow-backend/internal/roles"
	"github.com/shopflow/shopflow-backend/internal/users"
	"github.com/shopflow/shopflow-backend/pkg/auth"
	"github.com/shopflow/shopflow-backend/pkg/db/models"
	"github.com/shopflow/shopflow-backend/pkg/enums"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"github.com/shopflow/shopflow-backend/pkg/logger"
)

type userLookup interface {
	Lookup(ctx context.Context, externalID string) (*models.User, error)
}

type roleResolver interface {
	ClaimsFor(ctx context.Context, claims *auth.SessionClaims) roles.ProviderClaims
	Resolve(ctx context.Context, claims roles.ProviderClaims, user *models.User) (enums.UserRole, error)
}

type roleChanger interface {
	Change(ctx context.Context, externalID, raw string, fallback identity.NormalizedIdentity) (enums.UserRole, error)
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,user_role"`
}

type changeRoleResponse struct {
	ExternalID string         `json:"external_id"`
	Role       enums.UserRole `json:"role"`
}

// UserMe returns the caller's record with any pending legacy migration and
// role convergence applied.
func UserMe(lookup userLookup, resolver roleResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if lookup == nil || resolver == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}

		user, err := lookup.Lookup(ctx, middleware.ExternalIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		claims := resolver.ClaimsFor(ctx, middleware.ClaimsFromContext(ctx))
		if _, err := resolver.Resolve(ctx, claims, user); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, users.FromModel(user))
	}
}

// UserChangeRole sets the caller's marketplace role.
func UserChangeRole(changer roleChanger, normalizer identity.Normalizer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if changer == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "role service unavailable"))
			return
		}

		externalID := middleware.ExternalIDFromContext(ctx)
		if externalID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload changeRoleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		// Claims without a usable subject still leave Change an id to create from.
		fallback, _ := normalizer.FromSessionClaims(middleware.ClaimsFromContext(ctx))
		role, err := changer.Change(ctx, externalID, payload.Role, fallback)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, changeRoleResponse{ExternalID: externalID, Role: role})
	}
}
