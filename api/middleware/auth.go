package middleware

import (
	"net/http"
	"strings"

	"github.com/shopflow/shopflow-backend/api/responses"
	pkgAuth "github.com/shopflow/shopflow-backend/pkg/auth"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"github.com/shopflow/shopflow-backend/pkg/logger"
)

// SessionCookie is the same-origin cookie the provider's frontend SDK writes
// the session token into.
const SessionCookie = "__session"

// Auth validates the provider-issued session token and seeds the request context with its claims.
// The Authorization header wins over the session cookie.
func Auth(verifier pkgAuth.SessionVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, source := sessionToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			if verifier == nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session verification not configured"))
				return
			}
			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token").
					WithDetails(map[string]string{"source": source}))
				return
			}

			ctx := WithClaims(r.Context(), claims)
			if logg != nil {
				ctx = logg.WithExternalID(ctx, claims.ExternalID())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request) (token, source string) {
	if raw := strings.TrimSpace(r.Header.Get("Authorization")); raw != "" {
		if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
			raw = raw[7:]
		}
		return strings.TrimSpace(raw), "header"
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(cookie.Value), "cookie"
	}
	return "", ""
}
