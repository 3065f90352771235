package middleware

import (
	"context"

	"github.com/shopflow/shopflow-backend/pkg/auth"
)

type contextKey string

const (
	ctxExternalID contextKey = "external_id"
	ctxClaims     contextKey = "session_claims"
)

// ExternalIDFromContext returns the authenticated provider subject, or "".
func ExternalIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxExternalID).(string); ok {
		return v
	}
	return ""
}

// ClaimsFromContext returns the verified session claims, or nil.
func ClaimsFromContext(ctx context.Context) *auth.SessionClaims {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxClaims).(*auth.SessionClaims); ok {
		return v
	}
	return nil
}

// WithClaims injects verified session claims and their subject into the context.
func WithClaims(ctx context.Context, claims *auth.SessionClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxClaims, claims)
	return context.WithValue(ctx, ctxExternalID, claims.ExternalID())
}
