package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/yourdeals/deals-web/session"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for verified session claims
	ClaimsKey contextKey = "session_claims"

	// LocaleKey is the context key for the request locale
	LocaleKey contextKey = "locale"
)

// DefaultLocale is returned by LocaleFromContext when no locale was resolved.
const DefaultLocale = "en"

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// GetClaimsFromContext retrieves verified session claims from context
func GetClaimsFromContext(ctx context.Context) *session.Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*session.Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds verified session claims to the context
func WithClaims(ctx context.Context, claims *session.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// LocaleFromContext retrieves the request locale, falling back to DefaultLocale
func LocaleFromContext(ctx context.Context) string {
	if val := ctx.Value(LocaleKey); val != nil {
		if locale, ok := val.(string); ok && locale != "" {
			return locale
		}
	}
	return DefaultLocale
}

// WithLocale adds the request locale to the context
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, LocaleKey, locale)
}
