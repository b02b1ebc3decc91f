package middleware

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yourdeals/deals-web/services"
	"github.com/yourdeals/deals-web/session"
	"github.com/yourdeals/deals-web/utils"
	"go.uber.org/zap"
)

// SessionReader reads the session cookie from a request and can clear it.
type SessionReader interface {
	FromRequest(r *http.Request) (*session.Claims, error)
	ClearCookie(w http.ResponseWriter)
}

// AuthMiddleware gates routes on the signed session cookie.
type AuthMiddleware struct {
	sessions SessionReader
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(sessions SessionReader, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		logger:   logger,
	}
}

// LoadSession verifies the session cookie, if any, and stores the claims in
// the request context. It never rejects: a bad or expired cookie is cleared
// and the request continues anonymous.
func (m *AuthMiddleware) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.sessions.FromRequest(r)
		switch {
		case err == nil:
			r = r.WithContext(WithClaims(r.Context(), claims))
		case errors.Is(err, services.ErrSessionRequired):
		default:
			m.logger.Info("discarding session cookie",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.Bool("expired", errors.Is(err, services.ErrSessionExpired)),
				zap.Error(err))
			m.sessions.ClearCookie(w)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSession rejects API requests without a session with 401.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaimsFromContext(r.Context()) == nil {
			m.logger.Debug("session required",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("path", r.URL.Path))
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePageSession redirects anonymous page requests to /{lng}/login.
func (m *AuthMiddleware) RequirePageSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaimsFromContext(r.Context()) == nil {
			http.Redirect(w, r, LoginPath(LocaleFromContext(r.Context())), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RedirectIfAuthenticated sends signed-in users away from the login and
// signup pages to /{lng}/user-dashboard.
func (m *AuthMiddleware) RedirectIfAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaimsFromContext(r.Context()) != nil {
			http.Redirect(w, r, DashboardPath(LocaleFromContext(r.Context())), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PathLocale resolves the {lng} URL parameter. Unsupported locales are
// redirected to the same page under fallback; segments that are not a
// locale tag at all, like favicon.ico, go to notFound.
func PathLocale(supported []string, fallback string, notFound http.Handler) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(supported))
	for _, l := range supported {
		allowed[l] = struct{}{}
	}
	if notFound == nil {
		notFound = http.NotFoundHandler()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lng := chi.URLParam(r, "lng")
			if _, ok := allowed[lng]; !ok {
				if !looksLikeLocale(lng) {
					notFound.ServeHTTP(w, r)
					return
				}
				http.Redirect(w, r, replaceLocale(r.URL.Path, lng, fallback), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), lng)))
		})
	}
}

// looksLikeLocale reports whether s is a bare two or three letter language tag.
func looksLikeLocale(s string) bool {
	if len(s) < 2 || len(s) > 3 {
		return false
	}
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

// LoginPath returns the login page for locale.
func LoginPath(locale string) string {
	return "/" + locale + "/login"
}

// DashboardPath returns the user dashboard page for locale.
func DashboardPath(locale string) string {
	return "/" + locale + "/user-dashboard"
}

func replaceLocale(path, from, to string) string {
	prefix := "/" + from
	if from != "" && len(path) >= len(prefix) && path[:len(prefix)] == prefix {
		rest := path[len(prefix):]
		if rest == "" || rest == "/" {
			return LoginPath(to)
		}
		return "/" + to + rest
	}
	return LoginPath(to)
}
