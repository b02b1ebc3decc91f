package handlers

import (
	"net/http"

	"github.com/yourdeals/deals-web/auth"
	"github.com/yourdeals/deals-web/utils"
)

// AuthDeps provides auth handler for route wiring
type AuthDeps interface {
	AuthHandler() *auth.Handler
}

func withAuthHandler(deps AuthDeps, serve func(h *auth.Handler, w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h := deps.AuthHandler(); h != nil {
			serve(h, w, r)
			return
		}
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
	}
}

// AuthLoginHandler returns an http.HandlerFunc for POST /api/auth/login
func AuthLoginHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleLogin)
}

// AuthLogoutHandler returns an http.HandlerFunc for POST /api/auth/logout
func AuthLogoutHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleLogout)
}

// AuthSessionHandler returns an http.HandlerFunc for GET /api/auth/session
func AuthSessionHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleSession)
}

// AuthRegisterHandler returns an http.HandlerFunc for POST /api/auth/register
func AuthRegisterHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleRegister)
}
