package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/yourdeals/deals-web/config"
	"github.com/yourdeals/deals-web/middleware"
	"github.com/yourdeals/deals-web/services"
	"github.com/yourdeals/deals-web/services/remoteapi"
	"github.com/yourdeals/deals-web/session"
	"github.com/yourdeals/deals-web/utils"
	"go.uber.org/zap"
)

// invalidCredentialsMessage is the only login failure text users ever see.
const invalidCredentialsMessage = "Invalid credentials."

// CredentialExchanger exchanges user credentials for a remote API bearer token.
type CredentialExchanger interface {
	Login(ctx context.Context, creds remoteapi.Credentials) (*remoteapi.LoginResult, error)
}

// Registrar creates accounts on the remote API.
type Registrar interface {
	Register(ctx context.Context, req remoteapi.RegisterRequest) (*remoteapi.Response, error)
}

// SessionIssuer signs session tokens and writes the session cookie.
type SessionIssuer interface {
	Issue(result remoteapi.LoginResult) (string, *session.Claims, error)
	SetCookie(w http.ResponseWriter, signed string)
	ClearCookie(w http.ResponseWriter)
}

// SessionHydrator builds the current session view from verified claims.
type SessionHydrator interface {
	Hydrate(ctx context.Context, claims *session.Claims) session.View
}

// Handler handles credential login, logout, session reads and registration.
type Handler struct {
	locales   config.LocalesConfig
	exchanger CredentialExchanger
	registrar Registrar
	sessions  SessionIssuer
	hydrator  SessionHydrator
	logger    *zap.Logger
}

// NewHandler creates a new auth handler.
func NewHandler(locales config.LocalesConfig, exchanger CredentialExchanger, registrar Registrar, sessions SessionIssuer, hydrator SessionHydrator, logger *zap.Logger) *Handler {
	return &Handler{
		locales:   locales,
		exchanger: exchanger,
		registrar: registrar,
		sessions:  sessions,
		hydrator:  hydrator,
		logger:    logger,
	}
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	User     remoteapi.Identity `json:"user"`
	Redirect string             `json:"redirect"`
}

// RedirectResponse tells the client where to navigate next.
type RedirectResponse struct {
	Redirect string `json:"redirect"`
}

// HandleLogin handles POST /api/auth/login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var creds remoteapi.Credentials
	if err := utils.DecodeJSON(r, &creds); err != nil {
		h.writeValidationError(w, err)
		return
	}
	creds.Email = strings.TrimSpace(creds.Email)

	locale, ok := h.locales.Resolve(creds.Locale)
	if !ok {
		h.writeValidationError(w, utils.ValidateOneOf(creds.Locale, "lg", h.locales.Supported))
		return
	}
	creds.Locale = locale

	if err := utils.ValidateStruct(&creds); err != nil {
		h.writeValidationError(w, err)
		return
	}

	result, err := h.exchanger.Login(r.Context(), creds)
	if err != nil {
		h.logger.Warn("credential exchange failed",
			zap.String("request_id", requestID),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Error(err))
		_ = utils.WriteUnauthorized(w, invalidCredentialsMessage)
		return
	}

	signed, claims, err := h.sessions.Issue(*result)
	if err != nil {
		h.logger.Error("failed to issue session token",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to create session")
		return
	}
	h.sessions.SetCookie(w, signed)

	h.logger.Info("user signed in",
		zap.String("request_id", requestID),
		zap.String("user_id", claims.UserID),
		zap.String("session_id", claims.ID))

	_ = utils.WriteOK(w, LoginResponse{
		User:     claims.Identity(),
		Redirect: middleware.DashboardPath(locale),
	})
}

// HandleLogout handles POST /api/auth/logout
// The cookie is always cleared; browsers posting a form are redirected with 303.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	locale, ok := h.locales.Resolve(r.URL.Query().Get("lng"))
	if !ok {
		locale = h.locales.Default
	}

	h.sessions.ClearCookie(w)

	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		h.logger.Info("user signed out",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("user_id", claims.UserID))
	}

	target := middleware.LoginPath(locale)
	if wantsHTML(r) {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	_ = utils.WriteOK(w, RedirectResponse{Redirect: target})
}

// HandleSession handles GET /api/auth/session
// Anonymous callers get an empty object.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		_ = utils.WriteOK(w, struct{}{})
		return
	}
	_ = utils.WriteOK(w, h.hydrator.Hydrate(r.Context(), claims))
}

// HandleRegister handles POST /api/auth/register
// The remote API reply is relayed as is; no session is created.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req remoteapi.RegisterRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.writeValidationError(w, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)

	locale, ok := h.locales.Resolve(req.Locale)
	if !ok {
		h.writeValidationError(w, utils.ValidateOneOf(req.Locale, "lg", h.locales.Supported))
		return
	}
	req.Locale = locale

	if err := utils.ValidateStruct(&req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	resp, err := h.registrar.Register(r.Context(), req)
	if err != nil {
		h.logger.Warn("registration request failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		_ = utils.WriteBadGateway(w, "")
		return
	}

	if err := utils.WriteUpstream(w, resp.StatusCode, resp.ContentType, resp.Body); err != nil {
		h.logger.Error("failed to write register response", zap.Error(err))
	}
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var validationErr *utils.ValidationError
	if errors.As(err, &validationErr) {
		_ = utils.WriteBadRequest(w, "Validation failed", validationErr.Details())
		return
	}
	_ = utils.WriteBadRequest(w, err.Error(), nil)
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
