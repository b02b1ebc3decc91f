package handlers

import (
	"context"
	"net/http"

	"github.com/yourdeals/deals-web/middleware"
	"github.com/yourdeals/deals-web/session"
	"github.com/yourdeals/deals-web/utils"
	"go.uber.org/zap"
)

// SessionViewer builds the current session view from verified claims.
type SessionViewer interface {
	Hydrate(ctx context.Context, claims *session.Claims) session.View
}

// DealRefCodec converts between deal ids and client-visible references.
type DealRefCodec interface {
	Encode(dealID int64) (string, error)
	Decode(ref string) (int64, error)
}

// Action is one header affordance.
type Action struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Href   string `json:"href,omitempty"`
	Method string `json:"method,omitempty"`
}

// Header describes the page header for the current visitor.
type Header struct {
	BrandHref     string   `json:"brand_href"`
	Authenticated bool     `json:"authenticated"`
	DisplayName   string   `json:"display_name,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	Actions       []Action `json:"actions"`
}

// Page is the model served for every page route.
type Page struct {
	Name    string        `json:"page"`
	Locale  string        `json:"locale"`
	Header  Header        `json:"header"`
	Session *session.View `json:"session,omitempty"`
	DealRef string        `json:"deal_ref,omitempty"`
}

// PagesHandler serves page models. Gating is done by middleware; handlers
// only assemble what the visitor sees.
type PagesHandler struct {
	sessions SessionViewer
	refs     DealRefCodec
	logger   *zap.Logger
}

// NewPagesHandler creates a new PagesHandler
func NewPagesHandler(sessions SessionViewer, refs DealRefCodec, logger *zap.Logger) *PagesHandler {
	return &PagesHandler{
		sessions: sessions,
		refs:     refs,
		logger:   logger,
	}
}

// HandleLogin handles GET /{lng}/login
func (h *PagesHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login", "")
}

// HandleSignup handles GET /{lng}/signup
func (h *PagesHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "signup", "")
}

// HandleUserDashboard handles GET /{lng}/user-dashboard
func (h *PagesHandler) HandleUserDashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "user-dashboard", "")
}

// HandleDealManagement handles GET /{lng}/deal-management
func (h *PagesHandler) HandleDealManagement(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "deal-management", "")
}

// HandleDealDetails handles GET /{lng}/deal-details?id=<ref>
func (h *PagesHandler) HandleDealDetails(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("id")
	if _, err := h.refs.Decode(ref); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.render(w, r, "deal-details", ref)
}

// render writes the page model. A signed-in visitor is hydrated on every
// load, so a page that also calls GET /api/auth/session costs two
// personal-data fetches per navigation; the hydrator only merges the two
// when they overlap in time. Results are not cached across reads.
func (h *PagesHandler) render(w http.ResponseWriter, r *http.Request, name, dealRef string) {
	locale := middleware.LocaleFromContext(r.Context())
	page := Page{
		Name:    name,
		Locale:  locale,
		DealRef: dealRef,
	}

	if claims := middleware.GetClaimsFromContext(r.Context()); claims != nil {
		view := h.sessions.Hydrate(r.Context(), claims)
		if view.Stale() {
			h.logger.Debug("rendering page from session snapshot",
				zap.String("page", name),
				zap.String("user_id", claims.UserID))
		}
		page.Session = &view
	}
	page.Header = buildHeader(locale, name, page.Session)

	if err := utils.WriteOK(w, page); err != nil {
		h.logger.Error("failed to write page", zap.String("page", name), zap.Error(err))
	}
}

func buildHeader(locale, page string, view *session.View) Header {
	header := Header{BrandHref: middleware.DashboardPath(locale)}

	if view == nil || !view.Authenticated() {
		header.Actions = []Action{
			{ID: "login", Label: "Login", Href: middleware.LoginPath(locale)},
			{ID: "signup", Label: "Sign up", Href: "/" + locale + "/signup"},
		}
		return header
	}

	header.Authenticated = true
	header.DisplayName = view.User.FullName
	if header.DisplayName == "" {
		header.DisplayName = view.User.Email
	}
	header.ImageURL = view.User.ImageURL

	if page == "deal-details" {
		header.Actions = []Action{
			{ID: "share", Label: "Share"},
			{ID: "save", Label: "Save"},
		}
	} else {
		header.Actions = []Action{
			{ID: "favorites", Label: "My Favorites"},
			{ID: "notifications", Label: "Notifications"},
			{ID: "profile", Label: "Profile"},
		}
	}
	header.Actions = append(header.Actions,
		Action{ID: "deal-management", Label: "Deal management", Href: "/" + locale + "/deal-management"},
		Action{ID: "logout", Label: "Sign out", Href: "/api/auth/logout?lng=" + locale, Method: http.MethodPost},
	)
	return header
}

// RedirectToLogin handles GET / with a permanent redirect to /en/login.
func RedirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, middleware.LoginPath(middleware.DefaultLocale), http.StatusMovedPermanently)
}
