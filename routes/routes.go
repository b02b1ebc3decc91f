package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/yourdeals/deals-web/app"
	"github.com/yourdeals/deals-web/handlers"
	appmiddleware "github.com/yourdeals/deals-web/middleware"
	"github.com/yourdeals/deals-web/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	// Core middleware
	r.Use(middleware.RequestID)
	if cfg.Server.BehindProxy {
		// X-Forwarded-For is only trustworthy when a proxy overwrites it
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(appmiddleware.SecurityHeaders(cfg.Session.CookieSecure))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Every route sees the session, if any; gating happens per group.
	r.Use(deps.AuthMiddleware.LoadSession)

	// Health check endpoints
	r.Get("/healthz", deps.Health.HandleHealth)
	r.Get("/readyz", deps.Health.HandleReadiness)

	r.Get("/", handlers.RedirectToLogin)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(deps.LoginLimiter.Middleware).Post("/login", handlers.AuthLoginHandler(deps))
			r.Post("/logout", handlers.AuthLogoutHandler(deps))
			r.Get("/session", handlers.AuthSessionHandler(deps))
			r.With(deps.LoginLimiter.Middleware).Post("/register", handlers.AuthRegisterHandler(deps))
		})

		r.Route("/deals", func(r chi.Router) {
			r.Post("/table", deps.Deals.HandleTable)
			r.Post("/top", deps.Deals.HandleTopDeals)
			r.Get("/{ref}", deps.Deals.HandleDetails)

			// Mutations carry the session's bearer token upstream
			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireSession)
				r.Post("/", deps.Deals.HandleCreate)
				r.Put("/", deps.Deals.HandleUpdate)
				r.Delete("/{ref}", deps.Deals.HandleDelete)
			})
		})

		r.NotFound(notFound)
	})

	// Localized pages
	r.Route("/{lng}", func(r chi.Router) {
		r.Use(appmiddleware.PathLocale(cfg.Locales.Supported, cfg.Locales.Default, notFound))

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RedirectIfAuthenticated)
			r.Get("/login", deps.Pages.HandleLogin)
			r.Get("/signup", deps.Pages.HandleSignup)
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequirePageSession)
			r.Get("/user-dashboard", deps.Pages.HandleUserDashboard)
			r.Get("/deal-management", deps.Pages.HandleDealManagement)
			r.Get("/deal-details", deps.Pages.HandleDealDetails)
		})
	})

	// 404 handler
	r.NotFound(notFound)

	return r
}
