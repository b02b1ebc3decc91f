package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/yourdeals/deals-web/auth"
	"github.com/yourdeals/deals-web/config"
	"github.com/yourdeals/deals-web/handlers"
	"github.com/yourdeals/deals-web/internal/deallink"
	"github.com/yourdeals/deals-web/middleware"
	"github.com/yourdeals/deals-web/services/remoteapi"
	"github.com/yourdeals/deals-web/session"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Remote API
	RemoteAPI *remoteapi.Client

	// Sessions
	Sessions *session.Manager
	Hydrator *session.Hydrator
	DealRefs *deallink.Codec

	// Middleware
	AuthMiddleware *middleware.AuthMiddleware
	LoginLimiter   *middleware.RateLimiter

	// Handlers
	Pages  *handlers.PagesHandler
	Deals  *handlers.DealsHandler
	Health *handlers.HealthHandler

	authHandler *auth.Handler
}

// AuthHandler returns the auth handler for route wiring (implements handlers.AuthDeps)
func (d *Dependencies) AuthHandler() *auth.Handler {
	return d.authHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize remote API client
	if err := deps.initRemoteAPI(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize remote API client: %w", err)
	}

	// Initialize sessions and deal references
	if err := deps.initSessions(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize sessions: %w", err)
	}

	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.String("remote_api", cfg.RemoteAPI.BaseURL),
		zap.Strings("locales", cfg.Locales.Supported))
	return deps, nil
}

// initRemoteAPI builds the client for the upstream deals API
func (d *Dependencies) initRemoteAPI(cfg *config.Config) error {
	client, err := remoteapi.NewClient(cfg.RemoteAPI, d.Logger)
	if err != nil {
		return err
	}
	d.RemoteAPI = client
	return nil
}

func (d *Dependencies) initSessions(cfg *config.Config) error {
	manager, err := session.NewManager(cfg.Session)
	if err != nil {
		return err
	}
	d.Sessions = manager
	d.Hydrator = session.NewHydrator(d.RemoteAPI, cfg.RemoteAPI.HydrationTimeout, d.Logger)

	codec, err := deallink.NewCodec(cfg.DealLinks.Secret)
	if err != nil {
		return fmt.Errorf("deal link codec: %w", err)
	}
	d.DealRefs = codec

	d.AuthMiddleware = middleware.NewAuthMiddleware(manager, d.Logger)
	d.LoginLimiter = middleware.NewRateLimiter(cfg.RateLimit.LoginPerSecond, cfg.RateLimit.LoginBurst,
		func(w http.ResponseWriter, err error) { handlers.HandleServiceError(w, err, d.Logger) }, d.Logger)
	return nil
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	d.authHandler = auth.NewHandler(cfg.Locales, d.RemoteAPI, d.RemoteAPI, d.Sessions, d.Hydrator, d.Logger)
	d.Pages = handlers.NewPagesHandler(d.Hydrator, d.DealRefs, d.Logger)
	d.Deals = handlers.NewDealsHandler(d.RemoteAPI, d.DealRefs, cfg.Locales, d.Logger)
	d.Health = handlers.NewHealthHandler(d.RemoteAPI, d.Logger)
	d.Logger.Info("handlers initialized")
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.LoginLimiter != nil {
		d.LoginLimiter.Stop()
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return nil
}
