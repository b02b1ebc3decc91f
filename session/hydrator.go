package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/yourdeals/deals-web/services"
	"github.com/yourdeals/deals-web/services/remoteapi"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultHydrationTimeout = 5 * time.Second

// ProfileFetcher loads the current profile for a bearer token.
type ProfileFetcher interface {
	PersonalData(ctx context.Context, token string) (*remoteapi.Identity, error)
}

// Hydrator refreshes a session's identity from the remote API on every read.
// Failures never invalidate the session; the token snapshot is served instead.
type Hydrator struct {
	fetcher ProfileFetcher
	timeout time.Duration
	group   singleflight.Group
	logger  *zap.Logger
}

// NewHydrator creates a hydrator. A non-positive timeout falls back to 5s.
func NewHydrator(fetcher ProfileFetcher, timeout time.Duration, logger *zap.Logger) *Hydrator {
	if timeout <= 0 {
		timeout = defaultHydrationTimeout
	}
	return &Hydrator{
		fetcher: fetcher,
		timeout: timeout,
		logger:  logger,
	}
}

// Hydrate returns the session view for claims. Nil claims give the anonymous view.
func (h *Hydrator) Hydrate(ctx context.Context, claims *Claims) View {
	if claims == nil {
		return View{}
	}

	view := viewFromClaims(claims)
	token := claims.AccessToken()
	if token == "" {
		view.stale = true
		return view
	}

	// Concurrent reads for the same token share one in-flight request.
	// Results are not cached: the next read after completion refetches.
	key := tokenKey(token)
	result, err, shared := h.group.Do(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
		defer cancel()
		return h.fetcher.PersonalData(fetchCtx, token)
	})
	if err != nil {
		h.logger.Warn("session hydration failed, serving token snapshot",
			zap.String("user_id", claims.UserID),
			zap.String("error_type", string(services.GetErrorType(err))),
			zap.Bool("shared", shared),
			zap.Error(err))
		view.stale = true
		return view
	}

	identity, ok := result.(*remoteapi.Identity)
	if !ok || identity == nil {
		view.stale = true
		return view
	}

	view.User = merge(view.User, *identity)
	return view
}

// merge replaces the snapshot identity with fresh, including fields the
// remote API reports empty. Role is only replaced when the remote API reports one.
func merge(snapshot, fresh remoteapi.Identity) remoteapi.Identity {
	role := snapshot.Role
	if fresh.Role != "" {
		role = fresh.Role
	}
	fresh.Role = role
	return fresh
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
