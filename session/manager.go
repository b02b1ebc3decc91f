// Package session issues, verifies and hydrates the signed session token
// that carries a user's remote API bearer token between requests.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/yourdeals/deals-web/config"
	"github.com/yourdeals/deals-web/internal/seal"
	"github.com/yourdeals/deals-web/services"
	"github.com/yourdeals/deals-web/services/remoteapi"
)

const accessTokenPurpose = "session-access-token"

// Manager signs and verifies session tokens and owns the session cookie.
// No server-side session state is kept.
type Manager struct {
	secret     []byte
	issuer     string
	ttl        time.Duration
	leeway     time.Duration
	cookieName string
	secure     bool
	sealer     *seal.Sealer
	now        func() time.Time
}

// NewManager creates a manager from session configuration.
func NewManager(cfg config.SessionConfig) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session TTL must be positive")
	}

	sealer, err := seal.New(cfg.Secret, accessTokenPurpose)
	if err != nil {
		return nil, fmt.Errorf("session sealer: %w", err)
	}

	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = "session"
	}

	return &Manager{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		ttl:        cfg.TTL,
		leeway:     cfg.Leeway,
		cookieName: cookieName,
		secure:     cfg.CookieSecure,
		sealer:     sealer,
		now:        time.Now,
	}, nil
}

// Issue builds and signs a session token from a successful credential
// exchange. It is the only place identity fields enter the token.
func (m *Manager) Issue(result remoteapi.LoginResult) (string, *Claims, error) {
	if result.Token == "" {
		return "", nil, services.ErrTokenGeneration.Wrap(errors.New("empty access token"))
	}

	sealed, err := m.sealer.Seal([]byte(result.Token))
	if err != nil {
		return "", nil, services.ErrTokenGeneration.Wrap(err)
	}

	now := m.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   result.Identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		SealedToken: sealed,
		UserID:      result.Identity.UserID,
		Name:        result.Identity.FullName,
		Email:       result.Identity.Email,
		Image:       result.Identity.ImageURL,
		Role:        result.Identity.Role,
		accessToken: result.Token,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, services.ErrTokenGeneration.Wrap(err)
	}
	return signed, claims, nil
}

// Parse verifies a signed session token and opens the access token inside it.
func (m *Manager) Parse(signed string) (*Claims, error) {
	if signed == "" {
		return nil, services.ErrSessionRequired
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, services.ErrSessionExpired.Wrap(err)
		}
		return nil, services.ErrSessionInvalid.Wrap(err)
	}
	if !token.Valid {
		return nil, services.ErrSessionInvalid
	}

	accessToken, err := m.sealer.Open(claims.SealedToken)
	if err != nil {
		return nil, services.ErrSessionInvalid.Wrap(err)
	}
	claims.accessToken = string(accessToken)

	return claims, nil
}

// FromRequest reads and verifies the session cookie on r.
func (m *Manager) FromRequest(r *http.Request) (*Claims, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, services.ErrSessionRequired
	}
	return m.Parse(cookie.Value)
}

// SetCookie writes the session cookie for a freshly issued token.
func (m *Manager) SetCookie(w http.ResponseWriter, signed string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		Expires:  m.now().Add(m.ttl),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie writes an expired session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
