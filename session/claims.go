package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/yourdeals/deals-web/services/remoteapi"
)

// Claims is the payload of the signed session token. Identity fields are
// copied once at sign-in and never re-derived from later requests.
type Claims struct {
	jwt.RegisteredClaims
	SealedToken string `json:"tok"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Image       string `json:"image"`
	Role        string `json:"role,omitempty"`

	accessToken string
}

// AccessToken returns the opened bearer token. It is only set on claims
// produced by Manager.Issue or Manager.Parse.
func (c *Claims) AccessToken() string {
	return c.accessToken
}

// Identity returns the identity snapshot stored at sign-in.
func (c *Claims) Identity() remoteapi.Identity {
	return remoteapi.Identity{
		UserID:   c.UserID,
		FullName: c.Name,
		Email:    c.Email,
		ImageURL: c.Image,
		Role:     c.Role,
	}
}

// View is the read-only session exposed to pages and GET /api/auth/session.
type View struct {
	User    remoteapi.Identity `json:"user"`
	Expires time.Time          `json:"expires"`

	authenticated bool
	stale         bool
}

// Stale reports whether the identity came from the token snapshot because
// the last hydration failed.
func (v View) Stale() bool {
	return v.stale
}

// Authenticated reports whether the view was built from a verified session
// token. The zero View is anonymous.
func (v View) Authenticated() bool {
	return v.authenticated
}

func viewFromClaims(c *Claims) View {
	v := View{User: c.Identity(), authenticated: true}
	if c.ExpiresAt != nil {
		v.Expires = c.ExpiresAt.Time.UTC()
	}
	return v
}
