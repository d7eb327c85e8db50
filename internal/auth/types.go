package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Store keys under which the token pair is persisted.
const (
	KeyAccessToken  = "ACCESS_TOKEN"
	KeyRefreshToken = "REFRESH_TOKEN"
)

// Credential is the email/password pair used to sign in. Immutable for the session.
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenPair holds the bearer credentials issued by the fleet API.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ExpiresAt reads the exp claim when the access token is a JWT.
// The signature is not verified; the server remains the authority on validity.
func (p TokenPair) ExpiresAt() (time.Time, bool) {
	if p.AccessToken == "" {
		return time.Time{}, false
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(p.AccessToken, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Request is a GET against an absolute endpoint URL with optional query parameters.
type Request struct {
	Endpoint string
	Query    map[string]string
}

// Store is the key/value collaborator the executor persists tokens into.
type Store interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// tokenResponse is the body of /auth/token and /auth/refresh-token.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
