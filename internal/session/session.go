// Package session owns the authenticated AT Protocol session: login,
// refresh, restore from the credential store and logout.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/gophsky/internal/xrpc"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNoActiveSession      = errors.New("no active session")
	ErrSessionExpired       = errors.New("session expired")
	ErrRefreshFailed        = errors.New("session refresh failed")
	ErrInvalidResponse      = xrpc.ErrInvalidResponse
)

// ExpirySkew is how long before its exp claim an access token is already
// treated as expired.
const ExpirySkew = 300 * time.Second

// Session is an immutable snapshot of an authenticated account. A refresh
// produces a new Session instead of mutating the old one.
type Session struct {
	AccessToken  string
	RefreshToken string
	Handle       string
	DID          string
	Email        *string
	Active       *bool
	Status       string
}

// Expired applies IsExpired to the access token.
func (s Session) Expired(now time.Time) bool {
	return IsExpired(s.AccessToken, now)
}

// ExpiresAt returns the exp claim of a JWT without verifying its signature.
// Tokens signed with algorithms unknown to golang-jwt (ES256K) are accepted.
func ExpiresAt(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsExpired reports whether now+ExpirySkew has reached the token's exp.
// Unparseable tokens and tokens without exp are expired.
func IsExpired(token string, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return true
	}
	return !now.Add(ExpirySkew).Before(exp)
}

// sessionWire covers the createSession, refreshSession and getSession
// outputs; the latter carries no tokens.
type sessionWire struct {
	AccessJwt  string  `json:"accessJwt"`
	RefreshJwt string  `json:"refreshJwt"`
	Handle     string  `json:"handle"`
	DID        string  `json:"did"`
	Email      *string `json:"email,omitempty"`
	Active     *bool   `json:"active,omitempty"`
	Status     string  `json:"status,omitempty"`
}

// newSession builds a Session from a token-carrying response. Both tokens
// and the DID are required.
func newSession(w sessionWire) (Session, error) {
	if w.AccessJwt == "" || w.RefreshJwt == "" || w.DID == "" {
		return Session{}, ErrInvalidResponse
	}
	return Session{
		AccessToken:  w.AccessJwt,
		RefreshToken: w.RefreshJwt,
		Handle:       w.Handle,
		DID:          w.DID,
		Email:        w.Email,
		Active:       w.Active,
		Status:       w.Status,
	}, nil
}
