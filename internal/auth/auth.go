// Package auth supplies the signed-in user's identity and bearer credential.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/capitalize-ai/tutorchat/internal/transport"
)

var (
	// ErrNoToken is returned when no bearer token is configured.
	ErrNoToken = errors.New("auth: no token")
	// ErrTokenExpired is returned once the token's exp claim has passed.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Provider supplies credentials for REST calls and the channel.
type Provider interface {
	Credentials(ctx context.Context) (transport.Credentials, error)
}

// Claims are the JWT claims the client reads.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// TokenProvider serves a single session token. The client does not verify the
// signature; the server does. It only reads who the token is for and when it
// stops being usable.
type TokenProvider struct {
	token  string
	claims Claims
	clock  clockwork.Clock
}

// NewTokenProvider parses token. A nil clock uses the real clock.
func NewTokenProvider(token string, clock clockwork.Clock) (*TokenProvider, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}
	return &TokenProvider{token: token, claims: claims, clock: clock}, nil
}

// UserID returns the token subject.
func (p *TokenProvider) UserID() string {
	return p.claims.Subject
}

// Claims returns the parsed claims.
func (p *TokenProvider) Claims() Claims {
	return p.claims
}

// Credentials returns the user id and token, or ErrTokenExpired.
func (p *TokenProvider) Credentials(ctx context.Context) (transport.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return transport.Credentials{}, err
	}
	if exp := p.claims.ExpiresAt; exp != nil && !p.clock.Now().Before(exp.Time) {
		return transport.Credentials{}, fmt.Errorf("%w at %s", ErrTokenExpired, exp.Time.Format(time.RFC3339))
	}
	return transport.Credentials{UserID: p.claims.Subject, Token: p.token}, nil
}

// Static is a Provider with fixed credentials.
type Static transport.Credentials

// Credentials returns the fixed credentials.
func (s Static) Credentials(ctx context.Context) (transport.Credentials, error) {
	if s.Token == "" {
		return transport.Credentials{}, ErrNoToken
	}
	return transport.Credentials(s), nil
}
