// Package auth implements the bearer-token contract shared by the REST layer
// and the realtime gateway: PASETO v4.public access-token verification plus an
// injected blacklist of invalidated tokens.
//
// Token issuance is owned by an external identity service; this package only
// verifies.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenRevoked is returned when a syntactically valid token has been
	// invalidated (logout).
	ErrTokenRevoked = errors.New("auth: token revoked")
	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("auth: invalid config")
)

// Claims is the minimal identity envelope propagated across HTTP and WS.
type Claims struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Verifier checks token signatures and claims.
type Verifier interface {
	Verify(token string, now time.Time) (Claims, error)
}

// Authenticator combines signature verification with the revocation blacklist.
// Both the REST middleware and the WS handshake go through here so the two
// entry points can never drift apart.
type Authenticator struct {
	verifier  Verifier
	blacklist Blacklist
}

// NewAuthenticator constructs an Authenticator. blacklist may be nil when
// revocation is not wired (tests).
func NewAuthenticator(verifier Verifier, blacklist Blacklist) *Authenticator {
	return &Authenticator{verifier: verifier, blacklist: blacklist}
}

// Authenticate verifies the token and checks it against the blacklist.
func (a *Authenticator) Authenticate(ctx context.Context, token string, now time.Time) (Claims, error) {
	token = strings.TrimSpace(token)
	// Bound pathological inputs before any crypto work.
	if token == "" || len(token) > 4096 {
		return Claims{}, ErrInvalidToken
	}

	claims, err := a.verifier.Verify(token, now)
	if err != nil {
		return Claims{}, err
	}

	if a.blacklist != nil {
		revoked, err := a.blacklist.IsRevoked(ctx, token)
		if err != nil {
			return Claims{}, err
		}
		if revoked {
			return Claims{}, ErrTokenRevoked
		}
	}
	return claims, nil
}
