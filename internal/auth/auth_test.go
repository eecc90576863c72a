package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

type staticVerifier struct {
	claims Claims
	err    error
}

func (v staticVerifier) Verify(token string, _ time.Time) (Claims, error) {
	if v.err != nil {
		return Claims{}, v.err
	}
	return v.claims, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestAuthenticateRejectsEmptyAndOversized(t *testing.T) {
	a := NewAuthenticator(staticVerifier{claims: Claims{UserID: "u1"}}, nil)
	now := time.Now().UTC()

	if _, err := a.Authenticate(context.Background(), "   ", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("blank token err = %v, want ErrInvalidToken", err)
	}
	huge := strings.Repeat("a", 5000)
	if _, err := a.Authenticate(context.Background(), huge, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("oversized token err = %v, want ErrInvalidToken", err)
	}
}

func TestAuthenticateChecksBlacklist(t *testing.T) {
	now := time.Now().UTC()
	bl := NewMemoryBlacklist(testLogger(), time.Hour)
	a := NewAuthenticator(staticVerifier{claims: Claims{UserID: "u1", ExpiresAt: now.Add(time.Hour)}}, bl)

	claims, err := a.Authenticate(context.Background(), "tok-1", now)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("user = %q, want u1", claims.UserID)
	}

	if err := bl.Revoke(context.Background(), "tok-1", now.Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := a.Authenticate(context.Background(), "tok-1", now); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("revoked token err = %v, want ErrTokenRevoked", err)
	}

	// A different token is unaffected.
	if _, err := a.Authenticate(context.Background(), "tok-2", now); err != nil {
		t.Fatalf("unrevoked token: %v", err)
	}
}

func TestMemoryBlacklistExpiry(t *testing.T) {
	bl := NewMemoryBlacklist(testLogger(), time.Hour)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := bl.Revoke(ctx, "short", now.Add(-time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := bl.Revoke(ctx, "long", now.Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	// Past-expiry entries no longer count even before the sweep runs.
	revoked, err := bl.IsRevoked(ctx, "short")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if revoked {
		t.Fatal("expired entry still revoked")
	}

	if n := bl.Sweep(now); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	// The live entry survives the sweep.
	revoked, err = bl.IsRevoked(ctx, "long")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Fatal("live entry lost in sweep")
	}
}

func TestPasetoV4VerifierRoundTrip(t *testing.T) {
	secret := paseto.NewV4AsymmetricSecretKey()
	public := secret.Public()

	verifier, err := NewPasetoV4Verifier(Config{
		Issuer:       "ripple-identity",
		PublicKeyHex: public.ExportHex(),
	})
	if err != nil {
		t.Fatalf("NewPasetoV4Verifier: %v", err)
	}

	now := time.Now().UTC()

	token := paseto.NewToken()
	token.SetIssuer("ripple-identity")
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(time.Hour))
	token.SetString("uid", "u1")
	token.SetString("sid", "s1")
	signed := token.V4Sign(secret, nil)

	claims, err := verifier.Verify(signed, now)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "u1" || claims.SessionID != "s1" {
		t.Fatalf("claims = %+v", claims)
	}

	// Wrong issuer fails.
	bad := paseto.NewToken()
	bad.SetIssuer("someone-else")
	bad.SetIssuedAt(now)
	bad.SetNotBefore(now)
	bad.SetExpiration(now.Add(time.Hour))
	bad.SetString("uid", "u1")
	if _, err := verifier.Verify(bad.V4Sign(secret, nil), now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong issuer err = %v, want ErrInvalidToken", err)
	}

	// Expired fails.
	exp := paseto.NewToken()
	exp.SetIssuer("ripple-identity")
	exp.SetIssuedAt(now.Add(-2 * time.Hour))
	exp.SetNotBefore(now.Add(-2 * time.Hour))
	exp.SetExpiration(now.Add(-time.Hour))
	exp.SetString("uid", "u1")
	if _, err := verifier.Verify(exp.V4Sign(secret, nil), now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired err = %v, want ErrInvalidToken", err)
	}

	// Missing uid fails.
	anon := paseto.NewToken()
	anon.SetIssuer("ripple-identity")
	anon.SetIssuedAt(now)
	anon.SetNotBefore(now)
	anon.SetExpiration(now.Add(time.Hour))
	if _, err := verifier.Verify(anon.V4Sign(secret, nil), now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("missing uid err = %v, want ErrInvalidToken", err)
	}
}

func TestNewPasetoV4VerifierConfig(t *testing.T) {
	if _, err := NewPasetoV4Verifier(Config{}); !errors.Is(err, ErrConfig) {
		t.Fatalf("empty config err = %v, want ErrConfig", err)
	}
	if _, err := NewPasetoV4Verifier(Config{Issuer: "x", PublicKeyHex: "not-hex"}); !errors.Is(err, ErrConfig) {
		t.Fatalf("bad key err = %v, want ErrConfig", err)
	}
}
