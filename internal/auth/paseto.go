package auth

import (
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

// Config defines runtime configuration for token verification.
type Config struct {
	// Issuer is the expected "iss" claim.
	Issuer string

	// PublicKeyHex is the hex-encoded Ed25519 public key that the identity
	// service signs PASETO v4.public access tokens with.
	PublicKeyHex string

	// ClockSkew is the allowed time skew during validation.
	ClockSkew time.Duration
}

type pasetoV4Verifier struct {
	issuer    string
	clockSkew time.Duration
	public    paseto.V4AsymmetricPublicKey
}

// NewPasetoV4Verifier builds a Verifier for PASETO v4.public access tokens.
//
// Verification is signature-only plus issuer and expiration rules; the server
// holds no secret material.
func NewPasetoV4Verifier(cfg Config) (Verifier, error) {
	if strings.TrimSpace(cfg.PublicKeyHex) == "" || strings.TrimSpace(cfg.Issuer) == "" {
		return nil, ErrConfig
	}
	public, err := paseto.NewV4AsymmetricPublicKeyFromHex(cfg.PublicKeyHex)
	if err != nil {
		return nil, ErrConfig
	}
	return &pasetoV4Verifier{
		issuer:    cfg.Issuer,
		clockSkew: cfg.ClockSkew,
		public:    public,
	}, nil
}

func (v *pasetoV4Verifier) Verify(token string, now time.Time) (Claims, error) {
	// Validate slightly in the future to tolerate "nbf" on skewed clocks;
	// this also makes expiry checks slightly stricter.
	validNow := now.Add(v.clockSkew)

	// Fresh parser per call to avoid accumulating rules across verifies.
	p := paseto.NewParser()
	p.AddRule(paseto.IssuedBy(v.issuer))
	p.AddRule(paseto.NotExpired())
	p.AddRule(paseto.ValidAt(validNow))

	parsed, err := p.ParseV4Public(v.public, token, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	exp, _ := parsed.GetExpiration()
	iat, _ := parsed.GetIssuedAt()

	uid, err := parsed.GetString("uid")
	if err != nil || uid == "" {
		return Claims{}, ErrInvalidToken
	}
	sid, _ := parsed.GetString("sid")

	return Claims{
		UserID:    uid,
		SessionID: sid,
		ExpiresAt: exp,
		IssuedAt:  iat,
	}, nil
}
