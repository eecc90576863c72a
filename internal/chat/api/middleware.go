package chatapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ripple/internal/auth"
)

type claimsKey struct{}

// claimsFrom returns the authenticated claims placed by requireAuth.
func claimsFrom(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(auth.Claims)
	return c, ok
}

// requireAuth verifies the bearer token and stores the claims in the request
// context. Missing or invalid tokens get 401; the response never distinguishes
// between malformed, expired, and revoked.
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := h.authn.Authenticate(r.Context(), token, time.Now().UTC())
		if err != nil {
			h.log.Info("chat.api.auth.fail", "err", err, "remote", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
