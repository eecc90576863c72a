package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// Blacklist tracks invalidated access tokens until they would have expired
// anyway. It is injected, never a module global, so deployments can swap the
// process-local cache for a shared store when running multiple instances.
//
// Tokens are stored hashed; the blacklist never holds usable credentials.
type Blacklist interface {
	// Revoke marks the token invalid until expiresAt.
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	// IsRevoked reports whether the token is currently invalidated.
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// MemoryBlacklist is the single-process Blacklist: a map with a periodic
// full-scan TTL sweep. It is empty after restart, which is acceptable because
// every entry is bounded by its token's own expiry.
type MemoryBlacklist struct {
	log   *slog.Logger
	sweep time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time // token hash -> token expiry
}

// NewMemoryBlacklist constructs a memory blacklist sweeping at the given
// interval (default 1h when non-positive, matching hourly cleanup semantics).
func NewMemoryBlacklist(log *slog.Logger, sweep time.Duration) *MemoryBlacklist {
	if sweep <= 0 {
		sweep = time.Hour
	}
	return &MemoryBlacklist{
		log:     log,
		sweep:   sweep,
		revoked: make(map[string]time.Time),
	}
}

// Run drives the periodic sweep until ctx is cancelled.
func (b *MemoryBlacklist) Run(ctx context.Context) {
	t := time.NewTicker(b.sweep)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n := b.Sweep(time.Now().UTC())
			if n > 0 {
				b.log.Debug("auth.blacklist.sweep", "expired", n)
			}
		}
	}
}

// Revoke marks the token invalid until expiresAt.
func (b *MemoryBlacklist) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	b.revoked[hashToken(token)] = expiresAt
	b.mu.Unlock()
	return nil
}

// IsRevoked reports whether the token is currently invalidated.
// An entry past its expiry no longer counts, even before the sweep ran.
func (b *MemoryBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	b.mu.Lock()
	exp, ok := b.revoked[hashToken(token)]
	b.mu.Unlock()

	return ok && exp.After(time.Now().UTC()), nil
}

// Sweep removes expired entries with one full scan and returns the count.
func (b *MemoryBlacklist) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for h, exp := range b.revoked {
		if !exp.After(now) {
			delete(b.revoked, h)
			n++
		}
	}
	return n
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
