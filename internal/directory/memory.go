package directory

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory Directory for dev mode and tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryDirectory constructs an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]User)}
}

// Put registers or replaces a user.
func (d *MemoryDirectory) Put(u User) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

// SetOnline flips the online flag for a known user (noop for unknown ids).
func (d *MemoryDirectory) SetOnline(id string, online bool) {
	d.mu.Lock()
	if u, ok := d.users[id]; ok {
		u.Online = online
		d.users[id] = u
	}
	d.mu.Unlock()
}

// Lookup resolves the given ids; unknown ids are absent from the result.
func (d *MemoryDirectory) Lookup(ctx context.Context, ids []string) (map[string]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]User, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}
