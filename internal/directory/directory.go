// Package directory is the external user-lookup collaborator: it resolves
// user ids to display-ready identities. The chat core never owns user data;
// it joins through this interface and returns typed view models instead of
// mutating stored entities.
package directory

import "context"

// User is a display identity: what a client needs to render a member.
type User struct {
	ID        string
	Username  string
	AvatarURL string
	Online    bool
}

// Directory resolves user ids to display identities.
//
// Ids that cannot be resolved are simply absent from the result map;
// that is not an error.
type Directory interface {
	Lookup(ctx context.Context, ids []string) (map[string]User, error)
}
