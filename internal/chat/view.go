package chat

import (
	"context"
	"time"

	"ripple/internal/directory"
)

// View models are what the services hand to transports: stored entities
// joined with display identities from the user directory. Stored shapes are
// never mutated for display.

// UserView is a member rendered for clients.
type UserView struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Online    bool   `json:"is_online"`
}

// MessageView is a message with its sender resolved.
type MessageView struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         UserView  `json:"sender"`
	Kind           string    `json:"kind"`
	Body           string    `json:"body"`
	ReplyToID      string    `json:"reply_to_id,omitempty"`
	ReadBy         []string  `json:"read_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationView is a conversation with membership resolved and the
// requester-scoped unread counter derived.
type ConversationView struct {
	ID           string       `json:"id"`
	Kind         string       `json:"kind"`
	Title        string       `json:"title,omitempty"`
	Description  string       `json:"description,omitempty"`
	Owner        *UserView    `json:"owner,omitempty"`
	Discoverable bool         `json:"is_discoverable,omitempty"`
	Members      []UserView   `json:"members"`
	LastMessage  *MessageView `json:"last_message,omitempty"`
	Unread       int          `json:"unread_count"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// resolveUsers batch-resolves ids through the directory. Unresolvable ids
// degrade to id-only views rather than failing the request.
func resolveUsers(ctx context.Context, dir directory.Directory, ids []string) (map[string]UserView, error) {
	found, err := dir.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string]UserView, len(ids))
	for _, id := range ids {
		if u, ok := found[id]; ok {
			out[id] = UserView{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL, Online: u.Online}
			continue
		}
		out[id] = UserView{ID: id}
	}
	return out, nil
}

func toMessageView(m *Message, users map[string]UserView) MessageView {
	sender, ok := users[m.SenderID]
	if !ok {
		sender = UserView{ID: m.SenderID}
	}
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         sender,
		Kind:           string(m.Kind),
		Body:           m.Body,
		ReplyToID:      m.ReplyToID,
		ReadBy:         append([]string(nil), m.ReadBy...),
		CreatedAt:      m.CreatedAt,
	}
}
