package chat

import (
	"context"
	"errors"
	"time"
)

// Storage-level sentinels. Services translate these into operational errors
// so that the HTTP boundary never sees driver errors.
var (
	// ErrNoConversation is returned when a conversation id does not exist.
	ErrNoConversation = errors.New("chat: conversation not found")
	// ErrNoMessage is returned when a message id does not exist in the
	// queried conversation.
	ErrNoMessage = errors.New("chat: message not found")
)

// Store persists conversations and messages. It is the single source of
// truth: services never cache mutable state across calls.
//
// Requirements:
//   - Messages within a conversation are totally ordered by (created_at, id).
//   - MarkConversationRead is one conditional update-many, not a
//     read-modify-write loop, so concurrent readers cannot lose updates.
//   - AddMember/RemoveMember are idempotent and report whether state changed.
type Store interface {
	// CreateConversation persists a new conversation with its member set.
	CreateConversation(ctx context.Context, c *Conversation) error

	// GetConversation loads a conversation with members, or ErrNoConversation.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// FindDirect returns the direct conversation whose member set equals
	// exactly {a, b}, or ErrNoConversation. Argument order is irrelevant.
	FindDirect(ctx context.Context, a, b string) (*Conversation, error)

	// ListConversations returns every conversation userID belongs to,
	// sorted by most recent activity descending.
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)

	// UpdateConversation rewrites mutable conversation attributes
	// (title, description, discoverability). Membership is not touched.
	UpdateConversation(ctx context.Context, c *Conversation) error

	// AddMember appends userID to the member set. Reports false if the user
	// was already a member; that is not an error.
	AddMember(ctx context.Context, conversationID, userID string, now time.Time) (added bool, err error)

	// RemoveMember removes userID from the member set. Reports false if the
	// user was not a member; that is not an error.
	RemoveMember(ctx context.Context, conversationID, userID string) (removed bool, err error)

	// AppendMessage persists a message.
	AppendMessage(ctx context.Context, m *Message) error

	// GetMessage loads one message scoped to a conversation, or ErrNoMessage.
	GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error)

	// ListMessagesPage returns the page-th window of size limit counted from
	// the newest message backward, newest first. Page 1 is always the newest
	// window.
	ListMessagesPage(ctx context.Context, conversationID string, page, limit int) ([]*Message, error)

	// MarkConversationRead adds userID to read_by on every message in the
	// conversation that was sent by someone else and not yet read by userID.
	// Returns the number of messages updated. Single atomic update-many.
	MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error)

	// CountUnread returns how many messages in the conversation were sent by
	// someone else and not yet read by userID.
	CountUnread(ctx context.Context, conversationID, userID string) (int, error)

	// SetLastMessage updates the conversation's weak last-message reference
	// and bumps its activity timestamp.
	SetLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error

	Close() error
}
