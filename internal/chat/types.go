// Package chat implements Ripple's conversation and message core: persisted
// conversations (direct and group), immutable messages with read tracking,
// and the services that own their lifecycle and authorization rules.
package chat

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind distinguishes the two conversation shapes.
type Kind string

const (
	// KindDirect is a deduplicated 1:1 conversation with immutable membership.
	KindDirect Kind = "direct"
	// KindGroup is an owner-managed conversation with mutable membership.
	KindGroup Kind = "group"
)

// MessageKind distinguishes user-submitted from service-generated messages.
type MessageKind string

const (
	// MessageText is a user-submitted message.
	MessageText MessageKind = "text"
	// MessageSystem is generated by the conversation service itself
	// (membership change notices). Never user-submitted.
	MessageSystem MessageKind = "system"
)

const (
	// MaxBodyChars bounds message bodies (runes, not bytes).
	MaxBodyChars = 1000
	// MaxDescriptionChars bounds group descriptions.
	MaxDescriptionChars = 500
)

// Conversation is the persisted conversation entity.
//
// Invariants:
//   - direct: exactly two members, membership immutable after creation.
//   - group: Title non-empty, OwnerID is always a member.
//
// Members preserves insertion order; group display relies on it.
type Conversation struct {
	ID           string
	Kind         Kind
	Title        string
	Description  string
	OwnerID      string
	Discoverable bool
	Members      []string

	// LastMessageID is a weak reference maintained by the message service.
	LastMessageID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsMember reports whether userID is currently a member. Pure predicate.
func (c *Conversation) IsMember(userID string) bool {
	if c == nil || userID == "" {
		return false
	}
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// IsOwner reports whether userID owns this group conversation. Pure predicate.
// Always false for direct conversations.
func (c *Conversation) IsOwner(userID string) bool {
	if c == nil || userID == "" {
		return false
	}
	return c.Kind == KindGroup && c.OwnerID == userID
}

// Message is the persisted message entity. Messages are immutable once sent;
// only ReadBy grows, and it never shrinks.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Kind           MessageKind
	Body           string

	// ReplyToID is a weak reference to another message in the same conversation.
	ReplyToID string

	// ReadBy is the set of member ids that acknowledged this message.
	// The sender is included at creation time.
	ReadBy []string

	// CreatedAt is the sole ordering key. Ties break on ID, which is a ULID
	// and therefore sorts by creation order.
	CreatedAt time.Time
}

// ReadBySet reports whether userID already acknowledged the message.
func (m *Message) ReadBySet(userID string) bool {
	if m == nil {
		return false
	}
	for _, u := range m.ReadBy {
		if u == userID {
			return true
		}
	}
	return false
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new ULID string (26 chars).
// Monotonic entropy makes ids from the same millisecond sort in creation
// order, which is exactly the tie-break the message ordering invariant needs.
func NewID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
