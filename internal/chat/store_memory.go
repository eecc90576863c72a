package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used for dev mode and tests.
// All returned entities are copies; callers never share memory with the store.
type MemoryStore struct {
	mu    sync.Mutex
	convs map[string]*Conversation
	msgs  map[string][]*Message // conversation id -> messages ordered by (created_at, id)
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs: make(map[string]*Conversation),
		msgs:  make(map[string][]*Message),
	}
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// CreateConversation persists a new conversation.
func (s *MemoryStore) CreateConversation(ctx context.Context, c *Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.convs[c.ID] = cloneConversation(c)
	return nil
}

// GetConversation loads a conversation by id.
func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[id]
	if !ok {
		return nil, ErrNoConversation
	}
	return cloneConversation(c), nil
}

// FindDirect returns the direct conversation with member set exactly {a, b}.
func (s *MemoryStore) FindDirect(ctx context.Context, a, b string) (*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.convs {
		if c.Kind != KindDirect || len(c.Members) != 2 {
			continue
		}
		if (c.Members[0] == a && c.Members[1] == b) || (c.Members[0] == b && c.Members[1] == a) {
			return cloneConversation(c), nil
		}
	}
	return nil, ErrNoConversation
}

// ListConversations returns userID's conversations, most recent activity first.
func (s *MemoryStore) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Conversation
	for _, c := range s.convs {
		if c.IsMember(userID) {
			out = append(out, cloneConversation(c))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// UpdateConversation rewrites mutable attributes of an existing conversation.
func (s *MemoryStore) UpdateConversation(ctx context.Context, c *Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.convs[c.ID]
	if !ok {
		return ErrNoConversation
	}
	cur.Title = c.Title
	cur.Description = c.Description
	cur.Discoverable = c.Discoverable
	cur.UpdatedAt = c.UpdatedAt
	return nil
}

// AddMember idempotently appends userID to the member set.
func (s *MemoryStore) AddMember(ctx context.Context, conversationID, userID string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[conversationID]
	if !ok {
		return false, ErrNoConversation
	}
	if c.IsMember(userID) {
		return false, nil
	}
	c.Members = append(c.Members, userID)
	c.UpdatedAt = now
	return true, nil
}

// RemoveMember idempotently removes userID from the member set.
func (s *MemoryStore) RemoveMember(ctx context.Context, conversationID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[conversationID]
	if !ok {
		return false, ErrNoConversation
	}
	for i, m := range c.Members {
		if m == userID {
			c.Members = append(c.Members[:i], c.Members[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// AppendMessage persists a message in (created_at, id) order.
func (s *MemoryStore) AppendMessage(ctx context.Context, m *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.msgs[m.ConversationID], cloneMessage(m))

	// Defensive: inserts normally arrive in time order already.
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	s.msgs[m.ConversationID] = msgs
	return nil
}

// GetMessage loads one message scoped to a conversation.
func (s *MemoryStore) GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.msgs[conversationID] {
		if m.ID == messageID {
			return cloneMessage(m), nil
		}
	}
	return nil, ErrNoMessage
}

// ListMessagesPage returns the page-th newest window, newest first.
func (s *MemoryStore) ListMessagesPage(ctx context.Context, conversationID string, page, limit int) ([]*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	s.mu.Lock()
	asc := s.msgs[conversationID]
	snap := make([]*Message, 0, len(asc))
	for _, m := range asc {
		snap = append(snap, cloneMessage(m))
	}
	s.mu.Unlock()

	// Newest first, then skip whole pages.
	for i, j := 0, len(snap)-1; i < j; i, j = i+1, j-1 {
		snap[i], snap[j] = snap[j], snap[i]
	}

	skip := (page - 1) * limit
	if skip >= len(snap) {
		return nil, nil
	}
	snap = snap[skip:]
	if len(snap) > limit {
		snap = snap[:limit]
	}
	return snap, nil
}

// MarkConversationRead adds userID to read_by on all unread foreign messages.
func (s *MemoryStore) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.msgs[conversationID] {
		if m.SenderID == userID || m.ReadBySet(userID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, userID)
		n++
	}
	return n, nil
}

// CountUnread counts foreign messages not yet read by userID.
func (s *MemoryStore) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.msgs[conversationID] {
		if m.SenderID != userID && !m.ReadBySet(userID) {
			n++
		}
	}
	return n, nil
}

// SetLastMessage updates the weak last-message reference.
func (s *MemoryStore) SetLastMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[conversationID]
	if !ok {
		return ErrNoConversation
	}
	c.LastMessageID = messageID
	c.UpdatedAt = at
	return nil
}

func cloneConversation(c *Conversation) *Conversation {
	out := *c
	out.Members = append([]string(nil), c.Members...)
	return &out
}

func cloneMessage(m *Message) *Message {
	out := *m
	out.ReadBy = append([]string(nil), m.ReadBy...)
	return &out
}
