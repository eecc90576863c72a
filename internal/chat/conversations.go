package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ripple/internal/directory"
)

// GroupPatch carries a partial group update. Nil fields are left untouched;
// this is patch semantics, not overwrite-with-null.
type GroupPatch struct {
	Title        *string
	Description  *string
	Discoverable *bool
}

// ConversationService owns conversation lifecycle: direct-chat deduplication,
// group creation, owner-gated mutation, and membership changes with their
// system-message notices.
type ConversationService struct {
	log   *slog.Logger
	store Store
	dir   directory.Directory
	msgs  *MessageService
}

// NewConversationService constructs a ConversationService. Membership change
// notices are appended through msgs; their failure never rolls back the
// already-committed membership change.
func NewConversationService(log *slog.Logger, store Store, dir directory.Directory, msgs *MessageService) *ConversationService {
	return &ConversationService{log: log, store: store, dir: dir, msgs: msgs}
}

// GetOrCreateDirect returns the direct conversation between requester and
// other, creating it on first contact. A second call with the same pair, in
// either order, returns the existing conversation. The bool reports whether
// this call created the conversation.
func (s *ConversationService) GetOrCreateDirect(ctx context.Context, requesterID, otherID string) (*ConversationView, bool, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" {
		return nil, false, ValidationError("user_id is required")
	}
	if requesterID == otherID {
		return nil, false, InvalidOperationError("cannot start a conversation with yourself")
	}

	// The other party must resolve to a real identity before a conversation
	// can reference them.
	known, err := s.dir.Lookup(ctx, []string{otherID})
	if err != nil {
		return nil, false, err
	}
	if _, ok := known[otherID]; !ok {
		return nil, false, NotFoundError("user not found")
	}

	conv, err := s.store.FindDirect(ctx, requesterID, otherID)
	if err == nil {
		v, err := s.view(ctx, conv, requesterID)
		return v, false, err
	}
	if !errors.Is(err, ErrNoConversation) {
		return nil, false, err
	}

	now := time.Now().UTC()
	id, err := NewID(now)
	if err != nil {
		return nil, false, err
	}
	conv = &Conversation{
		ID:        id,
		Kind:      KindDirect,
		Members:   []string{requesterID, otherID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, false, err
	}

	s.log.Info("chat.conversation.direct.create", "conversation_id", conv.ID, "members", conv.Members)
	v, err := s.view(ctx, conv, requesterID)
	return v, true, err
}

// CreateGroup creates a group conversation owned by ownerID. The owner is
// always a member, whether or not the caller listed them.
func (s *ConversationService) CreateGroup(ctx context.Context, ownerID, title, description string, memberIDs []string, discoverable bool) (*ConversationView, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ValidationError("group title is required")
	}
	if len([]rune(description)) > MaxDescriptionChars {
		return nil, ValidationError(fmt.Sprintf("group description cannot exceed %d characters", MaxDescriptionChars))
	}

	members := dedupeMembers(memberIDs)
	if !containsString(members, ownerID) {
		members = append(members, ownerID)
	}

	now := time.Now().UTC()
	id, err := NewID(now)
	if err != nil {
		return nil, err
	}
	conv := &Conversation{
		ID:           id,
		Kind:         KindGroup,
		Title:        title,
		Description:  description,
		OwnerID:      ownerID,
		Discoverable: discoverable,
		Members:      members,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	s.log.Info("chat.conversation.group.create", "conversation_id", conv.ID, "owner_id", ownerID, "members", len(members))

	// Cross-component call, not a side-channel write. The group already
	// exists; a failed notice is logged and swallowed, never rolled back.
	s.systemNotice(ctx, conv.ID, ownerID, fmt.Sprintf("%s created the group", s.displayName(ctx, ownerID)))

	return s.view(ctx, conv, ownerID)
}

// UpdateGroup applies a partial update to a group. Owner-only.
func (s *ConversationService) UpdateGroup(ctx context.Context, requesterID, conversationID string, patch GroupPatch) (*ConversationView, error) {
	conv, err := s.loadGroup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsOwner(requesterID) {
		return nil, ForbiddenError("only the owner can update group settings")
	}

	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		if t == "" {
			return nil, ValidationError("group title cannot be empty")
		}
		conv.Title = t
	}
	if patch.Description != nil {
		if len([]rune(*patch.Description)) > MaxDescriptionChars {
			return nil, ValidationError(fmt.Sprintf("group description cannot exceed %d characters", MaxDescriptionChars))
		}
		conv.Description = *patch.Description
	}
	if patch.Discoverable != nil {
		conv.Discoverable = *patch.Discoverable
	}
	conv.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return s.view(ctx, conv, requesterID)
}

// AddMember adds userID to a group. Owner-only. Adding an existing member is
// a no-op: no error, no duplicate entry, and no system message.
func (s *ConversationService) AddMember(ctx context.Context, requesterID, conversationID, userID string) (*ConversationView, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ValidationError("user_id is required")
	}

	conv, err := s.loadGroup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsOwner(requesterID) {
		return nil, ForbiddenError("only the owner can add members")
	}

	added, err := s.store.AddMember(ctx, conversationID, userID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if added {
		s.log.Info("chat.conversation.member.add", "conversation_id", conversationID, "user_id", userID)
		s.systemNotice(ctx, conversationID, requesterID, fmt.Sprintf("%s was added to the group", s.displayName(ctx, userID)))
	}

	conv, err = s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, conv, requesterID)
}

// RemoveMember removes userID from a group. Owner-gated, except members may
// remove themselves. Removing the owner is rejected regardless of requester.
// Removing a non-member is a no-op with no system message.
func (s *ConversationService) RemoveMember(ctx context.Context, requesterID, conversationID, userID string) (*ConversationView, error) {
	conv, err := s.loadGroup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsOwner(requesterID) && requesterID != userID {
		return nil, ForbiddenError("not authorized to remove members")
	}
	if conv.OwnerID == userID {
		return nil, InvalidOperationError("cannot remove the group owner")
	}

	removed, err := s.store.RemoveMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if removed {
		s.log.Info("chat.conversation.member.remove", "conversation_id", conversationID, "user_id", userID)
		s.systemNotice(ctx, conversationID, requesterID, fmt.Sprintf("%s left the group", s.displayName(ctx, userID)))
	}

	conv, err = s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, conv, requesterID)
}

// List returns the requester's conversations sorted by most recent activity,
// with membership resolved, last messages attached and unread counts derived.
func (s *ConversationService) List(ctx context.Context, requesterID string) ([]ConversationView, error) {
	convs, err := s.store.ListConversations(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationView, 0, len(convs))
	for _, conv := range convs {
		v, err := s.view(ctx, conv, requesterID)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// Get loads one conversation the requester belongs to.
func (s *ConversationService) Get(ctx context.Context, requesterID, conversationID string) (*ConversationView, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrNoConversation) {
		return nil, NotFoundError("conversation not found")
	}
	if err != nil {
		return nil, err
	}
	if !conv.IsMember(requesterID) {
		return nil, ForbiddenError("not a member of this conversation")
	}
	return s.view(ctx, conv, requesterID)
}

// IsMember reports whether userID belongs to the conversation. Used by the
// realtime gateway in strict membership mode.
func (s *ConversationService) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrNoConversation) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conv.IsMember(userID), nil
}

// ---- internals ----

func (s *ConversationService) loadGroup(ctx context.Context, conversationID string) (*Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrNoConversation) {
		return nil, NotFoundError("conversation not found")
	}
	if err != nil {
		return nil, err
	}
	if conv.Kind != KindGroup {
		return nil, InvalidOperationError("this operation is only allowed for group conversations")
	}
	return conv, nil
}

// systemNotice appends a membership-change system message. Failure is logged
// and swallowed: the primary state change is already committed and must stand.
func (s *ConversationService) systemNotice(ctx context.Context, conversationID, senderID, body string) {
	if _, err := s.msgs.SendSystem(ctx, conversationID, senderID, body); err != nil {
		s.log.Error("chat.conversation.system_notice.fail", "conversation_id", conversationID, "err", err)
	}
}

func (s *ConversationService) displayName(ctx context.Context, userID string) string {
	users, err := s.dir.Lookup(ctx, []string{userID})
	if err != nil {
		return userID
	}
	if u, ok := users[userID]; ok && u.Username != "" {
		return u.Username
	}
	return userID
}

func (s *ConversationService) view(ctx context.Context, conv *Conversation, requesterID string) (*ConversationView, error) {
	ids := append([]string(nil), conv.Members...)
	if conv.OwnerID != "" && !containsString(ids, conv.OwnerID) {
		ids = append(ids, conv.OwnerID)
	}

	var last *Message
	if conv.LastMessageID != "" {
		m, err := s.store.GetMessage(ctx, conv.ID, conv.LastMessageID)
		switch {
		case err == nil:
			last = m
			if !containsString(ids, m.SenderID) {
				ids = append(ids, m.SenderID)
			}
		case errors.Is(err, ErrNoMessage):
			// Weak reference: a dangling pointer is tolerated, not fatal.
		default:
			return nil, err
		}
	}

	users, err := resolveUsers(ctx, s.dir, ids)
	if err != nil {
		return nil, err
	}

	unread, err := s.store.CountUnread(ctx, conv.ID, requesterID)
	if err != nil {
		return nil, err
	}

	v := &ConversationView{
		ID:           conv.ID,
		Kind:         string(conv.Kind),
		Title:        conv.Title,
		Description:  conv.Description,
		Discoverable: conv.Discoverable,
		Unread:       unread,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
	for _, m := range conv.Members {
		v.Members = append(v.Members, users[m])
	}
	if conv.OwnerID != "" {
		owner := users[conv.OwnerID]
		v.Owner = &owner
	}
	if last != nil {
		lv := toMessageView(last, users)
		v.LastMessage = &lv
	}
	return v, nil
}

func dedupeMembers(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
