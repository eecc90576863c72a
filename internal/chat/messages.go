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

const (
	// DefaultPageSize is the listPage window when the caller passes none.
	DefaultPageSize = 50
	// MaxPageSize caps the listPage window.
	MaxPageSize = 200
)

// MessageService owns message creation, pagination retrieval and read-marking.
// Messages are immutable once sent: no edit, no delete. Authorization is
// decided against the conversation loaded fresh from the store on every call.
type MessageService struct {
	log   *slog.Logger
	store Store
	dir   directory.Directory
}

// NewMessageService constructs a MessageService.
func NewMessageService(log *slog.Logger, store Store, dir directory.Directory) *MessageService {
	return &MessageService{log: log, store: store, dir: dir}
}

// Send validates, persists and returns a new text message.
//
// Check order matters: existence before membership, so NotFound is only ever
// returned for ids that genuinely do not exist, and Forbidden only for
// conversations that exist but exclude the requester.
//
// The sender is part of ReadBy from the start: sending implies having read.
func (s *MessageService) Send(ctx context.Context, requesterID, conversationID, body, replyToID string) (*MessageView, error) {
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

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ValidationError("message body cannot be empty")
	}
	if len([]rune(body)) > MaxBodyChars {
		return nil, ValidationError(fmt.Sprintf("message body cannot exceed %d characters", MaxBodyChars))
	}

	if replyToID != "" {
		if _, err := s.store.GetMessage(ctx, conversationID, replyToID); err != nil {
			if errors.Is(err, ErrNoMessage) {
				return nil, ValidationError("reply target is not a message in this conversation")
			}
			return nil, err
		}
	}

	now := time.Now().UTC()
	m, err := s.append(ctx, conversationID, requesterID, MessageText, body, replyToID, now)
	if err != nil {
		return nil, err
	}

	users, err := resolveUsers(ctx, s.dir, []string{m.SenderID})
	if err != nil {
		return nil, err
	}
	v := toMessageView(m, users)
	return &v, nil
}

// SendSystem appends a service-generated message (membership change notices).
// It bypasses membership and body validation: the conversation service is the
// only caller and vouches for both.
func (s *MessageService) SendSystem(ctx context.Context, conversationID, senderID, body string) (*Message, error) {
	return s.append(ctx, conversationID, senderID, MessageSystem, body, "", time.Now().UTC())
}

// ListPage returns one page of messages, oldest-to-newest within the page.
// Page 1 is always the newest pageSize window; the returned slice is sorted
// ascending by time so clients can render it directly.
//
// Side effect: every message in the conversation authored by someone else and
// not yet read by the requester is marked read, in one atomic update.
func (s *MessageService) ListPage(ctx context.Context, requesterID, conversationID string, page, limit int) ([]MessageView, error) {
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

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	newestFirst, err := s.store.ListMessagesPage(ctx, conversationID, page, limit)
	if err != nil {
		return nil, err
	}

	if n, err := s.store.MarkConversationRead(ctx, conversationID, requesterID); err != nil {
		return nil, err
	} else if n > 0 {
		s.log.Debug("chat.messages.read", "conversation_id", conversationID, "user_id", requesterID, "marked", n)
	}

	senderIDs := make([]string, 0, len(newestFirst))
	seen := make(map[string]struct{}, len(newestFirst))
	for _, m := range newestFirst {
		if _, ok := seen[m.SenderID]; ok {
			continue
		}
		seen[m.SenderID] = struct{}{}
		senderIDs = append(senderIDs, m.SenderID)
	}
	users, err := resolveUsers(ctx, s.dir, senderIDs)
	if err != nil {
		return nil, err
	}

	// Store pages newest-first; clients want ascending.
	out := make([]MessageView, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		out = append(out, toMessageView(newestFirst[i], users))
	}
	return out, nil
}

func (s *MessageService) append(ctx context.Context, conversationID, senderID string, kind MessageKind, body, replyToID string, now time.Time) (*Message, error) {
	id, err := NewID(now)
	if err != nil {
		return nil, err
	}

	m := &Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           kind,
		Body:           body,
		ReplyToID:      replyToID,
		ReadBy:         []string{senderID},
		CreatedAt:      now,
	}
	if err := s.store.AppendMessage(ctx, m); err != nil {
		return nil, err
	}

	// The weak reference is best-effort: the message is already committed and
	// a failed pointer update must not fail the send.
	if err := s.store.SetLastMessage(ctx, conversationID, m.ID, now); err != nil {
		s.log.Error("chat.messages.last_ref.fail", "conversation_id", conversationID, "message_id", m.ID, "err", err)
	}
	return m, nil
}
