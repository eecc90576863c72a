package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSendValidation(t *testing.T) {
	convs, msgs, _ := newTestServices(t)
	ctx := context.Background()

	v, _, err := convs.GetOrCreateDirect(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("GetOrCreateDirect: %v", err)
	}

	if _, err := msgs.Send(ctx, "u1", v.ID, "   ", ""); err == nil {
		t.Fatal("blank body accepted")
	} else {
		mustKind(t, err, KindValidation)
	}

	long := strings.Repeat("x", MaxBodyChars+1)
	if _, err := msgs.Send(ctx, "u1", v.ID, long, ""); err == nil {
		t.Fatal("oversized body accepted")
	} else {
		mustKind(t, err, KindValidation)
	}

	// Exactly at the limit is fine.
	if _, err := msgs.Send(ctx, "u1", v.ID, strings.Repeat("x", MaxBodyChars), ""); err != nil {
		t.Fatalf("body at limit rejected: %v", err)
	}
}

func TestSendRequiresMembership(t *testing.T) {
	convs, msgs, _ := newTestServices(t)
	ctx := context.Background()

	v, _, err := convs.GetOrCreateDirect(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("GetOrCreateDirect: %v", err)
	}

	_, err = msgs.Send(ctx, "u3", v.ID, "hi", "")
	mustKind(t, err, KindForbidden)

	_, err = msgs.Send(ctx, "u1", "no-such-conversation", "hi", "")
	mustKind(t, err, KindNotFound)
}

func TestSenderCountsAsReader(t *testing.T) {
	convs, msgs, _ := newTestServices(t)
	ctx := context.Background()

	v, _, err := convs.GetOrCreateDirect(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("GetOrCreateDirect: %v", err)
	}

	sent, err := msgs.Send(ctx, "u1", v.ID, "hello", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sent.ReadBy) != 1 || sent.ReadBy[0] != "u1" {
		t.Fatalf("read_by = %v, want [u1]", sent.ReadBy)
	}
}

func TestReplyToMustExistInConversation(t *testing.T) {
	convs, msgs, _ := newTestServices(t)
	ctx := context.Background()

	v, _, err := convs.GetOrCreateDirect(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("GetOrCreateDirect: %v", err)
	}
	other, _, err := convs.GetOrCreateDirect(ctx, "u1", "u3")
	if err != nil {
		t.Fatalf("GetOrCreateDirect: %v", err)
	}

	orig, err := msgs.Send(ctx, "u1", v.ID, "original", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	reply, err := msgs.Send(ctx, "u2", v.ID, "reply", orig.ID)
	if err != nil {
		t.Fatalf("Send reply: %v", err)
	}
	if reply.ReplyToID != orig.ID {
		t.Fatalf("reply_to_id = %q, want %q", reply.ReplyToID, orig.ID)
	}

	// Unknown target.
	_, err = msgs.Send(ctx, "u2", v.ID, "reply", "no-such-message")
	mustKind(t, err, KindValidation)

	// Target living in a different conversation is just as invalid.
	_, err = msgs.Send(ctx, "u1", other.ID, "reply", orig.ID)
	mustKind(t, err, KindValidation)
}

func TestListPagePaginationDisjoint(t *testing.T) {
	convs, msgs, _ := newTestServices(t)
	ctx := context.Background()

	v, _, err := convs.GetOrCreateDirect(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("GetOrCreateDirect: %v", err)
	}

	const total = 75
	for i := 0; i < total; i++ {
		if _, err := msgs.Send(ctx, "u1", v.ID, fmt.Sprintf("msg-%03d", i), ""); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	seen := make(map[string]struct{})
	var pages [][]MessageView
	for page := 1; page <= 3; page++ {
		got, err := msgs.ListPage(ctx, "u2", v.ID, page, 30)
		if err != nil {
			t.Fatalf("ListPage %d: %v", page, err)
		}
		for _, m := range got {
			if _, dup := seen[m.ID]; dup {
				t.Fatalf("message %s appears in two pages", m.ID)
			}
			seen[m.ID] = struct{}{}
		}
		pages = append(pages, got)
	}

	if len(pages[0]) != 30 || len(pages[1]) != 30 || len(pages[2]) != 15 {
		t.Fatalf("page sizes = %d/%d/%d, want 30/30/15", len(pages[0]), len(pages[1]), len(pages[2]))
	}
	if len(seen) != total {
		t.Fatalf("union = %d messages, want %d", len(seen), total)
	}

	// Page 1 is the newest window; within a page order is ascending.
	last := pages[0][len(pages[0])-1]
	if last.Body != "msg-074" {
		t.Fatalf("newest message = %q, want msg-074", last.Body)
	}
	for i := 1; i < len(pages[0]); i++ {
		if pages[0][i].CreatedAt.Before(pages[0][i-1].CreatedAt) {
			t.Fatal("page not in ascending time order")
		}
	}

	// Beyond the end: empty page, not an error.
	empty, err := msgs.ListPage(ctx, "u2", v.ID, 4, 30)
	if err != nil {
		t.Fatalf("ListPage past end: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("past-end page = %d messages, want 0", len(empty))
	}
}

func TestListPageMarksRead(t *testing.T) {
	convs, msgs, store := newTestServices(t)
	ctx := context.Background()

	v, _, err := convs.GetOrCreateDirect(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("GetOrCreateDirect: %v", err)
	}

	if _, err := msgs.Send(ctx, "u1", v.ID, "one", ""); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := msgs.Send(ctx, "u1", v.ID, "two", ""); err != nil {
		t.Fatalf("Send: %v", err)
	}

	unread, err := store.CountUnread(ctx, v.ID, "u2")
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if unread != 2 {
		t.Fatalf("unread before fetch = %d, want 2", unread)
	}

	if _, err := msgs.ListPage(ctx, "u2", v.ID, 1, 50); err != nil {
		t.Fatalf("ListPage: %v", err)
	}

	unread, err = store.CountUnread(ctx, v.ID, "u2")
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if unread != 0 {
		t.Fatalf("unread after fetch = %d, want 0", unread)
	}

	// The reader never gets added to their own messages.
	reply, err := msgs.Send(ctx, "u2", v.ID, "reply", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := msgs.ListPage(ctx, "u2", v.ID, 1, 50); err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	m, err := store.GetMessage(ctx, v.ID, reply.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if len(m.ReadBy) != 1 || m.ReadBy[0] != "u2" {
		t.Fatalf("own message read_by = %v, want [u2]", m.ReadBy)
	}
}

func TestSendUpdatesLastMessage(t *testing.T) {
	convs, msgs, store := newTestServices(t)
	ctx := context.Background()

	v, _, err := convs.GetOrCreateDirect(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("GetOrCreateDirect: %v", err)
	}

	sent, err := msgs.Send(ctx, "u1", v.ID, "hello", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	conv, err := store.GetConversation(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.LastMessageID != sent.ID {
		t.Fatalf("last_message_id = %q, want %q", conv.LastMessageID, sent.ID)
	}
}

func TestNewIDOrderedWithinMillisecond(t *testing.T) {
	now := time.Now().UTC()

	prev := ""
	for i := 0; i < 100; i++ {
		id, err := NewID(now)
		if err != nil {
			t.Fatalf("NewID: %v", err)
		}
		if prev != "" && !(id > prev) {
			t.Fatalf("ids not strictly increasing: %q then %q", prev, id)
		}
		prev = id
	}
}
