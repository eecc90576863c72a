package realtime

import (
	"log/slog"
	"sync"
)

// Room is the membership + broadcast fanout primitive: one room per
// conversation id. A connection may belong to many rooms at once, so leaving
// a room never tears the client down; the gateway owns client lifecycle.
//
// Concurrency guarantees:
//   - Join/Leave are safe under concurrent Broadcast.
//   - Broadcast snapshots membership first, so a concurrent join/leave cannot
//     corrupt iteration.
//   - Broadcast never blocks (drops under backpressure) and a failure on one
//     client never aborts delivery to the others.
type Room struct {
	log *slog.Logger
	ID  string

	mu      sync.RWMutex
	members map[string]*Client
}

// NewRoom constructs a room for a conversation.
func NewRoom(log *slog.Logger, id string) *Room {
	return &Room{
		log:     log,
		ID:      id,
		members: make(map[string]*Client),
	}
}

// Join adds a client to membership. Re-joining is a no-op.
func (r *Room) Join(client *Client) {
	if r == nil || client == nil || client.SessionID == "" {
		return
	}

	r.mu.Lock()
	_, already := r.members[client.SessionID]
	r.members[client.SessionID] = client
	r.mu.Unlock()

	if !already {
		r.log.Info("room.member.join", "conversation_id", r.ID, "session_id", client.SessionID, "user_id", client.UserID)
	}
}

// Leave removes a client from membership. Idempotent.
func (r *Room) Leave(sessionID string) {
	if r == nil || sessionID == "" {
		return
	}

	r.mu.Lock()
	_, ok := r.members[sessionID]
	delete(r.members, sessionID)
	r.mu.Unlock()

	if ok {
		r.log.Info("room.member.leave", "conversation_id", r.ID, "session_id", sessionID)
	}
}

// Len returns the current member count.
func (r *Room) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Broadcast fanouts an event to all members and reports how many clients it
// was enqueued for. An empty room is a no-op, not an error.
func (r *Room) Broadcast(ev Event) int {
	if r == nil {
		return 0
	}

	// Snapshot before iterating: joins and leaves racing with this broadcast
	// see either the old or the new membership, never a half-iterated map.
	r.mu.RLock()
	snapshot := make([]*Client, 0, len(r.members))
	for _, m := range r.members {
		if m != nil {
			snapshot = append(snapshot, m)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, m := range snapshot {
		select {
		case <-m.Done():
			// Skip clients that are shutting down.
			continue
		default:
		}

		select {
		case m.Send <- ev:
			delivered++
		default:
			// Drop rather than block the whole room. The client catches up
			// from persisted state on its next page fetch.
			r.log.Debug("room.broadcast.drop", "conversation_id", r.ID, "session_id", m.SessionID)
		}
	}
	return delivered
}
