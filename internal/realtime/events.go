package realtime

import (
	"encoding/json"
	"errors"
	"strings"
)

// Wire event names, bidirectional. These match the frontend contract.
const (
	// EventJoinChat subscribes the connection to a conversation room.
	EventJoinChat = "join_chat"
	// EventLeaveChat unsubscribes the connection from a room. Idempotent.
	EventLeaveChat = "leave_chat"
	// EventSendMessage is a client trigger: the payload is immediately
	// re-broadcast to the room as receive_message. The gateway persists
	// nothing; the REST write path is the source of truth.
	EventSendMessage = "send_message"
	// EventReceiveMessage carries a message payload to room members.
	EventReceiveMessage = "receive_message"
	// EventUserOnline and EventUserOffline are best-effort presence hints,
	// never authoritative.
	EventUserOnline  = "user_online"
	EventUserOffline = "user_offline"
	// EventError reports a per-event failure back to the sender.
	EventError = "error"
)

// Event is the websocket wire envelope.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Message        json.RawMessage `json:"message,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	Code           string          `json:"code,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Validate checks structural requirements for client-sent events.
func (e Event) Validate() error {
	switch strings.TrimSpace(e.Type) {
	case "":
		return errors.New("missing type")
	case EventJoinChat, EventLeaveChat:
		if strings.TrimSpace(e.ConversationID) == "" {
			return errors.New("missing conversation_id")
		}
	case EventSendMessage:
		if strings.TrimSpace(e.ConversationID) == "" {
			return errors.New("missing conversation_id")
		}
		if len(e.Message) == 0 {
			return errors.New("missing message")
		}
	}
	return nil
}

func errorEvent(code, msg string) Event {
	return Event{Type: EventError, Code: code, Error: msg}
}
