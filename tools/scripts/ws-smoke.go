// Package main provides a CI-friendly WebSocket smoke test for the ripple
// realtime gateway.
//
// It validates:
//   - authenticated handshake (token query parameter)
//   - join_chat subscription
//   - send_message -> receive_message fanout to another client
//   - error event for a send without a prior join
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20 // 1MiB

type event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Message        json.RawMessage `json:"message,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	Code           string          `json:"code,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type smokeClient struct {
	name string
	conn *websocket.Conn
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL (without token)")
		origin  = flag.String("origin", "http://localhost", "Origin header to send")
		tokenA  = flag.String("token-a", "", "Access token for client A")
		tokenB  = flag.String("token-b", "", "Access token for client B")
		convID  = flag.String("conv", "", "Conversation ID both users belong to")
		text    = flag.String("text", "hello ripple", "Message body to relay")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if strings.TrimSpace(*tokenA) == "" || strings.TrimSpace(*tokenB) == "" {
		fatalf("-token-a and -token-b are required")
	}
	if strings.TrimSpace(*convID) == "" {
		fatalf("-conv is required")
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, *tokenA, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, *tokenB, *timeout)
	defer closeWS(b.conn)

	// Send before join must be answered with an error event, never a fanout.
	mustSend(root, a, event{Type: "send_message", ConversationID: *convID, Message: json.RawMessage(`{"body":"early"}`)}, *timeout)
	if ev := mustRead(root, a, *timeout); ev.Type != "error" {
		fatalf("pre-join send: got %q, want error", ev.Type)
	}

	mustSend(root, a, event{Type: "join_chat", ConversationID: *convID}, *timeout)
	mustSend(root, b, event{Type: "join_chat", ConversationID: *convID}, *timeout)

	// B may observe A's presence hint first; skip any presence noise.
	payload, _ := json.Marshal(map[string]string{"body": *text})
	mustSend(root, a, event{Type: "send_message", ConversationID: *convID, Message: payload}, *timeout)

	got := mustReadType(root, b, "receive_message", *timeout)
	if got.ConversationID != *convID {
		fatalf("fanout conversation_id = %q, want %q", got.ConversationID, *convID)
	}
	var body struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal(got.Message, &body); err != nil || body.Body != *text {
		fatalf("fanout body = %q (err=%v), want %q", body.Body, err, *text)
	}

	fmt.Printf("OK: conv_id=%s relayed=%q\n", *convID, *text)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, token string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, _ := url.Parse(wsURL)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: h})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	conn.SetReadLimit(maxReadBytes)
	return &smokeClient{name: name, conn: conn}
}

func mustSend(parent context.Context, c *smokeClient, ev event, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		fatalf("%s marshal: %v", c.name, err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("%s write %s: %v", c.name, ev.Type, err)
	}
}

func mustRead(parent context.Context, c *smokeClient, stepTimeout time.Duration) event {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	_, data, err := c.conn.Read(ctx)
	if err != nil {
		fatalf("%s read: %v", c.name, err)
	}
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		fatalf("%s decode: %v", c.name, err)
	}
	return ev
}

// mustReadType reads until the wanted type arrives, tolerating presence hints
// interleaved with the payload under test.
func mustReadType(parent context.Context, c *smokeClient, want string, stepTimeout time.Duration) event {
	deadline := time.Now().Add(stepTimeout)
	for time.Now().Before(deadline) {
		ev := mustRead(parent, c, time.Until(deadline))
		if ev.Type == want {
			return ev
		}
		if ev.Type == "error" {
			fatalf("%s got error event: %s %s", c.name, ev.Code, ev.Error)
		}
	}
	fatalf("%s: no %s event within %v", c.name, want, stepTimeout)
	return event{}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ws-smoke: "+format+"\n", args...)
	os.Exit(1)
}
