package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ripple/internal/auth"
)

type stubVerifier struct {
	uid string
	err error
}

func (v stubVerifier) Verify(token string, now time.Time) (auth.Claims, error) {
	if v.err != nil {
		return auth.Claims{}, v.err
	}
	return auth.Claims{UserID: v.uid, ExpiresAt: now.Add(time.Hour)}, nil
}

func newTestGateway(verifier auth.Verifier, cfg GatewayConfig) (*Gateway, *Hub) {
	log := testLogger()
	hub := NewHub(log)
	authn := auth.NewAuthenticator(verifier, nil)
	return NewGateway(log, hub, authn, nil, cfg), hub
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	g, _ := newTestGateway(stubVerifier{uid: "u1"}, GatewayConfig{OriginRequired: false})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	g.HandleWS(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	g, _ := newTestGateway(stubVerifier{err: auth.ErrInvalidToken}, GatewayConfig{OriginRequired: false})

	req := httptest.NewRequest(http.MethodGet, "/ws?token=bad", nil)
	rec := httptest.NewRecorder()
	g.HandleWS(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandshakeEnforcesOriginPolicy(t *testing.T) {
	g, _ := newTestGateway(stubVerifier{uid: "u1"}, GatewayConfig{
		OriginRequired: true,
		AllowedOrigins: []string{"http://localhost"},
	})

	// Missing origin with OriginRequired: 403.
	req := httptest.NewRequest(http.MethodGet, "/ws?token=tok", nil)
	rec := httptest.NewRecorder()
	g.HandleWS(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing origin status = %d, want 403", rec.Code)
	}

	// Disallowed origin: 403.
	req = httptest.NewRequest(http.MethodGet, "/ws?token=tok", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	g.HandleWS(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bad origin status = %d, want 403", rec.Code)
	}
}

func TestEnforceOriginAllowsListedHost(t *testing.T) {
	g, _ := newTestGateway(stubVerifier{uid: "u1"}, GatewayConfig{
		OriginRequired: true,
		AllowedOrigins: []string{"http://localhost"},
	})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	if err := g.enforceOrigin(req); err != nil {
		t.Fatalf("listed host rejected: %v", err)
	}

	req.Header.Set("Origin", "http://other.example")
	if err := g.enforceOrigin(req); err == nil {
		t.Fatal("unlisted host accepted")
	}
}

func TestNotifyMessageFansOutToRoom(t *testing.T) {
	g, hub := newTestGateway(stubVerifier{uid: "u1"}, GatewayConfig{OriginRequired: false})

	// No room yet: no-op.
	g.NotifyMessage("c1", json.RawMessage(`{"body":"x"}`))

	room := hub.GetOrCreateRoom("c1")
	c := NewClient("u2", "s2", 4)
	room.Join(c)

	g.NotifyMessage("c1", json.RawMessage(`{"body":"hello"}`))

	select {
	case ev := <-c.Send:
		if ev.Type != EventReceiveMessage {
			t.Fatalf("type = %q, want %q", ev.Type, EventReceiveMessage)
		}
		if ev.ConversationID != "c1" {
			t.Fatalf("conversation_id = %q, want c1", ev.ConversationID)
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestClassifyReadErr(t *testing.T) {
	var ev Event
	badJSON := json.Unmarshal([]byte(`{"type":`), &ev)
	badType := json.Unmarshal([]byte(`{"type":7}`), &ev)

	cases := []struct {
		name string
		err  error
		want readErrKind
	}{
		{"truncated json", badJSON, readErrBadJSON},
		{"wrong field type", badType, readErrBadJSON},
		{"wrapped json", fmt.Errorf("read: %w", badJSON), readErrBadJSON},
		{"context canceled", context.Canceled, readErrCtxDone},
		{"deadline", context.DeadlineExceeded, readErrCtxDone},
		{"conn closed", net.ErrClosed, readErrConnClosed},
		{"eof", io.EOF, readErrConnClosed},
		{"other", errors.New("boom"), readErrUnknown},
	}
	for _, tc := range cases {
		if got := classifyReadErr(tc.err); got != tc.want {
			t.Errorf("%s: classifyReadErr = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	got := deriveOriginPatterns([]string{"http://localhost:3000", "https://app.example.com", "http://localhost"})
	want := []string{"app.example.com", "localhost"}
	if len(got) != len(want) {
		t.Fatalf("patterns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("patterns = %v, want %v", got, want)
		}
	}
}
