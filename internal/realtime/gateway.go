package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"ripple/internal/auth"

	"github.com/coder/websocket"
)

const (
	wsCloseGrace      = 1 * time.Second
	wsMaxPingFailures = 3
	wsMaxTokenRunes   = 4096
)

// MembershipChecker answers whether a user belongs to a conversation. It is
// consulted on join (and per broadcast in strict mode) so the gateway never
// fans events out to strangers.
type MembershipChecker interface {
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
}

// GatewayConfig carries tunables resolved by the caller (typically from env).
// Zero values fall back to the package defaults.
type GatewayConfig struct {
	OriginRequired bool
	AllowedOrigins []string

	// StrictMembership re-checks conversation membership on every inbound
	// send_message instead of only at join time. Costs one store round trip
	// per event.
	StrictMembership bool

	WriteTimeout      time.Duration
	ReadIdleTimeout   time.Duration
	SendQueueSize     int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	RateEvents        int
	RateWindow        time.Duration
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = writeTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = 2 * time.Minute
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = sendQueueSize
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = heartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = heartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = rateLimitEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = rateLimitWindow
	}
	return c
}

// Gateway is the WebSocket entrypoint for realtime chat.
//
// It authenticates the handshake before upgrading, enforces origin policy,
// rate limits, heartbeats, and routes validated events to the Hub. The
// gateway never persists anything: the REST write path is the source of
// truth, and this layer only fans out.
type Gateway struct {
	log        *slog.Logger
	hub        *Hub
	authn      *auth.Authenticator
	membership MembershipChecker
	cfg        GatewayConfig

	// Derived for websocket.Accept origin checks. Accept authorizes same-host
	// origins by default; cross-origin requires OriginPatterns.
	originPatterns []string

	// sessions tracks which rooms each connection has joined so presence
	// fan-out on disconnect knows where to go.
	mu       sync.Mutex
	sessions map[string]map[string]*Room
}

// NewGateway constructs a gateway. The authenticator is required; a nil
// membership checker disables the join-time membership gate (open relay,
// useful only in tests).
func NewGateway(log *slog.Logger, hub *Hub, authn *auth.Authenticator, membership MembershipChecker, cfg GatewayConfig) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if hub == nil {
		hub = NewHub(log)
	}

	g := &Gateway{
		log:        log,
		hub:        hub,
		authn:      authn,
		membership: membership,
		cfg:        cfg.withDefaults(),
		sessions:   make(map[string]map[string]*Room),
	}
	g.originPatterns = deriveOriginPatterns(g.cfg.AllowedOrigins)
	return g
}

// ServeHTTP adapter so the gateway can be mounted as an http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS authenticates and upgrades an HTTP request, then runs the event
// loop until the peer disconnects.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		metricRejects.WithLabelValues("origin").Inc()
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Authentication happens before the upgrade so failures surface as plain
	// HTTP status codes the client can act on.
	claims, err := g.authenticate(r)
	if err != nil {
		g.log.Info("ws.reject.auth", "err", err, "remote", r.RemoteAddr)
		metricRejects.WithLabelValues("auth").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := newRandomHex(10)
	if err != nil {
		g.log.Error("ws.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}

	client := NewClient(claims.UserID, sessionID, g.cfg.SendQueueSize)

	g.mu.Lock()
	g.sessions[sessionID] = make(map[string]*Room)
	g.mu.Unlock()

	metricConnections.Inc()
	g.log.Info("ws.connect", "session_id", sessionID, "user_id", claims.UserID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send; membership
	// removal happens before client.Close so broadcasts stay safe.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.leaveAll(client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()

			metricConnections.Dec()
			g.log.Info("ws.disconnect", "session_id", sessionID, "user_id", claims.UserID, "reason", reason)
		})
	}

	rl := newSlidingWindowLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case ev := <-client.Send:
				if err := writeEvent(ctx, conn, ev, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		ev, err := readEvent(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySend(ctx, client, errorEvent("bad_json", "invalid JSON"))
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySend(ctx, client, errorEvent("rate_limited", "too many events"))
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := ev.Validate(); err != nil {
			g.trySend(ctx, client, errorEvent("bad_event", err.Error()))
			continue readLoop
		}

		metricEventsIn.WithLabelValues(ev.Type).Inc()

		switch ev.Type {
		case EventJoinChat:
			if err := g.onJoin(ctx, client, ev.ConversationID); err != nil {
				g.trySend(ctx, client, errorEvent("join_failed", err.Error()))
			}

		case EventLeaveChat:
			g.onLeave(client, ev.ConversationID)

		case EventSendMessage:
			if err := g.onSendMessage(ctx, client, ev); err != nil {
				g.trySend(ctx, client, errorEvent("send_failed", err.Error()))
			}

		default:
			g.trySend(ctx, client, errorEvent("unsupported", fmt.Sprintf("unsupported type: %s", ev.Type)))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// NotifyMessage fans a persisted message out to the conversation room. The
// REST write path calls this after a successful append; a missing room (no
// one connected) is a no-op.
func (g *Gateway) NotifyMessage(conversationID string, message json.RawMessage) {
	room := g.hub.Room(conversationID)
	if room == nil {
		return
	}
	n := room.Broadcast(Event{
		Type:           EventReceiveMessage,
		ConversationID: conversationID,
		Message:        message,
	})
	if n > 0 {
		metricBroadcasts.Inc()
	}
}

// ---- handlers ----

func (g *Gateway) onJoin(ctx context.Context, client *Client, conversationID string) error {
	if g.membership != nil {
		ok, err := g.membership.IsMember(ctx, conversationID, client.UserID)
		if err != nil {
			return fmt.Errorf("membership check: %w", err)
		}
		if !ok {
			return errors.New("not a member")
		}
	}

	room := g.hub.GetOrCreateRoom(conversationID)
	room.Join(client)

	g.mu.Lock()
	joined := g.sessions[client.SessionID]
	first := joined != nil && len(joined) == 0
	if joined != nil {
		joined[conversationID] = room
	}
	g.mu.Unlock()

	// Presence hint on the first room a session joins. Best effort only.
	if first {
		room.Broadcast(Event{Type: EventUserOnline, ConversationID: conversationID, UserID: client.UserID})
	}
	return nil
}

func (g *Gateway) onLeave(client *Client, conversationID string) {
	g.mu.Lock()
	joined := g.sessions[client.SessionID]
	room := joined[conversationID]
	delete(joined, conversationID)
	g.mu.Unlock()

	if room != nil {
		room.Leave(client.SessionID)
	}
}

func (g *Gateway) onSendMessage(ctx context.Context, client *Client, ev Event) error {
	g.mu.Lock()
	room := g.sessions[client.SessionID][ev.ConversationID]
	g.mu.Unlock()

	if room == nil {
		return errors.New("join first")
	}

	if g.cfg.StrictMembership && g.membership != nil {
		ok, err := g.membership.IsMember(ctx, ev.ConversationID, client.UserID)
		if err != nil {
			return fmt.Errorf("membership check: %w", err)
		}
		if !ok {
			g.onLeave(client, ev.ConversationID)
			return errors.New("not a member")
		}
	}

	n := room.Broadcast(Event{
		Type:           EventReceiveMessage,
		ConversationID: ev.ConversationID,
		Message:        ev.Message,
		UserID:         client.UserID,
	})
	if n > 0 {
		metricBroadcasts.Inc()
	}
	return nil
}

// leaveAll removes the session from every joined room and emits offline
// presence to each.
func (g *Gateway) leaveAll(client *Client) {
	g.mu.Lock()
	joined := g.sessions[client.SessionID]
	delete(g.sessions, client.SessionID)
	g.mu.Unlock()

	for convID, room := range joined {
		room.Leave(client.SessionID)
		room.Broadcast(Event{Type: EventUserOffline, ConversationID: convID, UserID: client.UserID})
	}
}

// ---- auth ----

// authenticate extracts the handshake token from the Authorization header or
// the token query parameter (browsers cannot set headers on websocket
// upgrades) and verifies it.
func (g *Gateway) authenticate(r *http.Request) (auth.Claims, error) {
	if g.authn == nil {
		return auth.Claims{}, errors.New("authenticator not configured")
	}

	token := ""
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		const prefix = "Bearer "
		if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
			token = strings.TrimSpace(h[len(prefix):])
		}
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return auth.Claims{}, errors.New("missing token")
	}
	if len([]rune(token)) > wsMaxTokenRunes {
		return auth.Claims{}, errors.New("token too long")
	}

	return g.authn.Authenticate(r.Context(), token, time.Now().UTC())
}

// ---- send helpers ----

func (g *Gateway) trySend(ctx context.Context, client *Client, ev Event) {
	select {
	case <-ctx.Done():
	case <-client.Done():
	case client.Send <- ev:
	default:
	}
}

// ---- event IO ----

func readEvent(ctx context.Context, conn *websocket.Conn) (Event, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return Event{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return Event{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func writeEvent(parent context.Context, conn *websocket.Conn, ev Event, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// readEvent returns json.Unmarshal errors unwrapped.
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatterns(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using
	// filepath.Match patterns. Only hosts extracted from the allowlist are
	// accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}
