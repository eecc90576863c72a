package chatapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ripple/internal/auth"
	"ripple/internal/chat"
)

const defaultMaxBodyBytes = 64 * 1024

// Notifier pushes a persisted message to connected clients. Implemented by
// the realtime gateway; a nil notifier means REST-only operation.
type Notifier interface {
	NotifyMessage(conversationID string, message json.RawMessage)
}

// Config carries handler tunables.
type Config struct {
	MaxBodyBytes int64

	// RateWindow is only used to derive the Retry-After header; the limiter
	// itself owns the budget.
	RateWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}

// Handler wires the chat HTTP endpoints to the conversation and message
// services.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	convs    *chat.ConversationService
	msgs     *chat.MessageService
	authn    *auth.Authenticator
	limiter  RateLimiter
	notifier Notifier
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithRateLimiter gates all chat endpoints with a per-user budget.
func WithRateLimiter(l RateLimiter) HandlerOption {
	return func(h *Handler) {
		if h == nil || l == nil {
			return
		}
		h.limiter = l
	}
}

// WithNotifier fans persisted messages out to the realtime layer.
func WithNotifier(n Notifier) HandlerOption {
	return func(h *Handler) {
		if h == nil || n == nil {
			return
		}
		h.notifier = n
	}
}

// NewHandler constructs a chat Handler.
func NewHandler(log *slog.Logger, cfg Config, convs *chat.ConversationService, msgs *chat.MessageService, authn *auth.Authenticator, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:   log,
		cfg:   cfg.withDefaults(),
		convs: convs,
		msgs:  msgs,
		authn: authn,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h
}

// Register wires chat routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}

	guard := func(next http.HandlerFunc) http.HandlerFunc {
		return h.requireAuth(h.withRateLimit(next))
	}

	mux.HandleFunc("POST /chats/private", guard(h.handleCreateDirect))
	mux.HandleFunc("POST /chats/group", guard(h.handleCreateGroup))
	mux.HandleFunc("GET /chats", guard(h.handleList))
	mux.HandleFunc("GET /chats/{id}", guard(h.handleGet))
	mux.HandleFunc("PUT /chats/{id}", guard(h.handleUpdateGroup))
	mux.HandleFunc("GET /chats/{id}/messages", guard(h.handleListMessages))
	mux.HandleFunc("POST /chats/{id}/messages", guard(h.handleSendMessage))
	mux.HandleFunc("POST /chats/{id}/members", guard(h.handleAddMember))
	mux.HandleFunc("DELETE /chats/{id}/members/{userId}", guard(h.handleRemoveMember))
}

// ---- handlers ----

func (h *Handler) handleCreateDirect(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	var req createDirectRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	v, created, err := h.convs.GetOrCreateDirect(r.Context(), claims.UserID, req.UserID)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, v)
}

func (h *Handler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	var req createGroupRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	v, err := h.convs.CreateGroup(r.Context(), claims.UserID, req.Title, req.Description, req.Members, req.Discoverable)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	views, err := h.convs.List(r.Context(), claims.UserID)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	v, err := h.convs.Get(r.Context(), claims.UserID, r.PathValue("id"))
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	var req updateGroupRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	patch := chat.GroupPatch{
		Title:        req.Title,
		Description:  req.Description,
		Discoverable: req.Discoverable,
	}
	v, err := h.convs.UpdateGroup(r.Context(), claims.UserID, r.PathValue("id"), patch)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", chat.DefaultPageSize)

	msgs, err := h.msgs.ListPage(r.Context(), claims.UserID, r.PathValue("id"), page, limit)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	conversationID := r.PathValue("id")

	var req sendMessageRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	v, err := h.msgs.Send(r.Context(), claims.UserID, conversationID, req.Body, req.ReplyToID)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	metricMessagesSent.Inc()

	if h.notifier != nil {
		if raw, err := json.Marshal(v); err == nil {
			h.notifier.NotifyMessage(conversationID, raw)
		}
	}

	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	var req addMemberRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	v, err := h.convs.AddMember(r.Context(), claims.UserID, r.PathValue("id"), req.UserID)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	v, err := h.convs.RemoveMember(r.Context(), claims.UserID, r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ---- error mapping ----

// writeOpError maps service errors to HTTP statuses. Anything without a
// recognized kind is an internal error: logged with detail, answered without.
func (h *Handler) writeOpError(w http.ResponseWriter, err error) {
	kind, ok := chat.KindOf(err)
	if !ok {
		h.log.Error("chat.api.internal", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	switch kind {
	case chat.KindValidation:
		writeError(w, http.StatusBadRequest, "validation", err.Error())
	case chat.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case chat.KindForbidden:
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case chat.KindInvalidOperation:
		writeError(w, http.StatusBadRequest, "invalid_operation", err.Error())
	default:
		h.log.Error("chat.api.internal", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
