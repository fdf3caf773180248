// Package chatapi exposes the conversation REST surface: chat resolution,
// conversation and history listing, and read receipts.
package chatapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dwell/cmd/internal/chat"
)

// Authenticator resolves the authenticated user behind a request.
type Authenticator interface {
	AuthenticateRequest(r *http.Request) (userID string, err error)
}

// Handler wires chat HTTP endpoints to the chat Service.
type Handler struct {
	log  *slog.Logger
	svc  *chat.Service
	auth Authenticator
}

// NewHandler constructs the chat API handler.
func NewHandler(log *slog.Logger, svc *chat.Service, auth Authenticator) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if svc == nil {
		return nil, errors.New("chatapi: nil service")
	}
	if auth == nil {
		return nil, errors.New("chatapi: nil authenticator")
	}
	return &Handler{log: log, svc: svc, auth: auth}, nil
}

// Register wires chat routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/chats/listing/{listing_id}", h.withUser(h.handleListingChat))
	mux.HandleFunc("POST /api/chats/direct/{user_id}", h.withUser(h.handleDirectChat))
	mux.HandleFunc("GET /api/chats", h.withUser(h.handleListChats))
	mux.HandleFunc("GET /api/chats/{chat_id}/messages", h.withUser(h.handleListMessages))
	// Mark-read lives one segment deeper than the resolver routes; a
	// {chat_id} wildcard directly under /api/chats/ would make
	// "POST /api/chats/listing/read" ambiguous and panic ServeMux
	// registration.
	mux.HandleFunc("POST /api/chats/{chat_id}/messages/read", h.withUser(h.handleMarkRead))
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (h *Handler) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.auth.AuthenticateRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next(w, r, userID)
	}
}

// ---- handlers ----

func (h *Handler) handleListingChat(w http.ResponseWriter, r *http.Request, userID string) {
	listingID := strings.TrimSpace(r.PathValue("listing_id"))

	view, err := h.svc.FindOrCreateListingChat(r.Context(), userID, listingID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatSummary(view))
}

func (h *Handler) handleDirectChat(w http.ResponseWriter, r *http.Request, userID string) {
	peerID := strings.TrimSpace(r.PathValue("user_id"))

	view, err := h.svc.FindOrCreateDirectChat(r.Context(), userID, peerID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatSummary(view))
}

func (h *Handler) handleListChats(w http.ResponseWriter, r *http.Request, userID string) {
	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	views, total, totalPages, err := h.svc.ListConversations(r.Context(), userID, page, perPage)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaginatedChats(views, total, page, perPage, totalPages))
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request, userID string) {
	chatID := strings.TrimSpace(r.PathValue("chat_id"))

	page, perPage, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	views, total, totalPages, err := h.svc.ListMessages(r.Context(), chatID, userID, page, perPage)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaginatedMessages(views, total, page, perPage, totalPages))
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request, userID string) {
	chatID := strings.TrimSpace(r.PathValue("chat_id"))

	updated, err := h.svc.MarkRead(r.Context(), chatID, userID, time.Now().UTC())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{Updated: updated})
}

// ---- error mapping ----

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case chat.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "not found")
	case chat.IsForbidden(err):
		writeError(w, http.StatusForbidden, "forbidden", "not a participant")
	case chat.IsInvalidRequest(err):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.log.Error("chatapi.request.fail", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// ---- query params ----

func pageParams(r *http.Request) (page, perPage int, err error) {
	q := r.URL.Query()

	page = 1
	perPage = chat.DefaultPerPage

	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("page must be an integer")
		}
	}
	if raw := strings.TrimSpace(q.Get("per_page")); raw != "" {
		perPage, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("per_page must be an integer")
		}
	}
	// Bounds are enforced by the service.
	return page, perPage, nil
}
