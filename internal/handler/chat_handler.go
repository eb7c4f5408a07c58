package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"go-creator-hub/internal/model"
	"go-creator-hub/internal/service"
	"go-creator-hub/pkg/apierror"
)

type ChatHandler struct {
	service *service.ChatService
}

func NewChatHandler(service *service.ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	writeSuccess(w, http.StatusOK, "", h.service.List(r.Context(), claims))
}

func (h *ChatHandler) Start(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var payload model.StartConversationRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	conv, err := h.service.Start(r.Context(), claims, payload.ParticipantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", conv)
}

func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, apierror.New(apierror.CodeBadRequest, "limit must be a positive integer", raw, http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	messages, err := h.service.Messages(r.Context(), claims, chi.URLParam(r, "conversation_id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", messages)
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkRead(r.Context(), claims, chi.URLParam(r, "conversation_id")); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{"read": true})
}

func (h *ChatHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	writeSuccess(w, http.StatusOK, "", h.service.Unread(r.Context(), claims))
}
