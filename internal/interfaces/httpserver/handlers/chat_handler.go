package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/relaydesk/relaydesk/internal/domain/agent"
	"github.com/relaydesk/relaydesk/internal/interfaces/httpserver/middleware"
	"github.com/relaydesk/relaydesk/internal/interfaces/httpserver/responses"
)

// ChatService is the slice of the agent service the chat endpoint consumes.
type ChatService interface {
	HandleMessage(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error)
}

// ChatHandler serves the message pipeline endpoint.
type ChatHandler struct {
	service ChatService
}

func NewChatHandler(service ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

// chatRequest mirrors the public wire contract. Message is a pointer so a
// missing field and an empty string are both rejected up front, while
// whitespace-only content still reaches the decider.
type chatRequest struct {
	TenantID       string         `json:"tenant_id"`
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	UserID         string         `json:"user_id"`
	Channel        string         `json:"channel"`
	Message        *string        `json:"message"`
	Metadata       map[string]any `json:"metadata"`
}

// HandleChat handles POST /v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error().Err(err).Msg("Failed to decode chat request")
		responses.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		tenantID = strings.TrimSpace(req.TenantID)
	}
	if tenantID == "" {
		responses.Error(w, r, http.StatusBadRequest, "tenant_required")
		return
	}

	if req.Message == nil || *req.Message == "" {
		responses.Error(w, r, http.StatusUnprocessableEntity, "message is required")
		return
	}
	if req.MessageID != "" {
		if _, err := uuid.Parse(req.MessageID); err != nil {
			responses.Error(w, r, http.StatusBadRequest, "message_id must be a uuid")
			return
		}
	}
	if req.ConversationID != "" {
		if _, err := uuid.Parse(req.ConversationID); err != nil {
			responses.Error(w, r, http.StatusBadRequest, "conversation_id must be a uuid")
			return
		}
	}

	logger.Info().
		Str("tenant_id", tenantID).
		Str("conversation_id", req.ConversationID).
		Str("channel", req.Channel).
		Msg("Chat request received")

	resp, err := h.service.HandleMessage(r.Context(), agent.ChatRequest{
		TenantID:       tenantID,
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		UserID:         req.UserID,
		Channel:        req.Channel,
		Message:        *req.Message,
		Metadata:       req.Metadata,
	})
	if err != nil {
		writeChatError(w, r, err)
		return
	}

	responses.JSON(w, r, http.StatusOK, resp)
}

func writeChatError(w http.ResponseWriter, r *http.Request, err error) {
	var mismatch *agent.TenantMismatchError
	switch {
	case errors.Is(err, agent.ErrTenantNotFound):
		responses.Error(w, r, http.StatusNotFound, "tenant not found")
	case errors.Is(err, agent.ErrConversationNotFound):
		responses.Error(w, r, http.StatusNotFound, "conversation not found")
	case errors.As(err, &mismatch):
		responses.Error(w, r, http.StatusForbidden, "tenant mismatch")
	default:
		log.Ctx(r.Context()).Error().Err(err).Msg("Pipeline failed")
		responses.Error(w, r, http.StatusInternalServerError, "internal error")
	}
}
