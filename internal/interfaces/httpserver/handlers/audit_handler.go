package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/relaydesk/relaydesk/internal/domain/agent"
	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/domain/kb"
	"github.com/relaydesk/relaydesk/internal/domain/run"
	"github.com/relaydesk/relaydesk/internal/domain/ticket"
	"github.com/relaydesk/relaydesk/internal/interfaces/httpserver/middleware"
	"github.com/relaydesk/relaydesk/internal/interfaces/httpserver/responses"
)

// AuditQueries is the tenant-scoped read surface behind the audit endpoints.
type AuditQueries interface {
	ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]conversation.Message, error)
	ListRuns(ctx context.Context, tenantID, conversationID string, limit int) ([]run.AgentRun, error)
	GetRun(ctx context.Context, tenantID, id string) (*run.AgentRun, error)
	ListTickets(ctx context.Context, tenantID, status string, limit int) ([]ticket.Ticket, error)
	GetTicket(ctx context.Context, tenantID, id string) (*ticket.Ticket, error)
	ListDocuments(ctx context.Context, tenantID string, limit int) ([]kb.Document, error)
}

// AuditHandler serves the tenant-scoped read surface: conversation windows,
// run traces, tickets, and the KB document listing.
type AuditHandler struct {
	queries AuditQueries
}

func NewAuditHandler(queries AuditQueries) *AuditHandler {
	return &AuditHandler{queries: queries}
}

// HandleListMessages handles GET /v1/conversations/{conversationID}/messages
func (h *AuditHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	msgs, err := h.queries.ListMessages(r.Context(), tenantID, conversationID, limit)
	if err != nil {
		if errors.Is(err, agent.ErrConversationNotFound) {
			responses.Error(w, r, http.StatusNotFound, "conversation not found")
			return
		}
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to list messages")
		responses.Error(w, r, http.StatusInternalServerError, "failed to list messages")
		return
	}

	responses.JSON(w, r, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"messages":        msgs,
	})
}

// HandleListRuns handles GET /v1/runs?conversation_id=&limit=
func (h *AuditHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		responses.Error(w, r, http.StatusBadRequest, "conversation_id query parameter is required")
		return
	}

	runs, err := h.queries.ListRuns(r.Context(), tenantID, conversationID, limit)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to list runs")
		responses.Error(w, r, http.StatusInternalServerError, "failed to list runs")
		return
	}

	responses.JSON(w, r, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"runs":            runs,
	})
}

// HandleGetRun handles GET /v1/runs/{runID}
func (h *AuditHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	run, err := h.queries.GetRun(r.Context(), tenantID, chi.URLParam(r, "runID"))
	if err != nil {
		if errors.Is(err, agent.ErrRunNotFound) {
			responses.Error(w, r, http.StatusNotFound, "run not found")
			return
		}
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to load run")
		responses.Error(w, r, http.StatusInternalServerError, "failed to load run")
		return
	}

	responses.JSON(w, r, http.StatusOK, run)
}

// HandleListTickets handles GET /v1/tickets?status=&limit=
func (h *AuditHandler) HandleListTickets(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	tickets, err := h.queries.ListTickets(r.Context(), tenantID, r.URL.Query().Get("status"), limit)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to list tickets")
		responses.Error(w, r, http.StatusInternalServerError, "failed to list tickets")
		return
	}

	responses.JSON(w, r, http.StatusOK, map[string]any{
		"tickets": tickets,
	})
}

// HandleGetTicket handles GET /v1/tickets/{ticketID}
func (h *AuditHandler) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}

	tk, err := h.queries.GetTicket(r.Context(), tenantID, chi.URLParam(r, "ticketID"))
	if err != nil {
		if errors.Is(err, agent.ErrTicketNotFound) {
			responses.Error(w, r, http.StatusNotFound, "ticket not found")
			return
		}
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to load ticket")
		responses.Error(w, r, http.StatusInternalServerError, "failed to load ticket")
		return
	}

	responses.JSON(w, r, http.StatusOK, tk)
}

// HandleListDocuments handles GET /v1/kb/documents?limit=
func (h *AuditHandler) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireTenant(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	docs, err := h.queries.ListDocuments(r.Context(), tenantID, limit)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to list documents")
		responses.Error(w, r, http.StatusInternalServerError, "failed to list documents")
		return
	}

	responses.JSON(w, r, http.StatusOK, map[string]any{
		"documents": docs,
	})
}

func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := middleware.GetTenantID(r.Context())
	if tenantID == "" {
		responses.Error(w, r, http.StatusBadRequest, "tenant_required")
		return "", false
	}
	return tenantID, true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		responses.Error(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
