package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/domain/kb"
	"github.com/relaydesk/relaydesk/internal/domain/run"
	"github.com/relaydesk/relaydesk/internal/domain/ticket"
)

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrTicketNotFound = errors.New("ticket not found")
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Queries is the tenant-scoped read surface over conversations, run traces,
// tickets, and KB documents. All lookups filter by tenant in the store; a
// foreign id behaves exactly like a missing one.
type Queries struct {
	convs   conversation.Repository
	runs    run.Repository
	tickets ticket.Repository
	docs    kb.Repository
}

func NewQueries(
	convs conversation.Repository,
	runs run.Repository,
	tickets ticket.Repository,
	docs kb.Repository,
) *Queries {
	return &Queries{convs: convs, runs: runs, tickets: tickets, docs: docs}
}

func (q *Queries) ListMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]conversation.Message, error) {
	conv, err := q.convs.FindConversation(ctx, tenantID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return q.convs.ListRecentMessages(ctx, tenantID, conversationID, clampLimit(limit))
}

func (q *Queries) ListRuns(ctx context.Context, tenantID, conversationID string, limit int) ([]run.AgentRun, error) {
	return q.runs.ListByConversation(ctx, tenantID, conversationID, clampLimit(limit))
}

func (q *Queries) GetRun(ctx context.Context, tenantID, id string) (*run.AgentRun, error) {
	r, err := q.runs.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if r == nil {
		return nil, ErrRunNotFound
	}
	return r, nil
}

func (q *Queries) ListTickets(ctx context.Context, tenantID, status string, limit int) ([]ticket.Ticket, error) {
	return q.tickets.ListByTenant(ctx, tenantID, status, clampLimit(limit))
}

func (q *Queries) GetTicket(ctx context.Context, tenantID, id string) (*ticket.Ticket, error) {
	t, err := q.tickets.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	if t == nil {
		return nil, ErrTicketNotFound
	}
	return t, nil
}

func (q *Queries) ListDocuments(ctx context.Context, tenantID string, limit int) ([]kb.Document, error) {
	return q.docs.ListDocuments(ctx, tenantID, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
