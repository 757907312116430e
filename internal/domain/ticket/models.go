package ticket

import (
	"context"
	"errors"
	"time"
)

// Ticket statuses.
const (
	StatusOpen        = "open"
	StatusWaitingUser = "waiting_user"
	StatusWaitingTeam = "waiting_team"
	StatusResolved    = "resolved"
)

// Ticket priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// ErrDuplicate signals that a ticket already exists for the
// (conversation, message) pair. Callers treat it as success-with-lookup,
// never as a failure.
var ErrDuplicate = errors.New("ticket already exists for message")

// Ticket is a handoff to the human support team, created by the agent when
// the guardrail table decides the conversation cannot be answered.
type Ticket struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	Status         string    `json:"status"`
	Priority       string    `json:"priority"`
	Subject        string    `json:"subject"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Open reports whether the ticket still needs team attention.
func (t *Ticket) Open() bool {
	return t.Status != StatusResolved
}

// Repository persists tickets. Create must be idempotent on
// (conversation_id, message_id): a second insert for the same pair returns
// ErrDuplicate and leaves the first row untouched. Lookups return
// (nil, nil) when no row matches.
type Repository interface {
	Create(ctx context.Context, t *Ticket) error
	FindByID(ctx context.Context, tenantID, id string) (*Ticket, error)
	FindByMessage(ctx context.Context, tenantID, conversationID, messageID string) (*Ticket, error)
	FindOpenByConversation(ctx context.Context, tenantID, conversationID string) (*Ticket, error)
	ListByConversation(ctx context.Context, tenantID, conversationID string, limit int) ([]Ticket, error)
	// ListByTenant returns newest tickets first; status filters when non-empty.
	ListByTenant(ctx context.Context, tenantID, status string, limit int) ([]Ticket, error)
}
