package dbschema

import (
	"time"

	"github.com/relaydesk/relaydesk/internal/domain/ticket"
)

type Ticket struct {
	ID             string    `db:"id"`
	TenantID       string    `db:"tenant_id"`
	ConversationID string    `db:"conversation_id"`
	MessageID      string    `db:"message_id"`
	Status         string    `db:"status"`
	Priority       string    `db:"priority"`
	Subject        string    `db:"subject"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func NewSchemaTicket(d *ticket.Ticket) *Ticket {
	if d == nil {
		return nil
	}

	return &Ticket{
		ID:             d.ID,
		TenantID:       d.TenantID,
		ConversationID: d.ConversationID,
		MessageID:      d.MessageID,
		Status:         d.Status,
		Priority:       d.Priority,
		Subject:        d.Subject,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func (s *Ticket) EtoD() *ticket.Ticket {
	if s == nil {
		return nil
	}

	return &ticket.Ticket{
		ID:             s.ID,
		TenantID:       s.TenantID,
		ConversationID: s.ConversationID,
		MessageID:      s.MessageID,
		Status:         s.Status,
		Priority:       s.Priority,
		Subject:        s.Subject,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}
