package dbschema

import (
	"time"

	"github.com/relaydesk/relaydesk/internal/domain/conversation"
)

type Conversation struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Channel   string    `db:"channel"`
	CreatedAt time.Time `db:"created_at"`
}

func NewSchemaConversation(d *conversation.Conversation) *Conversation {
	if d == nil {
		return nil
	}

	return &Conversation{
		ID:        d.ID,
		TenantID:  d.TenantID,
		Channel:   d.Channel,
		CreatedAt: d.CreatedAt,
	}
}

func (s *Conversation) EtoD() *conversation.Conversation {
	if s == nil {
		return nil
	}

	return &conversation.Conversation{
		ID:        s.ID,
		TenantID:  s.TenantID,
		Channel:   s.Channel,
		CreatedAt: s.CreatedAt,
	}
}
