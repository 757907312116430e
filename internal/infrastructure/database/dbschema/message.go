package dbschema

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/relaydesk/relaydesk/internal/domain/conversation"
)

type Message struct {
	ID             string         `db:"id"`
	ConversationID string         `db:"conversation_id"`
	Role           string         `db:"role"`
	Content        string         `db:"content"`
	Metadata       datatypes.JSON `db:"metadata"`
	CreatedAt      time.Time      `db:"created_at"`
}

func NewSchemaMessage(d *conversation.Message) *Message {
	if d == nil {
		return nil
	}

	var meta datatypes.JSON
	if len(d.Metadata) > 0 {
		if raw, err := json.Marshal(d.Metadata); err == nil {
			meta = raw
		}
	}

	return &Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		Role:           d.Role,
		Content:        d.Content,
		Metadata:       meta,
		CreatedAt:      d.CreatedAt,
	}
}

func (s *Message) EtoD() *conversation.Message {
	if s == nil {
		return nil
	}

	var meta map[string]any
	if len(s.Metadata) > 0 {
		_ = json.Unmarshal(s.Metadata, &meta)
	}

	return &conversation.Message{
		ID:             s.ID,
		ConversationID: s.ConversationID,
		Role:           s.Role,
		Content:        s.Content,
		Metadata:       meta,
		CreatedAt:      s.CreatedAt,
	}
}
