package conversation

import (
	"context"
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Conversation owns an ordered sequence of messages within one tenant.
type Conversation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Channel   string    `json:"channel"` // "web"
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single dialogue turn. Immutable once written.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"` // "user", "assistant", "system"
	Content        string         `json:"content"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Repository provides tenant-scoped read-append access to conversations.
// Listing joins through the conversation so a caller can never read
// messages of another tenant's conversation.
type Repository interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	FindConversation(ctx context.Context, tenantID, id string) (*Conversation, error)
	AppendMessage(ctx context.Context, tenantID string, msg *Message) error
	// ListRecentMessages returns up to limit most recent messages in
	// chronological order.
	ListRecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]Message, error)
}
