package agentrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/infrastructure/database/dbschema"
)

func (r *Repository) CreateConversation(ctx context.Context, conv *conversation.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}

	if err := r.db.WithContext(ctx).
		Table("conversations").
		Create(dbschema.NewSchemaConversation(conv)).Error; err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (r *Repository) FindConversation(ctx context.Context, tenantID, id string) (*conversation.Conversation, error) {
	var row dbschema.Conversation
	err := r.db.WithContext(ctx).
		Table("conversations").
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	return row.EtoD(), nil
}

// AppendMessage inserts one turn. The insert is idempotent on the message id
// so client retries of the same message do not duplicate it.
func (r *Repository) AppendMessage(ctx context.Context, tenantID string, msg *conversation.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var owned int64
	if err := r.db.WithContext(ctx).
		Table("conversations").
		Where("id = ? AND tenant_id = ?", msg.ConversationID, tenantID).
		Count(&owned).Error; err != nil {
		return fmt.Errorf("check conversation owner: %w", err)
	}
	if owned == 0 {
		return fmt.Errorf("conversation %s not found for tenant", msg.ConversationID)
	}

	if err := r.db.WithContext(ctx).
		Table("messages").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(dbschema.NewSchemaMessage(msg)).Error; err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (r *Repository) ListRecentMessages(ctx context.Context, tenantID, conversationID string, limit int) ([]conversation.Message, error) {
	var rows []dbschema.Message
	if err := r.db.WithContext(ctx).
		Table("messages").
		Select("messages.id, messages.conversation_id, messages.role, messages.content, messages.metadata, messages.created_at").
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("messages.conversation_id = ? AND conversations.tenant_id = ?", conversationID, tenantID).
		Order("messages.created_at DESC, messages.id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	// Fetched newest-first; callers get chronological order.
	msgs := make([]conversation.Message, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		msgs = append(msgs, *rows[i].EtoD())
	}
	return msgs, nil
}
