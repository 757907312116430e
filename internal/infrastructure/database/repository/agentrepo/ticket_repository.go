package agentrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/relaydesk/relaydesk/internal/domain/ticket"
	"github.com/relaydesk/relaydesk/internal/infrastructure/database/dbschema"
)

func (r *TicketRepository) Create(ctx context.Context, t *ticket.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	result := r.db.WithContext(ctx).
		Table("tickets").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "message_id"}},
			DoNothing: true,
		}).
		Create(dbschema.NewSchemaTicket(t))
	if result.Error != nil {
		return fmt.Errorf("create ticket: %w", result.Error)
	}
	// Zero rows means the (conversation, message) pair already has a ticket.
	if result.RowsAffected == 0 {
		return ticket.ErrDuplicate
	}
	return nil
}

func (r *TicketRepository) FindByID(ctx context.Context, tenantID, id string) (*ticket.Ticket, error) {
	var row dbschema.Ticket
	err := r.db.WithContext(ctx).
		Table("tickets").
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	return row.EtoD(), nil
}

func (r *TicketRepository) FindByMessage(ctx context.Context, tenantID, conversationID, messageID string) (*ticket.Ticket, error) {
	var row dbschema.Ticket
	err := r.db.WithContext(ctx).
		Table("tickets").
		Where("tenant_id = ? AND conversation_id = ? AND message_id = ?", tenantID, conversationID, messageID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket by message: %w", err)
	}
	return row.EtoD(), nil
}

func (r *TicketRepository) FindOpenByConversation(ctx context.Context, tenantID, conversationID string) (*ticket.Ticket, error) {
	var row dbschema.Ticket
	err := r.db.WithContext(ctx).
		Table("tickets").
		Where("tenant_id = ? AND conversation_id = ? AND status != ?", tenantID, conversationID, ticket.StatusResolved).
		Order("created_at DESC, id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open ticket: %w", err)
	}
	return row.EtoD(), nil
}

func (r *TicketRepository) ListByConversation(ctx context.Context, tenantID, conversationID string, limit int) ([]ticket.Ticket, error) {
	var rows []dbschema.Ticket
	if err := r.db.WithContext(ctx).
		Table("tickets").
		Where("tenant_id = ? AND conversation_id = ?", tenantID, conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}

	tickets := make([]ticket.Ticket, 0, len(rows))
	for _, row := range rows {
		tickets = append(tickets, *row.EtoD())
	}
	return tickets, nil
}

func (r *TicketRepository) ListByTenant(ctx context.Context, tenantID, status string, limit int) ([]ticket.Ticket, error) {
	query := r.db.WithContext(ctx).
		Table("tickets").
		Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var rows []dbschema.Ticket
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tickets by tenant: %w", err)
	}

	tickets := make([]ticket.Ticket, 0, len(rows))
	for _, row := range rows {
		tickets = append(tickets, *row.EtoD())
	}
	return tickets, nil
}
