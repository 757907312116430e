package agentrepo

import (
	"gorm.io/gorm"

	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/domain/kb"
	"github.com/relaydesk/relaydesk/internal/domain/run"
	"github.com/relaydesk/relaydesk/internal/domain/tenant"
	"github.com/relaydesk/relaydesk/internal/domain/ticket"
)

// Repository serves tenant, conversation, and knowledge-base access over one
// gorm handle. Reads and writes go to the same connection; the read-replica
// split, when configured, is handled at pool construction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RunRepository persists the append-only audit trail.
type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// TicketRepository persists handoff tickets.
type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// ensure interfaces are implemented
var (
	_ tenant.Repository       = (*Repository)(nil)
	_ conversation.Repository = (*Repository)(nil)
	_ kb.Repository           = (*Repository)(nil)
	_ run.Repository          = (*RunRepository)(nil)
	_ ticket.Repository       = (*TicketRepository)(nil)
)
