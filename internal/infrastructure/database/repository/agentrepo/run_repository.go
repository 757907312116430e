package agentrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/relaydesk/relaydesk/internal/domain/run"
	"github.com/relaydesk/relaydesk/internal/infrastructure/database/dbschema"
)

func (r *RunRepository) Create(ctx context.Context, d *run.AgentRun) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	row, err := dbschema.NewSchemaAgentRun(d)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	// Retries of the same message converge on one run row.
	if err := r.db.WithContext(ctx).
		Table("agent_runs").
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"action",
				"decision_reason",
				"guardrails_triggered",
				"confidence",
				"input_snapshot",
				"output_snapshot",
				"citations",
				"retrieval_source",
				"retrieval_ms",
				"generation_ms",
				"total_ms",
				"prompt_tokens_estimated",
				"response_tokens_estimated",
				"status",
			}),
		}).
		Create(row).Error; err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (r *RunRepository) FindByID(ctx context.Context, tenantID, id string) (*run.AgentRun, error) {
	var row dbschema.AgentRun
	err := r.db.WithContext(ctx).
		Table("agent_runs").
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}

	d, err := row.EtoD()
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	return d, nil
}

func (r *RunRepository) ListByConversation(ctx context.Context, tenantID, conversationID string, limit int) ([]run.AgentRun, error) {
	var rows []dbschema.AgentRun
	if err := r.db.WithContext(ctx).
		Table("agent_runs").
		Where("conversation_id = ? AND tenant_id = ?", conversationID, tenantID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]run.AgentRun, 0, len(rows))
	for _, row := range rows {
		d, err := row.EtoD()
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, *d)
	}
	return runs, nil
}
