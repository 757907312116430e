package agentrepo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/relaydesk/relaydesk/internal/domain/kb"
	"github.com/relaydesk/relaydesk/internal/infrastructure/database/dbschema"
)

func (r *Repository) ListDocuments(ctx context.Context, tenantID string, limit int) ([]kb.Document, error) {
	var rows []dbschema.KBDocument
	if err := r.db.WithContext(ctx).
		Table("kb_documents").
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC, id").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list kb documents: %w", err)
	}

	docs := make([]kb.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, *row.EtoD())
	}
	return docs, nil
}

func (r *Repository) FindDocument(ctx context.Context, tenantID, id string) (*kb.Document, error) {
	var row dbschema.KBDocument
	err := r.db.WithContext(ctx).
		Table("kb_documents").
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find kb document: %w", err)
	}

	return row.EtoD(), nil
}
