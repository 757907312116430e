package agentrepo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/relaydesk/relaydesk/internal/domain/tenant"
	"github.com/relaydesk/relaydesk/internal/infrastructure/database/dbschema"
)

func (r *Repository) FindByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	var row dbschema.Tenant
	err := r.db.WithContext(ctx).
		Table("tenants").
		Where("id = ?", id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tenant: %w", err)
	}

	return row.EtoD(), nil
}

func (r *Repository) FindBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	var row dbschema.Tenant
	err := r.db.WithContext(ctx).
		Table("tenants").
		Where("slug = ?", slug).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tenant by slug: %w", err)
	}

	return row.EtoD(), nil
}
