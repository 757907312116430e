package dbschema

import (
	"time"

	"github.com/lib/pq"

	"github.com/relaydesk/relaydesk/internal/domain/kb"
)

// KBDocument rows are written by the ingestion pipeline; this service only
// reads them for the audit listing.
type KBDocument struct {
	ID        string         `db:"id"`
	TenantID  string         `db:"tenant_id"`
	Title     string         `db:"title"`
	Content   string         `db:"content"`
	Tags      pq.StringArray `db:"tags" gorm:"type:text[]"`
	CreatedAt time.Time      `db:"created_at"`
}

func (s *KBDocument) EtoD() *kb.Document {
	if s == nil {
		return nil
	}

	return &kb.Document{
		ID:        s.ID,
		TenantID:  s.TenantID,
		Title:     s.Title,
		Content:   s.Content,
		Tags:      []string(s.Tags),
		CreatedAt: s.CreatedAt,
	}
}
