package dbschema

import (
	"time"

	"github.com/relaydesk/relaydesk/internal/domain/tenant"
)

// Tenant rows are provisioned out of band; this service only reads them.
type Tenant struct {
	ID                 string    `db:"id"`
	Slug               string    `db:"slug"`
	Name               string    `db:"name"`
	RetrievalMode      *string   `db:"retrieval_mode"`
	ReplyMinSimilarity *float64  `db:"reply_min_similarity"`
	ClarifyLimit       *int      `db:"clarify_limit"`
	CreatedAt          time.Time `db:"created_at"`
}

func (s *Tenant) EtoD() *tenant.Tenant {
	if s == nil {
		return nil
	}

	d := &tenant.Tenant{
		ID:                 s.ID,
		Slug:               s.Slug,
		Name:               s.Name,
		CreatedAt:          s.CreatedAt,
		ReplyMinSimilarity: s.ReplyMinSimilarity,
		ClarifyLimit:       s.ClarifyLimit,
	}
	if s.RetrievalMode != nil {
		d.RetrievalMode = *s.RetrievalMode
	}
	return d
}
