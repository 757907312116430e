package tenant

import (
	"context"
	"time"
)

// Retrieval modes selectable per tenant.
const (
	ModeAuto    = "auto"
	ModeVector  = "vector"
	ModeLexical = "lexical"
)

// Tenant is an isolated customer scope. Every retrieval and persistence
// operation is filtered by exactly one tenant id.
type Tenant struct {
	ID        string
	Slug      string
	Name      string
	CreatedAt time.Time

	// Optional policy overrides; nil/empty means the configured default applies.
	RetrievalMode      string
	ReplyMinSimilarity *float64
	ClarifyLimit       *int
}

// Policy is the effective decision policy for one pipeline invocation.
// It is resolved per request and passed explicitly so tenants can run
// different thresholds concurrently without shared mutable state.
type Policy struct {
	ContextWindow      int
	ContextMaxChars    int
	ReplyMinSimilarity float64
	// RetrievalMinSimilarity is the noise floor for retrieval itself,
	// kept below ReplyMinSimilarity so weak matches reach the decider.
	RetrievalMinSimilarity float64
	RetrievalLimit         int
	MaxEvidence            int
	MaxPerDocShare         float64
	ClarifyLimit           int
	RetrievalTimeout       time.Duration
	GenerationTimeout      time.Duration
	RetrievalMode          string
	RerankEnabled          bool
}

// ResolvePolicy overlays the tenant's overrides on the base policy.
func (t *Tenant) ResolvePolicy(base Policy) Policy {
	p := base
	if t == nil {
		return p
	}
	if t.RetrievalMode != "" {
		p.RetrievalMode = t.RetrievalMode
	}
	if t.ReplyMinSimilarity != nil {
		p.ReplyMinSimilarity = *t.ReplyMinSimilarity
	}
	if t.ClarifyLimit != nil {
		p.ClarifyLimit = *t.ClarifyLimit
	}
	return p
}

// Repository resolves tenants for request scoping.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
}
