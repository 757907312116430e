package kb

import (
	"context"
	"time"
)

// Document is a knowledge-base source owned by exactly one tenant.
// Created by the external ingestion collaborator; this service only reads.
type Document struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is an embedded slice of a document. A chunk belongs to exactly one
// document and exactly one tenant and is never served outside its tenant.
type Chunk struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	TenantID    string    `json:"tenant_id"`
	Ordinal     int       `json:"ordinal"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"-"`
	ContentHash string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository provides tenant-scoped read access to the knowledge base.
type Repository interface {
	ListDocuments(ctx context.Context, tenantID string, limit int) ([]Document, error)
	FindDocument(ctx context.Context, tenantID, id string) (*Document, error)
}
