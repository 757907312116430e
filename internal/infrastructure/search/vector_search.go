package search

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/domain/embedding"
	"github.com/relaydesk/relaydesk/internal/domain/retrieval"
)

// VectorRetriever answers retrieval queries with pgvector cosine similarity
// over kb_chunks. The tenant filter is applied server-side; rows from other
// tenants can never leave the database.
type VectorRetriever struct {
	db       *pgxpool.Pool
	embedder embedding.QueryEmbedder
}

var _ retrieval.Retriever = (*VectorRetriever)(nil)

func NewVectorRetriever(db *pgxpool.Pool, embedder embedding.QueryEmbedder) *VectorRetriever {
	return &VectorRetriever{db: db, embedder: embedder}
}

func (s *VectorRetriever) Source() string { return retrieval.SourceVector }

func (s *VectorRetriever) Retrieve(ctx context.Context, q retrieval.Query) ([]retrieval.Candidate, error) {
	queryEmbedding, err := s.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, &retrieval.UnavailableError{Mode: retrieval.SourceVector, Err: fmt.Errorf("embed query: %w", err)}
	}

	query := `
		SELECT
			c.id, c.document_id, c.tenant_id, c.content, d.title, d.created_at,
			1 - (c.embedding <=> $1::vector) AS similarity
		FROM kb_chunks c
		JOIN kb_documents d ON d.id = c.document_id
		WHERE c.tenant_id = $2
		  AND 1 - (c.embedding <=> $1::vector) >= $3
		ORDER BY c.embedding <=> $1::vector, d.created_at DESC, d.id
		LIMIT $4
	`

	rows, err := s.db.Query(ctx, query,
		embeddingToString(queryEmbedding),
		q.TenantID,
		q.MinSimilarity,
		q.Limit,
	)
	if err != nil {
		return nil, &retrieval.UnavailableError{Mode: retrieval.SourceVector, Err: fmt.Errorf("search kb chunks: %w", err)}
	}
	defer rows.Close()

	var candidates []retrieval.Candidate
	for rows.Next() {
		c := retrieval.Candidate{Source: retrieval.SourceVector}
		err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.TenantID, &c.Content,
			&c.DocumentTitle, &c.DocumentCreatedAt, &c.Similarity,
		)
		if err != nil {
			return nil, &retrieval.UnavailableError{Mode: retrieval.SourceVector, Err: fmt.Errorf("scan row: %w", err)}
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &retrieval.UnavailableError{Mode: retrieval.SourceVector, Err: fmt.Errorf("iterate rows: %w", err)}
	}

	return candidates, nil
}

// embeddingToString renders a vector as the pgvector text literal [f1,f2,...].
func embeddingToString(embedding []float32) string {
	if len(embedding) == 0 {
		return "[]"
	}

	result := "["
	for i, val := range embedding {
		if i > 0 {
			result += ","
		}
		result += fmt.Sprintf("%f", val)
	}
	result += "]"
	return result
}
