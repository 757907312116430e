package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/domain/retrieval"
)

const (
	// Rows fetched before coverage scoring; the final cut happens in Go.
	lexicalScanLimit = 64
	maxKeywordTerms  = 5
)

// LexicalRetriever answers retrieval queries without embeddings: hashtag
// queries match document tags, everything else matches chunk content by
// keyword. Scores are match coverage in [0,1] so the same floors apply as
// for vector similarity.
type LexicalRetriever struct {
	db *pgxpool.Pool
}

var _ retrieval.Retriever = (*LexicalRetriever)(nil)

func NewLexicalRetriever(db *pgxpool.Pool) *LexicalRetriever {
	return &LexicalRetriever{db: db}
}

func (s *LexicalRetriever) Source() string { return retrieval.SourceLexical }

func (s *LexicalRetriever) Retrieve(ctx context.Context, q retrieval.Query) ([]retrieval.Candidate, error) {
	if tags := retrieval.ExtractHashtags(q.Text); len(tags) > 0 {
		return s.searchByTags(ctx, q, tags)
	}
	return s.searchByKeywords(ctx, q)
}

func (s *LexicalRetriever) searchByTags(ctx context.Context, q retrieval.Query, tags []string) ([]retrieval.Candidate, error) {
	query := `
		SELECT c.id, c.document_id, c.tenant_id, c.content, d.title, d.created_at, d.tags
		FROM kb_chunks c
		JOIN kb_documents d ON d.id = c.document_id
		WHERE c.tenant_id = $1
		  AND d.tags && $2::text[]
		ORDER BY d.created_at DESC, d.id, c.ordinal
		LIMIT $3
	`

	rows, err := s.db.Query(ctx, query, q.TenantID, tags, lexicalScanLimit)
	if err != nil {
		return nil, &retrieval.UnavailableError{Mode: retrieval.SourceLexical, Err: fmt.Errorf("search kb tags: %w", err)}
	}
	defer rows.Close()

	var candidates []retrieval.Candidate
	for rows.Next() {
		c := retrieval.Candidate{Source: retrieval.SourceLexical}
		var docTags []string
		err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.TenantID, &c.Content,
			&c.DocumentTitle, &c.DocumentCreatedAt, &docTags,
		)
		if err != nil {
			return nil, &retrieval.UnavailableError{Mode: retrieval.SourceLexical, Err: fmt.Errorf("scan row: %w", err)}
		}

		c.Similarity = tagCoverage(tags, docTags)
		if c.Similarity < q.MinSimilarity {
			continue
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &retrieval.UnavailableError{Mode: retrieval.SourceLexical, Err: fmt.Errorf("iterate rows: %w", err)}
	}

	retrieval.SortCandidates(candidates)
	return trim(candidates, q.Limit), nil
}

func (s *LexicalRetriever) searchByKeywords(ctx context.Context, q retrieval.Query) ([]retrieval.Candidate, error) {
	terms := retrieval.KeywordTerms(q.Text, maxKeywordTerms)
	if len(terms) == 0 {
		// Short-token queries fall back to matching the whole phrase.
		phrase := strings.ToLower(strings.TrimSpace(q.Text))
		if phrase == "" {
			return nil, nil
		}
		terms = []string{phrase}
	}

	patterns := make([]string, len(terms))
	for i, term := range terms {
		patterns[i] = "%" + escapeLike(term) + "%"
	}

	query := `
		SELECT c.id, c.document_id, c.tenant_id, c.content, d.title, d.created_at
		FROM kb_chunks c
		JOIN kb_documents d ON d.id = c.document_id
		WHERE c.tenant_id = $1
		  AND c.content ILIKE ANY($2::text[])
		ORDER BY d.created_at DESC, d.id, c.ordinal
		LIMIT $3
	`

	rows, err := s.db.Query(ctx, query, q.TenantID, patterns, lexicalScanLimit)
	if err != nil {
		return nil, &retrieval.UnavailableError{Mode: retrieval.SourceLexical, Err: fmt.Errorf("search kb content: %w", err)}
	}
	defer rows.Close()

	var candidates []retrieval.Candidate
	for rows.Next() {
		c := retrieval.Candidate{Source: retrieval.SourceLexical}
		err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.TenantID, &c.Content,
			&c.DocumentTitle, &c.DocumentCreatedAt,
		)
		if err != nil {
			return nil, &retrieval.UnavailableError{Mode: retrieval.SourceLexical, Err: fmt.Errorf("scan row: %w", err)}
		}

		c.Similarity = termCoverage(terms, c.Content)
		if c.Similarity < q.MinSimilarity {
			continue
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &retrieval.UnavailableError{Mode: retrieval.SourceLexical, Err: fmt.Errorf("iterate rows: %w", err)}
	}

	retrieval.SortCandidates(candidates)
	return trim(candidates, q.Limit), nil
}

// tagCoverage scores by the share of query tags present on the document.
func tagCoverage(queryTags, docTags []string) float64 {
	if len(queryTags) == 0 {
		return 0
	}
	have := make(map[string]struct{}, len(docTags))
	for _, t := range docTags {
		have[strings.ToLower(t)] = struct{}{}
	}
	matched := 0
	for _, t := range queryTags {
		if _, ok := have[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTags))
}

// termCoverage scores by the share of search terms present in the content.
func termCoverage(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

// escapeLike neutralizes ILIKE pattern metacharacters in user-derived terms.
func escapeLike(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, `%`, `\%`)
	term = strings.ReplaceAll(term, `_`, `\_`)
	return term
}

func trim(cands []retrieval.Candidate, limit int) []retrieval.Candidate {
	if limit > 0 && len(cands) > limit {
		return cands[:limit]
	}
	return cands
}
