package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/relaydesk/relaydesk/internal/domain/tenant"
)

// Candidate sources recorded in the run trace.
const (
	SourceVector  = "kb_vector"
	SourceLexical = "kb_lexical"
)

// Candidate is one ranked evidence candidate. Ephemeral, produced per
// request; both retrieval modes emit this same shape so downstream stages
// are retrieval-method-agnostic.
type Candidate struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	TenantID      string  `json:"tenant_id"`
	Content       string  `json:"content"`
	Similarity    float64 `json:"similarity"`
	DocumentTitle string  `json:"document_title"`
	Source        string  `json:"source"`

	DocumentCreatedAt time.Time `json:"-"`
}

// Query is the input to a retrieval pass.
type Query struct {
	TenantID      string
	Text          string
	Limit         int
	MinSimilarity float64
}

// Retriever is the capability interface over evidence search.
// Implementations must filter server-side by Query.TenantID and order
// results with SortCandidates semantics.
type Retriever interface {
	Retrieve(ctx context.Context, q Query) ([]Candidate, error)
	Source() string
}

// UnavailableError signals that the retrieval backend could not be
// consulted (backend down, embedding computation failed, timeout). It is
// distinct from an empty result so the decider can tell "no evidence"
// from "could not check".
type UnavailableError struct {
	Mode string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("retrieval unavailable (%s): %v", e.Mode, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err carries the unavailable signal.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// SortCandidates orders by descending similarity; ties broken by document
// recency (newer document wins) then document id ascending for determinism.
func SortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Similarity != cands[j].Similarity {
			return cands[i].Similarity > cands[j].Similarity
		}
		if !cands[i].DocumentCreatedAt.Equal(cands[j].DocumentCreatedAt) {
			return cands[i].DocumentCreatedAt.After(cands[j].DocumentCreatedAt)
		}
		return cands[i].DocumentID < cands[j].DocumentID
	})
}

// TopSimilarity returns the best similarity in the set, 0 when empty.
func TopSimilarity(cands []Candidate) float64 {
	top := 0.0
	for _, c := range cands {
		if c.Similarity > top {
			top = c.Similarity
		}
	}
	return top
}

// ModeRouter selects the retriever implementation for a tenant's policy.
// Auto mode routes hashtag-bearing queries to lexical search and everything
// else to vector search; it never falls back across modes on failure.
type ModeRouter struct {
	vector  Retriever
	lexical Retriever
}

func NewModeRouter(vector, lexical Retriever) *ModeRouter {
	return &ModeRouter{vector: vector, lexical: lexical}
}

// ForQuery resolves the retriever for one invocation.
func (r *ModeRouter) ForQuery(mode, queryText string) Retriever {
	switch mode {
	case tenant.ModeLexical:
		return r.lexical
	case tenant.ModeVector:
		return r.vector
	default: // auto
		if len(ExtractHashtags(queryText)) > 0 {
			return r.lexical
		}
		return r.vector
	}
}

// ExtractHashtags returns lowercase #tags found in the text, hash stripped.
func ExtractHashtags(text string) []string {
	var tags []string
	for _, field := range strings.Fields(text) {
		if len(field) > 1 && strings.HasPrefix(field, "#") {
			tag := strings.ToLower(strings.Trim(field[1:], ".,;:!?"))
			if tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

// KeywordTerms extracts up to max search terms: lowercase tokens longer
// than three characters, punctuation trimmed, order preserved.
func KeywordTerms(text string, max int) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		term := strings.Trim(field, ".,;:!?\"'()")
		if len(term) <= 3 {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
		if len(terms) >= max {
			break
		}
	}
	return terms
}
