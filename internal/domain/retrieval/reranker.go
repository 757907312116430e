package retrieval

import (
	"sort"
	"strings"
)

// Reranker reorders selected evidence without changing membership. It is a
// secondary heuristic gate behind a per-tenant flag: raw similarity stays
// authoritative for guardrail thresholds, reranking only affects the order
// the generator sees evidence in.
type Reranker interface {
	Rerank(query string, evidence []Candidate) []Candidate
}

// TermOverlapReranker blends vector similarity with query term overlap.
type TermOverlapReranker struct {
	similarityWeight float64
	overlapWeight    float64
}

func NewTermOverlapReranker() *TermOverlapReranker {
	return &TermOverlapReranker{
		similarityWeight: 0.7,
		overlapWeight:    0.3,
	}
}

// Rerank orders evidence by blended score, stable for equal scores. The
// returned slice is a copy; the input is never mutated.
func (r *TermOverlapReranker) Rerank(query string, evidence []Candidate) []Candidate {
	if len(evidence) < 2 {
		return evidence
	}

	terms := KeywordTerms(query, 8)
	out := make([]Candidate, len(evidence))
	copy(out, evidence)

	scores := make(map[string]float64, len(out))
	for _, c := range out {
		scores[c.ChunkID] = r.similarityWeight*c.Similarity + r.overlapWeight*termOverlap(terms, c.Content)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i].ChunkID] > scores[out[j].ChunkID]
	})
	return out
}

// termOverlap is the fraction of query terms present in the content.
func termOverlap(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	content = strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(content, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
