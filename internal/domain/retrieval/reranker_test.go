package retrieval

import (
	"reflect"
	"testing"
)

func TestTermOverlapReranker_PromotesTermMatches(t *testing.T) {
	r := NewTermOverlapReranker()
	evidence := []Candidate{
		{ChunkID: "c1", Similarity: 0.80, Content: "Billing overview and plan comparison."},
		{ChunkID: "c2", Similarity: 0.70, Content: "To export invoices, open the billing page and choose Export."},
	}

	got := r.Rerank("how do I export invoices", evidence)

	// c2 matches both query terms: 0.7*0.70 + 0.3*1.0 beats 0.7*0.80 + 0.
	if got[0].ChunkID != "c2" {
		t.Errorf("top = %q, want c2 promoted by term overlap", got[0].ChunkID)
	}
}

func TestTermOverlapReranker_SimilarityDominatesWithoutOverlap(t *testing.T) {
	r := NewTermOverlapReranker()
	evidence := []Candidate{
		{ChunkID: "c1", Similarity: 0.60, Content: "alpha"},
		{ChunkID: "c2", Similarity: 0.90, Content: "beta"},
	}

	got := r.Rerank("completely unrelated request", evidence)

	if got[0].ChunkID != "c2" {
		t.Errorf("top = %q, want c2 by similarity", got[0].ChunkID)
	}
}

func TestTermOverlapReranker_DoesNotMutateInput(t *testing.T) {
	r := NewTermOverlapReranker()
	evidence := []Candidate{
		{ChunkID: "c1", Similarity: 0.10, Content: "export invoices export invoices"},
		{ChunkID: "c2", Similarity: 0.90, Content: "nothing relevant"},
	}
	before := make([]Candidate, len(evidence))
	copy(before, evidence)

	r.Rerank("export invoices", evidence)

	if !reflect.DeepEqual(evidence, before) {
		t.Error("input slice was reordered in place")
	}
}

func TestTermOverlapReranker_StableForEqualScores(t *testing.T) {
	r := NewTermOverlapReranker()
	evidence := []Candidate{
		{ChunkID: "c1", Similarity: 0.50, Content: "first"},
		{ChunkID: "c2", Similarity: 0.50, Content: "second"},
		{ChunkID: "c3", Similarity: 0.50, Content: "third"},
	}

	got := r.Rerank("unrelated query terms", evidence)

	want := []string{"c1", "c2", "c3"}
	if !reflect.DeepEqual(chunkIDs(got), want) {
		t.Errorf("order = %v, want input order preserved", chunkIDs(got))
	}
}

func TestTermOverlapReranker_ShortSetsPassThrough(t *testing.T) {
	r := NewTermOverlapReranker()

	single := []Candidate{{ChunkID: "c1", Similarity: 0.5}}
	if got := r.Rerank("query", single); len(got) != 1 || got[0].ChunkID != "c1" {
		t.Errorf("single-element rerank changed the set: %v", got)
	}
	if got := r.Rerank("query", nil); got != nil {
		t.Errorf("nil rerank = %v, want nil", got)
	}
}
