package search

import (
	"context"
	"errors"
	"testing"

	"github.com/relaydesk/relaydesk/internal/domain/retrieval"
)

type failingEmbedder struct {
	err error
}

func (f *failingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, f.err
}

func TestVectorRetriever_EmbedFailureIsUnavailable(t *testing.T) {
	backendErr := errors.New("embedding backend down")
	r := NewVectorRetriever(nil, &failingEmbedder{err: backendErr})

	_, err := r.Retrieve(context.Background(), retrieval.Query{TenantID: "t1", Text: "refund policy"})
	if err == nil {
		t.Fatal("expected error when embedding fails")
	}

	var unavailable *retrieval.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %T: %v", err, err)
	}
	if unavailable.Mode != retrieval.SourceVector {
		t.Errorf("Mode = %q, want %q", unavailable.Mode, retrieval.SourceVector)
	}
	if !errors.Is(err, backendErr) {
		t.Error("expected wrapped backend error to survive")
	}
}

func TestEmbeddingToString(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want string
	}{
		{"empty", nil, "[]"},
		{"single", []float32{0.5}, "[0.500000]"},
		{"mixed signs", []float32{0.5, -1}, "[0.500000,-1.000000]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := embeddingToString(tt.in); got != tt.want {
				t.Errorf("embeddingToString(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
