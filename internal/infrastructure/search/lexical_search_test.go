package search

import "testing"

func TestTagCoverage(t *testing.T) {
	tests := []struct {
		name      string
		queryTags []string
		docTags   []string
		want      float64
	}{
		{"all matched", []string{"billing", "refunds"}, []string{"Billing", "refunds", "payments"}, 1.0},
		{"half matched", []string{"billing", "shipping"}, []string{"billing"}, 0.5},
		{"none matched", []string{"billing"}, []string{"shipping"}, 0.0},
		{"no query tags", nil, []string{"billing"}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tagCoverage(tt.queryTags, tt.docTags); got != tt.want {
				t.Errorf("tagCoverage(%v, %v) = %v, want %v", tt.queryTags, tt.docTags, got, tt.want)
			}
		})
	}
}

func TestTermCoverage(t *testing.T) {
	content := "To request a refund, open the Billing page and follow the steps."

	tests := []struct {
		name  string
		terms []string
		want  float64
	}{
		{"all present", []string{"refund", "billing"}, 1.0},
		{"terms must be pre-lowercased", []string{"BILLING"}, 0.0},
		{"partial", []string{"refund", "invoice"}, 0.5},
		{"phrase term", []string{"open the billing page"}, 1.0},
		{"no terms", nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := termCoverage(tt.terms, content); got != tt.want {
				t.Errorf("termCoverage(%v) = %v, want %v", tt.terms, got, tt.want)
			}
		})
	}
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"100%", `100\%`},
		{"snake_case", `snake\_case`},
		{`back\slash`, `back\\slash`},
	}

	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
