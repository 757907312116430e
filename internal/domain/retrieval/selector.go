package retrieval

import "math"

// SelectorOptions bound the evidence set handed to generation.
type SelectorOptions struct {
	MaxEvidence    int     // hard cap on selected entries
	MaxPerDocShare float64 // max share of the set one document may supply
	MinSimilarity  float64 // floor below which candidates are dropped
}

// Select reduces ranked candidates to the evidence set: floor-filtered,
// deduplicated by chunk id, diversified so no single document exceeds its
// share, capped at MaxEvidence. Input order is preserved (candidates arrive
// ranked), so identical input yields identical output.
//
// The per-document cap is relaxed in a second pass when it would leave a
// single selected entry while further distinct eligible candidates exist:
// two pieces of evidence beat artificial diversity.
func Select(cands []Candidate, opts SelectorOptions) []Candidate {
	if opts.MaxEvidence <= 0 {
		return nil
	}

	perDocCap := opts.MaxEvidence
	if opts.MaxPerDocShare > 0 && opts.MaxPerDocShare < 1 {
		perDocCap = int(math.Ceil(float64(opts.MaxEvidence) * opts.MaxPerDocShare))
		if perDocCap < 1 {
			perDocCap = 1
		}
	}

	selected := pick(cands, opts, perDocCap)
	if len(selected) >= 2 || perDocCap >= opts.MaxEvidence {
		return selected
	}

	// Relax diversity when it starved the set below two entries.
	relaxed := pick(cands, opts, opts.MaxEvidence)
	if len(relaxed) > len(selected) {
		return relaxed[:min(len(relaxed), 2)]
	}
	return selected
}

func pick(cands []Candidate, opts SelectorOptions, perDocCap int) []Candidate {
	var selected []Candidate
	seenChunks := make(map[string]struct{})
	perDoc := make(map[string]int)

	for _, c := range cands {
		if len(selected) >= opts.MaxEvidence {
			break
		}
		if c.Similarity < opts.MinSimilarity {
			continue
		}
		if _, dup := seenChunks[c.ChunkID]; dup {
			continue
		}
		if perDoc[c.DocumentID] >= perDocCap {
			continue
		}
		seenChunks[c.ChunkID] = struct{}{}
		perDoc[c.DocumentID]++
		selected = append(selected, c)
	}
	return selected
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
