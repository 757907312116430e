package generation

import (
	"strings"

	"github.com/relaydesk/relaydesk/internal/domain/retrieval"
)

const (
	confidenceCeiling = 0.95
	confidenceFloor   = 0.05
)

var uncertaintyPhrases = []string{
	"i don't know",
	"i do not know",
	"not sure",
	"cannot find",
	"can't find",
	"no information",
	"unable to determine",
	"unclear from the context",
}

// EstimateConfidence derives base confidence from evidence quality: the top
// similarity of the set, capped below certainty.
func EstimateConfidence(evidence []retrieval.Candidate) float64 {
	top := retrieval.TopSimilarity(evidence)
	return clamp(top, 0, confidenceCeiling)
}

// AdjustConfidence discounts the base for thin or hedged answers:
// fewer than two evidence entries, short supporting content, or reply text
// that reads uncertain.
func AdjustConfidence(base float64, evidence []retrieval.Candidate, reply string) float64 {
	adjusted := base

	if len(evidence) < 2 {
		adjusted *= 0.9
	}

	totalChars := 0
	for _, ev := range evidence {
		totalChars += len(ev.Content)
	}
	if totalChars < 400 {
		adjusted *= 0.8
	}

	if looksUncertain(reply) {
		adjusted *= 0.5
	}

	return clamp(adjusted, confidenceFloor, confidenceCeiling)
}

func looksUncertain(reply string) bool {
	reply = strings.ToLower(reply)
	for _, phrase := range uncertaintyPhrases {
		if strings.Contains(reply, phrase) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
