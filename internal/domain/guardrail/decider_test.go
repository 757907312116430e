package guardrail

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relaydesk/relaydesk/internal/domain/generation"
	"github.com/relaydesk/relaydesk/internal/domain/retrieval"
	"github.com/relaydesk/relaydesk/internal/domain/tenant"
)

func testPolicy() tenant.Policy {
	return tenant.Policy{
		ReplyMinSimilarity: 0.35,
		ClarifyLimit:       2,
	}
}

func evidence(sims ...float64) []retrieval.Candidate {
	out := make([]retrieval.Candidate, 0, len(sims))
	for i, s := range sims {
		out = append(out, retrieval.Candidate{
			ChunkID:    fmt.Sprintf("chunk-%d", i+1),
			DocumentID: fmt.Sprintf("doc-%d", i+1),
			Content:    "How to rotate API keys: open settings, revoke the old key, issue a new one.",
			Similarity: s,
			Source:     retrieval.SourceVector,
		})
	}
	return out
}

func genOK(confidence float64) GenerateFunc {
	return func(ctx context.Context) (*generation.Result, error) {
		return &generation.Result{
			ReplyText:  "Rotate the key from the settings page.",
			Citations:  []generation.Citation{{KBDocumentID: "doc-1", KBChunkID: "chunk-1"}},
			Confidence: confidence,
		}, nil
	}
}

func genNoCitations(confidence float64) GenerateFunc {
	return func(ctx context.Context) (*generation.Result, error) {
		return &generation.Result{
			ReplyText:  "Maybe try the settings page.",
			Confidence: confidence,
		}, nil
	}
}

func genFail() GenerateFunc {
	return func(ctx context.Context) (*generation.Result, error) {
		return nil, &generation.FailureError{Stage: "timeout", Err: errors.New("upstream deadline")}
	}
}

func TestDecider_IncidentSignalWinsOverEverything(t *testing.T) {
	d := NewDecider()
	dec := d.Decide(context.Background(), Input{
		Message: "The login page is broken and customers cannot sign in",
		Policy:  testPolicy(),
		Retrieval: RetrievalOutcome{
			Source:   retrieval.SourceVector,
			Evidence: evidence(0.92),
		},
		Generate: genOK(0.9),
	})

	assert.Equal(t, ActionCreateTicket, dec.Action)
	assert.Equal(t, ReasonIncidentDetected, dec.Reason)
	assert.Equal(t, "high", dec.TicketPriority)
	assert.Contains(t, dec.Guardrails, GuardIncidentKeyword)
	assert.InDelta(t, 0.35, dec.Confidence, 1e-9)
	assert.NotEmpty(t, dec.ReplyText)
	assert.Empty(t, dec.Citations)
}

func TestDecider_Prechecks(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		reason     string
		confidence float64
	}{
		{name: "blank", message: "   ", reason: ReasonEmptyMessage, confidence: 0.2},
		{name: "whitespace and newlines", message: "\n\t ", reason: ReasonEmptyMessage, confidence: 0.2},
		{name: "too short", message: "help please", reason: ReasonNeedsDetail, confidence: 0.45},
		{name: "three words", message: "reset my password", reason: ReasonNeedsDetail, confidence: 0.45},
	}

	d := NewDecider()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := d.Decide(context.Background(), Input{
				Message: tt.message,
				Policy:  testPolicy(),
			})
			assert.Equal(t, ActionAskClarifying, dec.Action)
			assert.Equal(t, tt.reason, dec.Reason)
			assert.InDelta(t, tt.confidence, dec.Confidence, 1e-9)
			assert.Equal(t, ClarifyPrompt, dec.ReplyText)
			assert.Equal(t, []string{"account", "steps", "expected_behavior"}, dec.MissingFields)
		})
	}
}

func TestDecider_HashtagOnlyMessageSkipsShortCheck(t *testing.T) {
	// A tag lookup like "#billing" is a complete query even though it is
	// under the word floor; it must fall through to the retrieval rules.
	d := NewDecider()
	dec := d.Decide(context.Background(), Input{
		Message: "#billing",
		Policy:  testPolicy(),
		Retrieval: RetrievalOutcome{
			Source:   retrieval.SourceLexical,
			Evidence: evidence(0.8),
		},
		Generate: genOK(0.8),
	})

	assert.Equal(t, ActionReply, dec.Action)
	assert.Equal(t, ReasonLexicalMatch, dec.Reason)
}

func TestDecider_RetrievalUnavailableIsNotNoEvidence(t *testing.T) {
	d := NewDecider()

	unavailable := d.Decide(context.Background(), Input{
		Message:   "How do I rotate my API keys for the production account?",
		Policy:    testPolicy(),
		Retrieval: RetrievalOutcome{Unavailable: true},
	})
	assert.Equal(t, ActionAskClarifying, unavailable.Action)
	assert.Equal(t, ReasonRetrievalUnavailable, unavailable.Reason)
	assert.InDelta(t, 0.2, unavailable.Confidence, 1e-9)

	empty := d.Decide(context.Background(), Input{
		Message:   "How do I rotate my API keys for the production account?",
		Policy:    testPolicy(),
		Retrieval: RetrievalOutcome{Source: retrieval.SourceVector},
	})
	assert.Equal(t, ActionAskClarifying, empty.Action)
	assert.Equal(t, ReasonNoEvidence, empty.Reason)
	assert.InDelta(t, 0.3, empty.Confidence, 1e-9)
}

func TestDecider_LowSimilarityClarifiesWithCappedConfidence(t *testing.T) {
	d := NewDecider()
	dec := d.Decide(context.Background(), Input{
		Message: "How do I rotate my API keys for the production account?",
		Policy:  testPolicy(),
		Retrieval: RetrievalOutcome{
			Source:   retrieval.SourceVector,
			Evidence: evidence(0.21),
		},
	})

	assert.Equal(t, ActionAskClarifying, dec.Action)
	assert.Equal(t, ReasonLowSimilarity, dec.Reason)
	assert.Contains(t, dec.Guardrails, GuardSimilarityFloor)
	// Confidence mirrors the weak evidence, capped at 0.4.
	assert.InDelta(t, 0.21, dec.Confidence, 1e-9)
}

func TestDecider_ClarifyExhaustionEscalatesToTicket(t *testing.T) {
	tests := []struct {
		name     string
		outcome  RetrievalOutcome
		expected string
	}{
		{
			name:     "no evidence",
			outcome:  RetrievalOutcome{Source: retrieval.SourceVector},
			expected: ReasonNoEvidence,
		},
		{
			name: "low similarity",
			outcome: RetrievalOutcome{
				Source:   retrieval.SourceVector,
				Evidence: evidence(0.1),
			},
			expected: ReasonLowSimilarity,
		},
	}

	d := NewDecider()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := d.Decide(context.Background(), Input{
				Message:      "How do I rotate my API keys for the production account?",
				Policy:       testPolicy(),
				ClarifyCount: 2,
				Retrieval:    tt.outcome,
			})
			assert.Equal(t, ActionCreateTicket, dec.Action)
			assert.Equal(t, tt.expected, dec.Reason)
			assert.Equal(t, "normal", dec.TicketPriority)
			assert.Contains(t, dec.Guardrails, GuardClarifyExhausted)
		})
	}
}

func TestDecider_GenerationFailureEscalates(t *testing.T) {
	d := NewDecider()
	dec := d.Decide(context.Background(), Input{
		Message: "How do I rotate my API keys for the production account?",
		Policy:  testPolicy(),
		Retrieval: RetrievalOutcome{
			Source:   retrieval.SourceVector,
			Evidence: evidence(0.88),
		},
		Generate: genFail(),
	})

	assert.Equal(t, ActionEscalate, dec.Action)
	assert.Equal(t, ReasonGenerationFailure, dec.Reason)
	assert.Equal(t, "normal", dec.TicketPriority)
	assert.Contains(t, dec.Guardrails, GuardGenerationGate)
	assert.InDelta(t, 0.2, dec.Confidence, 1e-9)
}

func TestDecider_ReplyNeverReturnedWithoutCitations(t *testing.T) {
	d := NewDecider()
	dec := d.Decide(context.Background(), Input{
		Message: "How do I rotate my API keys for the production account?",
		Policy:  testPolicy(),
		Retrieval: RetrievalOutcome{
			Source:   retrieval.SourceVector,
			Evidence: evidence(0.88),
		},
		Generate: genNoCitations(0.9),
	})

	assert.Equal(t, ActionAskClarifying, dec.Action)
	assert.Equal(t, ReasonMissingCitations, dec.Reason)
	assert.Contains(t, dec.Guardrails, GuardCitationRequired)
	assert.LessOrEqual(t, dec.Confidence, 0.4)
}

func TestDecider_LowConfidenceClarifies(t *testing.T) {
	d := NewDecider()
	dec := d.Decide(context.Background(), Input{
		Message: "How do I rotate my API keys for the production account?",
		Policy:  testPolicy(),
		Retrieval: RetrievalOutcome{
			Source:   retrieval.SourceVector,
			Evidence: evidence(0.88),
		},
		Generate: genOK(0.12),
	})

	assert.Equal(t, ActionAskClarifying, dec.Action)
	assert.Equal(t, ReasonLowConfidence, dec.Reason)
	assert.Contains(t, dec.Guardrails, GuardConfidenceFloor)
	assert.InDelta(t, 0.12, dec.Confidence, 1e-9)
}

func TestDecider_ReplyReasonTracksRetrievalSource(t *testing.T) {
	d := NewDecider()

	vector := d.Decide(context.Background(), Input{
		Message: "How do I rotate my API keys for the production account?",
		Policy:  testPolicy(),
		Retrieval: RetrievalOutcome{
			Source:   retrieval.SourceVector,
			Evidence: evidence(0.88),
		},
		Generate: genOK(0.82),
	})
	assert.Equal(t, ActionReply, vector.Action)
	assert.Equal(t, ReasonVectorMatch, vector.Reason)
	assert.InDelta(t, 0.82, vector.Confidence, 1e-9)
	assert.Len(t, vector.Citations, 1)
	assert.Empty(t, vector.Guardrails)

	lexical := d.Decide(context.Background(), Input{
		Message: "Where is the #billing invoice export hidden in the dashboard?",
		Policy:  testPolicy(),
		Retrieval: RetrievalOutcome{
			Source:   retrieval.SourceLexical,
			Evidence: evidence(0.7),
		},
		Generate: genOK(0.7),
	})
	assert.Equal(t, ActionReply, lexical.Action)
	assert.Equal(t, ReasonLexicalMatch, lexical.Reason)
}

func TestDecider_GenerationInvokedAtMostOnce(t *testing.T) {
	calls := 0
	gen := func(ctx context.Context) (*generation.Result, error) {
		calls++
		return &generation.Result{
			ReplyText:  "Rotate the key from the settings page.",
			Citations:  []generation.Citation{{KBDocumentID: "doc-1", KBChunkID: "chunk-1"}},
			Confidence: 0.8,
		}, nil
	}

	d := NewDecider()
	dec := d.Decide(context.Background(), Input{
		Message: "How do I rotate my API keys for the production account?",
		Policy:  testPolicy(),
		Retrieval: RetrievalOutcome{
			Source:   retrieval.SourceVector,
			Evidence: evidence(0.88),
		},
		Generate: gen,
	})

	assert.Equal(t, ActionReply, dec.Action)
	assert.Equal(t, 1, calls)
}

func TestDecider_GenerationSkippedWhenPrecheckClaims(t *testing.T) {
	calls := 0
	gen := func(ctx context.Context) (*generation.Result, error) {
		calls++
		return nil, errors.New("must not be called")
	}

	d := NewDecider()
	dec := d.Decide(context.Background(), Input{
		Message:  "hi",
		Policy:   testPolicy(),
		Generate: gen,
	})

	assert.Equal(t, ActionAskClarifying, dec.Action)
	assert.Zero(t, calls)
}

func TestDecider_ContextDegradedAppendsGuardrail(t *testing.T) {
	d := NewDecider()
	dec := d.Decide(context.Background(), Input{
		Message:         "How do I rotate my API keys for the production account?",
		Policy:          testPolicy(),
		ContextDegraded: true,
		Retrieval: RetrievalOutcome{
			Source:   retrieval.SourceVector,
			Evidence: evidence(0.88),
		},
		Generate: genOK(0.8),
	})

	assert.Equal(t, ActionReply, dec.Action)
	assert.Contains(t, dec.Guardrails, GuardContextDegraded)
}

// Every decision carries a defined action, a reason code, and non-nil
// guardrails, no matter which branch claimed the input.
func TestDecider_TableIsTotal(t *testing.T) {
	inputs := []Input{
		{Message: "the site is down, urgent"},
		{Message: ""},
		{Message: "hi"},
		{Message: "How do I rotate my API keys?", Retrieval: RetrievalOutcome{Unavailable: true}},
		{Message: "How do I rotate my API keys for production?"},
		{Message: "How do I rotate my API keys for production?", Retrieval: RetrievalOutcome{Evidence: evidence(0.1)}},
		{Message: "How do I rotate my API keys for production?", Retrieval: RetrievalOutcome{Evidence: evidence(0.9)}, Generate: genFail()},
		{Message: "How do I rotate my API keys for production?", Retrieval: RetrievalOutcome{Evidence: evidence(0.9)}, Generate: genNoCitations(0.9)},
		{Message: "How do I rotate my API keys for production?", Retrieval: RetrievalOutcome{Evidence: evidence(0.9)}, Generate: genOK(0.05)},
		{Message: "How do I rotate my API keys for production?", Retrieval: RetrievalOutcome{Source: retrieval.SourceVector, Evidence: evidence(0.9)}, Generate: genOK(0.9)},
	}

	valid := map[string]bool{
		ActionReply:         true,
		ActionAskClarifying: true,
		ActionCreateTicket:  true,
		ActionEscalate:      true,
	}

	d := NewDecider()
	for i, in := range inputs {
		in.Policy = testPolicy()
		dec := d.Decide(context.Background(), in)
		assert.True(t, valid[dec.Action], "input %d produced unknown action %q", i, dec.Action)
		assert.NotEmpty(t, dec.Reason, "input %d has no reason", i)
		assert.NotNil(t, dec.Guardrails, "input %d has nil guardrails", i)
		assert.NotEmpty(t, dec.ReplyText, "input %d has no reply text", i)
		if dec.Action == ActionReply {
			assert.NotEmpty(t, dec.Citations, "input %d replied without citations", i)
		}
	}
}

func TestDecider_RuleOrderIsStable(t *testing.T) {
	d := NewDecider()
	assert.Equal(t, []string{
		"incident_signal",
		"empty_message",
		"needs_detail",
		"retrieval_unavailable",
		"no_evidence",
		"similarity_floor",
		"generation_failure",
		"missing_citations",
		"confidence_floor",
		"reply",
	}, d.Rules())
}
