package guardrail

import (
	"context"

	"github.com/relaydesk/relaydesk/internal/domain/generation"
	"github.com/relaydesk/relaydesk/internal/domain/retrieval"
	"github.com/relaydesk/relaydesk/internal/domain/tenant"
)

// Terminal decision actions.
const (
	ActionReply         = "reply"
	ActionAskClarifying = "ask_clarifying"
	ActionCreateTicket  = "create_ticket"
	ActionEscalate      = "escalate"
)

// Decision reasons: stable machine-readable codes. The evaluation harness
// asserts on these, so they are part of the external contract.
const (
	ReasonIncidentDetected     = "incident_detected"
	ReasonEmptyMessage         = "empty_message"
	ReasonNeedsDetail          = "needs_detail"
	ReasonRetrievalUnavailable = "retrieval_unavailable"
	ReasonNoEvidence           = "no_evidence"
	ReasonLowSimilarity        = "low_similarity"
	ReasonVectorMatch          = "kb_vector_match"
	ReasonLexicalMatch         = "kb_lexical_match"
	ReasonLowConfidence        = "low_confidence"
	ReasonMissingCitations     = "missing_citations"
	ReasonGenerationFailure    = "generation_failure"
	ReasonUnspecified          = "unspecified"
)

// Guardrail names reported in guardrails_triggered.
const (
	GuardIncidentKeyword  = "incident_keyword"
	GuardPrecheck         = "message_precheck"
	GuardRetrievalGate    = "retrieval_gate"
	GuardSimilarityFloor  = "similarity_floor"
	GuardClarifyExhausted = "clarify_exhausted"
	GuardCitationRequired = "citation_required"
	GuardConfidenceFloor  = "confidence_floor"
	GuardGenerationGate   = "generation_gate"
	GuardContextDegraded  = "context_degraded"
)

// Ticket priorities attached to handoff decisions. Values match the
// ticket domain's priority set.
const (
	priorityNormal = "normal"
	priorityHigh   = "high"
)

// ClarifyPrompt is the canonical clarifying question sent back to users.
const ClarifyPrompt = "Can you add more context (account, steps, and expected behavior)?"

// clarifyMissingFields names the information the clarifying prompt asks for.
var clarifyMissingFields = []string{"account", "steps", "expected_behavior"}

// Handoff reply texts.
const (
	ticketReply   = "This looks like something the support team should handle. I've opened a ticket and someone will follow up shortly."
	escalateReply = "I couldn't produce a reliable answer, so I'm handing this over to the team. A ticket is open for follow-up."
)

// Decision is the single governed outcome of one processed message.
type Decision struct {
	Action         string                `json:"action"`
	Reason         string                `json:"decision_reason"`
	Guardrails     []string              `json:"guardrails_triggered"`
	Confidence     float64               `json:"confidence"`
	ReplyText      string                `json:"reply_text"`
	Citations      []generation.Citation `json:"citations,omitempty"`
	MissingFields  []string              `json:"missing_fields,omitempty"`
	TicketPriority string                `json:"-"`
}

// RetrievalOutcome is what the retrieve+select stages produced.
type RetrievalOutcome struct {
	Unavailable bool
	Source      string
	Evidence    []retrieval.Candidate
}

// GenerateFunc runs answer synthesis over the selected evidence. The table
// invokes it at most once, and only when evidence exists.
type GenerateFunc func(ctx context.Context) (*generation.Result, error)

// Input is everything a transition rule may consult.
type Input struct {
	Message         string
	Policy          tenant.Policy
	ContextDegraded bool
	// ClarifyCount is how many clarifying prompts this conversation has
	// already received; drives escalation-by-exhaustion.
	ClarifyCount int
	Retrieval    RetrievalOutcome
	Generate     GenerateFunc

	generated    *generation.Result
	generateErr  error
	generateDone bool
}

// generation runs the generator once and memoizes the outcome so multiple
// rules can consult it.
func (in *Input) generation(ctx context.Context) (*generation.Result, error) {
	if !in.generateDone {
		in.generateDone = true
		if in.Generate == nil {
			in.generateErr = &generation.FailureError{Stage: "request", Err: context.Canceled}
		} else {
			in.generated, in.generateErr = in.Generate(ctx)
		}
	}
	return in.generated, in.generateErr
}

func (in *Input) clarifyExhausted() bool {
	return in.Policy.ClarifyLimit > 0 && in.ClarifyCount >= in.Policy.ClarifyLimit
}

// rule is one transition of the table: a name for the trace and an
// evaluator that either claims the input or passes.
type rule struct {
	name string
	eval func(ctx context.Context, in *Input) *Decision
}

// Decider is the ordered, total transition table. Rules are evaluated
// first-match-wins; the final rule matches unconditionally, so every
// input reaches a defined action.
type Decider struct {
	rules []rule
}

func NewDecider() *Decider {
	return &Decider{rules: transitionTable()}
}

// Decide runs the table. Every decision carries a non-empty reason and the
// guardrails that fired; context degradation is appended to whatever rule
// claimed the input.
func (d *Decider) Decide(ctx context.Context, in Input) Decision {
	for _, r := range d.rules {
		if dec := r.eval(ctx, &in); dec != nil {
			if in.ContextDegraded {
				dec.Guardrails = append(dec.Guardrails, GuardContextDegraded)
			}
			if dec.Guardrails == nil {
				dec.Guardrails = []string{}
			}
			return *dec
		}
	}
	// Unreachable: the table is total.
	return Decision{
		Action:        ActionAskClarifying,
		Reason:        ReasonUnspecified,
		Guardrails:    []string{},
		Confidence:    0.2,
		ReplyText:     ClarifyPrompt,
		MissingFields: clarifyMissingFields,
	}
}

// Rules returns the ordered rule names, primarily for trace inspection.
func (d *Decider) Rules() []string {
	names := make([]string, len(d.rules))
	for i, r := range d.rules {
		names[i] = r.name
	}
	return names
}

func transitionTable() []rule {
	return []rule{
		{name: "incident_signal", eval: func(_ context.Context, in *Input) *Decision {
			if !IsIncidentSignal(in.Message) {
				return nil
			}
			return &Decision{
				Action:         ActionCreateTicket,
				Reason:         ReasonIncidentDetected,
				Guardrails:     []string{GuardIncidentKeyword},
				Confidence:     0.35,
				ReplyText:      ticketReply,
				TicketPriority: priorityHigh,
			}
		}},
		{name: "empty_message", eval: func(_ context.Context, in *Input) *Decision {
			if !IsBlank(in.Message) {
				return nil
			}
			return clarify(ReasonEmptyMessage, 0.2, GuardPrecheck)
		}},
		{name: "needs_detail", eval: func(_ context.Context, in *Input) *Decision {
			if !IsTooShort(in.Message) {
				return nil
			}
			return clarify(ReasonNeedsDetail, 0.45, GuardPrecheck)
		}},
		{name: "retrieval_unavailable", eval: func(_ context.Context, in *Input) *Decision {
			if !in.Retrieval.Unavailable {
				return nil
			}
			return clarify(ReasonRetrievalUnavailable, 0.2, GuardRetrievalGate)
		}},
		{name: "no_evidence", eval: func(_ context.Context, in *Input) *Decision {
			if len(in.Retrieval.Evidence) > 0 {
				return nil
			}
			if in.clarifyExhausted() {
				return exhaustedTicket(ReasonNoEvidence)
			}
			return clarify(ReasonNoEvidence, 0.3, GuardRetrievalGate)
		}},
		{name: "similarity_floor", eval: func(_ context.Context, in *Input) *Decision {
			top := retrieval.TopSimilarity(in.Retrieval.Evidence)
			if top >= in.Policy.ReplyMinSimilarity {
				return nil
			}
			if in.clarifyExhausted() {
				return exhaustedTicket(ReasonLowSimilarity)
			}
			dec := clarify(ReasonLowSimilarity, min(top, 0.4), GuardSimilarityFloor)
			return dec
		}},
		{name: "generation_failure", eval: func(ctx context.Context, in *Input) *Decision {
			if _, err := in.generation(ctx); err == nil {
				return nil
			}
			return &Decision{
				Action:         ActionEscalate,
				Reason:         ReasonGenerationFailure,
				Guardrails:     []string{GuardGenerationGate},
				Confidence:     0.2,
				ReplyText:      escalateReply,
				TicketPriority: priorityNormal,
			}
		}},
		{name: "missing_citations", eval: func(ctx context.Context, in *Input) *Decision {
			res, _ := in.generation(ctx)
			if len(res.Citations) > 0 {
				return nil
			}
			// Absolute rule: reply is never returned without a citation.
			dec := clarify(ReasonMissingCitations, min(res.Confidence, 0.4), GuardCitationRequired)
			return dec
		}},
		{name: "confidence_floor", eval: func(ctx context.Context, in *Input) *Decision {
			res, _ := in.generation(ctx)
			if res.Confidence >= in.Policy.ReplyMinSimilarity {
				return nil
			}
			return clarify(ReasonLowConfidence, min(res.Confidence, 0.4), GuardConfidenceFloor)
		}},
		{name: "reply", eval: func(ctx context.Context, in *Input) *Decision {
			res, _ := in.generation(ctx)
			reason := ReasonVectorMatch
			if in.Retrieval.Source == retrieval.SourceLexical {
				reason = ReasonLexicalMatch
			}
			return &Decision{
				Action:     ActionReply,
				Reason:     reason,
				Guardrails: []string{},
				Confidence: res.Confidence,
				ReplyText:  res.ReplyText,
				Citations:  res.Citations,
			}
		}},
	}
}

func clarify(reason string, confidence float64, guards ...string) *Decision {
	return &Decision{
		Action:        ActionAskClarifying,
		Reason:        reason,
		Guardrails:    guards,
		Confidence:    confidence,
		ReplyText:     ClarifyPrompt,
		MissingFields: clarifyMissingFields,
	}
}

func exhaustedTicket(reason string) *Decision {
	return &Decision{
		Action:         ActionCreateTicket,
		Reason:         reason,
		Guardrails:     []string{GuardClarifyExhausted},
		Confidence:     0.4,
		ReplyText:      ticketReply,
		TicketPriority: priorityNormal,
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
