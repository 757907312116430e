package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaydesk/relaydesk/internal/domain/conversation"
	"github.com/relaydesk/relaydesk/internal/domain/generation"
	"github.com/relaydesk/relaydesk/internal/domain/guardrail"
	"github.com/relaydesk/relaydesk/internal/domain/retrieval"
	"github.com/relaydesk/relaydesk/internal/domain/run"
	"github.com/relaydesk/relaydesk/internal/domain/tenant"
	"github.com/relaydesk/relaydesk/internal/domain/ticket"
	"github.com/relaydesk/relaydesk/internal/metrics"
	"github.com/relaydesk/relaydesk/internal/telemetry"
)

// DefaultChannel is assumed when the caller does not name one.
const DefaultChannel = "web"

var (
	ErrTenantNotFound       = errors.New("tenant not found")
	ErrConversationNotFound = errors.New("conversation not found")
)

// TenantMismatchError is the fatal isolation failure: a record outside the
// caller's tenant surfaced inside the pipeline. It aborts the request and is
// logged as a security-relevant event.
type TenantMismatchError struct {
	RequestTenant  string
	ResourceTenant string
	Resource       string
}

func (e *TenantMismatchError) Error() string {
	return fmt.Sprintf("tenant mismatch: %s belongs to tenant %s, request scoped to %s",
		e.Resource, e.ResourceTenant, e.RequestTenant)
}

// ChatRequest is one inbound user message. MessageID is the optional
// client-supplied idempotency key: retries carrying the same id converge on
// one message row, one run, and one ticket.
type ChatRequest struct {
	TenantID       string
	ConversationID string
	MessageID      string
	UserID         string
	Channel        string
	Message        string
	Metadata       map[string]any
}

// ChatResponse is the governed outcome returned to the chat collaborator.
type ChatResponse struct {
	ConversationID string                `json:"conversation_id"`
	MessageID      string                `json:"message_id"`
	Reply          string                `json:"reply"`
	Action         string                `json:"action"`
	Confidence     float64               `json:"confidence"`
	TicketID       string                `json:"ticket_id,omitempty"`
	MissingFields  []string              `json:"missing_fields,omitempty"`
	Citations      []generation.Citation `json:"citations,omitempty"`
}

// Service runs the message pipeline: persist -> context -> retrieve ->
// select -> generate -> decide -> side effect -> record. One synchronous
// pipeline per message; stages share nothing across requests beyond the
// tenant-scoped stores.
type Service struct {
	tenants  tenant.Repository
	convs    conversation.Repository
	contexts *conversation.ContextBuilder
	router   *retrieval.ModeRouter
	reranker retrieval.Reranker
	gen      *generation.Generator
	decider  *guardrail.Decider
	tickets  *ticket.Dispatcher
	recorder *run.Recorder
	policy   tenant.Policy
}

func NewService(
	tenants tenant.Repository,
	convs conversation.Repository,
	contexts *conversation.ContextBuilder,
	router *retrieval.ModeRouter,
	reranker retrieval.Reranker,
	gen *generation.Generator,
	decider *guardrail.Decider,
	tickets *ticket.Dispatcher,
	recorder *run.Recorder,
	policy tenant.Policy,
) *Service {
	return &Service{
		tenants:  tenants,
		convs:    convs,
		contexts: contexts,
		router:   router,
		reranker: reranker,
		gen:      gen,
		decider:  decider,
		tickets:  tickets,
		recorder: recorder,
		policy:   policy,
	}
}

// HandleMessage processes one user message end to end and returns the
// decision. Exactly one AgentRun is recorded for every message that was
// persisted, including aborted and canceled pipelines.
func (s *Service) HandleMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "agent.handle_message",
		trace.WithAttributes(attribute.String("tenant.id", req.TenantID)))
	defer span.End()

	log.Ctx(ctx).Info().
		Str("tenant_id", req.TenantID).
		Str("conversation_id", req.ConversationID).
		Str("channel", req.Channel).
		Msg("request_started")

	ten, err := s.tenants.FindByID(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}
	if ten == nil {
		return nil, ErrTenantNotFound
	}
	pol := ten.ResolvePolicy(s.policy)

	conv, err := s.ensureConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	userMsg := &conversation.Message{
		ID:             req.MessageID,
		ConversationID: conv.ID,
		Role:           conversation.RoleUser,
		Content:        req.Message,
		Metadata:       req.Metadata,
	}
	if err := s.convs.AppendMessage(ctx, req.TenantID, userMsg); err != nil {
		// The message id keys ticket idempotency and the run record;
		// nothing downstream is safe without it.
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	window := s.contexts.Build(ctx, req.TenantID, conv.ID, pol.ContextWindow, pol.ContextMaxChars)
	clarifyCount := conversation.CountClarifyingPrompts(window, guardrail.ClarifyPrompt)
	queryText := conversation.BuildRetrievalQuery(window, req.Message, guardrail.ClarifyPrompt)

	outcome, retrievalMS, err := s.retrieve(ctx, req, pol, queryText)
	if err != nil {
		return nil, err
	}

	var generationMS int64
	generate := func(gctx context.Context) (*generation.Result, error) {
		gctx, cancel := context.WithTimeout(gctx, pol.GenerationTimeout)
		defer cancel()
		gstart := time.Now()
		res, gerr := s.gen.Generate(gctx, generation.Input{
			Message:    req.Message,
			Context:    window.Rendered,
			TenantName: ten.Name,
			Evidence:   outcome.Evidence,
		})
		generationMS = time.Since(gstart).Milliseconds()
		metrics.RecordStage("generation", time.Since(gstart).Seconds())
		return res, gerr
	}

	decision := s.decider.Decide(ctx, guardrail.Input{
		Message:         req.Message,
		Policy:          pol,
		ContextDegraded: window.Degraded,
		ClarifyCount:    clarifyCount,
		Retrieval:       outcome,
		Generate:        generate,
	})
	metrics.RecordDecision(decision.Action, decision.Reason)
	span.SetAttributes(
		attribute.String("decision.action", decision.Action),
		attribute.String("decision.reason", decision.Reason),
	)
	log.Ctx(ctx).Info().
		Str("action", decision.Action).
		Str("reason", decision.Reason).
		Strs("guardrails_triggered", decision.Guardrails).
		Bool("has_citations", len(decision.Citations) > 0).
		Float64("confidence", decision.Confidence).
		Msg("decision_made")

	ar := &run.AgentRun{
		TenantID:          req.TenantID,
		ConversationID:    conv.ID,
		MessageID:         userMsg.ID,
		Action:            decision.Action,
		DecisionReason:    decision.Reason,
		Guardrails:        decision.Guardrails,
		Confidence:        decision.Confidence,
		Citations:         decision.Citations,
		RetrievalSource:   outcome.Source,
		RetrievalMS:       retrievalMS,
		PromptTokensEst:   run.EstimateTokens(window.Rendered) + run.EstimateTokens(req.Message),
		ResponseTokensEst: run.EstimateTokens(decision.ReplyText),
		Input: run.InputSnapshot{
			Message:       req.Message,
			RetrievalMode: pol.RetrievalMode,
			ContextChars:  len(window.Rendered),
			Evidence:      evidenceRefs(outcome.Evidence),
		},
		Output: run.OutputSnapshot{
			ReplyText:     decision.ReplyText,
			MissingFields: decision.MissingFields,
		},
	}

	ticketID, err := s.dispatchTicket(ctx, req, conv.ID, userMsg.ID, decision)
	if err != nil {
		// The decision demanded a side effect that never happened; the
		// trace is still written so the failure is auditable.
		ar.Status = run.StatusIncomplete
		ar.GenerationMS = generationMS
		ar.TotalMS = time.Since(start).Milliseconds()
		s.recorder.Record(ctx, ar)
		return nil, err
	}
	ar.Output.TicketID = ticketID

	s.appendAssistantMessage(ctx, req.TenantID, conv.ID, decision, ticketID)

	ar.GenerationMS = generationMS
	ar.TotalMS = time.Since(start).Milliseconds()
	s.recorder.Record(ctx, ar)

	event := "reply_sent"
	if decision.Action == guardrail.ActionCreateTicket || decision.Action == guardrail.ActionEscalate {
		event = "handoff_sent"
	}
	log.Ctx(ctx).Info().
		Int64("latency_ms", ar.TotalMS).
		Int("tokens_estimated", ar.PromptTokensEst+ar.ResponseTokensEst).
		Str("action", decision.Action).
		Msg(event)

	return &ChatResponse{
		ConversationID: conv.ID,
		MessageID:      userMsg.ID,
		Reply:          decision.ReplyText,
		Action:         decision.Action,
		Confidence:     decision.Confidence,
		TicketID:       ticketID,
		MissingFields:  decision.MissingFields,
		Citations:      decision.Citations,
	}, nil
}

// ensureConversation loads the conversation or creates one when the request
// names none. A conversation that resolves to another tenant is the fatal
// isolation failure, not a lookup miss.
func (s *Service) ensureConversation(ctx context.Context, req ChatRequest) (*conversation.Conversation, error) {
	if req.ConversationID == "" {
		channel := req.Channel
		if channel == "" {
			channel = DefaultChannel
		}
		conv := &conversation.Conversation{TenantID: req.TenantID, Channel: channel}
		if err := s.convs.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		return conv, nil
	}

	conv, err := s.convs.FindConversation(ctx, req.TenantID, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if conv.TenantID != req.TenantID {
		mismatch := &TenantMismatchError{
			RequestTenant:  req.TenantID,
			ResourceTenant: conv.TenantID,
			Resource:       "conversation " + conv.ID,
		}
		log.Ctx(ctx).Error().
			Str("tenant_id", req.TenantID).
			Str("resource_tenant_id", conv.TenantID).
			Str("conversation_id", conv.ID).
			Msg("tenant_mismatch")
		return nil, mismatch
	}
	return conv, nil
}

// retrieve runs the retrieval and selection stages under the policy timeout.
// Backend failure of any kind collapses to the unavailable signal; it never
// reaches the caller as a raw error. The returned outcome only ever contains
// candidates of the requesting tenant; anything else aborts the request.
func (s *Service) retrieve(ctx context.Context, req ChatRequest, pol tenant.Policy, queryText string) (guardrail.RetrievalOutcome, int64, error) {
	var outcome guardrail.RetrievalOutcome
	if !guardrail.ShouldRetrieve(req.Message) {
		return outcome, 0, nil
	}

	retriever := s.router.ForQuery(pol.RetrievalMode, queryText)

	rctx, cancel := context.WithTimeout(ctx, pol.RetrievalTimeout)
	defer cancel()
	rstart := time.Now()
	cands, err := retriever.Retrieve(rctx, retrieval.Query{
		TenantID:      req.TenantID,
		Text:          queryText,
		Limit:         pol.RetrievalLimit,
		MinSimilarity: pol.RetrievalMinSimilarity,
	})
	elapsed := time.Since(rstart)
	metrics.RecordStage("retrieval", elapsed.Seconds())

	if err != nil {
		outcome.Unavailable = true
		log.Ctx(ctx).Warn().
			Err(err).
			Str("mode", retriever.Source()).
			Msg("retrieval_unavailable")
		return outcome, elapsed.Milliseconds(), nil
	}

	for _, c := range cands {
		if c.TenantID != req.TenantID {
			log.Ctx(ctx).Error().
				Str("tenant_id", req.TenantID).
				Str("resource_tenant_id", c.TenantID).
				Str("chunk_id", c.ChunkID).
				Msg("tenant_mismatch")
			return outcome, elapsed.Milliseconds(), &TenantMismatchError{
				RequestTenant:  req.TenantID,
				ResourceTenant: c.TenantID,
				Resource:       "kb chunk " + c.ChunkID,
			}
		}
	}

	evidence := retrieval.Select(cands, retrieval.SelectorOptions{
		MaxEvidence:    pol.MaxEvidence,
		MaxPerDocShare: pol.MaxPerDocShare,
		MinSimilarity:  pol.RetrievalMinSimilarity,
	})
	if pol.RerankEnabled && s.reranker != nil {
		evidence = s.reranker.Rerank(queryText, evidence)
	}

	outcome.Source = retriever.Source()
	outcome.Evidence = evidence
	metrics.RecordRetrieval(len(cands))
	log.Ctx(ctx).Info().
		Int64("latency_ms", elapsed.Milliseconds()).
		Int("candidate_count", len(cands)).
		Float64("top_similarity", retrieval.TopSimilarity(cands)).
		Str("source", outcome.Source).
		Msg("retrieval_done")

	return outcome, elapsed.Milliseconds(), nil
}

// dispatchTicket runs the ticket side effect for handoff decisions.
func (s *Service) dispatchTicket(ctx context.Context, req ChatRequest, conversationID, messageID string, decision guardrail.Decision) (string, error) {
	if decision.Action != guardrail.ActionCreateTicket && decision.Action != guardrail.ActionEscalate {
		return "", nil
	}
	tk, err := s.tickets.Dispatch(ctx, ticket.Request{
		TenantID:       req.TenantID,
		ConversationID: conversationID,
		MessageID:      messageID,
		Message:        req.Message,
		Priority:       decision.TicketPriority,
	})
	if err != nil {
		return "", fmt.Errorf("dispatch ticket: %w", err)
	}
	return tk.ID, nil
}

// appendAssistantMessage persists the agent's turn. Failure here is logged
// and swallowed: the decision is already recorded in the run trace, and the
// response to the user must not depend on this write.
func (s *Service) appendAssistantMessage(ctx context.Context, tenantID, conversationID string, decision guardrail.Decision, ticketID string) {
	meta := map[string]any{
		"action":          decision.Action,
		"decision_reason": decision.Reason,
	}
	if len(decision.Citations) > 0 {
		meta["citations"] = decision.Citations
	}
	if ticketID != "" {
		meta["ticket_id"] = ticketID
	}

	msg := &conversation.Message{
		ConversationID: conversationID,
		Role:           conversation.RoleAssistant,
		Content:        decision.ReplyText,
		Metadata:       meta,
	}
	if err := s.convs.AppendMessage(ctx, tenantID, msg); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Str("conversation_id", conversationID).
			Msg("assistant_message_append_failed")
	}
}

func evidenceRefs(evidence []retrieval.Candidate) []run.EvidenceRef {
	refs := make([]run.EvidenceRef, 0, len(evidence))
	for _, ev := range evidence {
		refs = append(refs, run.EvidenceRef{
			ChunkID:    ev.ChunkID,
			DocumentID: ev.DocumentID,
			Similarity: ev.Similarity,
			Source:     ev.Source,
		})
	}
	return refs
}
