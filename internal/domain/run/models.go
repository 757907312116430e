package run

import (
	"context"
	"time"

	"github.com/relaydesk/relaydesk/internal/domain/generation"
)

// Run statuses. A run is incomplete when the caller's context was canceled
// before the pipeline finished; the trace is still written.
const (
	StatusComplete   = "complete"
	StatusIncomplete = "incomplete"
)

// EvidenceRef is the snapshot of one selected candidate at decision time.
// Stored with the run so a decision can be audited even after the KB moves.
type EvidenceRef struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Similarity float64 `json:"similarity"`
	Source     string  `json:"source"`
}

// InputSnapshot captures what the pipeline saw.
type InputSnapshot struct {
	Message       string        `json:"message"`
	RetrievalMode string        `json:"retrieval_mode"`
	ContextChars  int           `json:"context_chars"`
	Evidence      []EvidenceRef `json:"evidence"`
}

// OutputSnapshot captures what the pipeline produced.
type OutputSnapshot struct {
	ReplyText     string   `json:"reply_text"`
	MissingFields []string `json:"missing_fields,omitempty"`
	TicketID      string   `json:"ticket_id,omitempty"`
}

// AgentRun is the append-only audit record of one processed message.
// Exactly one run exists per message that entered the pipeline.
type AgentRun struct {
	ID                 string                `json:"id"`
	TenantID           string                `json:"tenant_id"`
	ConversationID     string                `json:"conversation_id"`
	MessageID          string                `json:"message_id"`
	Action             string                `json:"action"`
	DecisionReason     string                `json:"decision_reason"`
	Guardrails         []string              `json:"guardrails_triggered"`
	Confidence         float64               `json:"confidence"`
	Input              InputSnapshot         `json:"input_snapshot"`
	Output             OutputSnapshot        `json:"output_snapshot"`
	Citations          []generation.Citation `json:"citations,omitempty"`
	RetrievalSource    string                `json:"retrieval_source,omitempty"`
	RetrievalMS        int64                 `json:"retrieval_ms"`
	GenerationMS       int64                 `json:"generation_ms"`
	TotalMS            int64                 `json:"total_ms"`
	PromptTokensEst    int                   `json:"prompt_tokens_estimated"`
	ResponseTokensEst  int                   `json:"response_tokens_estimated"`
	Status             string                `json:"status"`
	CreatedAt          time.Time             `json:"created_at"`
}

// EstimateTokens is the coarse chars/4 estimate recorded with each run.
// Good enough for capacity dashboards; never used for billing.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Repository persists and reads run records. Runs are append-only: there is
// no update or delete path.
type Repository interface {
	Create(ctx context.Context, r *AgentRun) error
	FindByID(ctx context.Context, tenantID, id string) (*AgentRun, error)
	ListByConversation(ctx context.Context, tenantID, conversationID string, limit int) ([]AgentRun, error)
}
