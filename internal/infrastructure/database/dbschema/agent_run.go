package dbschema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/relaydesk/relaydesk/internal/domain/generation"
	"github.com/relaydesk/relaydesk/internal/domain/run"
)

type AgentRun struct {
	ID                      string         `db:"id"`
	TenantID                string         `db:"tenant_id"`
	ConversationID          string         `db:"conversation_id"`
	MessageID               string         `db:"message_id"`
	Action                  string         `db:"action"`
	DecisionReason          string         `db:"decision_reason"`
	GuardrailsTriggered     pq.StringArray `db:"guardrails_triggered" gorm:"type:text[]"`
	Confidence              float64        `db:"confidence"`
	InputSnapshot           datatypes.JSON `db:"input_snapshot"`
	OutputSnapshot          datatypes.JSON `db:"output_snapshot"`
	Citations               datatypes.JSON `db:"citations"`
	RetrievalSource         string         `db:"retrieval_source"`
	RetrievalMS             int64          `db:"retrieval_ms"`
	GenerationMS            int64          `db:"generation_ms"`
	TotalMS                 int64          `db:"total_ms"`
	PromptTokensEstimated   int            `db:"prompt_tokens_estimated"`
	ResponseTokensEstimated int            `db:"response_tokens_estimated"`
	Status                  string         `db:"status"`
	CreatedAt               time.Time      `db:"created_at"`
}

// NewSchemaAgentRun serializes the snapshot columns; it can fail only if a
// snapshot carries something the JSON encoder rejects.
func NewSchemaAgentRun(d *run.AgentRun) (*AgentRun, error) {
	if d == nil {
		return nil, nil
	}

	input, err := json.Marshal(d.Input)
	if err != nil {
		return nil, fmt.Errorf("marshal input snapshot: %w", err)
	}
	output, err := json.Marshal(d.Output)
	if err != nil {
		return nil, fmt.Errorf("marshal output snapshot: %w", err)
	}
	var citations datatypes.JSON
	if len(d.Citations) > 0 {
		raw, err := json.Marshal(d.Citations)
		if err != nil {
			return nil, fmt.Errorf("marshal citations: %w", err)
		}
		citations = raw
	}

	return &AgentRun{
		ID:                      d.ID,
		TenantID:                d.TenantID,
		ConversationID:          d.ConversationID,
		MessageID:               d.MessageID,
		Action:                  d.Action,
		DecisionReason:          d.DecisionReason,
		GuardrailsTriggered:     pq.StringArray(d.Guardrails),
		Confidence:              d.Confidence,
		InputSnapshot:           input,
		OutputSnapshot:          output,
		Citations:               citations,
		RetrievalSource:         d.RetrievalSource,
		RetrievalMS:             d.RetrievalMS,
		GenerationMS:            d.GenerationMS,
		TotalMS:                 d.TotalMS,
		PromptTokensEstimated:   d.PromptTokensEst,
		ResponseTokensEstimated: d.ResponseTokensEst,
		Status:                  d.Status,
		CreatedAt:               d.CreatedAt,
	}, nil
}

func (s *AgentRun) EtoD() (*run.AgentRun, error) {
	if s == nil {
		return nil, nil
	}

	d := &run.AgentRun{
		ID:                s.ID,
		TenantID:          s.TenantID,
		ConversationID:    s.ConversationID,
		MessageID:         s.MessageID,
		Action:            s.Action,
		DecisionReason:    s.DecisionReason,
		Guardrails:        []string(s.GuardrailsTriggered),
		Confidence:        s.Confidence,
		RetrievalSource:   s.RetrievalSource,
		RetrievalMS:       s.RetrievalMS,
		GenerationMS:      s.GenerationMS,
		TotalMS:           s.TotalMS,
		PromptTokensEst:   s.PromptTokensEstimated,
		ResponseTokensEst: s.ResponseTokensEstimated,
		Status:            s.Status,
		CreatedAt:         s.CreatedAt,
	}

	if len(s.InputSnapshot) > 0 {
		if err := json.Unmarshal(s.InputSnapshot, &d.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input snapshot: %w", err)
		}
	}
	if len(s.OutputSnapshot) > 0 {
		if err := json.Unmarshal(s.OutputSnapshot, &d.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output snapshot: %w", err)
		}
	}
	if len(s.Citations) > 0 {
		var citations []generation.Citation
		if err := json.Unmarshal(s.Citations, &citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
		d.Citations = citations
	}

	return d, nil
}
