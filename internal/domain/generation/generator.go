package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/relaydesk/relaydesk/internal/domain/retrieval"
)

const (
	systemPrompt = "You are a support agent. Answer using only the provided context. " +
		"If the context does not contain the answer, say you don't know. Keep replies concise."

	perChunkChars     = 1200
	totalContextChars = 6000
)

// ChatClient is the completion backend. The infrastructure implementation
// owns model selection, timeouts and retries.
type ChatClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Citation references the KB chunk supporting a reply.
type Citation struct {
	KBDocumentID string `json:"kb_document_id"`
	KBChunkID    string `json:"kb_chunk_id,omitempty"`
}

// Result is a grounded answer: reply text, citations limited to the
// evidence it was generated from, and evidence-derived confidence.
type Result struct {
	ReplyText  string     `json:"reply_text"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
}

// FailureError is the typed generation failure: the backend erred, timed
// out, or produced an empty completion. Never partial text.
type FailureError struct {
	Stage string // "request", "timeout", "empty"
	Err   error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Stage, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// IsFailure reports whether err is a typed generation failure.
func IsFailure(err error) bool {
	var fe *FailureError
	return errors.As(err, &fe)
}

// Input carries everything the generator needs for one answer.
type Input struct {
	Message    string
	Context    string // rendered conversation window
	TenantName string
	Evidence   []retrieval.Candidate
}

// Generator produces grounded answers. It is only reachable when evidence
// exists; the decider enforces that before invoking it.
type Generator struct {
	client ChatClient
}

func NewGenerator(client ChatClient) *Generator {
	return &Generator{client: client}
}

// Generate synthesizes a reply from the evidence set. Citations are built
// from the evidence entries themselves, so an id outside the set cannot
// appear. Confidence derives from evidence quality, not model self-report.
func (g *Generator) Generate(ctx context.Context, in Input) (*Result, error) {
	if len(in.Evidence) == 0 {
		return nil, fmt.Errorf("generator invoked without evidence")
	}

	reply, err := g.client.Complete(ctx, g.buildSystemPrompt(in.TenantName), buildUserPrompt(in))
	if err != nil {
		stage := "request"
		if errors.Is(err, context.DeadlineExceeded) {
			stage = "timeout"
		}
		return nil, &FailureError{Stage: stage, Err: err}
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, &FailureError{Stage: "empty", Err: errors.New("empty completion")}
	}

	citations := make([]Citation, 0, len(in.Evidence))
	for _, ev := range in.Evidence {
		citations = append(citations, Citation{
			KBDocumentID: ev.DocumentID,
			KBChunkID:    ev.ChunkID,
		})
	}

	confidence := AdjustConfidence(EstimateConfidence(in.Evidence), in.Evidence, reply)

	return &Result{
		ReplyText:  reply,
		Citations:  citations,
		Confidence: confidence,
	}, nil
}

func (g *Generator) buildSystemPrompt(tenantName string) string {
	if tenantName == "" {
		return systemPrompt
	}
	return systemPrompt + "\nYou answer on behalf of " + tenantName + "."
}

func buildUserPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("Context:\n")
	written := 0
	for _, ev := range in.Evidence {
		content := ev.Content
		if len(content) > perChunkChars {
			content = content[:perChunkChars]
		}
		block := fmt.Sprintf("[chunk_id=%s doc_id=%s title=%s]\n%s\n\n", ev.ChunkID, ev.DocumentID, ev.DocumentTitle, content)
		if written+len(block) > totalContextChars {
			break
		}
		b.WriteString(block)
		written += len(block)
	}

	if in.Context != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(in.Context)
		b.WriteString("\n\n")
	}

	b.WriteString("User question: ")
	b.WriteString(in.Message)
	return b.String()
}
