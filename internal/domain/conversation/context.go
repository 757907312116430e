package conversation

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// Window is the bounded dialogue context handed to retrieval and generation.
// Degraded marks a window that could not be loaded; the pipeline proceeds
// with empty context instead of failing the request.
type Window struct {
	Messages []Message
	Rendered string
	Degraded bool
}

// ContextBuilder assembles recent dialogue history into a bounded window.
type ContextBuilder struct {
	repo Repository
}

func NewContextBuilder(repo Repository) *ContextBuilder {
	return &ContextBuilder{repo: repo}
}

// Build returns the last limit messages of the conversation in chronological
// order, rendered as "role: content" lines and truncated to maxChars.
// A missing conversation id yields an empty, non-degraded window (new
// conversation); a load failure yields an empty window flagged degraded.
func (b *ContextBuilder) Build(ctx context.Context, tenantID, conversationID string, limit, maxChars int) Window {
	if conversationID == "" {
		return Window{}
	}

	msgs, err := b.repo.ListRecentMessages(ctx, tenantID, conversationID, limit)
	if err != nil {
		log.Ctx(ctx).Warn().
			Err(err).
			Str("conversation_id", conversationID).
			Msg("context_load_failed")
		return Window{Degraded: true}
	}

	return Window{
		Messages: msgs,
		Rendered: renderWindow(msgs, maxChars),
	}
}

// renderWindow renders messages as "role: content" lines, whitespace
// collapsed, keeping the newest lines when the budget is exceeded.
func renderWindow(msgs []Message, maxChars int) string {
	if len(msgs) == 0 {
		return ""
	}

	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		content := strings.Join(strings.Fields(m.Content), " ")
		if content == "" {
			continue
		}
		lines = append(lines, m.Role+": "+content)
	}

	rendered := strings.Join(lines, "\n")
	if maxChars <= 0 || len(rendered) <= maxChars {
		return rendered
	}

	// Drop oldest lines first.
	for len(lines) > 1 && len(rendered) > maxChars {
		lines = lines[1:]
		rendered = strings.Join(lines, "\n")
	}
	if len(rendered) > maxChars {
		// A single line over budget keeps its tail.
		rendered = rendered[len(rendered)-maxChars:]
	}
	return rendered
}

// BuildRetrievalQuery derives the retrieval query for the current message.
// When the previous assistant turn was the clarifying prompt, the last two
// user messages are joined with the current one so a short follow-up
// ("and if it's still broken?") inherits the original question's intent.
func BuildRetrievalQuery(w Window, current, clarifyPrompt string) string {
	current = strings.TrimSpace(current)

	var lastAssistant string
	for i := len(w.Messages) - 1; i >= 0; i-- {
		if w.Messages[i].Role == RoleAssistant {
			lastAssistant = strings.TrimSpace(w.Messages[i].Content)
			break
		}
	}
	if lastAssistant == "" || lastAssistant != strings.TrimSpace(clarifyPrompt) {
		return current
	}

	var priorUser []string
	for i := len(w.Messages) - 1; i >= 0 && len(priorUser) < 2; i-- {
		if w.Messages[i].Role == RoleUser {
			if content := strings.TrimSpace(w.Messages[i].Content); content != "" && content != current {
				priorUser = append([]string{content}, priorUser...)
			}
		}
	}
	if len(priorUser) == 0 {
		return current
	}

	return strings.Join(append(priorUser, current), " ")
}

// CountClarifyingPrompts reports how many assistant turns in the window are
// the clarifying prompt; used for escalation-by-exhaustion.
func CountClarifyingPrompts(w Window, clarifyPrompt string) int {
	clarifyPrompt = strings.TrimSpace(clarifyPrompt)
	n := 0
	for _, m := range w.Messages {
		if m.Role == RoleAssistant && strings.TrimSpace(m.Content) == clarifyPrompt {
			n++
		}
	}
	return n
}
