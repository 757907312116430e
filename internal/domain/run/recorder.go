package run

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// recordTimeout bounds the detached insert so a slow database cannot hold
// the response open indefinitely.
const recordTimeout = 3 * time.Second

// Recorder writes AgentRun traces. Recording is best-effort from the
// caller's point of view: a failed insert is logged, never surfaced.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Record persists one run. The write is detached from the caller's
// cancellation so a dropped connection cannot lose the trace; a run
// recorded after cancellation is tagged incomplete.
func (r *Recorder) Record(ctx context.Context, ar *AgentRun) {
	if ar.Status == "" {
		ar.Status = StatusComplete
	}
	if ctx.Err() != nil {
		ar.Status = StatusIncomplete
	}

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := r.repo.Create(detached, ar); err != nil {
		log.Ctx(ctx).Warn().
			Err(err).
			Str("tenant_id", ar.TenantID).
			Str("conversation_id", ar.ConversationID).
			Str("message_id", ar.MessageID).
			Str("action", ar.Action).
			Msg("agent_run_insert_failed")
	}
}
