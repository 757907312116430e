package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/relaydesk/relaydesk/internal/metrics"
)

// subjectMaxChars caps the ticket subject taken from the triggering message.
const subjectMaxChars = 160

// Dispatch outcomes, reported per ticket request.
const (
	outcomeCreated   = "created"
	outcomeDuplicate = "duplicate"
	outcomeAttached  = "attached"
)

// Request asks for a ticket side effect for one processed message.
type Request struct {
	TenantID       string
	ConversationID string
	MessageID      string
	Message        string
	Priority       string
}

// Dispatcher guarantees at most one ticket per (conversation, message) and
// at most one active ticket per conversation. Correctness rests on the
// repository's uniqueness guarantee, not on in-process locking, so
// concurrent dispatchers across replicas converge on the same row.
type Dispatcher struct {
	repo Repository
}

func NewDispatcher(repo Repository) *Dispatcher {
	return &Dispatcher{repo: repo}
}

// Dispatch ensures a ticket exists for the request and returns it. When the
// conversation already has an open ticket the request attaches to it instead
// of opening a second one; when this exact message was already ticketed the
// existing ticket is returned as a no-op success.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Ticket, error) {
	open, err := d.repo.FindOpenByConversation(ctx, req.TenantID, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("lookup open ticket: %w", err)
	}
	if open != nil {
		metrics.RecordTicket(outcomeAttached)
		log.Ctx(ctx).Info().
			Str("ticket_id", open.ID).
			Str("conversation_id", req.ConversationID).
			Msg("ticket_attached")
		return open, nil
	}

	t := &Ticket{
		TenantID:       req.TenantID,
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		Status:         StatusOpen,
		Priority:       normalizePriority(req.Priority),
		Subject:        Subject(req.Message),
	}

	if err := d.repo.Create(ctx, t); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, fmt.Errorf("create ticket: %w", err)
		}
		existing, ferr := d.repo.FindByMessage(ctx, req.TenantID, req.ConversationID, req.MessageID)
		if ferr != nil {
			return nil, fmt.Errorf("fetch ticket after duplicate insert: %w", ferr)
		}
		if existing == nil {
			return nil, fmt.Errorf("ticket vanished after duplicate insert for message %s", req.MessageID)
		}
		metrics.RecordTicket(outcomeDuplicate)
		return existing, nil
	}

	metrics.RecordTicket(outcomeCreated)
	log.Ctx(ctx).Info().
		Str("ticket_id", t.ID).
		Str("conversation_id", req.ConversationID).
		Str("priority", t.Priority).
		Msg("ticket_created")
	return t, nil
}

// Subject derives the ticket subject from the triggering message: collapsed
// to a single line and cut at the subject cap.
func Subject(message string) string {
	s := strings.Join(strings.Fields(message), " ")
	if s == "" {
		return "Support request"
	}
	runes := []rune(s)
	if len(runes) > subjectMaxChars {
		return string(runes[:subjectMaxChars])
	}
	return s
}

func normalizePriority(p string) string {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p
	default:
		return PriorityNormal
	}
}
