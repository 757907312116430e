package guardrail

import (
	"strings"

	"github.com/relaydesk/relaydesk/internal/domain/retrieval"
)

// incidentKeywords flag user-reported incidents. A match forces a ticket
// regardless of retrieval outcome: incidents are never "answered away".
var incidentKeywords = []string{
	"bug",
	"error",
	"issue",
	"incident",
	"crash",
	"outage",
	"broken",
	"fail",
	"urgent",
}

// IsIncidentSignal reports whether the message carries an explicit
// incident/bug signal.
func IsIncidentSignal(message string) bool {
	message = strings.ToLower(message)
	for _, keyword := range incidentKeywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	return false
}

// IsTooShort reports whether the message is too thin to answer: fewer than
// four words and no hashtags (tag lookups are intentionally terse).
func IsTooShort(message string) bool {
	if len(retrieval.ExtractHashtags(message)) > 0 {
		return false
	}
	return len(strings.Fields(message)) < 4
}

// IsBlank reports an empty or whitespace-only message.
func IsBlank(message string) bool {
	return strings.TrimSpace(message) == ""
}

// ShouldRetrieve reports whether the message will reach the retrieval rules
// at all. The prechecks above claim incidents and thin messages first, so
// running retrieval for them would spend an embedding call on a decision
// that cannot use it.
func ShouldRetrieve(message string) bool {
	return !IsIncidentSignal(message) && !IsBlank(message) && !IsTooShort(message)
}
