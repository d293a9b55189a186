package domain

import "time"

// ReplyOrigin tags who produced a ledger entry. Automated entries carry an
// explicit origin instead of being inferred from a missing author.
type ReplyOrigin string

const (
	OriginCustomer ReplyOrigin = "customer"
	OriginAgent    ReplyOrigin = "agent"
	OriginAI       ReplyOrigin = "ai"
	OriginSystem   ReplyOrigin = "system"
)

// Reply is one immutable entry in a ticket's ordered ledger. Entries are
// never edited or deleted; creation time is the ordering key.
type Reply struct {
	ID        string
	TicketID  string
	AuthorID  *string
	Content   string
	Origin    ReplyOrigin
	CreatedAt time.Time
}

// AuthorName resolves the display name for outbound notifications.
func (r *Reply) AuthorName(agentName string) string {
	switch r.Origin {
	case OriginAI, OriginSystem:
		return "AI Assistant"
	case OriginAgent:
		if agentName != "" {
			return agentName
		}
		return "Support Agent"
	default:
		return "Customer"
	}
}
