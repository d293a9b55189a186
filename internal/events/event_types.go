package events

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates broadcast event identifiers.
type EventType string

const (
	EventMessageReplied EventType = "message.replied"
)

// TicketChannel names the realtime channel scoped to one ticket. Every
// subscriber of the channel sees the event, not just the recipient.
func TicketChannel(ticketID string) string {
	return "tickets." + ticketID
}

// Event is a realtime broadcast emitted when a reply lands on a ticket.
type Event struct {
	ID        string                `json:"id"`
	Type      EventType             `json:"type"`
	TicketID  string                `json:"ticket_id"`
	Timestamp time.Time             `json:"timestamp"`
	Payload   MessageRepliedPayload `json:"payload"`
}

// MessageRepliedPayload is the structured ticket+reply broadcast contract.
type MessageRepliedPayload struct {
	TicketID        string                `json:"ticket_id"`
	TicketStatus    domain.TicketStatus   `json:"ticket_status"`
	TicketPriority  domain.TicketPriority `json:"ticket_priority"`
	ReplyID         string                `json:"reply_id"`
	ReplyAuthorName string                `json:"reply_author_name"`
	ReplyOrigin     domain.ReplyOrigin    `json:"reply_origin"`
	Content         string                `json:"content"`
	CreatedAt       time.Time             `json:"created_at"`
}
