package notify

import (
	"context"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
)

// ChatTransport emits a realtime event on the ticket's channel. Everyone
// subscribed to that ticket sees the reply, not just the original sender.
type ChatTransport struct {
	broadcaster events.Broadcaster
}

// NewChatTransport builds the transport.
func NewChatTransport(broadcaster events.Broadcaster) *ChatTransport {
	return &ChatTransport{broadcaster: broadcaster}
}

// Deliver broadcasts the reply.
func (t *ChatTransport) Deliver(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer, reply *domain.Reply) error {
	return t.broadcaster.Broadcast(ctx, events.Event{
		Type:     events.EventMessageReplied,
		TicketID: ticket.ID,
		Payload: events.MessageRepliedPayload{
			TicketID:        ticket.ID,
			TicketStatus:    ticket.Status,
			TicketPriority:  ticket.Priority,
			ReplyID:         reply.ID,
			ReplyAuthorName: reply.AuthorName(""),
			ReplyOrigin:     reply.Origin,
			Content:         reply.Content,
			CreatedAt:       reply.CreatedAt,
		},
	})
}
