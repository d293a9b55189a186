package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Transport delivers one outbound reply to the customer over a single
// channel.
type Transport interface {
	Deliver(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer, reply *domain.Reply) error
}

// Router dispatches outbound replies by the ticket's stored channel. The
// channel is fixed at ticket creation and never re-derived per reply.
type Router struct {
	transports map[domain.Channel]Transport
	logger     *zap.Logger
}

// NewRouter builds a router over the given channel transports.
func NewRouter(transports map[domain.Channel]Transport, logger *zap.Logger) *Router {
	return &Router{transports: transports, logger: logger}
}

// Deliver routes the reply through the channel-appropriate transport. A
// delivery failure is logged and returned so the caller can report it, but
// it never invalidates the ledger entry and is never retried automatically
// to avoid duplicate customer-visible sends.
func (r *Router) Deliver(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer, reply *domain.Reply) error {
	transport, ok := r.transports[ticket.Channel]
	if !ok {
		err := fmt.Errorf("no transport registered for channel %q", ticket.Channel)
		r.logger.Warn("notification dropped", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return err
	}
	if err := transport.Deliver(ctx, ticket, customer, reply); err != nil {
		r.logger.Warn("notification delivery failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("channel", string(ticket.Channel)),
			zap.Error(err))
		return err
	}
	r.logger.Info("notification delivered",
		zap.String("ticket_id", ticket.ID),
		zap.String("channel", string(ticket.Channel)))
	return nil
}
