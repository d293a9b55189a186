package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

const uniqueViolationCode = "23505"

// CustomerResolver idempotently maps an external identifier to a durable
// customer identity.
type CustomerResolver struct {
	customers  repository.CustomerRepository
	bcryptCost int
}

// NewCustomerResolver builds the resolver.
func NewCustomerResolver(customers repository.CustomerRepository, bcryptCost int) *CustomerResolver {
	return &CustomerResolver{customers: customers, bcryptCost: bcryptCost}
}

// Resolve returns the customer for the external identifier, creating one on
// first sighting. Concurrent calls with the same identifier create at most
// one record: the unique constraint turns the losing insert into a re-read.
func (r *CustomerResolver) Resolve(ctx context.Context, externalID string) (*domain.Customer, error) {
	if externalID == "" {
		return nil, errors.New("external identifier required")
	}

	customer, err := r.customers.GetByExternalID(ctx, externalID)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := auth.HashRandomCredential(r.bcryptCost)
	if err != nil {
		return nil, err
	}
	created := &domain.Customer{
		ExternalID:   externalID,
		Name:         "External Customer",
		PasswordHash: hash,
	}
	if err := r.customers.Create(ctx, created); err != nil {
		if isUniqueViolation(err) {
			return r.customers.GetByExternalID(ctx, externalID)
		}
		return nil, err
	}
	return created, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// TicketResolver idempotently maps a customer to the single currently-open
// ticket, or opens a new one.
type TicketResolver struct {
	tickets repository.TicketRepository
}

// NewTicketResolver builds the resolver.
func NewTicketResolver(tickets repository.TicketRepository) *TicketResolver {
	return &TicketResolver{tickets: tickets}
}

// ResolveOpen returns the customer's most-recently-updated open ticket, or
// creates one with status pending and priority normal. Resolved and closed
// tickets are never reopened; a new inbound message after a terminal state
// always yields a fresh ticket.
func (r *TicketResolver) ResolveOpen(ctx context.Context, customerID string, channel domain.Channel, fallbackSubject string) (*domain.Ticket, bool, error) {
	ticket, err := r.tickets.FindOpenByCustomer(ctx, customerID)
	if err == nil {
		return ticket, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	subject := fallbackSubject
	if subject == "" {
		subject = FallbackSubject(channel)
	}
	created := &domain.Ticket{
		CustomerID: customerID,
		Subject:    subject,
		Status:     domain.TicketStatusPending,
		Priority:   domain.TicketPriorityNormal,
		Channel:    channel,
	}
	if err := r.tickets.Create(ctx, created); err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// FallbackSubject is the generated subject for tickets opened without one.
func FallbackSubject(channel domain.Channel) string {
	return fmt.Sprintf("New inquiry from %s", channel)
}
