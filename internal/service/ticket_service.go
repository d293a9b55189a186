package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/pipeline"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// allowedTransitions enumerates manual status moves an agent may make.
// Terminal closed tickets stay closed; resolved can only be closed.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusPending:    {domain.TicketStatusAssigned, domain.TicketStatusInProgress, domain.TicketStatusReplied, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusAssigned:   {domain.TicketStatusPending, domain.TicketStatusInProgress, domain.TicketStatusReplied, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusInProgress: {domain.TicketStatusPending, domain.TicketStatusReplied, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusReplied:    {domain.TicketStatusPending, domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusClosed},
	domain.TicketStatusResolved:   {domain.TicketStatusClosed},
	domain.TicketStatusClosed:     {},
}

// Notifier routes an outbound reply over the ticket's channel.
type Notifier interface {
	Deliver(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer, reply *domain.Reply) error
}

// TicketService implements the interactive ticket surface. Replies written
// here land in the same append-only ledger the message pipeline writes to.
type TicketService struct {
	tickets   repository.TicketRepository
	replies   repository.ReplyRepository
	history   repository.TicketHistoryRepository
	customers repository.CustomerRepository
	agents    repository.AgentRepository
	notifier  Notifier
	logger    *zap.Logger
}

// TicketDependencies encapsulates collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	ReplyRepo    repository.ReplyRepository
	HistoryRepo  repository.TicketHistoryRepository
	CustomerRepo repository.CustomerRepository
	AgentRepo    repository.AgentRepository
	Notifier     Notifier
	Logger       *zap.Logger
}

// NewTicketService builds the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:   deps.TicketRepo,
		replies:   deps.ReplyRepo,
		history:   deps.HistoryRepo,
		customers: deps.CustomerRepo,
		agents:    deps.AgentRepo,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
	}
}

// TicketDetail bundles a ticket with its ordered ledger.
type TicketDetail struct {
	Ticket  *domain.Ticket
	Replies []domain.Reply
}

// CreateTicket opens a ticket on behalf of an authenticated customer. The
// message becomes the first ledger entry.
func (s *TicketService) CreateTicket(ctx context.Context, customerID, subject, message string, channel domain.Channel) (*TicketDetail, error) {
	subject = strings.TrimSpace(subject)
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apperrors.NewValidationError("message is required", nil)
	}
	if subject == "" {
		subject = pipeline.FallbackSubject(channel)
	}

	ticket := &domain.Ticket{
		CustomerID: customerID,
		Subject:    subject,
		Status:     domain.TicketStatusPending,
		Priority:   domain.TicketPriorityNormal,
		Channel:    channel,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	reply := &domain.Reply{
		TicketID: ticket.ID,
		AuthorID: &customerID,
		Content:  message,
		Origin:   domain.OriginCustomer,
	}
	if err := s.replies.Append(ctx, reply); err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetail{Ticket: ticket, Replies: []domain.Reply{*reply}}, nil
}

// ListCustomerTickets returns the customer's own tickets, newest first.
func (s *TicketService) ListCustomerTickets(ctx context.Context, customerID string, limit, offset int) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListByCustomer(ctx, customerID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetTicketForCustomer loads a ticket with its ledger, enforcing ownership.
func (s *TicketService) GetTicketForCustomer(ctx context.Context, customerID, ticketID string) (*TicketDetail, error) {
	ticket, err := s.ownedTicket(ctx, customerID, ticketID)
	if err != nil {
		return nil, err
	}
	return s.withReplies(ctx, ticket)
}

// AddCustomerReply appends a customer message to the ledger. A reply to a
// ticket the support side already answered pulls it back to in_progress so
// it shows up as needing attention again.
func (s *TicketService) AddCustomerReply(ctx context.Context, customerID, ticketID, content string) (*domain.Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("content is required", nil)
	}
	ticket, err := s.ownedTicket(ctx, customerID, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.IsOpen() {
		return nil, apperrors.NewConflict("ticket is no longer open", map[string]any{"status": ticket.Status})
	}

	reply := &domain.Reply{
		TicketID: ticket.ID,
		AuthorID: &customerID,
		Content:  content,
		Origin:   domain.OriginCustomer,
	}
	if err := s.replies.Append(ctx, reply); err != nil {
		return nil, apperrors.MapError(err)
	}

	if ticket.Status == domain.TicketStatusReplied {
		s.recordStatusChange(ctx, ticket, domain.TicketStatusInProgress, domain.OriginCustomer, &customerID)
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	return reply, nil
}

// ListAgentTickets returns tickets matching the agent's filter.
func (s *TicketService) ListAgentTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// GetTicketForAgent loads any ticket with its ledger.
func (s *TicketService) GetTicketForAgent(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return s.withReplies(ctx, ticket)
}

// AddAgentReply appends an agent-authored reply, applies the outbound-reply
// status rule, and routes the customer notification over the ticket's
// channel. A delivery failure is logged but never invalidates the reply.
func (s *TicketService) AddAgentReply(ctx context.Context, agent *domain.Agent, ticketID, content string) (*domain.Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("content is required", nil)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewConflict("ticket is closed", nil)
	}

	reply := &domain.Reply{
		TicketID: ticket.ID,
		AuthorID: &agent.ID,
		Content:  content,
		Origin:   domain.OriginAgent,
	}
	if err := s.replies.Append(ctx, reply); err != nil {
		return nil, apperrors.MapError(err)
	}

	changes := pipeline.ApplyRules(ticket, nil, true)
	if len(changes) > 0 {
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return nil, apperrors.MapError(err)
		}
		for _, change := range changes {
			s.appendHistory(ctx, ticket.ID, change, domain.OriginAgent, &agent.ID)
		}
	}

	if s.notifier != nil {
		customer, err := s.customers.GetByID(ctx, ticket.CustomerID)
		if err != nil {
			s.logger.Warn("skipping notification, customer lookup failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		} else {
			_ = s.notifier.Deliver(ctx, ticket, customer, reply)
		}
	}
	return reply, nil
}

// UpdateStatus applies a manual status transition.
func (s *TicketService) UpdateStatus(ctx context.Context, agent *domain.Agent, ticketID string, next domain.TicketStatus) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Status == next {
		return ticket, nil
	}
	if !transitionAllowed(ticket.Status, next) {
		return nil, apperrors.NewConflict("status transition not allowed", map[string]any{
			"from": ticket.Status,
			"to":   next,
		})
	}

	s.recordStatusChange(ctx, ticket, next, domain.OriginAgent, &agent.ID)
	if next == domain.TicketStatusResolved {
		origin := domain.OriginAgent
		ticket.ResolvedBy = &origin
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// UpdatePriority sets the priority manually. A manual change always clears
// the pipeline-escalated flag so a later non-negative message cannot undo
// an agent's decision.
func (s *TicketService) UpdatePriority(ctx context.Context, agent *domain.Agent, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.Priority == priority && !ticket.PriorityEscalated {
		return ticket, nil
	}

	s.appendHistory(ctx, ticket.ID, pipeline.Change{
		Type: domain.ChangeTypePriority,
		Old:  map[string]any{"priority": ticket.Priority},
		New:  map[string]any{"priority": priority},
	}, domain.OriginAgent, &agent.ID)

	ticket.Priority = priority
	ticket.PriorityEscalated = false
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// AssignTicket assigns (or reassigns) a ticket to an active agent.
func (s *TicketService) AssignTicket(ctx context.Context, actor *domain.Agent, ticketID, agentID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	assignee, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	if !assignee.Active {
		return nil, apperrors.NewConflict("agent is not active", map[string]any{"id": agentID})
	}
	if ticket.AssigneeID != nil && *ticket.AssigneeID == assignee.ID {
		return ticket, nil
	}

	var oldAssignee any
	if ticket.AssigneeID != nil {
		oldAssignee = *ticket.AssigneeID
	}
	s.appendHistory(ctx, ticket.ID, pipeline.Change{
		Type: domain.ChangeTypeAssignee,
		Old:  map[string]any{"assignee_agent_id": oldAssignee},
		New:  map[string]any{"assignee_agent_id": assignee.ID},
	}, domain.OriginAgent, &actor.ID)

	ticket.AssigneeID = &assignee.ID
	if ticket.Status == domain.TicketStatusPending {
		s.recordStatusChange(ctx, ticket, domain.TicketStatusAssigned, domain.OriginAgent, &actor.ID)
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// GetHistory returns the audit trail for a ticket.
func (s *TicketService) GetHistory(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func (s *TicketService) ownedTicket(ctx context.Context, customerID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.CustomerID != customerID {
		// Hidden rather than forbidden: ticket ids are not enumerable
		// across customers.
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	return ticket, nil
}

func (s *TicketService) withReplies(ctx context.Context, ticket *domain.Ticket) (*TicketDetail, error) {
	replies, err := s.replies.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &TicketDetail{Ticket: ticket, Replies: replies}, nil
}

// recordStatusChange mutates the ticket status and writes the audit entry.
func (s *TicketService) recordStatusChange(ctx context.Context, ticket *domain.Ticket, next domain.TicketStatus, by domain.ReplyOrigin, byID *string) {
	s.appendHistory(ctx, ticket.ID, pipeline.Change{
		Type: domain.ChangeTypeStatus,
		Old:  map[string]any{"status": ticket.Status},
		New:  map[string]any{"status": next},
	}, by, byID)
	ticket.Status = next
}

// appendHistory writes one audit entry. Audit failures never fail the
// underlying operation.
func (s *TicketService) appendHistory(ctx context.Context, ticketID string, change pipeline.Change, by domain.ReplyOrigin, byID *string) {
	entry := &domain.TicketHistory{
		TicketID:    ticketID,
		ChangedBy:   by,
		ChangedByID: byID,
		ChangeType:  change.Type,
		OldValue:    change.Old,
		NewValue:    change.New,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record ticket history",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(change.Type)),
			zap.Error(err))
	}
}

func transitionAllowed(from, to domain.TicketStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
