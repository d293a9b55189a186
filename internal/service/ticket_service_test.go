package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type stubTicketRepo struct {
	tickets map[string]domain.Ticket
	updates int
}

func newStubTicketRepo(tickets ...domain.Ticket) *stubTicketRepo {
	repo := &stubTicketRepo{tickets: make(map[string]domain.Ticket)}
	for _, ticket := range tickets {
		repo.tickets[ticket.ID] = ticket
	}
	return repo
}

func (r *stubTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	ticket.ID = fmt.Sprintf("ticket-%d", len(r.tickets)+1)
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *stubTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.updates++
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *stubTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := ticket
	return &copied, nil
}

func (r *stubTicketRepo) FindOpenByCustomer(_ context.Context, _ string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}

func (r *stubTicketRepo) ListByCustomer(_ context.Context, customerID string, _, _ int) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for id := range r.tickets {
		if r.tickets[id].CustomerID == customerID {
			result = append(result, r.tickets[id])
		}
	}
	return result, nil
}

func (r *stubTicketRepo) ListWithFilter(_ context.Context, _ repository.TicketFilter) ([]domain.Ticket, error) {
	return nil, nil
}

type stubReplyRepo struct {
	replies []domain.Reply
}

func (r *stubReplyRepo) Append(_ context.Context, reply *domain.Reply) error {
	reply.ID = fmt.Sprintf("reply-%d", len(r.replies)+1)
	r.replies = append(r.replies, *reply)
	return nil
}

func (r *stubReplyRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Reply, error) {
	var result []domain.Reply
	for _, reply := range r.replies {
		if reply.TicketID == ticketID {
			result = append(result, reply)
		}
	}
	return result, nil
}

type stubHistoryRepo struct {
	entries []domain.TicketHistory
}

func (r *stubHistoryRepo) Create(_ context.Context, history *domain.TicketHistory) error {
	r.entries = append(r.entries, *history)
	return nil
}

func (r *stubHistoryRepo) ListByTicket(_ context.Context, _ string) ([]domain.TicketHistory, error) {
	return r.entries, nil
}

type stubCustomerRepo struct {
	customers map[string]domain.Customer
}

func (r *stubCustomerRepo) Create(_ context.Context, _ *domain.Customer) error { return nil }

func (r *stubCustomerRepo) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	customer, ok := r.customers[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := customer
	return &copied, nil
}

func (r *stubCustomerRepo) GetByExternalID(_ context.Context, _ string) (*domain.Customer, error) {
	return nil, pgx.ErrNoRows
}

type stubAgentRepo struct {
	agents map[string]domain.Agent
}

func (r *stubAgentRepo) Create(_ context.Context, _ *domain.Agent) error { return nil }

func (r *stubAgentRepo) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	agent, ok := r.agents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := agent
	return &copied, nil
}

func (r *stubAgentRepo) GetByEmail(_ context.Context, _ string) (*domain.Agent, error) {
	return nil, pgx.ErrNoRows
}

type countingNotifier struct {
	count int
}

func (n *countingNotifier) Deliver(_ context.Context, _ *domain.Ticket, _ *domain.Customer, _ *domain.Reply) error {
	n.count++
	return nil
}

type serviceFixture struct {
	tickets  *stubTicketRepo
	replies  *stubReplyRepo
	history  *stubHistoryRepo
	notifier *countingNotifier
	svc      *TicketService
}

func newServiceFixture(tickets ...domain.Ticket) *serviceFixture {
	f := &serviceFixture{
		tickets:  newStubTicketRepo(tickets...),
		replies:  &stubReplyRepo{},
		history:  &stubHistoryRepo{},
		notifier: &countingNotifier{},
	}
	f.svc = NewTicketService(TicketDependencies{
		TicketRepo:  f.tickets,
		ReplyRepo:   f.replies,
		HistoryRepo: f.history,
		CustomerRepo: &stubCustomerRepo{customers: map[string]domain.Customer{
			"customer-1": {ID: "customer-1", ExternalID: "jane@example.com", Name: "Jane"},
		}},
		AgentRepo: &stubAgentRepo{agents: map[string]domain.Agent{
			"agent-1": {ID: "agent-1", Name: "Sam", Email: "sam@support.test", Role: domain.AgentRoleAgent, Active: true},
			"agent-2": {ID: "agent-2", Name: "Kim", Email: "kim@support.test", Role: domain.AgentRoleAgent, Active: false},
		}},
		Notifier: f.notifier,
		Logger:   zap.NewNop(),
	})
	return f
}

func testAgent() *domain.Agent {
	return &domain.Agent{ID: "agent-1", Name: "Sam", Role: domain.AgentRoleAgent, Active: true}
}

func pendingTicket() domain.Ticket {
	return domain.Ticket{
		ID:         "ticket-1",
		CustomerID: "customer-1",
		Subject:    "Hello",
		Status:     domain.TicketStatusPending,
		Priority:   domain.TicketPriorityNormal,
		Channel:    domain.ChannelChat,
	}
}

func TestAgentReplyMovesTicketToRepliedAndNotifies(t *testing.T) {
	f := newServiceFixture(pendingTicket())

	reply, err := f.svc.AddAgentReply(context.Background(), testAgent(), "ticket-1", "We are looking into it")
	require.NoError(t, err)
	assert.Equal(t, domain.OriginAgent, reply.Origin)

	stored, err := f.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReplied, stored.Status)
	assert.Equal(t, 1, f.notifier.count)
	require.Len(t, f.history.entries, 1)
	assert.Equal(t, domain.OriginAgent, f.history.entries[0].ChangedBy)
}

func TestAgentReplyToClosedTicketIsRejected(t *testing.T) {
	closed := pendingTicket()
	closed.Status = domain.TicketStatusClosed
	f := newServiceFixture(closed)

	_, err := f.svc.AddAgentReply(context.Background(), testAgent(), "ticket-1", "too late")
	assert.Error(t, err)
	assert.Empty(t, f.replies.replies)
}

func TestUpdateStatusEnforcesTransitions(t *testing.T) {
	resolved := pendingTicket()
	resolved.Status = domain.TicketStatusResolved
	f := newServiceFixture(resolved)

	_, err := f.svc.UpdateStatus(context.Background(), testAgent(), "ticket-1", domain.TicketStatusPending)
	assert.Error(t, err, "resolved can only move to closed")

	ticket, err := f.svc.UpdateStatus(context.Background(), testAgent(), "ticket-1", domain.TicketStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, ticket.Status)

	_, err = f.svc.UpdateStatus(context.Background(), testAgent(), "ticket-1", domain.TicketStatusPending)
	assert.Error(t, err, "closed is terminal")
}

func TestUpdateStatusToResolvedRecordsResolver(t *testing.T) {
	f := newServiceFixture(pendingTicket())

	ticket, err := f.svc.UpdateStatus(context.Background(), testAgent(), "ticket-1", domain.TicketStatusResolved)
	require.NoError(t, err)
	require.NotNil(t, ticket.ResolvedBy)
	assert.Equal(t, domain.OriginAgent, *ticket.ResolvedBy)
}

func TestUpdatePriorityClearsEscalationFlag(t *testing.T) {
	escalated := pendingTicket()
	escalated.Priority = domain.TicketPriorityUrgent
	escalated.PriorityEscalated = true
	f := newServiceFixture(escalated)

	ticket, err := f.svc.UpdatePriority(context.Background(), testAgent(), "ticket-1", domain.TicketPriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityHigh, ticket.Priority)
	assert.False(t, ticket.PriorityEscalated, "manual priority is owned by the agent")
}

func TestAssignTicketRejectsInactiveAgent(t *testing.T) {
	f := newServiceFixture(pendingTicket())

	_, err := f.svc.AssignTicket(context.Background(), testAgent(), "ticket-1", "agent-2")
	assert.Error(t, err)

	ticket, err := f.svc.AssignTicket(context.Background(), testAgent(), "ticket-1", "agent-1")
	require.NoError(t, err)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, "agent-1", *ticket.AssigneeID)
	assert.Equal(t, domain.TicketStatusAssigned, ticket.Status)
}

func TestCustomerReplyReopensRepliedTicket(t *testing.T) {
	replied := pendingTicket()
	replied.Status = domain.TicketStatusReplied
	f := newServiceFixture(replied)

	_, err := f.svc.AddCustomerReply(context.Background(), "customer-1", "ticket-1", "still broken")
	require.NoError(t, err)

	stored, err := f.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
}

func TestCustomerCannotTouchForeignTicket(t *testing.T) {
	f := newServiceFixture(pendingTicket())

	_, err := f.svc.GetTicketForCustomer(context.Background(), "customer-2", "ticket-1")
	assert.Error(t, err)

	_, err = f.svc.AddCustomerReply(context.Background(), "customer-2", "ticket-1", "hi")
	assert.Error(t, err)
}

func TestCreateTicketWritesFirstLedgerEntry(t *testing.T) {
	f := newServiceFixture()

	detail, err := f.svc.CreateTicket(context.Background(), "customer-1", "", "My invoice is wrong", domain.ChannelChat)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, detail.Ticket.Status)
	assert.NotEmpty(t, detail.Ticket.Subject, "blank subject gets the generated fallback")
	require.Len(t, detail.Replies, 1)
	assert.Equal(t, domain.OriginCustomer, detail.Replies[0].Origin)
	assert.Equal(t, "My invoice is wrong", detail.Replies[0].Content)
}
