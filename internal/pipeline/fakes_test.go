package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/helpdesk/internal/ai"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type memCustomerRepo struct {
	mu         sync.Mutex
	seq        int
	byID       map[string]domain.Customer
	byExternal map[string]string
	failNext   error
	// missLookups makes GetByExternalID report absence for that many calls,
	// simulating a lost insert race against a concurrent writer.
	missLookups int
}

func newMemCustomerRepo() *memCustomerRepo {
	return &memCustomerRepo{
		byID:       make(map[string]domain.Customer),
		byExternal: make(map[string]string),
	}
}

func (r *memCustomerRepo) Create(_ context.Context, customer *domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	if _, exists := r.byExternal[customer.ExternalID]; exists {
		return &pgconn.PgError{Code: "23505", ConstraintName: "customers_external_id_key"}
	}
	r.seq++
	customer.ID = fmt.Sprintf("customer-%d", r.seq)
	customer.CreatedAt = time.Now()
	customer.UpdatedAt = customer.CreatedAt
	r.byID[customer.ID] = *customer
	r.byExternal[customer.ExternalID] = customer.ID
	return nil
}

func (r *memCustomerRepo) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	customer, ok := r.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := customer
	return &copied, nil
}

func (r *memCustomerRepo) GetByExternalID(_ context.Context, externalID string) (*domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missLookups > 0 {
		r.missLookups--
		return nil, pgx.ErrNoRows
	}
	id, ok := r.byExternal[externalID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	customer := r.byID[id]
	copied := customer
	return &copied, nil
}

func (r *memCustomerRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type memTicketRepo struct {
	mu        sync.Mutex
	seq       int
	clock     int64
	tickets   map[string]domain.Ticket
	createErr error
	updateErr error
	// updateFailures fails this many Update calls before letting writes
	// through again.
	updateFailures int
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: make(map[string]domain.Ticket)}
}

func (r *memTicketRepo) tick() time.Time {
	r.clock++
	return time.Unix(0, r.clock*int64(time.Millisecond))
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", r.seq)
	ticket.CreatedAt = r.tick()
	ticket.UpdatedAt = ticket.CreatedAt
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if r.updateFailures > 0 {
		r.updateFailures--
		return fmt.Errorf("transient update failure")
	}
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = r.tick()
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := ticket
	return &copied, nil
}

func (r *memTicketRepo) FindOpenByCustomer(_ context.Context, customerID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.Ticket
	for id := range r.tickets {
		ticket := r.tickets[id]
		if ticket.CustomerID != customerID || !ticket.Status.IsOpen() {
			continue
		}
		if best == nil || ticket.UpdatedAt.After(best.UpdatedAt) {
			copied := ticket
			best = &copied
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	return best, nil
}

func (r *memTicketRepo) ListByCustomer(_ context.Context, customerID string, _, _ int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for id := range r.tickets {
		if r.tickets[id].CustomerID == customerID {
			result = append(result, r.tickets[id])
		}
	}
	return result, nil
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, _ repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for id := range r.tickets {
		result = append(result, r.tickets[id])
	}
	return result, nil
}

func (r *memTicketRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickets)
}

type memReplyRepo struct {
	mu        sync.Mutex
	seq       int
	replies   []domain.Reply
	appendErr error
}

func newMemReplyRepo() *memReplyRepo {
	return &memReplyRepo{}
}

func (r *memReplyRepo) Append(_ context.Context, reply *domain.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.seq++
	reply.ID = fmt.Sprintf("reply-%d", r.seq)
	reply.CreatedAt = time.Unix(0, int64(r.seq)*int64(time.Millisecond))
	r.replies = append(r.replies, *reply)
	return nil
}

func (r *memReplyRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Reply
	for _, reply := range r.replies {
		if reply.TicketID == ticketID {
			result = append(result, reply)
		}
	}
	return result, nil
}

func (r *memReplyRepo) byTicket(ticketID string) []domain.Reply {
	result, _ := r.ListByTicket(context.Background(), ticketID)
	return result
}

type memAgentRepo struct {
	mu     sync.Mutex
	agents map[string]domain.Agent
}

func newMemAgentRepo(agents ...domain.Agent) *memAgentRepo {
	repo := &memAgentRepo{agents: make(map[string]domain.Agent)}
	for _, agent := range agents {
		repo.agents[agent.ID] = agent
	}
	return repo
}

func (r *memAgentRepo) Create(_ context.Context, agent *domain.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.ID] = *agent
	return nil
}

func (r *memAgentRepo) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := agent
	return &copied, nil
}

func (r *memAgentRepo) GetByEmail(_ context.Context, email string) (*domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.agents {
		if r.agents[id].Email == email {
			agent := r.agents[id]
			return &agent, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memHistoryRepo struct {
	mu      sync.Mutex
	seq     int
	entries []domain.TicketHistory
}

func newMemHistoryRepo() *memHistoryRepo {
	return &memHistoryRepo{}
}

func (r *memHistoryRepo) Create(_ context.Context, history *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	history.ID = fmt.Sprintf("history-%d", r.seq)
	history.CreatedAt = time.Now()
	r.entries = append(r.entries, *history)
	return nil
}

func (r *memHistoryRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

// scriptedEnricher returns queued outcomes in order; once the script is
// exhausted it keeps returning the last one.
type scriptedEnricher struct {
	mu       sync.Mutex
	outcomes []enrichOutcome
	calls    int
}

type enrichOutcome struct {
	result *domain.EnrichmentResult
	err    error
}

func (e *scriptedEnricher) Enrich(_ context.Context, _ ai.Request) (*domain.EnrichmentResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	idx := e.calls - 1
	if idx >= len(e.outcomes) {
		idx = len(e.outcomes) - 1
	}
	outcome := e.outcomes[idx]
	return outcome.result, outcome.err
}

type recordingNotifier struct {
	mu         sync.Mutex
	deliveries []domain.Reply
	err        error
}

func (n *recordingNotifier) Deliver(_ context.Context, _ *domain.Ticket, _ *domain.Customer, reply *domain.Reply) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, *reply)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deliveries)
}
