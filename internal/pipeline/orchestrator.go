package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/ai"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Job is one inbound customer message pulled from the work queue. All actor
// context the pipeline needs is carried explicitly; jobs run without an
// ambient user.
type Job struct {
	MessageText        string         `json:"message"`
	CustomerExternalID string         `json:"customer_identifier"`
	Channel            domain.Channel `json:"source_channel"`
	Subject            string         `json:"subject,omitempty"`
}

// Notifier routes an outbound reply over the ticket's channel.
type Notifier interface {
	Deliver(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer, reply *domain.Reply) error
}

// Dependencies bundles collaborators for the orchestrator.
type Dependencies struct {
	CustomerResolver *CustomerResolver
	TicketResolver   *TicketResolver
	TicketRepo       repository.TicketRepository
	ReplyRepo        repository.ReplyRepository
	AgentRepo        repository.AgentRepository
	HistoryRepo      repository.TicketHistoryRepository
	Enricher         ai.Enricher
	Notifier         Notifier
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	MaxAttempts      int
	Backoff          time.Duration
}

// Orchestrator sequences one pipeline run per inbound message: resolve
// customer, resolve ticket, append inbound reply, enrich, apply transition
// rules, append outbound reply and route the notification. Failure
// escalation wraps the whole sequence.
type Orchestrator struct {
	customers   *CustomerResolver
	ticketRes   *TicketResolver
	tickets     repository.TicketRepository
	replies     repository.ReplyRepository
	agents      repository.AgentRepository
	history     repository.TicketHistoryRepository
	enricher    ai.Enricher
	notifier    Notifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	maxAttempts int
	backoff     time.Duration
}

// NewOrchestrator constructs the orchestrator.
func NewOrchestrator(deps Dependencies) *Orchestrator {
	maxAttempts := deps.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := deps.Backoff
	if backoff < 0 {
		backoff = 0
	}
	return &Orchestrator{
		customers:   deps.CustomerResolver,
		ticketRes:   deps.TicketResolver,
		tickets:     deps.TicketRepo,
		replies:     deps.ReplyRepo,
		agents:      deps.AgentRepo,
		history:     deps.HistoryRepo,
		enricher:    deps.Enricher,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// runState memoizes completed steps so a retried attempt resumes at the
// failing step instead of duplicating ledger writes.
type runState struct {
	customer        *domain.Customer
	ticket          *domain.Ticket
	isNewTicket     bool
	inboundAppended bool
	enrichment      *domain.EnrichmentResult
}

// Process executes the pipeline for one delivery. It never propagates an
// error: retryable failures are retried up to the attempt cap with fixed
// backoff, and any terminal failure ends in the escalation path so a
// human-visible artifact exists.
func (o *Orchestrator) Process(ctx context.Context, job Job) {
	state := &runState{}
	var lastErr error

	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		err := o.runOnce(ctx, job, state)
		if err == nil {
			o.metrics.RecordJobProcessed()
			return
		}
		lastErr = err

		if !ai.IsRetryable(err) {
			o.logger.Warn("pipeline failed with non-retryable error",
				zap.String("customer_identifier", job.CustomerExternalID),
				zap.Error(err))
			break
		}
		if attempt == o.maxAttempts {
			break
		}
		o.metrics.RecordJobRetry()
		o.logger.Warn("pipeline attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.String("customer_identifier", job.CustomerExternalID),
			zap.Error(err))

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = o.maxAttempts
		case <-time.After(o.backoff):
		}
	}

	o.escalate(ctx, job, state, lastErr)
}

func (o *Orchestrator) runOnce(ctx context.Context, job Job, state *runState) error {
	if state.customer == nil {
		customer, err := o.customers.Resolve(ctx, job.CustomerExternalID)
		if err != nil {
			return fmt.Errorf("resolve customer: %w", err)
		}
		state.customer = customer
	}

	if state.ticket == nil {
		ticket, isNew, err := o.ticketRes.ResolveOpen(ctx, state.customer.ID, job.Channel, job.Subject)
		if err != nil {
			return fmt.Errorf("resolve ticket: %w", err)
		}
		state.ticket = ticket
		state.isNewTicket = isNew
	}

	if !state.inboundAppended {
		inbound := &domain.Reply{
			TicketID: state.ticket.ID,
			Content:  job.MessageText,
			Origin:   domain.OriginCustomer,
		}
		if err := o.replies.Append(ctx, inbound); err != nil {
			return fmt.Errorf("append inbound reply: %w", err)
		}
		state.inboundAppended = true
	}

	if state.enrichment == nil {
		result, err := o.enricher.Enrich(ctx, ai.Request{
			Message:    job.MessageText,
			CustomerID: state.customer.ID,
			Source:     string(job.Channel),
		})
		if err != nil {
			return fmt.Errorf("enrich: %w", err)
		}
		state.enrichment = result
	}

	if err := o.applyAndReply(ctx, job, state); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) applyAndReply(ctx context.Context, job Job, state *runState) error {
	enrichment := state.enrichment

	// A recommended assignee the agent table does not know is dropped
	// rather than written as a dangling reference.
	if enrichment.RecommendedAgentID != nil {
		agent, err := o.agents.GetByID(ctx, *enrichment.RecommendedAgentID)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("validate recommended agent: %w", err)
			}
			enrichment.RecommendedAgentID = nil
		} else if !agent.Active {
			enrichment.RecommendedAgentID = nil
		}
	}

	// Rules run against a scratch copy; the memoized ticket only adopts the
	// mutation once the write lands, so a failed update is recomputed on the
	// next attempt instead of being skipped as already applied.
	updated := *state.ticket
	fieldsDirty := ApplyEnrichmentFields(&updated, enrichment)
	changes := ApplyRules(&updated, enrichment, enrichment.HasReply())

	if fieldsDirty || len(changes) > 0 {
		if err := o.tickets.Update(ctx, &updated); err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		*state.ticket = updated
		for _, change := range changes {
			entry := &domain.TicketHistory{
				TicketID:   updated.ID,
				ChangedBy:  domain.OriginSystem,
				ChangeType: change.Type,
				OldValue:   change.Old,
				NewValue:   change.New,
			}
			if err := o.history.Create(ctx, entry); err != nil {
				o.logger.Warn("failed to record ticket history",
					zap.String("ticket_id", updated.ID),
					zap.Error(err))
			}
		}
	}

	ticket := state.ticket
	if enrichment.HasReply() {
		outbound := &domain.Reply{
			TicketID: ticket.ID,
			Content:  enrichment.SuggestedReply,
			Origin:   domain.OriginAI,
		}
		if err := o.replies.Append(ctx, outbound); err != nil {
			return fmt.Errorf("append outbound reply: %w", err)
		}
		// Delivery failure never rolls back the ledger and is never
		// retried; the recorded reply is authoritative.
		_ = o.notifier.Deliver(ctx, ticket, state.customer, outbound)
	}

	o.logger.Info("pipeline run completed",
		zap.String("ticket_id", ticket.ID),
		zap.Bool("new_ticket", state.isNewTicket),
		zap.Bool("ai_replied", enrichment.HasReply()),
		zap.String("status", string(ticket.Status)))
	return nil
}

// escalate guarantees a human-visible artifact when processing failed for
// good: an urgent, unassigned ticket holding the original message and the
// failure reason. Escalation creation is best-effort; its own failure is
// logged and swallowed.
func (o *Orchestrator) escalate(ctx context.Context, job Job, state *runState, cause error) {
	o.metrics.RecordJobEscalated()

	customer := state.customer
	if customer == nil {
		resolved, err := o.customers.Resolve(ctx, job.CustomerExternalID)
		if err != nil {
			o.logger.Error("failed to create escalation ticket: customer unresolved",
				zap.String("customer_identifier", job.CustomerExternalID),
				zap.NamedError("cause", cause),
				zap.Error(err))
			return
		}
		customer = resolved
	}

	ticket := &domain.Ticket{
		CustomerID: customer.ID,
		Subject:    fmt.Sprintf("Processing failure: message from %s", job.CustomerExternalID),
		Status:     domain.TicketStatusPending,
		Priority:   domain.TicketPriorityUrgent,
		Channel:    job.Channel,
	}
	if err := o.tickets.Create(ctx, ticket); err != nil {
		o.logger.Error("failed to create escalation ticket",
			zap.String("customer_identifier", job.CustomerExternalID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}

	reason := "unknown failure"
	if cause != nil {
		reason = cause.Error()
	}
	note := &domain.Reply{
		TicketID: ticket.ID,
		Content:  fmt.Sprintf("Automatic processing failed: %s\n\nOriginal message:\n%s", reason, job.MessageText),
		Origin:   domain.OriginSystem,
	}
	if err := o.replies.Append(ctx, note); err != nil {
		o.logger.Error("failed to record escalation details",
			zap.String("ticket_id", ticket.ID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}

	o.logger.Warn("pipeline escalated",
		zap.String("ticket_id", ticket.ID),
		zap.String("customer_identifier", job.CustomerExternalID),
		zap.NamedError("cause", cause))
}
