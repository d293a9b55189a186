package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/ai"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
)

type orchestratorFixture struct {
	customers *memCustomerRepo
	tickets   *memTicketRepo
	replies   *memReplyRepo
	agents    *memAgentRepo
	history   *memHistoryRepo
	enricher  *scriptedEnricher
	notifier  *recordingNotifier
	metrics   *observability.Metrics
	orch      *Orchestrator
}

func newOrchestratorFixture(enricher *scriptedEnricher, agents ...domain.Agent) *orchestratorFixture {
	f := &orchestratorFixture{
		customers: newMemCustomerRepo(),
		tickets:   newMemTicketRepo(),
		replies:   newMemReplyRepo(),
		agents:    newMemAgentRepo(agents...),
		history:   newMemHistoryRepo(),
		enricher:  enricher,
		notifier:  &recordingNotifier{},
		metrics:   observability.NewMetrics(),
	}
	f.orch = NewOrchestrator(Dependencies{
		CustomerResolver: NewCustomerResolver(f.customers, testBcryptCost),
		TicketResolver:   NewTicketResolver(f.tickets),
		TicketRepo:       f.tickets,
		ReplyRepo:        f.replies,
		AgentRepo:        f.agents,
		HistoryRepo:      f.history,
		Enricher:         f.enricher,
		Notifier:         f.notifier,
		Logger:           zap.NewNop(),
		Metrics:          f.metrics,
		MaxAttempts:      3,
		Backoff:          0,
	})
	return f
}

func chatJob(message string) Job {
	return Job{
		MessageText:        message,
		CustomerExternalID: "visitor-42",
		Channel:            domain.ChannelChat,
	}
}

func retryableErr() error {
	return &ai.Error{Status: 503, Retryable: true, Err: assert.AnError}
}

func TestProcessHappyPathWithAIReply(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{{
		result: &domain.EnrichmentResult{
			Sentiment:      domain.SentimentNeutral,
			Intent:         strptr("order_status"),
			SuggestedReply: "Your order ships tomorrow.",
		},
	}}})

	f.orch.Process(context.Background(), chatJob("Where is my order?"))

	require.Equal(t, 1, f.tickets.count())
	ticket, err := f.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReplied, ticket.Status)
	require.NotNil(t, ticket.Sentiment)
	assert.Equal(t, domain.SentimentNeutral, *ticket.Sentiment)
	require.NotNil(t, ticket.Intent)
	assert.Equal(t, "order_status", *ticket.Intent)

	replies := f.replies.byTicket(ticket.ID)
	require.Len(t, replies, 2)
	assert.Equal(t, domain.OriginCustomer, replies[0].Origin)
	assert.Equal(t, "Where is my order?", replies[0].Content)
	assert.Equal(t, domain.OriginAI, replies[1].Origin)
	assert.Equal(t, "Your order ships tomorrow.", replies[1].Content)

	assert.Equal(t, 1, f.notifier.count())

	processed, retried, escalated := f.metrics.PipelineCounts()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(0), retried)
	assert.Equal(t, int64(0), escalated)
}

func TestProcessSecondMessageReusesOpenTicket(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{{
		result: &domain.EnrichmentResult{
			Sentiment:      domain.SentimentNeutral,
			SuggestedReply: "Happy to help.",
		},
	}}})

	f.orch.Process(context.Background(), chatJob("First message"))
	f.orch.Process(context.Background(), chatJob("Second message"))

	assert.Equal(t, 1, f.tickets.count(), "one conversation, one ticket")
	assert.Equal(t, 1, f.customers.count())

	replies := f.replies.byTicket("ticket-1")
	require.Len(t, replies, 4)
	assert.Equal(t, "First message", replies[0].Content)
	assert.Equal(t, "Second message", replies[2].Content)
}

func TestProcessAngryMessageWithoutReply(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{{
		result: &domain.EnrichmentResult{
			Sentiment: domain.SentimentNegative,
			Intent:    strptr("refund_request"),
		},
	}}})

	f.orch.Process(context.Background(), chatJob("This is unacceptable, refund me now"))

	ticket, err := f.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityUrgent, ticket.Priority)
	assert.True(t, ticket.PriorityEscalated)
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)

	replies := f.replies.byTicket(ticket.ID)
	require.Len(t, replies, 1, "no outbound reply without AI text")
	assert.Equal(t, 0, f.notifier.count())

	entries, err := f.history.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, domain.OriginSystem, entry.ChangedBy)
	}
}

func TestProcessRetriesThenSucceedsWithoutDuplicateWrites(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{
		{err: retryableErr()},
		{err: retryableErr()},
		{result: &domain.EnrichmentResult{
			Sentiment:      domain.SentimentNeutral,
			SuggestedReply: "Here you go.",
		}},
	}})

	f.orch.Process(context.Background(), chatJob("hello"))

	assert.Equal(t, 3, f.enricher.calls)
	assert.Equal(t, 1, f.tickets.count())
	replies := f.replies.byTicket("ticket-1")
	assert.Len(t, replies, 2, "retries must not duplicate the inbound entry")

	processed, retried, escalated := f.metrics.PipelineCounts()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(2), retried)
	assert.Equal(t, int64(0), escalated)
}

func TestProcessExhaustedRetriesEscalates(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{
		{err: retryableErr()},
	}})

	f.orch.Process(context.Background(), chatJob("is anyone there?"))

	assert.Equal(t, 3, f.enricher.calls)
	require.Equal(t, 2, f.tickets.count(), "conversation ticket plus escalation ticket")

	escalation, err := f.tickets.GetByID(context.Background(), "ticket-2")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, escalation.Status)
	assert.Equal(t, domain.TicketPriorityUrgent, escalation.Priority)
	assert.Nil(t, escalation.AssigneeID)
	assert.Contains(t, escalation.Subject, "Processing failure")

	notes := f.replies.byTicket(escalation.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.OriginSystem, notes[0].Origin)
	assert.Contains(t, notes[0].Content, "is anyone there?", "escalation preserves the original message")

	_, _, escalated := f.metrics.PipelineCounts()
	assert.Equal(t, int64(1), escalated)
}

func TestProcessNonRetryableErrorEscalatesImmediately(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{
		{err: &ai.Error{Status: 400, Retryable: false, Err: assert.AnError}},
	}})

	f.orch.Process(context.Background(), chatJob("bad payload apparently"))

	assert.Equal(t, 1, f.enricher.calls, "non-retryable failures skip the retry loop")
	assert.Equal(t, 2, f.tickets.count())
	_, retried, escalated := f.metrics.PipelineCounts()
	assert.Equal(t, int64(0), retried)
	assert.Equal(t, int64(1), escalated)
}

func TestProcessDropsUnknownRecommendedAgent(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{{
		result: &domain.EnrichmentResult{
			Sentiment:          domain.SentimentNeutral,
			RecommendedAgentID: strptr("ghost-agent"),
		},
	}}})

	f.orch.Process(context.Background(), chatJob("help"))

	ticket, err := f.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Nil(t, ticket.AssigneeID, "unknown assignee must not be written")
	assert.Equal(t, domain.TicketStatusInProgress, ticket.Status)
}

func TestProcessAssignsKnownRecommendedAgent(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{{
		result: &domain.EnrichmentResult{
			Sentiment:          domain.SentimentNeutral,
			RecommendedAgentID: strptr("agent-1"),
		},
	}}}, domain.Agent{ID: "agent-1", Name: "Sam", Email: "sam@support.test", Role: domain.AgentRoleAgent, Active: true})

	f.orch.Process(context.Background(), chatJob("help"))

	ticket, err := f.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, "agent-1", *ticket.AssigneeID)
	assert.Equal(t, domain.TicketStatusAssigned, ticket.Status)
}

func TestProcessTerminalIntentResolvesTicket(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{{
		result: &domain.EnrichmentResult{
			Sentiment:      domain.SentimentPositive,
			Intent:         strptr("goodbye"),
			SuggestedReply: "Thanks for reaching out!",
		},
	}}})

	f.orch.Process(context.Background(), chatJob("all good now, thanks, bye"))

	ticket, err := f.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	require.NotNil(t, ticket.ResolvedBy)
	assert.Equal(t, domain.OriginAI, *ticket.ResolvedBy)
	assert.Equal(t, 1, f.notifier.count())
}

func TestProcessTransientCustomerStoreFailureRecovers(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{{
		result: &domain.EnrichmentResult{
			Sentiment:      domain.SentimentNeutral,
			SuggestedReply: "Got it.",
		},
	}}})
	f.customers.failNext = errors.New("connection reset by peer")

	f.orch.Process(context.Background(), chatJob("hello?"))

	assert.Equal(t, 1, f.customers.count())
	assert.Equal(t, 1, f.tickets.count())

	processed, retried, escalated := f.metrics.PipelineCounts()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(1), retried)
	assert.Equal(t, int64(0), escalated)
}

func TestProcessTicketUpdateFailureEscalatesAfterRetries(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{{
		result: &domain.EnrichmentResult{Sentiment: domain.SentimentNeutral},
	}}})
	f.tickets.updateErr = errors.New("write timeout")

	f.orch.Process(context.Background(), chatJob("anyone?"))

	assert.Equal(t, 1, f.enricher.calls, "enrichment is memoized across retries")
	require.Equal(t, 2, f.tickets.count(), "conversation ticket plus escalation ticket")

	stored, err := f.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, stored.Status, "failed update never reaches the store")

	_, retried, escalated := f.metrics.PipelineCounts()
	assert.Equal(t, int64(2), retried)
	assert.Equal(t, int64(1), escalated)
}

func TestProcessTransientUpdateFailureCommitsOnRetry(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{{
		result: &domain.EnrichmentResult{Sentiment: domain.SentimentNegative},
	}}})
	f.tickets.updateFailures = 1

	f.orch.Process(context.Background(), chatJob("this is still broken"))

	stored, err := f.tickets.GetByID(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, stored.Status)
	assert.Equal(t, domain.TicketPriorityUrgent, stored.Priority)
	assert.True(t, stored.PriorityEscalated)
	require.NotNil(t, stored.Sentiment)
	assert.Equal(t, domain.SentimentNegative, *stored.Sentiment)

	entries, err := f.history.ListByTicket(context.Background(), "ticket-1")
	require.NoError(t, err)
	assert.Len(t, entries, 2, "changes are recorded once, after the write lands")

	processed, retried, escalated := f.metrics.PipelineCounts()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(1), retried)
	assert.Equal(t, int64(0), escalated)
}

func TestProcessEscalationCreateFailureIsSwallowed(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{{
		result: &domain.EnrichmentResult{Sentiment: domain.SentimentNeutral},
	}}})
	f.tickets.createErr = errors.New("disk full")

	f.orch.Process(context.Background(), chatJob("hello"))

	assert.Equal(t, 0, f.tickets.count())
	assert.Empty(t, f.replies.replies)
	_, _, escalated := f.metrics.PipelineCounts()
	assert.Equal(t, int64(1), escalated)
}

func TestProcessNotificationFailureIsNotRetried(t *testing.T) {
	f := newOrchestratorFixture(&scriptedEnricher{outcomes: []enrichOutcome{{
		result: &domain.EnrichmentResult{
			Sentiment:      domain.SentimentNeutral,
			SuggestedReply: "On it.",
		},
	}}})
	f.notifier.err = errors.New("smtp unreachable")

	f.orch.Process(context.Background(), chatJob("my invoice is wrong"))

	assert.Equal(t, 1, f.notifier.count(), "delivery is attempted exactly once")
	assert.Len(t, f.replies.byTicket("ticket-1"), 2, "the recorded reply outlives the failed delivery")

	processed, retried, _ := f.metrics.PipelineCounts()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(0), retried)
}
