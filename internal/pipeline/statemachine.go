package pipeline

import (
	"github.com/spec-kit/helpdesk/internal/domain"
)

// terminalIntents end a conversation without human involvement when the AI
// also produced a reply.
var terminalIntents = map[string]bool{
	"goodbye":               true,
	"self_service_resolved": true,
}

// Change records one field transition for the audit trail.
type Change struct {
	Type domain.TicketChangeType
	Old  map[string]any
	New  map[string]any
}

// ApplyRules mutates the ticket according to the transition rules, evaluated
// in fixed order, and returns the audit changes. An empty result means no
// field changed and no write is needed; applying the same inputs twice
// yields the same ticket state as applying once.
//
// outboundReply reports whether an agent- or AI-authored reply is being
// appended this run. The resolver guarantees only open-group tickets reach
// this function for inbound messages; terminal tickets are left untouched.
func ApplyRules(ticket *domain.Ticket, enrichment *domain.EnrichmentResult, outboundReply bool) []Change {
	if !ticket.Status.IsOpen() {
		return nil
	}

	var changes []Change
	statusChanged := false

	setStatus := func(next domain.TicketStatus) {
		if ticket.Status == next {
			return
		}
		changes = append(changes, Change{
			Type: domain.ChangeTypeStatus,
			Old:  map[string]any{"status": ticket.Status},
			New:  map[string]any{"status": next},
		})
		ticket.Status = next
		statusChanged = true
	}
	setPriority := func(next domain.TicketPriority, escalated bool) {
		if ticket.Priority == next && ticket.PriorityEscalated == escalated {
			return
		}
		changes = append(changes, Change{
			Type: domain.ChangeTypePriority,
			Old:  map[string]any{"priority": ticket.Priority},
			New:  map[string]any{"priority": next},
		})
		ticket.Priority = next
		ticket.PriorityEscalated = escalated
	}

	wasPending := ticket.Status == domain.TicketStatusPending

	// Rule 2: an outbound reply moves pending/in_progress to replied.
	if outboundReply &&
		(ticket.Status == domain.TicketStatusPending || ticket.Status == domain.TicketStatusInProgress) {
		setStatus(domain.TicketStatusReplied)
	}

	if enrichment != nil {
		// Rule 3: negative sentiment escalates; a non-negative run
		// de-escalates only pipeline-escalated urgency, never an
		// agent-set priority.
		if enrichment.Sentiment == domain.SentimentNegative {
			if ticket.Priority != domain.TicketPriorityUrgent {
				setPriority(domain.TicketPriorityUrgent, true)
			}
		} else if ticket.Priority == domain.TicketPriorityUrgent && ticket.PriorityEscalated {
			setPriority(domain.TicketPriorityNormal, false)
		}

		// Rule 4: adopt the recommended assignee when unassigned.
		if enrichment.RecommendedAgentID != nil && ticket.AssigneeID == nil {
			assignee := *enrichment.RecommendedAgentID
			changes = append(changes, Change{
				Type: domain.ChangeTypeAssignee,
				Old:  map[string]any{"assignee_agent_id": nil},
				New:  map[string]any{"assignee_agent_id": assignee},
			})
			ticket.AssigneeID = &assignee
			setStatus(domain.TicketStatusAssigned)
		}

		// Rule 5: terminal intent plus an AI-authored reply resolves the
		// ticket, recording the resolver as automated.
		if outboundReply && enrichment.Intent != nil && terminalIntents[*enrichment.Intent] {
			setStatus(domain.TicketStatusResolved)
			if ticket.ResolvedBy == nil || *ticket.ResolvedBy != domain.OriginAI {
				origin := domain.OriginAI
				ticket.ResolvedBy = &origin
			}
		}
	}

	// Rule 6: processing without a visible reply still moves a pending
	// ticket forward.
	if !statusChanged && wasPending && !outboundReply {
		setStatus(domain.TicketStatusInProgress)
	}

	return changes
}

// ApplyEnrichmentFields copies sentiment/intent (and the opportunistic
// category-derived subject) onto the ticket, reporting whether anything
// changed. Absent intent leaves the ticket's intent alone; sentiment is
// always present because the client defaults it to neutral.
func ApplyEnrichmentFields(ticket *domain.Ticket, enrichment *domain.EnrichmentResult) bool {
	if enrichment == nil {
		return false
	}
	dirty := false

	if ticket.Sentiment == nil || *ticket.Sentiment != enrichment.Sentiment {
		sentiment := enrichment.Sentiment
		ticket.Sentiment = &sentiment
		dirty = true
	}
	if enrichment.Intent != nil && (ticket.Intent == nil || *ticket.Intent != *enrichment.Intent) {
		intent := *enrichment.Intent
		ticket.Intent = &intent
		dirty = true
	}
	// Only the generated fallback subject is rewritten; a subject the
	// customer chose stays as-is.
	if enrichment.TicketCategory != nil && *enrichment.TicketCategory != "" &&
		ticket.Subject == FallbackSubject(ticket.Channel) {
		ticket.Subject = *enrichment.TicketCategory
		dirty = true
	}
	return dirty
}
