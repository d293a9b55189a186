package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
	Channel string `json:"channel"`
}

// ReplyRequest payload for customer and agent replies.
type ReplyRequest struct {
	Content string `json:"content"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AgentID string `json:"agent_id"`
}

// TicketSummary response.
type TicketSummary struct {
	ID         string                `json:"id"`
	CustomerID string                `json:"customer_id"`
	Subject    string                `json:"subject"`
	Status     domain.TicketStatus   `json:"status"`
	Priority   domain.TicketPriority `json:"priority"`
	AssigneeID *string               `json:"assignee_agent_id"`
	Channel    domain.Channel        `json:"source_channel"`
	Sentiment  *domain.Sentiment     `json:"sentiment,omitempty"`
	Intent     *string               `json:"intent,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides a ticket with its ordered replies.
type TicketDetailResponse struct {
	TicketSummary
	ResolvedBy *domain.ReplyOrigin `json:"resolved_by,omitempty"`
	Replies    []ReplyResponse     `json:"replies"`
}

// ReplyResponse represents one ledger entry.
type ReplyResponse struct {
	ID        string             `json:"id"`
	TicketID  string             `json:"ticket_id"`
	AuthorID  *string            `json:"author_id"`
	Origin    domain.ReplyOrigin `json:"origin"`
	Content   string             `json:"content"`
	CreatedAt time.Time          `json:"created_at"`
}

// HistoryResponse represents one audit entry.
type HistoryResponse struct {
	ID         string                  `json:"id"`
	TicketID   string                  `json:"ticket_id"`
	ChangedBy  domain.ReplyOrigin      `json:"changed_by"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}

// ToTicketSummary maps a domain ticket.
func ToTicketSummary(t *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:         t.ID,
		CustomerID: t.CustomerID,
		Subject:    t.Subject,
		Status:     t.Status,
		Priority:   t.Priority,
		AssigneeID: t.AssigneeID,
		Channel:    t.Channel,
		Sentiment:  t.Sentiment,
		Intent:     t.Intent,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

// ToTicketSummaries maps a ticket slice.
func ToTicketSummaries(tickets []domain.Ticket) []TicketSummary {
	result := make([]TicketSummary, 0, len(tickets))
	for i := range tickets {
		result = append(result, ToTicketSummary(&tickets[i]))
	}
	return result
}

// ToTicketDetail maps a ticket with its ledger.
func ToTicketDetail(detail *service.TicketDetail) TicketDetailResponse {
	replies := make([]ReplyResponse, 0, len(detail.Replies))
	for i := range detail.Replies {
		replies = append(replies, ToReplyResponse(&detail.Replies[i]))
	}
	return TicketDetailResponse{
		TicketSummary: ToTicketSummary(detail.Ticket),
		ResolvedBy:    detail.Ticket.ResolvedBy,
		Replies:       replies,
	}
}

// ToReplyResponse maps a ledger entry.
func ToReplyResponse(r *domain.Reply) ReplyResponse {
	return ReplyResponse{
		ID:        r.ID,
		TicketID:  r.TicketID,
		AuthorID:  r.AuthorID,
		Origin:    r.Origin,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}

// ToHistoryResponses maps audit entries.
func ToHistoryResponses(entries []domain.TicketHistory) []HistoryResponse {
	result := make([]HistoryResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, HistoryResponse{
			ID:         e.ID,
			TicketID:   e.TicketID,
			ChangedBy:  e.ChangedBy,
			ChangeType: e.ChangeType,
			OldValue:   e.OldValue,
			NewValue:   e.NewValue,
			CreatedAt:  e.CreatedAt,
		})
	}
	return result
}
