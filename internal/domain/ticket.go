package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "pending"
	TicketStatusAssigned   TicketStatus = "assigned"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusReplied    TicketStatus = "replied"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// OpenStatuses is the status group still awaiting action. A customer has at
// most one ticket in this group at a time; terminal tickets are never
// reopened by inbound messages.
var OpenStatuses = []TicketStatus{
	TicketStatusPending,
	TicketStatusAssigned,
	TicketStatusInProgress,
	TicketStatusReplied,
}

// IsOpen reports whether the status belongs to the open group.
func (s TicketStatus) IsOpen() bool {
	for _, open := range OpenStatuses {
		if s == open {
			return true
		}
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityNormal TicketPriority = "normal"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Channel identifies the transport a ticket's conversation arrived on. It is
// fixed at ticket creation and selects the outbound notification transport.
type Channel string

const (
	ChannelChat       Channel = "chat"
	ChannelEmail      Channel = "email"
	ChannelBotWebhook Channel = "bot-webhook"
	ChannelOther      Channel = "other"
)

// ParseChannel maps a raw source string to a known channel.
func ParseChannel(raw string) (Channel, bool) {
	switch Channel(raw) {
	case ChannelChat, ChannelEmail, ChannelBotWebhook, ChannelOther:
		return Channel(raw), true
	}
	return "", false
}

// Sentiment is the AI-reported tone of the latest inbound message.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Ticket is the aggregate for one customer support conversation.
type Ticket struct {
	ID         string
	CustomerID string
	Subject    string
	Status     TicketStatus
	Priority   TicketPriority
	AssigneeID *string
	Channel    Channel
	Sentiment  *Sentiment
	Intent     *string
	// PriorityEscalated records that the current urgency came from the
	// pipeline, so a later non-negative run may de-escalate it without
	// touching agent-set priorities.
	PriorityEscalated bool
	ResolvedBy        *ReplyOrigin
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
