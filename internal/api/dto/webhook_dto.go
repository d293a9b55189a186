package dto

// IncomingWebhookRequest is the payload external channels post. The
// customer identifier is channel-specific (an email address, a chat user
// id); the subject is only honored for brand-new tickets.
type IncomingWebhookRequest struct {
	Message            string `json:"message"`
	CustomerIdentifier string `json:"customer_identifier"`
	SourceChannel      string `json:"source_channel"`
	Subject            string `json:"subject,omitempty"`
}

// IncomingWebhookResponse acknowledges acceptance for async processing.
type IncomingWebhookResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
}
