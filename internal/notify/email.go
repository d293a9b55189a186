package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	mail "github.com/wneessen/go-mail"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
)

// emailTemplate renders the customer-facing reply notification with ticket
// status/priority and the latest reply.
var emailTemplate = template.Must(template.New("customer_reply").Parse(`<!DOCTYPE html>
<html>
<body>
  <p>Dear {{.CustomerName}},</p>
  <p>Your support ticket #{{.TicketID}} (Subject: {{.Subject}}) has received a new reply.</p>
  <p><strong>Status:</strong> {{.Status}}<br>
     <strong>Priority:</strong> {{.Priority}}</p>
  <h3>New Reply</h3>
  <blockquote>
    <p><strong>From:</strong> {{.AuthorName}}</p>
    <p>{{.Content}}</p>
  </blockquote>
  <p>You can view the full ticket history by replying to this email.</p>
  <p>Best regards,<br>The Support Team</p>
</body>
</html>`))

type emailData struct {
	CustomerName string
	TicketID     string
	Subject      string
	Status       domain.TicketStatus
	Priority     domain.TicketPriority
	AuthorName   string
	Content      string
}

// EmailTransport renders and sends a templated message to the customer's
// address over SMTP. The customer's external identifier is their email.
type EmailTransport struct {
	cfg config.SMTPConfig
}

// NewEmailTransport builds the transport.
func NewEmailTransport(cfg config.SMTPConfig) *EmailTransport {
	return &EmailTransport{cfg: cfg}
}

// Deliver sends the rendered reply email.
func (t *EmailTransport) Deliver(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer, reply *domain.Reply) error {
	if strings.TrimSpace(t.cfg.Host) == "" {
		return fmt.Errorf("smtp host not configured")
	}

	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, emailData{
		CustomerName: customer.Name,
		TicketID:     ticket.ID,
		Subject:      ticket.Subject,
		Status:       ticket.Status,
		Priority:     ticket.Priority,
		AuthorName:   reply.AuthorName(""),
		Content:      reply.Content,
	}); err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(t.cfg.From); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(customer.ExternalID); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	msg.Subject(fmt.Sprintf("Re: Ticket #%s - %s", ticket.ID, ticket.Subject))
	msg.SetBodyString(mail.TypeTextHTML, body.String())
	msg.SetMessageID()

	opts := []mail.Option{
		mail.WithPort(t.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(t.cfg.Username),
		mail.WithPassword(t.cfg.Password),
	}
	if t.cfg.StartTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	client, err := mail.NewClient(t.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
