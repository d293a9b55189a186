package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
)

// BotTransport pushes the reply to an external bot platform's send API.
type BotTransport struct {
	cfg  config.BotConfig
	http *http.Client
}

// NewBotTransport builds the transport.
func NewBotTransport(cfg config.BotConfig) *BotTransport {
	return &BotTransport{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

type botSendRequest struct {
	RecipientID string `json:"recipient_id"`
	TicketID    string `json:"ticket_id"`
	Text        string `json:"text"`
}

// Deliver posts the reply to the platform send endpoint.
func (t *BotTransport) Deliver(ctx context.Context, ticket *domain.Ticket, customer *domain.Customer, reply *domain.Reply) error {
	if strings.TrimSpace(t.cfg.SendURL) == "" {
		return fmt.Errorf("bot send url not configured")
	}

	body, err := json.Marshal(botSendRequest{
		RecipientID: customer.ExternalID,
		TicketID:    ticket.ID,
		Text:        reply.Content,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.SendURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("bot send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("bot send returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

// LogTransport handles channels without a real outbound path. The reply is
// already recorded in the ledger; this only leaves a trace.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport builds the transport.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

// Deliver logs the reply.
func (t *LogTransport) Deliver(_ context.Context, ticket *domain.Ticket, _ *domain.Customer, reply *domain.Reply) error {
	t.logger.Info("outbound reply recorded without transport",
		zap.String("ticket_id", ticket.ID),
		zap.String("reply_id", reply.ID),
		zap.String("origin", string(reply.Origin)))
	return nil
}
