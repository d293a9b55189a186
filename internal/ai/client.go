package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
)

const processPath = "/ai/process_incoming_message"

// Request is the payload sent to the analysis service.
type Request struct {
	Message    string `json:"message"`
	CustomerID string `json:"customer_id"`
	Source     string `json:"source"`
}

// response mirrors the analysis service's wire format. Every field is
// optional; suggested_reply superseded chatbot_reply across service
// generations, so both are accepted.
type response struct {
	Sentiment          *string `json:"sentiment,omitempty"`
	Intent             *string `json:"intent,omitempty"`
	SuggestedReply     *string `json:"suggested_reply,omitempty"`
	ChatbotReply       *string `json:"chatbot_reply,omitempty"`
	RecommendedAgentID *string `json:"recommended_agent_id,omitempty"`
	TicketCategory     *string `json:"ticket_category,omitempty"`
}

// Error describes an enrichment failure with its retry classification.
// Timeouts, transport errors, 5xx and rate limiting are retryable; other
// client errors and undecodable bodies are not.
type Error struct {
	Status    int
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("ai service returned %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("ai service call failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is an enrichment failure worth retrying.
// Non-Error values (storage transients and the like) are treated as
// retryable; the orchestrator owns the attempt cap.
func IsRetryable(err error) bool {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Retryable
	}
	return true
}

// Enricher is the pipeline-facing contract for AI analysis.
type Enricher interface {
	Enrich(ctx context.Context, req Request) (*domain.EnrichmentResult, error)
}

// Client calls the external analysis service over HTTP with a bounded
// timeout and a typed response contract.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a client from config.
func NewClient(cfg config.AIConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout()},
		logger:  logger,
	}
}

// Enrich performs one synchronous analysis call. It either fully succeeds
// and yields a result or fails and yields nothing; partial results are never
// returned.
func (c *Client) Enrich(ctx context.Context, req Request) (*domain.EnrichmentResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Retryable: false, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+processPath, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Retryable: false, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &Error{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		c.logger.Warn("ai service returned non-success",
			zap.Int("status", resp.StatusCode),
			zap.Bool("retryable", retryable),
			zap.ByteString("body", raw))
		return nil, &Error{
			Status:    resp.StatusCode,
			Retryable: retryable,
			Err:       errors.New(strings.TrimSpace(string(raw))),
		}
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &Error{Status: resp.StatusCode, Retryable: false, Err: fmt.Errorf("decode response: %w", err)}
	}

	return decoded.toResult(), nil
}

func (r *response) toResult() *domain.EnrichmentResult {
	result := &domain.EnrichmentResult{
		Sentiment:          domain.SentimentNeutral,
		Intent:             r.Intent,
		RecommendedAgentID: r.RecommendedAgentID,
		TicketCategory:     r.TicketCategory,
	}
	if r.Sentiment != nil {
		switch domain.Sentiment(*r.Sentiment) {
		case domain.SentimentPositive, domain.SentimentNegative, domain.SentimentNeutral:
			result.Sentiment = domain.Sentiment(*r.Sentiment)
		}
	}
	if r.SuggestedReply != nil {
		result.SuggestedReply = strings.TrimSpace(*r.SuggestedReply)
	} else if r.ChatbotReply != nil {
		result.SuggestedReply = strings.TrimSpace(*r.ChatbotReply)
	}
	return result
}
