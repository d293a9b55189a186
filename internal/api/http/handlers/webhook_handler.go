package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/pipeline"
	"github.com/spec-kit/helpdesk/internal/queue"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

// WebhookHandler is the ingestion gateway for external channels. It
// validates and enqueues; all processing happens asynchronously so the
// channel integration gets a fast acknowledgement.
type WebhookHandler struct {
	publisher   queue.Publisher
	sharedToken string
	logger      *zap.Logger
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(publisher queue.Publisher, sharedToken string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{publisher: publisher, sharedToken: sharedToken, logger: logger}
}

// Incoming POST /webhooks/incoming.
func (h *WebhookHandler) Incoming(c *fiber.Ctx) error {
	if err := h.authorize(c); err != nil {
		return err
	}

	var req dto.IncomingWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Message = strings.TrimSpace(req.Message)
	req.CustomerIdentifier = strings.TrimSpace(req.CustomerIdentifier)
	if req.Message == "" || req.CustomerIdentifier == "" {
		return apperrors.NewValidationError("message and customer_identifier required", nil)
	}
	channel, ok := domain.ParseChannel(req.SourceChannel)
	if !ok {
		channel = domain.ChannelOther
	}

	job := pipeline.Job{
		MessageText:        req.Message,
		CustomerExternalID: req.CustomerIdentifier,
		Channel:            channel,
		Subject:            strings.TrimSpace(req.Subject),
	}
	messageID, err := h.publisher.Publish(c.UserContext(), job)
	if err != nil {
		h.logger.Error("failed to enqueue incoming message",
			zap.String("customer_identifier", req.CustomerIdentifier),
			zap.Error(err))
		return apperrors.NewInternalError(err)
	}

	return c.Status(http.StatusAccepted).JSON(dto.IncomingWebhookResponse{
		Status:    "accepted",
		MessageID: messageID,
	})
}

func (h *WebhookHandler) authorize(c *fiber.Ctx) error {
	if h.sharedToken == "" {
		return nil
	}
	header := c.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("missing webhook token")
	}
	if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(h.sharedToken)) != 1 {
		return apperrors.NewUnauthorized("invalid webhook token")
	}
	return nil
}
