package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/pipeline"
)

// Publisher enqueues inbound messages for asynchronous processing. Publish
// returns the broker message id for the acceptance acknowledgement.
type Publisher interface {
	Publish(ctx context.Context, job pipeline.Job) (string, error)
	Close() error
}

type rmqPublisher struct {
	conn       *amqp091.Connection
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewPublisher declares the topic exchange and returns a publisher with
// confirms enabled.
func NewPublisher(conn *amqp091.Connection, cfg config.QueueConfig, logger *zap.Logger) (Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		cfg.Exchange, "topic", true, false, false, false, nil,
	); err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, err
	}

	return &rmqPublisher{
		conn:       conn,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// Publish enqueues the job with persistent delivery so it survives a broker
// restart.
func (p *rmqPublisher) Publish(ctx context.Context, job pipeline.Job) (string, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return "", err
	}
	defer ch.Close()

	body, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	messageID := uuid.NewString()
	err = ch.PublishWithContext(
		ctx, p.exchange, p.routingKey, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return "", err
	}
	p.logger.Info("message enqueued",
		zap.String("key", p.routingKey),
		zap.String("message_id", messageID),
		zap.String("customer_identifier", job.CustomerExternalID))
	return messageID, nil
}

// Close releases publisher-owned resources. Channels are opened per publish
// and the connection belongs to the caller, so there is nothing to tear down.
func (p *rmqPublisher) Close() error {
	return nil
}
