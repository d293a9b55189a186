package queue

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/pipeline"
)

// Processor runs the pipeline for one delivered job.
type Processor interface {
	Process(ctx context.Context, job pipeline.Job)
}

// Consumer pulls inbound messages off the durable queue and feeds them to a
// worker pool. Delivery is at-least-once: redelivery after a worker crash is
// absorbed by the resolvers' idempotent get-or-create semantics.
type Consumer struct {
	conn      *amqp091.Connection
	ch        *amqp091.Channel
	cfg       config.QueueConfig
	processor Processor
	logger    *zap.Logger

	msgChan chan amqp091.Delivery
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewConsumer builds the consumer.
func NewConsumer(conn *amqp091.Connection, cfg config.QueueConfig, processor Processor, logger *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, err
	}
	bufferCap := cfg.Prefetch
	if bufferCap <= 0 {
		bufferCap = 10
	}
	return &Consumer{
		conn:      conn,
		ch:        ch,
		cfg:       cfg,
		processor: processor,
		logger:    logger,
		msgChan:   make(chan amqp091.Delivery, bufferCap),
		done:      make(chan struct{}),
	}, nil
}

// Start declares and binds the durable queue, then runs the worker pool.
func (c *Consumer) Start() error {
	var startErr error
	c.once.Do(func() {
		if err := c.setupQueue(); err != nil {
			startErr = err
			return
		}
		workers := c.cfg.Workers
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			c.wg.Add(1)
			go c.workerLoop()
		}
		c.logger.Info("queue consumer started",
			zap.String("queue", c.cfg.QueueName),
			zap.Int("workers", workers))
	})
	return startErr
}

func (c *Consumer) setupQueue() error {
	prefetch := c.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return err
	}
	q, err := c.ch.QueueDeclare(c.cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := c.ch.QueueBind(q.Name, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return err
	}
	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go c.forward(msgs)
	return nil
}

// forward feeds broker deliveries to the worker pool. msgChan is closed on
// every exit path so workers drain and Close never blocks, including when
// the broker drops the connection and closes the delivery stream.
func (c *Consumer) forward(msgs <-chan amqp091.Delivery) {
	defer close(c.msgChan)
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("delivery stream closed by broker",
					zap.String("queue", c.cfg.QueueName))
				return
			}
			c.msgChan <- msg
		}
	}
}

func (c *Consumer) workerLoop() {
	defer c.wg.Done()
	for msg := range c.msgChan {
		c.handle(msg)
	}
}

// handle always acks. Undecodable payloads carry no job worth redelivering,
// and the orchestrator's escalation path guarantees a visible artifact for
// every failure mode, so requeueing would only repeat the same outcome.
func (c *Consumer) handle(msg amqp091.Delivery) {
	var job pipeline.Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		c.logger.Error("dropping undecodable delivery",
			zap.String("message_id", msg.MessageId),
			zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}
	if _, ok := domain.ParseChannel(string(job.Channel)); !ok {
		job.Channel = domain.ChannelOther
	}

	ctx := context.Background()
	c.processor.Process(ctx, job)
	_ = msg.Ack(false)
}

// Close drains workers and tears down the channel.
func (c *Consumer) Close() error {
	close(c.done)
	c.wg.Wait()
	if c.ch != nil {
		return c.ch.Close()
	}
	return nil
}
