package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
)

const maxDialBackoff = 30 * time.Second

// DialRabbit connects to RabbitMQ with capped exponential backoff. It
// respects context cancellation so shutdown is not blocked by a dead broker.
func DialRabbit(ctx context.Context, cfg config.QueueConfig, logger *zap.Logger) (*amqp091.Connection, error) {
	attempts := cfg.DialAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := time.Duration(cfg.DialBackoffMS) * time.Millisecond
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(cfg.URL)
		if err == nil {
			if i > 1 {
				logger.Info("rabbit connected", zap.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err

		sleep := backoff * time.Duration(1<<(i-1))
		if sleep > maxDialBackoff {
			sleep = maxDialBackoff
		}
		logger.Warn("rabbit dial failed",
			zap.Int("attempt", i),
			zap.Duration("sleep", sleep),
			zap.Error(err))

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("rabbit dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("rabbit dial failed after %d attempts: %w", attempts, lastErr)
}
