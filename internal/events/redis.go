package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroadcaster publishes events over redis pub/sub so every subscriber
// of a ticket's channel receives them.
type RedisBroadcaster struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBroadcaster builds the broadcaster.
func NewRedisBroadcaster(client *redis.Client, logger *zap.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, logger: logger}
}

// Broadcast publishes the event on the ticket-scoped channel.
func (b *RedisBroadcaster) Broadcast(ctx context.Context, event Event) error {
	event = Stamp(event)
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	channel := TicketChannel(event.TicketID)
	if err := b.client.Publish(ctx, channel, body).Err(); err != nil {
		return err
	}
	b.logger.Debug("broadcast published",
		zap.String("channel", channel),
		zap.String("event_type", string(event.Type)))
	return nil
}
