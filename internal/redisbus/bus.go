// Package redisbus carries owner-changed notifications over Redis pub/sub.
package redisbus

import (
	"context"
	"fmt"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/notify"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "fintrack:owner-changed"

type Bus struct {
	client  redis.UniversalClient
	channel string
	origin  string
	logger  *log.Logger
}

// Dial connects to addr and verifies the connection with a PING.
func Dial(ctx context.Context, addr, channel, origin string, logger *log.Logger) (*Bus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 10,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return New(client, channel, origin, logger), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, channel, origin string, logger *log.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Bus{
		client:  client,
		channel: channel,
		origin:  origin,
		logger:  logger.WithComponent(log.ComponentRedis),
	}
}

func (b *Bus) Origin() string {
	return b.origin
}

func (b *Bus) PublishOwnerChanged(ctx context.Context, ownerID string) error {
	body, err := notify.NewOwnerChangedMessage(ownerID, b.origin).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		return fmt.Errorf("publish owner change: %w", err)
	}
	return nil
}

// Consume subscribes to the channel and hands every message to h. Pub/sub has
// no acknowledgement, so a failed handler is only logged.
func (b *Bus) Consume(ctx context.Context, h notify.Handler) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.InfoContext(ctx, "Started consuming owner changes", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			msg, err := notify.OwnerChangedMessageFromJSON([]byte(m.Payload))
			if err != nil {
				b.logger.ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err)
				continue
			}
			if err := h(ctx, msg); err != nil {
				b.logger.ErrorContext(ctx, "Failed to handle message",
					log.FieldError, err, log.FieldOwnerID, msg.OwnerID)
			}
		}
	}
}

func (b *Bus) Close() error {
	return b.client.Close()
}

var _ notify.Bus = (*Bus)(nil)
