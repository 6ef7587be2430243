package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "booking_events"

// Envelope is the message published for every notice.
type Envelope struct {
	ID        string    `json:"id"`
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Notice    `json:"payload"`
}

// RedisPublisher publishes notices on a Redis pub/sub channel for the mail
// and calendar workers to pick up.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	newID   func() string
	now     func() time.Time
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (p *RedisPublisher) publish(ctx context.Context, n Notice) error {
	data, err := json.Marshal(Envelope{
		ID:        p.newID(),
		Type:      n.Kind,
		Timestamp: p.now(),
		Payload:   n,
	})
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, string(data)).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", n.Kind, err)
	}
	return nil
}

func (p *RedisPublisher) SendConfirmation(ctx context.Context, n Notice) error {
	n.Kind = KindConfirmation
	return p.publish(ctx, n)
}

func (p *RedisPublisher) SendReschedule(ctx context.Context, n Notice) error {
	n.Kind = KindReschedule
	return p.publish(ctx, n)
}

func (p *RedisPublisher) SendCancellation(ctx context.Context, n Notice) error {
	n.Kind = KindCancellation
	return p.publish(ctx, n)
}

func (p *RedisPublisher) SendReminder(ctx context.Context, n Notice) error {
	n.Kind = KindReminder
	return p.publish(ctx, n)
}
