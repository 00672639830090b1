package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chris/neighborhood-packs/pkg/models"
	"github.com/redis/go-redis/v9"
)

// RedisChannelPrefix is followed by the recipient's user ID.
const RedisChannelPrefix = "notifications:"

// RedisPublisher is the subset of the Redis client used by RedisSink.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes notifications on Redis Pub/Sub so that every API
// instance can push them to its own websocket clients.
type RedisSink struct {
	Client RedisPublisher
}

var _ Sink = (*RedisSink)(nil)

func (s *RedisSink) Send(ctx context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification for Redis: %w", err)
	}
	if err := s.Client.Publish(ctx, RedisChannelPrefix+n.UserID, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification to Redis: %w", err)
	}
	return nil
}

// SubscribeRedis forwards every notification published by any RedisSink to
// local. It blocks until ctx is done.
func SubscribeRedis(ctx context.Context, client *redis.Client, local Sink) error {
	pubsub := client.PSubscribe(ctx, RedisChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			forward(ctx, msg.Channel, msg.Payload, local)
		}
	}
}

func forward(ctx context.Context, channel, payload string, local Sink) {
	var n models.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		slog.Warn("failed to parse notification from Redis", slog.String("channel", channel), slog.Any("error", err))
		return
	}
	if n.UserID == "" {
		n.UserID = strings.TrimPrefix(channel, RedisChannelPrefix)
	}
	if err := local.Send(ctx, n); err != nil {
		slog.Error("failed to forward notification", slog.String("notification_id", n.ID), slog.Any("error", err))
	}
}
