package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// Deliver implements Sink.
func (s LogSink) Deliver(ctx context.Context, e Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"kind", e.Kind,
		"reservation", e.ReservationID,
		"user", e.UserID,
	}
	if e.ActorID != "" {
		attrs = append(attrs, "actor", e.ActorID)
	}
	if e.ItemID != nil {
		attrs = append(attrs, "item", *e.ItemID, "action", e.Action)
	}
	if e.Comment != nil {
		attrs = append(attrs, "comment", *e.Comment)
	}
	if e.DaysOverdue > 0 {
		attrs = append(attrs, "days_overdue", e.DaysOverdue)
	}
	logger.InfoContext(ctx, "notification", attrs...)
	return nil
}

// RedisSink publishes events as JSON on a Redis pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink connects to the Redis server at addr.
func NewRedisSink(addr, password, channel string) *RedisSink {
	return &RedisSink{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		channel: channel,
	}
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Deliver implements Sink.
func (s *RedisSink) Deliver(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", s.channel, err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
