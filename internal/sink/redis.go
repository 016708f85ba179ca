package sink

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/banshee-data/markerpose/internal/pipeline"
)

// RedisPublisher is the part of *redis.Client the sink uses.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// NewRedisClient returns a client for addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisSink publishes one JSON message per frame on a pub/sub channel.
type RedisSink struct {
	client    RedisPublisher
	channel   string
	sessionID string
}

func NewRedisSink(client RedisPublisher, channel, sessionID string) *RedisSink {
	return &RedisSink{client: client, channel: channel, sessionID: sessionID}
}

func (s *RedisSink) Publish(ctx context.Context, r pipeline.FrameResult) error {
	payload, err := NewMessage(s.sessionID, r).Encode()
	if err != nil {
		return fmt.Errorf("failed to serialize frame: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.channel, err)
	}
	return nil
}

func (s *RedisSink) Close() error { return s.client.Close() }
