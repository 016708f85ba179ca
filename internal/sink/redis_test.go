package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	channel  string
	messages [][]byte
	err      error
	closed   bool
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.channel = channel
	f.messages = append(f.messages, message.([]byte))
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisSinkPublish(t *testing.T) {
	t.Parallel()
	client := &fakeRedis{}
	s := NewRedisSink(client, "markerpose:estimates", "session-1")

	require.NoError(t, s.Publish(context.Background(), emptyFrame()))
	assert.Equal(t, "markerpose:estimates", client.channel)
	require.Len(t, client.messages, 1)

	var decoded Message
	require.NoError(t, json.Unmarshal(client.messages[0], &decoded))
	assert.True(t, decoded.Empty)
	assert.Equal(t, "session-1", decoded.SessionID)

	require.NoError(t, s.Close())
	assert.True(t, client.closed)
}

func TestRedisSinkError(t *testing.T) {
	t.Parallel()
	s := NewRedisSink(&fakeRedis{err: errors.New("connection refused")}, "c", "s")
	err := s.Publish(context.Background(), emptyFrame())
	assert.ErrorContains(t, err, "connection refused")
}

func TestNewRedisClient(t *testing.T) {
	t.Parallel()
	c := NewRedisClient("localhost:6379", "", 2)
	defer c.Close()
	assert.Equal(t, "localhost:6379", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)
}
