package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream is the subset of Redis stream commands the consumer runs against
// one stream and consumer group.
type Stream interface {
	EnsureGroup(ctx context.Context) error
	Read(ctx context.Context, count int64, block time.Duration) ([]redis.XMessage, error)
	Ack(ctx context.Context, ids ...string) error
	ClaimStalled(ctx context.Context, minIdle time.Duration, count int64) ([]redis.XMessage, error)
}

type RedisStream struct {
	client   redis.Cmdable
	stream   string
	group    string
	consumer string
}

func NewRedisStream(client redis.Cmdable, stream, group, consumer string) *RedisStream {
	return &RedisStream{client: client, stream: stream, group: group, consumer: consumer}
}

// Add appends a message to the stream. It needs no group.
func (s *RedisStream) Add(ctx context.Context, values map[string]any) (string, error) {
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}).Result()
}

// EnsureGroup creates the consumer group, and the stream with it, unless
// the group already exists.
func (s *RedisStream) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (s *RedisStream) Read(ctx context.Context, count int64, block time.Duration) ([]redis.XMessage, error) {
	result, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msgs []redis.XMessage
	for _, stream := range result {
		msgs = append(msgs, stream.Messages...)
	}
	return msgs, nil
}

func (s *RedisStream) Ack(ctx context.Context, ids ...string) error {
	return s.client.XAck(ctx, s.stream, s.group, ids...).Err()
}

// ClaimStalled moves pending messages idle for at least minIdle, from any
// consumer of the group, to this consumer.
func (s *RedisStream) ClaimStalled(ctx context.Context, minIdle time.Duration, count int64) ([]redis.XMessage, error) {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.stream,
		Group:  s.group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	for _, entry := range pending {
		ids = append(ids, entry.ID)
	}
	return s.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
}
