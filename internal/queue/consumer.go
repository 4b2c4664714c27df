package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg redis.XMessage) error
}

const (
	readCount  = 10
	readBlock  = 5 * time.Second
	retryPause = 2 * time.Second
)

type Consumer struct {
	stream        Stream
	claimInterval time.Duration
	logger        zerolog.Logger
	handler       MessageHandler
}

func NewConsumer(stream Stream, claimInterval time.Duration, logger zerolog.Logger, handler MessageHandler) *Consumer {
	return &Consumer{
		stream:        stream,
		claimInterval: claimInterval,
		logger:        logger.With().Str("component", "consumer").Logger(),
		handler:       handler,
	}
}

// Start consumes until ctx is cancelled. Messages whose handler fails stay
// pending and are claimed again once idle for a claim interval.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.stream.EnsureGroup(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(c.claimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.read(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error().Err(err).Msg("stream read error")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(retryPause):
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.claimStalled(ctx); err != nil {
				c.logger.Error().Err(err).Msg("claim stalled failed")
			}
		default:
		}
	}
}

func (c *Consumer) read(ctx context.Context) error {
	msgs, err := c.stream.Read(ctx, readCount, readBlock)
	if err != nil {
		return err
	}
	c.process(ctx, msgs)
	return nil
}

func (c *Consumer) claimStalled(ctx context.Context) error {
	msgs, err := c.stream.ClaimStalled(ctx, c.claimInterval, readCount)
	if err != nil {
		return err
	}
	if len(msgs) > 0 {
		c.logger.Info().Int("count", len(msgs)).Msg("claimed stalled messages")
	}
	c.process(ctx, msgs)
	return nil
}

func (c *Consumer) process(ctx context.Context, msgs []redis.XMessage) {
	for _, msg := range msgs {
		if err := c.handler.Handle(ctx, msg); err != nil {
			c.logger.Error().
				Err(err).
				Str("message_id", msg.ID).
				Msg("handle message failed")
			continue
		}
		if err := c.stream.Ack(ctx, msg.ID); err != nil {
			c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("ack failed")
		}
	}
}
