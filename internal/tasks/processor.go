package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"muster/api/internal/service"
)

const TypeTokenCleanup = "token_cleanup"

type Processor struct {
	tokens    service.TokenPurger
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

type TaskPayload struct {
	Type string `json:"type"`
}

func NewProcessor(tokens service.TokenPurger, retention time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		tokens:    tokens,
		retention: retention,
		now:       time.Now,
		logger:    logger.With().Str("component", "processor").Logger(),
	}
}

// WithClock replaces the clock. Call it before the value is shared.
func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

// Handle runs one stream message. Unknown task types are logged and
// acknowledged so they do not pile up in the pending list.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case TypeTokenCleanup:
		return p.handleTokenCleanup(ctx)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

// handleTokenCleanup deletes tokens that expired or were revoked more than
// one retention period ago.
func (p *Processor) handleTokenCleanup(ctx context.Context) error {
	cutoff := p.now().Add(-p.retention)
	n, err := p.tokens.DeleteExpired(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete expired tokens: %w", err)
	}
	p.logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("token cleanup finished")
	return nil
}
