package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	before []time.Time
	err    error
}

func (f *fakePurger) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	f.before = append(f.before, before)
	return 3, f.err
}

var now = time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

func newProcessor(purger *fakePurger) *Processor {
	return NewProcessor(purger, 168*time.Hour, zerolog.Nop()).WithClock(func() time.Time { return now })
}

func TestProcessor_TokenCleanup(t *testing.T) {
	purger := &fakePurger{}
	p := newProcessor(purger)

	err := p.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]any{"type": TypeTokenCleanup}})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{now.Add(-168 * time.Hour)}, purger.before)
}

func TestProcessor_TokenCleanupFailure(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	p := newProcessor(purger)

	err := p.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]any{"type": TypeTokenCleanup}})
	assert.ErrorContains(t, err, "db down")
}

func TestProcessor_UnknownTypeIsDropped(t *testing.T) {
	purger := &fakePurger{}
	p := newProcessor(purger)

	require.NoError(t, p.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]any{"type": "thumbnail"}}))
	assert.Empty(t, purger.before)
}
