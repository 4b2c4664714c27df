package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muster/api/internal/config"
)

type fakeQueue struct {
	added []map[string]any
	err   error
}

func (f *fakeQueue) Add(_ context.Context, values map[string]any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.added = append(f.added, values)
	return "1-0", nil
}

func TestScheduler_EnqueueTokenCleanup(t *testing.T) {
	q := &fakeQueue{}
	s := NewScheduler(q, config.JobsConfig{}, zerolog.Nop())

	s.enqueueTokenCleanup()

	require.Len(t, q.added, 1)
	assert.Equal(t, map[string]any{"type": "token_cleanup"}, q.added[0])
}

func TestScheduler_EnqueueFailureIsLogged(t *testing.T) {
	q := &fakeQueue{err: errors.New("redis down")}
	s := NewScheduler(q, config.JobsConfig{}, zerolog.Nop())

	assert.NotPanics(t, s.enqueueTokenCleanup)
}

func TestScheduler_Start(t *testing.T) {
	s := NewScheduler(&fakeQueue{}, config.JobsConfig{TokenCleanup: "0 0 3 * * *"}, zerolog.Nop())
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 1)
	<-s.Stop().Done()

	bad := NewScheduler(&fakeQueue{}, config.JobsConfig{TokenCleanup: "every night"}, zerolog.Nop())
	assert.Error(t, bad.Start())

	disabled := NewScheduler(&fakeQueue{}, config.JobsConfig{}, zerolog.Nop())
	require.NoError(t, disabled.Start())
	assert.Empty(t, disabled.cron.Entries())
	<-disabled.Stop().Done()
}
