package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"muster/api/internal/config"
	"muster/api/internal/tasks"
)

// Enqueuer appends a task message to the maintenance stream.
type Enqueuer interface {
	Add(ctx context.Context, values map[string]any) (string, error)
}

type Scheduler struct {
	cron  *cron.Cron
	queue Enqueuer
	cfg   config.JobsConfig
	log   zerolog.Logger
}

func NewScheduler(queue Enqueuer, cfg config.JobsConfig, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:  c,
		queue: queue,
		cfg:   cfg,
		log:   log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the maintenance jobs. An empty schedule disables a job.
func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if s.cfg.TokenCleanup != "" {
		if _, err := s.cron.AddFunc(s.cfg.TokenCleanup, s.enqueueTokenCleanup); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) enqueueTokenCleanup() {
	if err := s.enqueueTask(map[string]any{
		"type": tasks.TypeTokenCleanup,
	}); err != nil {
		s.log.Error().Err(err).Msg("enqueue token cleanup failed")
	}
}

func (s *Scheduler) enqueueTask(payload map[string]any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := s.queue.Add(ctx, payload)
	if err != nil {
		return err
	}
	s.log.Debug().Str("message_id", id).Interface("task", payload["type"]).Msg("task enqueued")
	return nil
}
