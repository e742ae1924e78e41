// Package reconcile closes the gap left by the two-phase "persist job,
// then register timer" protocol: there is no transactional boundary
// between the two writes, so a crash in between leaves a pending job
// without a timer registration. The sweep periodically re-dispatches any
// pending job whose scheduled instant has passed. Re-dispatching a job
// that does still have a registration is harmless — the delivery executor
// tolerates at-least-once invocation.
package reconcile

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/velora-hq/salesflow/internal/db"
	"github.com/velora-hq/salesflow/internal/metrics"
	"github.com/velora-hq/salesflow/internal/tasks"
)

// JobLister is the sweeper's view of the job repository.
type JobLister interface {
	ListOverduePendingJobs(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]*db.NotificationJob, error)
}

// Config tunes the sweep cadence and scope.
type Config struct {
	Schedule    string        // cron spec, e.g. "@every 5m"
	Grace       time.Duration // how far past due a job must be before re-dispatch
	BatchSize   int
	CallbackURL string
}

// Sweeper re-registers overdue pending jobs with the delayed-execution
// queue on a cron schedule.
type Sweeper struct {
	jobs       JobLister
	dispatcher tasks.Dispatcher
	cfg        Config
	cron       *cron.Cron
	logger     *zap.Logger
}

// New creates a sweeper.
func New(jobs JobLister, dispatcher tasks.Dispatcher, cfg Config, logger *zap.Logger) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 5m"
	}
	if cfg.Grace == 0 {
		cfg.Grace = 10 * time.Minute
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}

	return &Sweeper{
		jobs:       jobs,
		dispatcher: dispatcher,
		cfg:        cfg,
		cron:       cron.New(),
		logger:     logger,
	}
}

// Start schedules the sweep and runs it until Stop is called.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("reconciliation sweep started",
		zap.String("schedule", s.cfg.Schedule),
		zap.Duration("grace", s.cfg.Grace),
	)
	return nil
}

// Stop halts the cron scheduler, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("reconciliation sweep stopped")
}

// Sweep runs one reconciliation pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	overdue, err := s.jobs.ListOverduePendingJobs(ctx, time.Now(), s.cfg.Grace, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("failed to list overdue jobs", zap.Error(err))
		return
	}
	if len(overdue) == 0 {
		return
	}

	s.logger.Info("re-dispatching overdue pending jobs", zap.Int("count", len(overdue)))

	for _, job := range overdue {
		payload, err := json.Marshal(map[string]string{"jobId": job.ID})
		if err != nil {
			s.logger.Error("failed to marshal callback payload", zap.Error(err), zap.String("job_id", job.ID))
			continue
		}

		if _, err := s.dispatcher.Enqueue(ctx, s.cfg.CallbackURL, payload, time.Now()); err != nil {
			s.logger.Error("failed to re-dispatch job",
				zap.Error(err),
				zap.String("job_id", job.ID),
			)
			continue
		}

		metrics.RecordSweepRequeued()
		s.logger.Info("overdue job re-dispatched",
			zap.String("job_id", job.ID),
			zap.Time("scheduled_at", job.ScheduledAt),
		)
	}
}
