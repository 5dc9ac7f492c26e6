// Package scheduler runs status passes on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/botzhub/botstatus/internal/logger"
)

// Task is a unit of scheduled work.
type Task func(ctx context.Context) error

// Scheduler wraps a gocron scheduler. Jobs run in singleton mode so a slow
// pass is never overlapped by the next one.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	mu        sync.Mutex
	running   bool
}

// New creates a scheduler evaluating cron expressions in loc.
func New(loc *time.Location, log *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Discard()
	}

	s, err := gocron.NewScheduler(
		gocron.WithLocation(loc),
		gocron.WithLogger(logger.NewGocronLogger(log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Scheduler{scheduler: s, logger: log.With("component", "scheduler")}, nil
}

// Add registers task under name. The first run happens as soon as the
// scheduler starts, later runs follow schedule. ctx is passed to every run.
func (s *Scheduler) Add(ctx context.Context, name, schedule string, task Task) error {
	_, err := s.scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(func() {
			s.logger.Info("Running scheduled task", "task_name", name)
			start := time.Now()
			if err := task(ctx); err != nil {
				s.logger.Error("Scheduled task failed", "task_name", name, "error", err)
			}
			s.logger.Info("Finished scheduled task", "task_name", name, "duration", time.Since(start))
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		s.logger.Error("Failed to schedule task", "task_name", name, "schedule", schedule, "error", err)
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	s.logger.Info("Scheduled task", "task_name", name, "schedule", schedule)
	return nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.scheduler.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.scheduler.Jobs()))

	<-ctx.Done()

	s.logger.Debug("Stopping scheduler gracefully (waiting for jobs)...")
	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return err
}
