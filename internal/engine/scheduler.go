package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is a named periodic task. Run must honor ctx and absorb its own
// errors; a job that panics or blocks forever takes its goroutine with it.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler runs registered jobs on fixed intervals until the context is
// canceled. Each job fires once at startup and then on every tick.
type Scheduler struct {
	jobs   []Job
	logger *zap.Logger
}

func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger}
}

func (s *Scheduler) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %q: interval must be positive", job.Name)
	}
	if job.Run == nil {
		return fmt.Errorf("job %q: run func is required", job.Name)
	}

	s.jobs = append(s.jobs, job)
	return nil
}

// Start blocks until ctx is canceled and all job goroutines have drained.
func (s *Scheduler) Start(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, job := range s.jobs {
		job := job
		group.Go(func() error {
			s.runJob(groupCtx, job)
			return nil
		})
	}

	return group.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	log := s.logger.With(zap.String("job", job.Name), zap.Duration("interval", job.Interval))
	log.Info("scheduled job started")

	job.Run(ctx)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduled job stopped")
			return
		case <-ticker.C:
			job.Run(ctx)
		}
	}
}
