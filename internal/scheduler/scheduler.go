// Package scheduler runs periodic housekeeping jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 10 * time.Minute

type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{cron: cron.New(), logger: logger}
}

// Add registers job. Jobs with an empty spec are skipped.
func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		s.logger.Info("scheduled job disabled", zap.String("job", job.Name))
		return nil
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { s.run(job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	return nil
}

func (s *Scheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	count, err := job.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	s.logger.Info("scheduled job completed",
		zap.String("job", job.Name),
		zap.Int64("affected", count),
		zap.Duration("elapsed", time.Since(start)))
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and returns a context that is done once running jobs
// finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
