// Package jobs runs the background work of the API: the version clone
// worker and the periodic maintenance jobs.
package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"nluhub/internal/metrics"
)

// Job is one periodic maintenance task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job      Job
	interval time.Duration
}

// Scheduler runs each registered job on its own ticker.
type Scheduler struct {
	entries []entry
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewScheduler(m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	return &Scheduler{metrics: m, logger: logger}
}

// Every registers job to run every interval. Non-positive intervals disable it.
func (s *Scheduler) Every(interval time.Duration, job Job) {
	if interval <= 0 {
		s.logger.Info("Job disabled", zap.String("job", job.Name()))
		return
	}
	s.entries = append(s.entries, entry{job: job, interval: interval})
}

// Run blocks until ctx is cancelled and every loop has returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range s.entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			s.loop(ctx, e)
		}(e)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	log := s.logger.With(zap.String("job", e.job.Name()))
	log.Info("Job scheduled", zap.Duration("interval", e.interval))

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Job stopped.")
			return
		case <-ticker.C:
			s.RunOnce(ctx, e.job)
		}
	}
}

// RunOnce runs job a single time, logging and counting the outcome.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) error {
	start := time.Now()
	err := job.Run(ctx)
	s.metrics.ObserveJobRun(job.Name(), err)
	if err != nil {
		s.logger.Error("Job failed", zap.String("job", job.Name()), zap.Error(err))
		report(err, map[string]string{"job": job.Name()})
		return err
	}
	s.logger.Debug("Job finished", zap.String("job", job.Name()), zap.Duration("elapsed", time.Since(start)))
	return nil
}
