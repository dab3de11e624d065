package jobs

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"nluhub/internal/metrics"
	"nluhub/internal/models"
	"nluhub/internal/repository"
)

// Cloner copies the content of one version into another.
type Cloner interface {
	Clone(ctx context.Context, sourceVersionID, destVersionID int64) error
}

// CloneWorker drains the version clone queue.
type CloneWorker struct {
	jobs         repository.CloneJobRepository
	cloner       Cloner
	metrics      *metrics.Metrics
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewCloneWorker(
	jobs repository.CloneJobRepository,
	cloner Cloner,
	m *metrics.Metrics,
	pollInterval time.Duration,
	logger *zap.Logger,
) *CloneWorker {
	return &CloneWorker{
		jobs:         jobs,
		cloner:       cloner,
		metrics:      m,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run polls for pending jobs until ctx is cancelled.
func (w *CloneWorker) Run(ctx context.Context) {
	w.logger.Info("Clone worker started.", zap.Duration("poll_interval", w.pollInterval))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Clone worker stopped.")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *CloneWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("Failed to claim clone job", zap.Error(err))
			return
		}
		if !processed {
			return
		}
	}
}

// RunOnce claims and runs at most one job. It reports whether a job was
// claimed; a failed clone is recorded on the job row, not returned.
func (w *CloneWorker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.jobs.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := w.logger.With(
		zap.Int64("job_id", job.ID),
		zap.Int64("source_version_id", job.SourceVersionID),
		zap.Int64("destination_version_id", job.DestinationVersionID))
	log.Info("Cloning version")

	start := time.Now()
	if err := w.cloner.Clone(ctx, job.SourceVersionID, job.DestinationVersionID); err != nil {
		w.metrics.ObserveCloneJob(models.CloneJobFailed, time.Since(start))
		log.Error("Version clone failed", zap.Error(err))
		report(err, map[string]string{"job": "clone", "repository_uuid": job.RepositoryUUID.String()})

		// the job context may be the reason the clone failed
		if markErr := w.jobs.MarkFailed(context.WithoutCancel(ctx), job.ID, err.Error()); markErr != nil {
			log.Error("Failed to mark clone job failed", zap.Error(markErr))
		}
		return true, nil
	}

	if err := w.jobs.MarkDone(ctx, job.ID); err != nil {
		log.Error("Failed to mark clone job done", zap.Error(err))
		return true, nil
	}
	w.metrics.ObserveCloneJob(models.CloneJobDone, time.Since(start))
	log.Info("Version cloned", zap.Duration("elapsed", time.Since(start)))
	return true, nil
}

// report sends err to Sentry. Without an initialized client it does nothing.
func report(err error, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}
