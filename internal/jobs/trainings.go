package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/nlp_client"
	"nluhub/internal/repository"
)

// TaskStatusSource reports the state of a queued NLP task.
type TaskStatusSource interface {
	TaskStatus(ctx context.Context, idTask string, fromQueue int) (*nlp_client.TaskStatus, error)
}

// TrainingChecker refreshes in-progress queue tasks from the NLP task
// queue. A task with no news after the timeout is marked failed.
type TrainingChecker struct {
	tasks   repository.QueueTaskRepository
	nlp     TaskStatusSource
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func NewTrainingChecker(tasks repository.QueueTaskRepository, nlp TaskStatusSource, timeout time.Duration, logger *zap.Logger) *TrainingChecker {
	return &TrainingChecker{
		tasks:   tasks,
		nlp:     nlp,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

func (c *TrainingChecker) Name() string { return "check-trainings" }

func (c *TrainingChecker) Run(ctx context.Context) error {
	tasks, err := c.tasks.ListInProgress(ctx)
	if err != nil {
		return fmt.Errorf("list queue tasks: %w", err)
	}

	var failures int
	for _, task := range tasks {
		if err := c.check(ctx, task); err != nil {
			failures++
			c.logger.Error("Failed to update queue task", zap.Int64("task_id", task.ID), zap.Error(err))
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d queue tasks not updated", failures, len(tasks))
	}
	return nil
}

func (c *TrainingChecker) check(ctx context.Context, task *models.QueueTask) error {
	now := c.now()

	status, err := c.nlp.TaskStatus(ctx, task.IDQueue, task.FromQueue)
	if err != nil {
		c.logger.Warn("Failed to poll task status",
			zap.Int64("task_id", task.ID), zap.String("id_queue", task.IDQueue), zap.Error(err))
	} else if status.Status != task.Status {
		var end *time.Time
		if status.Status == models.TaskStatusSuccess {
			end = &now
		}
		c.logger.Info("Queue task status changed",
			zap.Int64("task_id", task.ID), zap.Int("from", task.Status), zap.Int("to", status.Status))
		return c.tasks.UpdateStatus(ctx, task.ID, status.Status, status.MLUnits, end)
	}

	if !task.CreatedAt.Add(c.timeout).After(now) {
		c.logger.Warn("Queue task timed out", zap.Int64("task_id", task.ID), zap.Time("created_at", task.CreatedAt))
		return c.tasks.UpdateStatus(ctx, task.ID, models.TaskStatusFailed, task.MLUnits, &now)
	}
	return nil
}
