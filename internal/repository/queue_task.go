package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

type QueueTaskRepository interface {
	Create(ctx context.Context, task *models.QueueTask) error
	ListInProgress(ctx context.Context) ([]*models.QueueTask, error)
	UpdateStatus(ctx context.Context, id int64, status int, mlUnits float64, endTraining *time.Time) error
	ListByVersionLanguage(ctx context.Context, versionLanguageID int64) ([]*models.QueueTask, error)
}

type queueTaskRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewQueueTaskRepository(db *sqlx.DB, logger *zap.Logger) QueueTaskRepository {
	return &queueTaskRepository{db: db, logger: logger}
}

const queueTaskColumns = `id, repository_version_language_id, id_queue, from_queue, status, ml_units,
	type_processing, created_at, end_training`

func (r *queueTaskRepository) Create(ctx context.Context, task *models.QueueTask) error {
	query := `
		INSERT INTO repository_queue_tasks (repository_version_language_id, id_queue, from_queue, status, type_processing)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		task.VersionLanguageID, task.IDQueue, task.FromQueue, task.Status, task.TypeProcessing,
	).Scan(&task.ID, &task.CreatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		r.logger.Error("Failed to create queue task", zap.Error(err))
		return err
	}
	return nil
}

// ListInProgress returns tasks still pending or training.
func (r *queueTaskRepository) ListInProgress(ctx context.Context) ([]*models.QueueTask, error) {
	tasks := []*models.QueueTask{}
	query := `SELECT ` + queueTaskColumns + ` FROM repository_queue_tasks WHERE status IN ($1, $2) ORDER BY id`
	if err := r.db.SelectContext(ctx, &tasks, query, models.TaskStatusPending, models.TaskStatusTraining); err != nil {
		r.logger.Error("Failed to list queue tasks in progress", zap.Error(err))
		return nil, err
	}
	return tasks, nil
}

func (r *queueTaskRepository) UpdateStatus(ctx context.Context, id int64, status int, mlUnits float64, endTraining *time.Time) error {
	query := `
		UPDATE repository_queue_tasks
		SET status = $1, ml_units = $2, end_training = COALESCE($3, end_training)
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, status, mlUnits, endTraining, id)
	if err != nil {
		r.logger.Error("Failed to update queue task", zap.Int64("id", id), zap.Error(err))
	}
	return err
}

func (r *queueTaskRepository) ListByVersionLanguage(ctx context.Context, versionLanguageID int64) ([]*models.QueueTask, error) {
	tasks := []*models.QueueTask{}
	query := `SELECT ` + queueTaskColumns + ` FROM repository_queue_tasks
		WHERE repository_version_language_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &tasks, query, versionLanguageID); err != nil {
		return nil, err
	}
	return tasks, nil
}
