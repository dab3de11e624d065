package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

// CloneJobRepository hands out version clone jobs to workers.
type CloneJobRepository interface {
	ClaimNext(ctx context.Context) (*models.CloneJob, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	GetByDestination(ctx context.Context, versionID int64) (*models.CloneJob, error)
}

type cloneJobRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewCloneJobRepository(db *sqlx.DB, logger *zap.Logger) CloneJobRepository {
	return &cloneJobRepository{db: db, logger: logger}
}

const cloneJobColumns = `id, destination_version_id, source_version_id, repository_uuid, status, error,
	created_at, started_at, finished_at`

// ClaimNext moves the oldest pending job to running. Concurrent workers skip
// rows locked by each other, so each job is claimed at most once.
func (r *cloneJobRepository) ClaimNext(ctx context.Context) (*models.CloneJob, error) {
	var job models.CloneJob
	query := `
		UPDATE version_clone_jobs SET status = $1, started_at = NOW()
		WHERE id = (
			SELECT id FROM version_clone_jobs
			WHERE status = $2
			ORDER BY created_at, id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + cloneJobColumns
	err := r.db.GetContext(ctx, &job, query, models.CloneJobRunning, models.CloneJobPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to claim clone job", zap.Error(err))
		return nil, err
	}
	return &job, nil
}

func (r *cloneJobRepository) MarkDone(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE version_clone_jobs SET status = $1, finished_at = NOW() WHERE id = $2`, models.CloneJobDone, id)
	return err
}

func (r *cloneJobRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE version_clone_jobs SET status = $1, error = $2, finished_at = NOW() WHERE id = $3`,
		models.CloneJobFailed, reason, id)
	return err
}

func (r *cloneJobRepository) GetByDestination(ctx context.Context, versionID int64) (*models.CloneJob, error) {
	var job models.CloneJob
	err := r.db.GetContext(ctx, &job, `SELECT `+cloneJobColumns+` FROM version_clone_jobs WHERE destination_version_id = $1`, versionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}
