package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

type VersionRepository interface {
	CreateClone(ctx context.Context, version *models.Version, sourceID int64) (*models.CloneJob, error)
	GetByID(ctx context.Context, id int64) (*models.Version, error)
	GetDefault(ctx context.Context, repoUUID uuid.UUID) (*models.Version, error)
	List(ctx context.Context, repoUUID uuid.UUID, page Page) ([]*models.Version, error)
	Rename(ctx context.Context, id int64, name string) error
	MakeDefault(ctx context.Context, repoUUID uuid.UUID, id int64) error
	Delete(ctx context.Context, id int64) error

	GetOrCreateLanguage(ctx context.Context, versionID int64, language string) (*models.VersionLanguage, error)
	GetLanguage(ctx context.Context, versionID int64, language string) (*models.VersionLanguage, error)
	GetLanguageByID(ctx context.Context, id int64) (*models.VersionLanguage, error)
	ListLanguages(ctx context.Context, filter VersionLanguageFilter, page Page) ([]*models.VersionLanguage, error)
	StartTraining(ctx context.Context, id int64) error
	FinishTraining(ctx context.Context, id int64, botData, rasaVersion, trainingLog string) error
	FailTraining(ctx context.Context, id int64, trainingLog string) error
}

// VersionLanguageFilter narrows the version-language listing.
type VersionLanguageFilter struct {
	RepositoryUUID uuid.UUID
	VersionID      *int64
	Trained        *bool
}

type versionRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewVersionRepository(db *sqlx.DB, logger *zap.Logger) VersionRepository {
	return &versionRepository{db: db, logger: logger}
}

const versionColumns = `id, repository_uuid, name, is_default, is_deleted, created_by, created_at, last_update`

const versionLanguageColumns = `id, repository_version_id, language, bot_data, rasa_version, training_started_at,
	training_end_at, failed_at, use_analyze_char, use_name_entities, use_competing_intents, algorithm,
	training_log, total_training_end, last_update, created_at`

// CreateClone inserts the destination version in its pending state together
// with the job that will fill it.
func (r *versionRepository) CreateClone(ctx context.Context, version *models.Version, sourceID int64) (*models.CloneJob, error) {
	job := &models.CloneJob{SourceVersionID: sourceID, RepositoryUUID: version.RepositoryUUID, Status: models.CloneJobPending}

	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx,
			`INSERT INTO repository_versions (repository_uuid, name, is_default, is_deleted, created_by)
			 VALUES ($1, $2, FALSE, TRUE, $3) RETURNING id, is_deleted, created_at, last_update`,
			version.RepositoryUUID, version.Name, version.CreatedBy,
		).Scan(&version.ID, &version.IsDeleted, &version.CreatedAt, &version.LastUpdate)
		if err != nil {
			return fmt.Errorf("create version: %w", err)
		}

		job.DestinationVersionID = version.ID
		return tx.QueryRowxContext(ctx,
			`INSERT INTO version_clone_jobs (destination_version_id, source_version_id, repository_uuid)
			 VALUES ($1, $2, $3) RETURNING id, created_at`,
			version.ID, sourceID, version.RepositoryUUID,
		).Scan(&job.ID, &job.CreatedAt)
	})
	if err != nil {
		r.logger.Error("Failed to create version clone", zap.Int64("source_version_id", sourceID), zap.Error(err))
		return nil, translateError(err)
	}
	return job, nil
}

func (r *versionRepository) getOne(ctx context.Context, where string, args ...any) (*models.Version, error) {
	var v models.Version
	err := r.db.GetContext(ctx, &v, `SELECT `+versionColumns+` FROM repository_versions WHERE `+where, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get version", zap.Error(err))
		return nil, err
	}
	return &v, nil
}

func (r *versionRepository) GetByID(ctx context.Context, id int64) (*models.Version, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *versionRepository) GetDefault(ctx context.Context, repoUUID uuid.UUID) (*models.Version, error) {
	return r.getOne(ctx, "repository_uuid = $1 AND is_default", repoUUID)
}

func (r *versionRepository) List(ctx context.Context, repoUUID uuid.UUID, page Page) ([]*models.Version, error) {
	page = page.Normalize()
	versions := []*models.Version{}
	query := `SELECT ` + versionColumns + ` FROM repository_versions
		WHERE repository_uuid = $1 ORDER BY is_default DESC, created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &versions, query, repoUUID, page.Limit, page.Offset); err != nil {
		r.logger.Error("Failed to list versions", zap.Error(err))
		return nil, err
	}
	return versions, nil
}

func (r *versionRepository) Rename(ctx context.Context, id int64, name string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE repository_versions SET name = $1, last_update = NOW() WHERE id = $2`, name, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MakeDefault moves the default flag of the repository to the given version.
func (r *versionRepository) MakeDefault(ctx context.Context, repoUUID uuid.UUID, id int64) error {
	return WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE repository_versions SET is_default = FALSE WHERE repository_uuid = $1 AND is_default`, repoUUID); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx,
			`UPDATE repository_versions SET is_default = TRUE, last_update = NOW() WHERE id = $1 AND repository_uuid = $2`,
			id, repoUUID)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

func (r *versionRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM repository_versions WHERE id = $1 AND NOT is_default`, id)
	if err != nil {
		r.logger.Error("Failed to delete version", zap.Int64("id", id), zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *versionRepository) GetOrCreateLanguage(ctx context.Context, versionID int64, language string) (*models.VersionLanguage, error) {
	vl, err := getOrCreateVersionLanguage(ctx, r.db, versionID, language)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get or create version language", zap.Int64("version_id", versionID), zap.Error(err))
		return nil, err
	}
	return vl, nil
}

func (r *versionRepository) getLanguage(ctx context.Context, where string, args ...any) (*models.VersionLanguage, error) {
	var vl models.VersionLanguage
	err := r.db.GetContext(ctx, &vl, `SELECT `+versionLanguageColumns+` FROM repository_version_languages WHERE `+where, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get version language", zap.Error(err))
		return nil, err
	}
	return &vl, nil
}

func (r *versionRepository) GetLanguage(ctx context.Context, versionID int64, language string) (*models.VersionLanguage, error) {
	return r.getLanguage(ctx, "repository_version_id = $1 AND language = $2", versionID, language)
}

func (r *versionRepository) GetLanguageByID(ctx context.Context, id int64) (*models.VersionLanguage, error) {
	return r.getLanguage(ctx, "id = $1", id)
}

func (r *versionRepository) ListLanguages(ctx context.Context, filter VersionLanguageFilter, page Page) ([]*models.VersionLanguage, error) {
	page = page.Normalize()

	var f Filter
	f.Where("v.repository_uuid = ?", filter.RepositoryUUID)
	if filter.VersionID != nil {
		f.Where("vl.repository_version_id = ?", *filter.VersionID)
	} else {
		f.Where("v.is_default")
	}
	if filter.Trained != nil {
		if *filter.Trained {
			f.Where("vl.training_end_at IS NOT NULL")
		} else {
			f.Where("vl.training_end_at IS NULL")
		}
	}

	base := `SELECT vl.id, vl.repository_version_id, vl.language, vl.bot_data, vl.rasa_version,
		vl.training_started_at, vl.training_end_at, vl.failed_at, vl.use_analyze_char, vl.use_name_entities,
		vl.use_competing_intents, vl.algorithm, vl.training_log, vl.total_training_end, vl.last_update, vl.created_at
		FROM repository_version_languages vl
		JOIN repository_versions v ON v.id = vl.repository_version_id`
	query, args, err := f.Build(base, "ORDER BY vl.language LIMIT ? OFFSET ?", page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}

	languages := []*models.VersionLanguage{}
	if err := r.db.SelectContext(ctx, &languages, query, args...); err != nil {
		r.logger.Error("Failed to list version languages", zap.Error(err))
		return nil, err
	}
	return languages, nil
}

func (r *versionRepository) StartTraining(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE repository_version_languages
		SET training_started_at = $1, failed_at = NULL, last_update = $1
		WHERE id = $2`, time.Now(), id)
	return err
}

func (r *versionRepository) FinishTraining(ctx context.Context, id int64, botData, rasaVersion, trainingLog string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE repository_version_languages
		SET bot_data = $1, rasa_version = $2, training_log = $3, training_end_at = $4,
			total_training_end = total_training_end + 1, failed_at = NULL, last_update = $4
		WHERE id = $5`, botData, rasaVersion, trainingLog, time.Now(), id)
	return err
}

func (r *versionRepository) FailTraining(ctx context.Context, id int64, trainingLog string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE repository_version_languages
		SET failed_at = $1, training_log = $2, last_update = $1
		WHERE id = $3`, time.Now(), trainingLog, id)
	return err
}
