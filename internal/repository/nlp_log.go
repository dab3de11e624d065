package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

type NLPLogRepository interface {
	Create(ctx context.Context, log *models.NLPLog) error
	// DeleteBatchBefore removes up to limit logs created before cutoff with
	// id greater than afterID, in one transaction. It returns the highest id
	// seen and the number of rows removed.
	DeleteBatchBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) (lastID int64, deleted int, err error)
}

type nlpLogRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewNLPLogRepository(db *sqlx.DB, logger *zap.Logger) NLPLogRepository {
	return &nlpLogRepository{db: db, logger: logger}
}

func (r *nlpLogRepository) Create(ctx context.Context, log *models.NLPLog) error {
	if len(log.Log) == 0 {
		log.Log = []byte("{}")
	}
	query := `
		INSERT INTO repository_nlp_logs (repository_version_language_id, user_id, text, user_agent, from_backend, nlp_log)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		log.VersionLanguageID, log.UserID, log.Text, log.UserAgent, log.FromBackend, []byte(log.Log),
	).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		r.logger.Error("Failed to create nlp log", zap.Error(err))
		return err
	}
	return nil
}

func (r *nlpLogRepository) DeleteBatchBefore(ctx context.Context, cutoff time.Time, afterID int64, limit int) (int64, int, error) {
	var lastID int64
	var deleted int

	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var ids []int64
		err := tx.SelectContext(ctx, &ids, `
			SELECT id FROM repository_nlp_logs
			WHERE created_at < $1 AND id > $2
			ORDER BY id
			LIMIT $3`, cutoff, afterID, limit)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return sql.ErrNoRows
		}

		query, args, err := sqlx.In(`DELETE FROM repository_nlp_logs WHERE id IN (?)`, ids)
		if err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return err
		}
		n, _ := result.RowsAffected()
		deleted = int(n)
		lastID = ids[len(ids)-1]
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return afterID, 0, nil
	}
	if err != nil {
		r.logger.Error("Failed to prune nlp logs", zap.Int64("after_id", afterID), zap.Error(err))
		return afterID, 0, err
	}
	return lastID, deleted, nil
}
