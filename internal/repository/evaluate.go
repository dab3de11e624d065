package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

type EvaluateRepository interface {
	Create(ctx context.Context, versionID int64, language, text, intent string, spans []models.EntitySpanInput) (*models.Evaluate, error)
	GetByID(ctx context.Context, id int64) (*models.Evaluate, error)
	GetRepositoryUUID(ctx context.Context, id int64) (uuid.UUID, error)
	Update(ctx context.Context, e *models.Evaluate, text, intent string, spans *[]models.EntitySpanInput) error
	MarkDeleted(ctx context.Context, id, versionID int64) error
	List(ctx context.Context, filter EvaluateFilter, page Page) ([]*models.Evaluate, error)
	Count(ctx context.Context, versionLanguageID int64) (int, error)
}

// EvaluateFilter narrows the evaluation listing of one version.
type EvaluateFilter struct {
	VersionID int64
	Language  string
	Label     string
	Entity    string
	Intent    string
	Text      string
	Search    string
}

type evaluateRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewEvaluateRepository(db *sqlx.DB, logger *zap.Logger) EvaluateRepository {
	return &evaluateRepository{db: db, logger: logger}
}

const evaluateSelect = `
	SELECT ev.id, ev.repository_version_language_id, vl.language, ev.text, ev.intent, ev.deleted_in, ev.created_at
	FROM repository_evaluates ev
	JOIN repository_version_languages vl ON vl.id = ev.repository_version_language_id`

func (r *evaluateRepository) Create(ctx context.Context, versionID int64, language, text, intent string, spans []models.EntitySpanInput) (*models.Evaluate, error) {
	var id int64
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		vl, err := getOrCreateVersionLanguage(ctx, tx, versionID, language)
		if err != nil {
			return err
		}

		err = tx.GetContext(ctx, &id,
			`INSERT INTO repository_evaluates (repository_version_language_id, text, intent) VALUES ($1, $2, $3) RETURNING id`,
			vl.ID, text, intent)
		if err != nil {
			return fmt.Errorf("insert evaluate: %w", err)
		}
		return insertEvaluateSpans(ctx, tx, versionID, id, spans)
	})
	if err != nil {
		r.logger.Error("Failed to create evaluate", zap.Int64("version_id", versionID), zap.Error(err))
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Evaluation spans reference the entity by value only.
func insertEvaluateSpans(ctx context.Context, tx *sqlx.Tx, versionID, evaluateID int64, spans []models.EntitySpanInput) error {
	for _, span := range spans {
		entityID, err := getOrCreateEntity(ctx, tx, versionID, span.Entity, nil, nil)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO repository_evaluate_entities (repository_evaluate_id, start, "end", entity_id)
			VALUES ($1, $2, $3, $4)`, evaluateID, span.Start, span.End, entityID)
		if err != nil {
			return fmt.Errorf("insert evaluate entity: %w", err)
		}
	}
	return nil
}

func (r *evaluateRepository) GetByID(ctx context.Context, id int64) (*models.Evaluate, error) {
	var e models.Evaluate
	err := r.db.GetContext(ctx, &e, evaluateSelect+` WHERE ev.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get evaluate", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	if err := loadEvaluateEntities(ctx, r.db, []*models.Evaluate{&e}); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *evaluateRepository) GetRepositoryUUID(ctx context.Context, id int64) (uuid.UUID, error) {
	var repoUUID uuid.UUID
	query := `
		SELECT v.repository_uuid
		FROM repository_evaluates ev
		JOIN repository_version_languages vl ON vl.id = ev.repository_version_language_id
		JOIN repository_versions v ON v.id = vl.repository_version_id
		WHERE ev.id = $1
	`
	err := r.db.GetContext(ctx, &repoUUID, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil
	}
	return repoUUID, err
}

func (r *evaluateRepository) Update(ctx context.Context, e *models.Evaluate, text, intent string, spans *[]models.EntitySpanInput) error {
	return WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var versionID int64
		err := tx.GetContext(ctx, &versionID,
			`SELECT repository_version_id FROM repository_version_languages WHERE id = $1`, e.VersionLanguageID)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE repository_evaluates SET text = $1, intent = $2 WHERE id = $3 AND deleted_in IS NULL`,
			text, intent, e.ID)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}

		if spans == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM repository_evaluate_entities WHERE repository_evaluate_id = $1`, e.ID); err != nil {
			return err
		}
		return insertEvaluateSpans(ctx, tx, versionID, e.ID, *spans)
	})
}

func (r *evaluateRepository) MarkDeleted(ctx context.Context, id, versionID int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE repository_evaluates SET deleted_in = $1 WHERE id = $2 AND deleted_in IS NULL`, versionID, id)
	if err != nil {
		r.logger.Error("Failed to delete evaluate", zap.Int64("id", id), zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *evaluateRepository) List(ctx context.Context, filter EvaluateFilter, page Page) ([]*models.Evaluate, error) {
	page = page.Normalize()

	var f Filter
	f.Where("vl.repository_version_id = ?", filter.VersionID)
	f.Where("ev.deleted_in IS NULL")
	f.WhereIf(filter.Language != "", "vl.language = ?", filter.Language)
	f.WhereIf(filter.Intent != "", "ev.intent = ?", filter.Intent)
	f.WhereIf(filter.Text != "", "ev.text = ?", filter.Text)
	f.WhereIf(filter.Search != "", `ev.text ILIKE ? ESCAPE '\'`, "%"+escapeLike(filter.Search)+"%")
	f.WhereIf(filter.Entity != "", `EXISTS (
		SELECT 1 FROM repository_evaluate_entities ee
		JOIN repository_entities en ON en.id = ee.entity_id
		WHERE ee.repository_evaluate_id = ev.id AND en.value = ?)`, filter.Entity)

	switch {
	case filter.Label == OtherLabel:
		f.Where(`EXISTS (
			SELECT 1 FROM repository_evaluate_entities ee
			JOIN repository_entities en ON en.id = ee.entity_id
			WHERE ee.repository_evaluate_id = ev.id AND en.label_id IS NULL)`)
	case filter.Label != "":
		f.Where(`EXISTS (
			SELECT 1 FROM repository_evaluate_entities ee
			JOIN repository_entities en ON en.id = ee.entity_id
			JOIN repository_entity_labels lb ON lb.id = en.label_id
			WHERE ee.repository_evaluate_id = ev.id AND lb.value = ?)`, filter.Label)
	}

	query, args, err := f.Build(evaluateSelect, "ORDER BY ev.created_at DESC, ev.id DESC LIMIT ? OFFSET ?", page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}

	evaluates := []*models.Evaluate{}
	if err := r.db.SelectContext(ctx, &evaluates, query, args...); err != nil {
		r.logger.Error("Failed to list evaluates", zap.Error(err))
		return nil, err
	}
	if err := loadEvaluateEntities(ctx, r.db, evaluates); err != nil {
		return nil, err
	}
	return evaluates, nil
}

func (r *evaluateRepository) Count(ctx context.Context, versionLanguageID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM repository_evaluates WHERE repository_version_language_id = $1 AND deleted_in IS NULL`,
		versionLanguageID)
	return count, err
}

func loadEvaluateEntities(ctx context.Context, q sqlx.QueryerContext, evaluates []*models.Evaluate) error {
	if len(evaluates) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Evaluate, len(evaluates))
	ids := make([]int64, 0, len(evaluates))
	for _, e := range evaluates {
		e.Entities = []models.EvaluateEntity{}
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	query, args, err := sqlx.In(`
		SELECT ee.id, ee.repository_evaluate_id, ee.start, ee."end", ee.entity_id, en.value AS entity_value, ee.created_at
		FROM repository_evaluate_entities ee
		JOIN repository_entities en ON en.id = ee.entity_id
		WHERE ee.repository_evaluate_id IN (?)
		ORDER BY ee.start, ee.id
	`, ids)
	if err != nil {
		return err
	}

	var spans []models.EvaluateEntity
	if err := sqlx.SelectContext(ctx, q, &spans, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return fmt.Errorf("load evaluate entities: %w", err)
	}
	for _, s := range spans {
		e := byID[s.EvaluateID]
		e.Entities = append(e.Entities, s)
	}
	return nil
}
