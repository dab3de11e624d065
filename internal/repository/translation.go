package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

type TranslationRepository interface {
	Create(ctx context.Context, original *models.Example, language, text string, spans []models.EntitySpanInput, hasValidEntities bool) (*models.TranslatedExample, error)
	GetByID(ctx context.Context, id int64) (*models.TranslatedExample, error)
	Exists(ctx context.Context, originalID int64, language string) (bool, error)
	Update(ctx context.Context, t *models.TranslatedExample, text string, spans *[]models.EntitySpanInput, hasValidEntities bool) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter TranslationFilter, page Page) ([]*models.TranslatedExample, error)
}

// TranslationFilter narrows the translation listing of one version.
type TranslationFilter struct {
	VersionID    int64
	FromLanguage string
	ToLanguage   string
}

type translationRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewTranslationRepository(db *sqlx.DB, logger *zap.Logger) TranslationRepository {
	return &translationRepository{db: db, logger: logger}
}

const translationSelect = `
	SELECT t.id, t.original_example_id, t.repository_version_language_id, ovl.language AS from_language,
		t.language, t.text, t.clone_repository, t.has_valid_entities, t.created_at
	FROM repository_translated_examples t
	JOIN repository_examples o ON o.id = t.original_example_id
	JOIN repository_version_languages ovl ON ovl.id = o.repository_version_language_id`

func (r *translationRepository) Create(ctx context.Context, original *models.Example, language, text string, spans []models.EntitySpanInput, hasValidEntities bool) (*models.TranslatedExample, error) {
	var id int64
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		vl, err := getOrCreateVersionLanguage(ctx, tx, original.VersionID, language)
		if err != nil {
			return err
		}

		err = tx.GetContext(ctx, &id, `
			INSERT INTO repository_translated_examples
				(original_example_id, repository_version_language_id, language, text, has_valid_entities)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			original.ID, vl.ID, language, text, hasValidEntities)
		if err != nil {
			return translateError(err)
		}

		return insertTranslationSpans(ctx, tx, original.VersionID, id, spans)
	})
	if err != nil {
		if !errors.Is(err, ErrConflict) {
			r.logger.Error("Failed to create translation", zap.Int64("original_example_id", original.ID), zap.Error(err))
		}
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func insertTranslationSpans(ctx context.Context, tx *sqlx.Tx, versionID, translationID int64, spans []models.EntitySpanInput) error {
	for _, span := range spans {
		entityID, err := resolveSpanEntity(ctx, tx, versionID, span)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO repository_translated_example_entities (repository_translated_example_id, start, "end", entity_id)
			VALUES ($1, $2, $3, $4)`, translationID, span.Start, span.End, entityID)
		if err != nil {
			return fmt.Errorf("insert translated entity: %w", err)
		}
	}
	return nil
}

func (r *translationRepository) GetByID(ctx context.Context, id int64) (*models.TranslatedExample, error) {
	var t models.TranslatedExample
	err := r.db.GetContext(ctx, &t, translationSelect+` WHERE t.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get translation", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	if err := loadTranslationEntities(ctx, r.db, []*models.TranslatedExample{&t}); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *translationRepository) Exists(ctx context.Context, originalID int64, language string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM repository_translated_examples WHERE original_example_id = $1 AND language = $2)`,
		originalID, language)
	return exists, err
}

// Update rewrites the translation. Edits clear the clone-origin flag.
func (r *translationRepository) Update(ctx context.Context, t *models.TranslatedExample, text string, spans *[]models.EntitySpanInput, hasValidEntities bool) error {
	var versionID int64
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &versionID,
			`SELECT repository_version_id FROM repository_version_languages WHERE id = $1`, t.VersionLanguageID)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE repository_translated_examples
			SET text = $1, has_valid_entities = $2, clone_repository = FALSE
			WHERE id = $3`, text, hasValidEntities, t.ID)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}

		if spans == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM repository_translated_example_entities WHERE repository_translated_example_id = $1`, t.ID); err != nil {
			return err
		}
		return insertTranslationSpans(ctx, tx, versionID, t.ID, *spans)
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		r.logger.Error("Failed to update translation", zap.Int64("id", t.ID), zap.Error(err))
	}
	return err
}

func (r *translationRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM repository_translated_examples WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete translation", zap.Int64("id", id), zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *translationRepository) List(ctx context.Context, filter TranslationFilter, page Page) ([]*models.TranslatedExample, error) {
	page = page.Normalize()

	var f Filter
	f.Where("ovl.repository_version_id = ?", filter.VersionID)
	f.Where("o.deleted_in IS NULL")
	f.WhereIf(filter.FromLanguage != "", "ovl.language = ?", filter.FromLanguage)
	f.WhereIf(filter.ToLanguage != "", "t.language = ?", filter.ToLanguage)

	query, args, err := f.Build(translationSelect, "ORDER BY t.created_at DESC, t.id DESC LIMIT ? OFFSET ?", page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}

	translations := []*models.TranslatedExample{}
	if err := r.db.SelectContext(ctx, &translations, query, args...); err != nil {
		r.logger.Error("Failed to list translations", zap.Error(err))
		return nil, err
	}
	if err := loadTranslationEntities(ctx, r.db, translations); err != nil {
		return nil, err
	}
	return translations, nil
}

func loadTranslationEntities(ctx context.Context, q sqlx.QueryerContext, translations []*models.TranslatedExample) error {
	if len(translations) == 0 {
		return nil
	}

	byID := make(map[int64]*models.TranslatedExample, len(translations))
	ids := make([]int64, 0, len(translations))
	for _, t := range translations {
		t.Entities = []models.TranslatedExampleEntity{}
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	query, args, err := sqlx.In(`
		SELECT te.id, te.repository_translated_example_id, te.start, te."end", te.entity_id,
			en.value AS entity_value, lb.value AS label_value, g.value AS group_value, te.created_at
		FROM repository_translated_example_entities te
		JOIN repository_entities en ON en.id = te.entity_id
		LEFT JOIN repository_entity_labels lb ON lb.id = en.label_id
		LEFT JOIN repository_entity_groups g ON g.id = en.group_id
		WHERE te.repository_translated_example_id IN (?)
		ORDER BY te.start, te.id
	`, ids)
	if err != nil {
		return err
	}

	var spans []models.TranslatedExampleEntity
	if err := sqlx.SelectContext(ctx, q, &spans, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return fmt.Errorf("load translated entities: %w", err)
	}
	for _, s := range spans {
		t := byID[s.TranslatedExampleID]
		t.Entities = append(t.Entities, s)
	}
	return nil
}
