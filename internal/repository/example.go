package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

type ExampleRepository interface {
	Create(ctx context.Context, versionID int64, language, text, intent string, spans []models.EntitySpanInput) (*models.Example, error)
	GetByID(ctx context.Context, id int64) (*models.Example, error)
	GetRepositoryUUID(ctx context.Context, id int64) (uuid.UUID, error)
	Update(ctx context.Context, example *models.Example, text, intent string, spans *[]models.EntitySpanInput) error
	MarkDeleted(ctx context.Context, id, versionID int64) error
	List(ctx context.Context, filter ExampleFilter, page Page) ([]*models.Example, error)
	DuplicateExists(ctx context.Context, versionID int64, language, text, intent string, excludeID int64) (bool, error)
	CountIntents(ctx context.Context, versionLanguageID int64) (int, error)
}

// ExampleFilter narrows the example listing of one repository version.
type ExampleFilter struct {
	VersionID           int64
	Language            string
	Label               string
	Entity              string
	Intent              string
	Text                string
	Search              string
	HasTranslation      *bool
	HasNotTranslationTo string
	OrderByTranslation  string
}

// OtherLabel selects entities that carry no label.
const OtherLabel = "other"

type exampleRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewExampleRepository(db *sqlx.DB, logger *zap.Logger) ExampleRepository {
	return &exampleRepository{db: db, logger: logger}
}

const exampleSelect = `
	SELECT e.id, e.repository_version_language_id, vl.repository_version_id, vl.language, e.text,
		e.intent_id, i.text AS intent_text, e.deleted_in, e.created_at, e.last_update
	FROM repository_examples e
	JOIN repository_version_languages vl ON vl.id = e.repository_version_language_id
	LEFT JOIN repository_intents i ON i.id = e.intent_id`

func (r *exampleRepository) Create(ctx context.Context, versionID int64, language, text, intent string, spans []models.EntitySpanInput) (*models.Example, error) {
	var id int64
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		vl, err := getOrCreateVersionLanguage(ctx, tx, versionID, language)
		if err != nil {
			return err
		}

		var intentID *int64
		if intent != "" {
			iid, err := getOrCreateIntent(ctx, tx, versionID, intent)
			if err != nil {
				return err
			}
			intentID = &iid
		}

		err = tx.GetContext(ctx, &id,
			`INSERT INTO repository_examples (repository_version_language_id, text, intent_id) VALUES ($1, $2, $3) RETURNING id`,
			vl.ID, text, intentID)
		if err != nil {
			return fmt.Errorf("insert example: %w", err)
		}

		return insertExampleSpans(ctx, tx, versionID, id, spans)
	})
	if err != nil {
		r.logger.Error("Failed to create example", zap.Int64("version_id", versionID), zap.Error(err))
		return nil, err
	}

	return r.GetByID(ctx, id)
}

func insertExampleSpans(ctx context.Context, tx *sqlx.Tx, versionID, exampleID int64, spans []models.EntitySpanInput) error {
	for _, span := range spans {
		entityID, err := resolveSpanEntity(ctx, tx, versionID, span)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO repository_example_entities (repository_example_id, start, "end", entity_id) VALUES ($1, $2, $3, $4)`,
			exampleID, span.Start, span.End, entityID)
		if err != nil {
			return fmt.Errorf("insert example entity: %w", err)
		}
	}
	return nil
}

func (r *exampleRepository) GetByID(ctx context.Context, id int64) (*models.Example, error) {
	var example models.Example
	err := r.db.GetContext(ctx, &example, exampleSelect+` WHERE e.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get example", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}

	if err := loadExampleEntities(ctx, r.db, []*models.Example{&example}); err != nil {
		return nil, err
	}
	return &example, nil
}

func (r *exampleRepository) GetRepositoryUUID(ctx context.Context, id int64) (uuid.UUID, error) {
	var repoUUID uuid.UUID
	query := `
		SELECT v.repository_uuid
		FROM repository_examples e
		JOIN repository_version_languages vl ON vl.id = e.repository_version_language_id
		JOIN repository_versions v ON v.id = vl.repository_version_id
		WHERE e.id = $1
	`
	err := r.db.GetContext(ctx, &repoUUID, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil
	}
	return repoUUID, err
}

func (r *exampleRepository) Update(ctx context.Context, example *models.Example, text, intent string, spans *[]models.EntitySpanInput) error {
	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var intentID *int64
		if intent != "" {
			iid, err := getOrCreateIntent(ctx, tx, example.VersionID, intent)
			if err != nil {
				return err
			}
			intentID = &iid
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE repository_examples SET text = $1, intent_id = $2, last_update = NOW() WHERE id = $3 AND deleted_in IS NULL`,
			text, intentID, example.ID)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}

		if spans == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM repository_example_entities WHERE repository_example_id = $1`, example.ID); err != nil {
			return err
		}
		return insertExampleSpans(ctx, tx, example.VersionID, example.ID, *spans)
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		r.logger.Error("Failed to update example", zap.Int64("id", example.ID), zap.Error(err))
	}
	return err
}

// MarkDeleted tombstones an active example in the given version.
func (r *exampleRepository) MarkDeleted(ctx context.Context, id, versionID int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE repository_examples SET deleted_in = $1, last_update = NOW() WHERE id = $2 AND deleted_in IS NULL`,
		versionID, id)
	if err != nil {
		r.logger.Error("Failed to delete example", zap.Int64("id", id), zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *exampleRepository) List(ctx context.Context, filter ExampleFilter, page Page) ([]*models.Example, error) {
	page = page.Normalize()

	var f Filter
	f.Where("vl.repository_version_id = ?", filter.VersionID)
	f.Where("e.deleted_in IS NULL")
	f.WhereIf(filter.Language != "", "vl.language = ?", filter.Language)
	f.WhereIf(filter.Intent != "", "i.text = ?", filter.Intent)
	f.WhereIf(filter.Text != "", "e.text = ?", filter.Text)
	f.WhereIf(filter.Search != "", `e.text ILIKE ? ESCAPE '\'`, "%"+escapeLike(filter.Search)+"%")
	f.WhereIf(filter.Entity != "", `EXISTS (
		SELECT 1 FROM repository_example_entities ee
		JOIN repository_entities en ON en.id = ee.entity_id
		WHERE ee.repository_example_id = e.id AND en.value = ?)`, filter.Entity)

	switch {
	case filter.Label == OtherLabel:
		f.Where(`(NOT EXISTS (SELECT 1 FROM repository_example_entities ee WHERE ee.repository_example_id = e.id)
			OR EXISTS (
				SELECT 1 FROM repository_example_entities ee
				JOIN repository_entities en ON en.id = ee.entity_id
				WHERE ee.repository_example_id = e.id AND en.label_id IS NULL))`)
	case filter.Label != "":
		f.Where(`EXISTS (
			SELECT 1 FROM repository_example_entities ee
			JOIN repository_entities en ON en.id = ee.entity_id
			JOIN repository_entity_labels lb ON lb.id = en.label_id
			WHERE ee.repository_example_id = e.id AND lb.value = ?)`, filter.Label)
	}

	if filter.HasTranslation != nil {
		clause := `EXISTS (SELECT 1 FROM repository_translated_examples t WHERE t.original_example_id = e.id)`
		if !*filter.HasTranslation {
			clause = "NOT " + clause
		}
		f.Where(clause)
	}
	f.WhereIf(filter.HasNotTranslationTo != "",
		`NOT EXISTS (SELECT 1 FROM repository_translated_examples t WHERE t.original_example_id = e.id AND t.language = ?)`,
		filter.HasNotTranslationTo)

	order := "ORDER BY e.created_at DESC, e.id DESC"
	var orderArgs []any
	if filter.OrderByTranslation != "" {
		lang := strings.TrimPrefix(filter.OrderByTranslation, "-")
		direction := "ASC"
		if strings.HasPrefix(filter.OrderByTranslation, "-") {
			direction = "DESC"
		}
		order = `ORDER BY (SELECT COUNT(*) FROM repository_translated_examples t
			WHERE t.original_example_id = e.id AND t.language = ?) ` + direction + `, e.created_at DESC, e.id DESC`
		orderArgs = append(orderArgs, lang)
	}

	query, args, err := f.Build(exampleSelect, order+" LIMIT ? OFFSET ?", append(orderArgs, page.Limit, page.Offset)...)
	if err != nil {
		return nil, err
	}

	examples := []*models.Example{}
	if err := r.db.SelectContext(ctx, &examples, query, args...); err != nil {
		r.logger.Error("Failed to list examples", zap.Error(err))
		return nil, err
	}
	if err := loadExampleEntities(ctx, r.db, examples); err != nil {
		return nil, err
	}
	return examples, nil
}

func (r *exampleRepository) DuplicateExists(ctx context.Context, versionID int64, language, text, intent string, excludeID int64) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM repository_examples e
			JOIN repository_version_languages vl ON vl.id = e.repository_version_language_id
			LEFT JOIN repository_intents i ON i.id = e.intent_id
			WHERE vl.repository_version_id = $1 AND vl.language = $2 AND e.deleted_in IS NULL
				AND e.text = $3 AND COALESCE(i.text, '') = $4 AND e.id <> $5
		)
	`
	err := r.db.GetContext(ctx, &exists, query, versionID, language, text, intent, excludeID)
	return exists, err
}

func (r *exampleRepository) CountIntents(ctx context.Context, versionLanguageID int64) (int, error) {
	var count int
	query := `
		SELECT COUNT(DISTINCT intent_id) FROM repository_examples
		WHERE repository_version_language_id = $1 AND deleted_in IS NULL AND intent_id IS NOT NULL
	`
	err := r.db.GetContext(ctx, &count, query, versionLanguageID)
	return count, err
}

// loadExampleEntities fills the Entities of each example with one query.
func loadExampleEntities(ctx context.Context, q sqlx.QueryerContext, examples []*models.Example) error {
	if len(examples) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Example, len(examples))
	ids := make([]int64, 0, len(examples))
	for _, e := range examples {
		e.Entities = []models.ExampleEntity{}
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	query, args, err := sqlx.In(`
		SELECT ee.id, ee.repository_example_id, ee.start, ee."end", ee.entity_id, en.value AS entity_value,
			lb.value AS label_value, g.value AS group_value, ee.created_at
		FROM repository_example_entities ee
		JOIN repository_entities en ON en.id = ee.entity_id
		LEFT JOIN repository_entity_labels lb ON lb.id = en.label_id
		LEFT JOIN repository_entity_groups g ON g.id = en.group_id
		WHERE ee.repository_example_id IN (?)
		ORDER BY ee.start, ee.id
	`, ids)
	if err != nil {
		return err
	}

	var spans []models.ExampleEntity
	if err := sqlx.SelectContext(ctx, q, &spans, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return fmt.Errorf("load example entities: %w", err)
	}
	for _, s := range spans {
		e := byID[s.ExampleID]
		e.Entities = append(e.Entities, s)
	}
	return nil
}
