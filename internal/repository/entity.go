package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

type EntityRepository interface {
	List(ctx context.Context, versionID int64, value string) ([]*models.Entity, error)
	ListIntents(ctx context.Context, versionID int64) ([]string, error)
}

type entityRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewEntityRepository(db *sqlx.DB, logger *zap.Logger) EntityRepository {
	return &entityRepository{db: db, logger: logger}
}

func (r *entityRepository) List(ctx context.Context, versionID int64, value string) ([]*models.Entity, error) {
	var f Filter
	f.Where("en.repository_version_id = ?", versionID)
	f.WhereIf(value != "", "en.value = ?", value)

	query, args, err := f.Build(`
		SELECT en.id, en.repository_version_id, en.value, en.group_id, g.value AS group_value,
			en.label_id, lb.value AS label_value
		FROM repository_entities en
		LEFT JOIN repository_entity_groups g ON g.id = en.group_id
		LEFT JOIN repository_entity_labels lb ON lb.id = en.label_id`, "ORDER BY en.value")
	if err != nil {
		return nil, err
	}

	entities := []*models.Entity{}
	if err := r.db.SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.Error("Failed to list entities", zap.Int64("version_id", versionID), zap.Error(err))
		return nil, err
	}
	return entities, nil
}

// ListIntents returns the intents used by active examples of the version.
func (r *entityRepository) ListIntents(ctx context.Context, versionID int64) ([]string, error) {
	intents := []string{}
	query := `
		SELECT DISTINCT i.text
		FROM repository_intents i
		JOIN repository_examples e ON e.intent_id = i.id
		WHERE i.repository_version_id = $1 AND e.deleted_in IS NULL
		ORDER BY i.text
	`
	if err := r.db.SelectContext(ctx, &intents, query, versionID); err != nil {
		return nil, err
	}
	return intents, nil
}
