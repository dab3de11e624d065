package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/versioning"
)

// CloneStore is the Postgres implementation of versioning.TxStore. Outside
// InTx every statement autocommits.
type CloneStore struct {
	db     *sqlx.DB
	q      sqlx.ExtContext
	logger *zap.Logger
}

var _ versioning.TxStore = (*CloneStore)(nil)

func NewCloneStore(db *sqlx.DB, logger *zap.Logger) *CloneStore {
	return &CloneStore{db: db, q: db, logger: logger}
}

func (s *CloneStore) InTx(ctx context.Context, fn func(versioning.Store) error) error {
	return WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(&CloneStore{db: s.db, q: tx, logger: s.logger})
	})
}

func (s *CloneStore) ListVersionLanguages(ctx context.Context, versionID int64) ([]*models.VersionLanguage, error) {
	languages := []*models.VersionLanguage{}
	query := `SELECT ` + versionLanguageColumns + ` FROM repository_version_languages
		WHERE repository_version_id = $1 ORDER BY id`
	if err := sqlx.SelectContext(ctx, s.q, &languages, query, versionID); err != nil {
		return nil, err
	}
	return languages, nil
}

func (s *CloneStore) CreateVersionLanguage(ctx context.Context, destVersionID int64, src *models.VersionLanguage) (*models.VersionLanguage, error) {
	var vl models.VersionLanguage
	query := `
		INSERT INTO repository_version_languages
			(repository_version_id, language, bot_data, rasa_version, training_started_at, training_end_at,
			failed_at, use_analyze_char, use_name_entities, use_competing_intents, algorithm, training_log,
			total_training_end, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + versionLanguageColumns
	err := sqlx.GetContext(ctx, s.q, &vl, query,
		destVersionID, src.Language, src.BotData, src.RasaVersion, src.TrainingStartedAt, src.TrainingEndAt,
		src.FailedAt, src.UseAnalyzeChar, src.UseNameEntities, src.UseCompetingIntents, src.Algorithm, src.TrainingLog,
		src.TotalTrainingEnd, src.LastUpdate)
	if err != nil {
		return nil, err
	}
	return &vl, nil
}

func (s *CloneStore) GetOrCreateVersionLanguage(ctx context.Context, versionID int64, language string) (*models.VersionLanguage, error) {
	return getOrCreateVersionLanguage(ctx, s.q, versionID, language)
}

func (s *CloneStore) ListExamples(ctx context.Context, versionLanguageID int64) ([]*models.Example, error) {
	examples := []*models.Example{}
	query := exampleSelect + ` WHERE e.repository_version_language_id = $1 ORDER BY e.id`
	if err := sqlx.SelectContext(ctx, s.q, &examples, query, versionLanguageID); err != nil {
		return nil, fmt.Errorf("list examples: %w", err)
	}
	if err := loadExampleEntities(ctx, s.q, examples); err != nil {
		return nil, err
	}
	return examples, nil
}

func (s *CloneStore) ListTranslations(ctx context.Context, exampleID int64) ([]*models.TranslatedExample, error) {
	translations := []*models.TranslatedExample{}
	query := translationSelect + ` WHERE t.original_example_id = $1 ORDER BY t.id`
	if err := sqlx.SelectContext(ctx, s.q, &translations, query, exampleID); err != nil {
		return nil, fmt.Errorf("list translations: %w", err)
	}
	if err := loadTranslationEntities(ctx, s.q, translations); err != nil {
		return nil, err
	}
	return translations, nil
}

func (s *CloneStore) ListEvaluates(ctx context.Context, versionLanguageID int64) ([]*models.Evaluate, error) {
	evaluates := []*models.Evaluate{}
	query := evaluateSelect + ` WHERE ev.repository_version_language_id = $1 ORDER BY ev.id`
	if err := sqlx.SelectContext(ctx, s.q, &evaluates, query, versionLanguageID); err != nil {
		return nil, fmt.Errorf("list evaluates: %w", err)
	}
	if err := loadEvaluateEntities(ctx, s.q, evaluates); err != nil {
		return nil, err
	}
	return evaluates, nil
}

func (s *CloneStore) InternIntent(ctx context.Context, versionID int64, text string) (int64, error) {
	return getOrCreateIntent(ctx, s.q, versionID, text)
}

func (s *CloneStore) InternGroup(ctx context.Context, versionID int64, value string) (int64, error) {
	return getOrCreateGroup(ctx, s.q, versionID, value)
}

func (s *CloneStore) InternLabel(ctx context.Context, versionID int64, value string) (int64, error) {
	return getOrCreateLabel(ctx, s.q, versionID, value)
}

func (s *CloneStore) InternEntity(ctx context.Context, versionID int64, value string, groupID, labelID *int64) (int64, error) {
	return getOrCreateEntity(ctx, s.q, versionID, value, groupID, labelID)
}

func (s *CloneStore) CreateExample(ctx context.Context, example *models.Example) error {
	query := `
		INSERT INTO repository_examples (repository_version_language_id, text, intent_id, deleted_in, created_at, last_update)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return sqlx.GetContext(ctx, s.q, &example.ID, query,
		example.VersionLanguageID, example.Text, example.IntentID, example.DeletedIn, example.CreatedAt, example.LastUpdate)
}

func (s *CloneStore) CreateExampleEntity(ctx context.Context, span *models.ExampleEntity) error {
	query := `
		INSERT INTO repository_example_entities (repository_example_id, start, "end", entity_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return sqlx.GetContext(ctx, s.q, &span.ID, query, span.ExampleID, span.Start, span.End, span.EntityID, span.CreatedAt)
}

func (s *CloneStore) CreateTranslation(ctx context.Context, translation *models.TranslatedExample) error {
	query := `
		INSERT INTO repository_translated_examples
			(original_example_id, repository_version_language_id, language, text, clone_repository, has_valid_entities, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return sqlx.GetContext(ctx, s.q, &translation.ID, query,
		translation.OriginalExampleID, translation.VersionLanguageID, translation.Language, translation.Text,
		translation.CloneRepository, translation.HasValidEntities, translation.CreatedAt)
}

func (s *CloneStore) CreateTranslationEntity(ctx context.Context, span *models.TranslatedExampleEntity) error {
	query := `
		INSERT INTO repository_translated_example_entities (repository_translated_example_id, start, "end", entity_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return sqlx.GetContext(ctx, s.q, &span.ID, query,
		span.TranslatedExampleID, span.Start, span.End, span.EntityID, span.CreatedAt)
}

func (s *CloneStore) CreateEvaluate(ctx context.Context, evaluate *models.Evaluate) error {
	query := `
		INSERT INTO repository_evaluates (repository_version_language_id, text, intent, deleted_in, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return sqlx.GetContext(ctx, s.q, &evaluate.ID, query,
		evaluate.VersionLanguageID, evaluate.Text, evaluate.Intent, evaluate.DeletedIn, evaluate.CreatedAt)
}

func (s *CloneStore) CreateEvaluateEntity(ctx context.Context, span *models.EvaluateEntity) error {
	query := `
		INSERT INTO repository_evaluate_entities (repository_evaluate_id, start, "end", entity_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	return sqlx.GetContext(ctx, s.q, &span.ID, query, span.EvaluateID, span.Start, span.End, span.EntityID, span.CreatedAt)
}

func (s *CloneStore) MarkVersionReady(ctx context.Context, versionID int64) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE repository_versions SET is_deleted = FALSE, last_update = NOW() WHERE id = $1`, versionID)
	if err != nil {
		s.logger.Error("Failed to mark version ready", zap.Int64("version_id", versionID), zap.Error(err))
	}
	return err
}
