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

// BotRepository stores repositories (bots) and their category links.
type BotRepository interface {
	Create(ctx context.Context, repo *models.Repository, categories []int64) (*models.Version, error)
	GetByUUID(ctx context.Context, id uuid.UUID) (*models.Repository, error)
	GetBySlug(ctx context.Context, ownerNickname, slug string) (*models.Repository, error)
	Update(ctx context.Context, repo *models.Repository, categories *[]int64) error
	Delete(ctx context.Context, id uuid.UUID) error
	Categories(ctx context.Context, id uuid.UUID) ([]models.Category, error)
	ListPublic(ctx context.Context, filter RepositoryFilter, page Page) ([]*models.Repository, error)
	ListByOwner(ctx context.Context, ownerID int64, includePrivate bool, page Page) ([]*models.Repository, error)
	ListContributions(ctx context.Context, userID int64, page Page) ([]*models.Repository, error)
	ListUUIDs(ctx context.Context) ([]uuid.UUID, error)
	SetCountAuthorizations(ctx context.Context, id uuid.UUID, count int) error
	LanguagesStatus(ctx context.Context, versionID int64) ([]models.LanguageStatus, error)
}

// RepositoryFilter narrows the public repository listing.
type RepositoryFilter struct {
	Language   string
	Categories []int64
	Name       string
	Search     string
}

type botRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewBotRepository(db *sqlx.DB, logger *zap.Logger) BotRepository {
	return &botRepository{db: db, logger: logger}
}

const repositorySelect = `
	SELECT r.uuid, r.owner_id, u.nickname AS owner_nickname, r.name, r.slug, r.description,
		r.language, r.is_private, r.algorithm, r.use_competing_intents, r.use_name_entities,
		r.use_analyze_char, r.count_authorizations, r.nlp_server, r.created_at,
		(SELECT COUNT(*) FROM repository_votes rv WHERE rv.repository_uuid = r.uuid) AS votes_count
	FROM repositories r
	JOIN users u ON u.id = r.owner_id`

func (r *botRepository) Create(ctx context.Context, repo *models.Repository, categories []int64) (*models.Version, error) {
	if repo.UUID == uuid.Nil {
		repo.UUID = uuid.New()
	}

	version := &models.Version{
		RepositoryUUID: repo.UUID,
		Name:           "master",
		IsDefault:      true,
		CreatedBy:      &repo.OwnerID,
	}

	err := WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO repositories (uuid, owner_id, name, slug, description, language, is_private,
				algorithm, use_competing_intents, use_name_entities, use_analyze_char, nlp_server)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING created_at
		`
		err := tx.QueryRowxContext(ctx, query,
			repo.UUID, repo.OwnerID, repo.Name, repo.Slug, repo.Description, repo.Language, repo.IsPrivate,
			repo.Algorithm, repo.UseCompetingIntents, repo.UseNameEntities, repo.UseAnalyzeChar, repo.NLPServer,
		).Scan(&repo.CreatedAt)
		if err != nil {
			return translateError(err)
		}

		if err := replaceCategories(ctx, tx, repo.UUID, categories); err != nil {
			return err
		}

		err = tx.QueryRowxContext(ctx,
			`INSERT INTO repository_versions (repository_uuid, name, is_default, created_by)
			 VALUES ($1, $2, TRUE, $3) RETURNING id, created_at, last_update`,
			repo.UUID, version.Name, repo.OwnerID,
		).Scan(&version.ID, &version.CreatedAt, &version.LastUpdate)
		if err != nil {
			return fmt.Errorf("create default version: %w", err)
		}

		_, err = getOrCreateVersionLanguage(ctx, tx, version.ID, repo.Language)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrConflict) {
			r.logger.Error("Failed to create repository", zap.String("slug", repo.Slug), zap.Error(err))
		}
		return nil, err
	}

	return version, nil
}

func replaceCategories(ctx context.Context, tx *sqlx.Tx, repoUUID uuid.UUID, categories []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM repository_category_links WHERE repository_uuid = $1`, repoUUID); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}
	for _, id := range categories {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO repository_category_links (repository_uuid, category_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			repoUUID, id)
		if err != nil {
			if IsForeignKeyViolation(err) {
				return fmt.Errorf("%w: unknown category %d", ErrInvalidReference, id)
			}
			return fmt.Errorf("link category %d: %w", id, err)
		}
	}
	return nil
}

// ErrInvalidReference is returned when a write points at a missing row.
var ErrInvalidReference = errors.New("referenced row does not exist")

func (r *botRepository) getOne(ctx context.Context, where string, args ...any) (*models.Repository, error) {
	var repo models.Repository
	err := r.db.GetContext(ctx, &repo, repositorySelect+` WHERE `+where, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get repository", zap.Error(err))
		return nil, err
	}
	return &repo, nil
}

func (r *botRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*models.Repository, error) {
	return r.getOne(ctx, "r.uuid = $1", id)
}

func (r *botRepository) GetBySlug(ctx context.Context, ownerNickname, slug string) (*models.Repository, error) {
	return r.getOne(ctx, "u.nickname = $1 AND r.slug = $2", ownerNickname, slug)
}

func (r *botRepository) Update(ctx context.Context, repo *models.Repository, categories *[]int64) error {
	return WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			UPDATE repositories SET name = $1, description = $2, language = $3, is_private = $4,
				algorithm = $5, use_competing_intents = $6, use_name_entities = $7,
				use_analyze_char = $8, nlp_server = $9
			WHERE uuid = $10
		`
		result, err := tx.ExecContext(ctx, query,
			repo.Name, repo.Description, repo.Language, repo.IsPrivate, repo.Algorithm,
			repo.UseCompetingIntents, repo.UseNameEntities, repo.UseAnalyzeChar, repo.NLPServer, repo.UUID)
		if err != nil {
			r.logger.Error("Failed to update repository", zap.String("uuid", repo.UUID.String()), zap.Error(err))
			return translateError(err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		if categories != nil {
			return replaceCategories(ctx, tx, repo.UUID, *categories)
		}
		return nil
	})
}

func (r *botRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM repositories WHERE uuid = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete repository", zap.String("uuid", id.String()), zap.Error(err))
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *botRepository) Categories(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	categories := []models.Category{}
	query := `
		SELECT c.id, c.name, c.icon
		FROM repository_categories c
		JOIN repository_category_links l ON l.category_id = c.id
		WHERE l.repository_uuid = $1
		ORDER BY c.id
	`
	if err := r.db.SelectContext(ctx, &categories, query, id); err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *botRepository) ListPublic(ctx context.Context, filter RepositoryFilter, page Page) ([]*models.Repository, error) {
	page = page.Normalize()

	var f Filter
	f.Where("r.is_private = FALSE")
	f.WhereIf(filter.Name != "", "r.name = ?", filter.Name)
	f.WhereIf(filter.Search != "", `r.name ILIKE ? ESCAPE '\'`, "%"+escapeLike(filter.Search)+"%")
	f.WhereIf(len(filter.Categories) > 0,
		"EXISTS (SELECT 1 FROM repository_category_links l WHERE l.repository_uuid = r.uuid AND l.category_id IN (?))",
		filter.Categories)
	if filter.Language != "" {
		// The repository language, or any language with content in its default version.
		f.Where(`(r.language = ? OR EXISTS (
			SELECT 1 FROM repository_versions v
			JOIN repository_version_languages vl ON vl.repository_version_id = v.id
			WHERE v.repository_uuid = r.uuid AND v.is_default AND vl.language = ?
			AND (EXISTS (SELECT 1 FROM repository_examples e WHERE e.repository_version_language_id = vl.id AND e.deleted_in IS NULL)
				OR EXISTS (SELECT 1 FROM repository_translated_examples t WHERE t.repository_version_language_id = vl.id))))`,
			filter.Language, filter.Language)
	}

	query, args, err := f.Build(repositorySelect, "ORDER BY votes_count DESC, r.created_at DESC LIMIT ? OFFSET ?", page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}

	repos := []*models.Repository{}
	if err := r.db.SelectContext(ctx, &repos, query, args...); err != nil {
		r.logger.Error("Failed to list public repositories", zap.Error(err))
		return nil, err
	}
	return repos, nil
}

func (r *botRepository) ListByOwner(ctx context.Context, ownerID int64, includePrivate bool, page Page) ([]*models.Repository, error) {
	page = page.Normalize()

	var f Filter
	f.Where("r.owner_id = ?", ownerID)
	f.WhereIf(!includePrivate, "r.is_private = FALSE")

	query, args, err := f.Build(repositorySelect, "ORDER BY r.created_at DESC LIMIT ? OFFSET ?", page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}

	repos := []*models.Repository{}
	if err := r.db.SelectContext(ctx, &repos, query, args...); err != nil {
		r.logger.Error("Failed to list owner repositories", zap.Int64("owner_id", ownerID), zap.Error(err))
		return nil, err
	}
	return repos, nil
}

func (r *botRepository) ListContributions(ctx context.Context, userID int64, page Page) ([]*models.Repository, error) {
	page = page.Normalize()

	query := repositorySelect + `
		JOIN repository_authorizations a ON a.repository_uuid = r.uuid
		WHERE a.user_id = $1 AND a.role <> 0
		ORDER BY a.created_at DESC
		LIMIT $2 OFFSET $3
	`
	repos := []*models.Repository{}
	if err := r.db.SelectContext(ctx, &repos, query, userID, page.Limit, page.Offset); err != nil {
		r.logger.Error("Failed to list contributions", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return repos, nil
}

func (r *botRepository) ListUUIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, `SELECT uuid FROM repositories ORDER BY created_at`); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *botRepository) SetCountAuthorizations(ctx context.Context, id uuid.UUID, count int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE repositories SET count_authorizations = $1 WHERE uuid = $2`, count, id)
	return err
}

func (r *botRepository) LanguagesStatus(ctx context.Context, versionID int64) ([]models.LanguageStatus, error) {
	statuses := []models.LanguageStatus{}
	query := `
		SELECT vl.language,
			(SELECT COUNT(*) FROM repository_examples e
				WHERE e.repository_version_language_id = vl.id AND e.deleted_in IS NULL) AS examples_count,
			(SELECT COUNT(*) FROM repository_translated_examples t
				WHERE t.repository_version_language_id = vl.id) AS translations_count,
			(SELECT COUNT(*) FROM repository_evaluates ev
				WHERE ev.repository_version_language_id = vl.id AND ev.deleted_in IS NULL) AS evaluations_count,
			(SELECT COUNT(DISTINCT e.intent_id) FROM repository_examples e
				WHERE e.repository_version_language_id = vl.id AND e.deleted_in IS NULL AND e.intent_id IS NOT NULL) AS intents_count,
			vl.training_end_at, vl.failed_at
		FROM repository_version_languages vl
		WHERE vl.repository_version_id = $1
		ORDER BY vl.language
	`
	if err := r.db.SelectContext(ctx, &statuses, query, versionID); err != nil {
		r.logger.Error("Failed to get languages status", zap.Int64("version_id", versionID), zap.Error(err))
		return nil, err
	}
	return statuses, nil
}
