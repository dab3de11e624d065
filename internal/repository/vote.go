package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

type CategoryRepository interface {
	List(ctx context.Context) ([]models.Category, error)
}

type categoryRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewCategoryRepository(db *sqlx.DB, logger *zap.Logger) CategoryRepository {
	return &categoryRepository{db: db, logger: logger}
}

func (r *categoryRepository) List(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	if err := r.db.SelectContext(ctx, &categories, `SELECT id, name, icon FROM repository_categories ORDER BY name`); err != nil {
		r.logger.Error("Failed to list categories", zap.Error(err))
		return nil, err
	}
	return categories, nil
}

type VoteRepository interface {
	Create(ctx context.Context, userID int64, repoUUID uuid.UUID) (*models.Vote, error)
	Delete(ctx context.Context, userID int64, repoUUID uuid.UUID) error
	List(ctx context.Context, filter VoteFilter, page Page) ([]*models.Vote, error)
}

// VoteFilter selects votes of one repository or of one user.
type VoteFilter struct {
	Repository   *uuid.UUID
	UserNickname string
}

type voteRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewVoteRepository(db *sqlx.DB, logger *zap.Logger) VoteRepository {
	return &voteRepository{db: db, logger: logger}
}

const voteSelect = `
	SELECT v.user_id, u.nickname AS user_nickname, v.repository_uuid, v.created_at
	FROM repository_votes v
	JOIN users u ON u.id = v.user_id`

// Create is idempotent: voting twice returns the existing vote.
func (r *voteRepository) Create(ctx context.Context, userID int64, repoUUID uuid.UUID) (*models.Vote, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO repository_votes (user_id, repository_uuid) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, repoUUID)
	if err != nil {
		r.logger.Error("Failed to create vote", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}

	var vote models.Vote
	err = r.db.GetContext(ctx, &vote, voteSelect+` WHERE v.user_id = $1 AND v.repository_uuid = $2`, userID, repoUUID)
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

func (r *voteRepository) Delete(ctx context.Context, userID int64, repoUUID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM repository_votes WHERE user_id = $1 AND repository_uuid = $2`, userID, repoUUID)
	return err
}

func (r *voteRepository) List(ctx context.Context, filter VoteFilter, page Page) ([]*models.Vote, error) {
	page = page.Normalize()

	var f Filter
	f.WhereIf(filter.Repository != nil, "v.repository_uuid = ?", filter.Repository)
	f.WhereIf(filter.UserNickname != "", "u.nickname = ?", filter.UserNickname)

	query, args, err := f.Build(voteSelect, "ORDER BY v.created_at DESC LIMIT ? OFFSET ?", page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}

	votes := []*models.Vote{}
	if err := r.db.SelectContext(ctx, &votes, query, args...); err != nil {
		r.logger.Error("Failed to list votes", zap.Error(err))
		return nil, err
	}
	return votes, nil
}
