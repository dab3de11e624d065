package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByNickname(ctx context.Context, nickname string) (*models.User, error)
	GetByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

type userRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewUserRepository(db *sqlx.DB, logger *zap.Logger) UserRepository {
	return &userRepository{db: db, logger: logger}
}

const userColumns = `id, nickname, name, email, password_hash, telegram_chat_id, created_at`

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (nickname, name, email, password_hash) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	err := r.db.QueryRowxContext(ctx, query, user.Nickname, user.Name, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if !IsUniqueViolation(err) {
			r.logger.Error("Failed to create user", zap.Error(err))
		}
		return translateError(err)
	}
	return nil
}

func (r *userRepository) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	var user models.User
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where
	err := r.db.GetContext(ctx, &user, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get user", zap.String("where", where), zap.Error(err))
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "LOWER(email) = LOWER($1)", email)
}

func (r *userRepository) GetByNickname(ctx context.Context, nickname string) (*models.User, error) {
	return r.getOne(ctx, "nickname = $1", nickname)
}

func (r *userRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*models.User, error) {
	return r.getOne(ctx, "telegram_chat_id = $1", chatID)
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	query := `UPDATE users SET name = $1, telegram_chat_id = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, user.Name, user.TelegramChatID, user.ID)
	if err != nil {
		r.logger.Error("Failed to update user", zap.Int64("id", user.ID), zap.Error(err))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
