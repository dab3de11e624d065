package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/models"
)

// AuthorizationRepository stores per-user roles in repositories.
type AuthorizationRepository interface {
	Get(ctx context.Context, userID int64, repoUUID uuid.UUID) (*models.Authorization, error)
	SetRole(ctx context.Context, userID int64, repoUUID uuid.UUID, role models.Role) (*models.Authorization, error)
	List(ctx context.Context, repoUUID uuid.UUID, page Page) ([]*models.Authorization, error)
	ListAdmins(ctx context.Context, repoUUID uuid.UUID) ([]*models.User, error)
	CountActiveUsers(ctx context.Context, repoUUID uuid.UUID) (int, error)
}

type authorizationRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewAuthorizationRepository(db *sqlx.DB, logger *zap.Logger) AuthorizationRepository {
	return &authorizationRepository{db: db, logger: logger}
}

const authorizationSelect = `
	SELECT a.uuid, a.user_id, u.nickname AS user_nickname, a.repository_uuid, a.role, a.created_at
	FROM repository_authorizations a
	JOIN users u ON u.id = a.user_id`

func (r *authorizationRepository) Get(ctx context.Context, userID int64, repoUUID uuid.UUID) (*models.Authorization, error) {
	var a models.Authorization
	err := r.db.GetContext(ctx, &a, authorizationSelect+` WHERE a.user_id = $1 AND a.repository_uuid = $2`, userID, repoUUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get authorization", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &a, nil
}

// SetRole creates or updates the user's authorization row.
func (r *authorizationRepository) SetRole(ctx context.Context, userID int64, repoUUID uuid.UUID, role models.Role) (*models.Authorization, error) {
	query := `
		INSERT INTO repository_authorizations (uuid, user_id, repository_uuid, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, repository_uuid) DO UPDATE SET role = EXCLUDED.role
	`
	if _, err := r.db.ExecContext(ctx, query, uuid.New(), userID, repoUUID, role); err != nil {
		r.logger.Error("Failed to set authorization role", zap.Int64("user_id", userID), zap.Int("role", int(role)), zap.Error(err))
		return nil, err
	}
	return r.Get(ctx, userID, repoUUID)
}

func (r *authorizationRepository) List(ctx context.Context, repoUUID uuid.UUID, page Page) ([]*models.Authorization, error) {
	page = page.Normalize()
	authorizations := []*models.Authorization{}
	query := authorizationSelect + `
		WHERE a.repository_uuid = $1 AND a.role <> 0
		ORDER BY a.created_at
		LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &authorizations, query, repoUUID, page.Limit, page.Offset); err != nil {
		r.logger.Error("Failed to list authorizations", zap.Error(err))
		return nil, err
	}
	return authorizations, nil
}

// ListAdmins returns the owner and every user holding the admin role.
func (r *authorizationRepository) ListAdmins(ctx context.Context, repoUUID uuid.UUID) ([]*models.User, error) {
	users := []*models.User{}
	query := `
		SELECT u.id, u.nickname, u.name, u.email, u.password_hash, u.telegram_chat_id, u.created_at
		FROM users u
		WHERE u.id = (SELECT owner_id FROM repositories WHERE uuid = $1)
			OR u.id IN (SELECT user_id FROM repository_authorizations WHERE repository_uuid = $1 AND role = $2)
		ORDER BY u.id
	`
	if err := r.db.SelectContext(ctx, &users, query, repoUUID, models.RoleAdmin); err != nil {
		return nil, err
	}
	return users, nil
}

// CountActiveUsers counts authorized users whose predictions did not come
// from the backend itself.
func (r *authorizationRepository) CountActiveUsers(ctx context.Context, repoUUID uuid.UUID) (int, error) {
	var count int
	query := `
		SELECT COUNT(DISTINCT a.user_id)
		FROM repository_authorizations a
		WHERE a.repository_uuid = $1 AND a.role <> 0 AND EXISTS (
			SELECT 1 FROM repository_nlp_logs l
			JOIN repository_version_languages vl ON vl.id = l.repository_version_language_id
			JOIN repository_versions v ON v.id = vl.repository_version_id
			WHERE v.repository_uuid = a.repository_uuid AND l.user_id = a.user_id AND NOT l.from_backend
		)
	`
	err := r.db.GetContext(ctx, &count, query, repoUUID)
	return count, err
}
