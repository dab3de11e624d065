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

// AuthorizationRequestRepository defines the interface for access request operations
type AuthorizationRequestRepository interface {
	Create(ctx context.Context, req *models.AuthorizationRequest) error
	GetByID(ctx context.Context, id int64) (*models.AuthorizationRequest, error)
	HasPending(ctx context.Context, userID int64, repoUUID uuid.UUID) (bool, error)
	ListPending(ctx context.Context, repoUUID uuid.UUID, page Page) ([]*models.AuthorizationRequest, error)
	Approve(ctx context.Context, id, approvedBy int64) error
	Delete(ctx context.Context, id int64) error
}

type authorizationRequestRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewAuthorizationRequestRepository creates a new access request repository
func NewAuthorizationRequestRepository(db *sqlx.DB, logger *zap.Logger) AuthorizationRequestRepository {
	return &authorizationRequestRepository{
		db:     db,
		logger: logger,
	}
}

const authorizationRequestSelect = `
	SELECT r.id, r.user_id, u.nickname AS user_nickname, r.repository_uuid, r.text, r.approved_by, r.created_at
	FROM request_repository_authorizations r
	JOIN users u ON u.id = r.user_id`

func (r *authorizationRequestRepository) Create(ctx context.Context, req *models.AuthorizationRequest) error {
	query := `
		INSERT INTO request_repository_authorizations (user_id, repository_uuid, text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query, req.UserID, req.RepositoryUUID, req.Text).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		if !IsUniqueViolation(err) {
			r.logger.Error("Failed to create authorization request", zap.Error(err))
		}
		return translateError(err)
	}

	return nil
}

func (r *authorizationRequestRepository) GetByID(ctx context.Context, id int64) (*models.AuthorizationRequest, error) {
	var req models.AuthorizationRequest
	err := r.db.GetContext(ctx, &req, authorizationRequestSelect+` WHERE r.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get authorization request by ID", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}

	return &req, nil
}

func (r *authorizationRequestRepository) HasPending(ctx context.Context, userID int64, repoUUID uuid.UUID) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM request_repository_authorizations
			WHERE user_id = $1 AND repository_uuid = $2 AND approved_by IS NULL
		)
	`
	err := r.db.GetContext(ctx, &exists, query, userID, repoUUID)
	return exists, err
}

func (r *authorizationRequestRepository) ListPending(ctx context.Context, repoUUID uuid.UUID, page Page) ([]*models.AuthorizationRequest, error) {
	page = page.Normalize()
	requests := []*models.AuthorizationRequest{}
	query := authorizationRequestSelect + `
		WHERE r.repository_uuid = $1 AND r.approved_by IS NULL
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3
	`

	err := r.db.SelectContext(ctx, &requests, query, repoUUID, page.Limit, page.Offset)
	if err != nil {
		r.logger.Error("Failed to get pending authorization requests", zap.String("repository_uuid", repoUUID.String()), zap.Error(err))
		return nil, err
	}

	return requests, nil
}

// Approve records the reviewer and grants the requester the user role in
// one transaction. A request can be approved only once.
func (r *authorizationRequestRepository) Approve(ctx context.Context, id, approvedBy int64) error {
	return WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var req models.AuthorizationRequest
		err := tx.GetContext(ctx, &req, `
			UPDATE request_repository_authorizations
			SET approved_by = $1
			WHERE id = $2 AND approved_by IS NULL
			RETURNING id, user_id, repository_uuid, text, approved_by, created_at`, approvedBy, id)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				r.logger.Error("Failed to approve authorization request", zap.Int64("id", id), zap.Error(err))
			}
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO repository_authorizations (uuid, user_id, repository_uuid, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, repository_uuid) DO UPDATE SET role = EXCLUDED.role
			WHERE repository_authorizations.role = 0`,
			uuid.New(), req.UserID, req.RepositoryUUID, models.RoleUser)
		return err
	})
}

func (r *authorizationRequestRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM request_repository_authorizations WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete authorization request", zap.Int64("id", id), zap.Error(err))
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
