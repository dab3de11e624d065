package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/notifier"
	"nluhub/internal/repository"
)

type AuthorizationService interface {
	Request(ctx context.Context, userID int64, input models.CreateAuthorizationRequestInput) (*models.AuthorizationRequest, error)
	Review(ctx context.Context, userID, requestID int64, approve bool) error
	ReviewAuthorizationRequest(ctx context.Context, reviewer *models.User, requestID int64, approve bool) error
	ListPending(ctx context.Context, userID int64, rawRepository string, page repository.Page) ([]*models.AuthorizationRequest, error)
	List(ctx context.Context, userID int64, rawRepository string, page repository.Page) ([]*models.Authorization, error)
	UpdateRole(ctx context.Context, userID int64, repo uuid.UUID, nickname string, input models.UpdateRoleInput) (*models.Authorization, error)
}

type authorizationService struct {
	access
	requests repository.AuthorizationRequestRepository
	users    repository.UserRepository
	notifier notifier.Notifier
	logger   *zap.Logger
}

var _ notifier.Reviewer = (*authorizationService)(nil)

func NewAuthorizationService(
	bots repository.BotRepository,
	auths repository.AuthorizationRepository,
	requests repository.AuthorizationRequestRepository,
	users repository.UserRepository,
	n notifier.Notifier,
	logger *zap.Logger,
) AuthorizationService {
	if n == nil {
		n = notifier.Nop{}
	}
	return &authorizationService{
		access:   access{bots: bots, auths: auths},
		requests: requests,
		users:    users,
		notifier: n,
		logger:   logger,
	}
}

const pendingRequestMessage = "You already have a pending authorization request for this repository."

// Request files an access request. A user has at most one unapproved
// request per repository.
func (s *authorizationService) Request(ctx context.Context, userID int64, input models.CreateAuthorizationRequestInput) (*models.AuthorizationRequest, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	repo, caps, err := s.load(ctx, input.Repository, userID)
	if err != nil {
		return nil, err
	}
	if caps.IsOwner {
		return nil, invalid(NonFieldErrors, "You are the owner of this repository.")
	}

	if n := utf8.RuneCountInString(input.Text); n < 5 || n > 250 {
		return nil, invalid("text", "Ensure this field has between 5 and 250 characters.")
	}

	pending, err := s.requests.HasPending(ctx, userID, repo.UUID)
	if err != nil {
		return nil, fmt.Errorf("check pending request: %w", err)
	}
	if pending {
		return nil, invalid(NonFieldErrors, pendingRequestMessage)
	}

	req := &models.AuthorizationRequest{UserID: userID, RepositoryUUID: repo.UUID, Text: input.Text}
	if err := s.requests.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, invalid(NonFieldErrors, pendingRequestMessage)
		}
		return nil, fmt.Errorf("create authorization request: %w", err)
	}

	if user, err := s.users.GetByID(ctx, userID); err == nil && user != nil {
		req.UserNickname = user.Nickname
	}
	admins, err := s.auths.ListAdmins(ctx, repo.UUID)
	if err != nil {
		s.logger.Warn("Failed to list repository admins", zap.String("repository_uuid", repo.UUID.String()), zap.Error(err))
	} else {
		s.notifier.AuthorizationRequested(ctx, repo, req, admins)
	}

	s.logger.Info("Authorization requested", zap.Int64("request_id", req.ID), zap.Int64("user_id", userID))
	return req, nil
}

// Review approves (granting the user role) or rejects (deleting) a pending
// request. Only repository admins may review.
func (s *authorizationService) Review(ctx context.Context, userID, requestID int64, approve bool) error {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return notFound("Authorization request does not exist.")
	}
	repo, _, err := s.require(ctx, req.RepositoryUUID, userID, isAdmin)
	if err != nil {
		return err
	}

	if !approve {
		if err := s.requests.Delete(ctx, requestID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound("Authorization request does not exist.")
			}
			return fmt.Errorf("reject authorization request: %w", err)
		}
		s.logger.Info("Authorization request rejected", zap.Int64("request_id", requestID), zap.Int64("reviewer_id", userID))
		return nil
	}

	if req.ApprovedBy != nil {
		return invalid(NonFieldErrors, "This request was already approved.")
	}
	if err := s.requests.Approve(ctx, requestID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalid(NonFieldErrors, "This request was already approved.")
		}
		return fmt.Errorf("approve authorization request: %w", err)
	}
	s.logger.Info("Authorization request approved", zap.Int64("request_id", requestID), zap.Int64("reviewer_id", userID))

	if user, err := s.users.GetByID(ctx, req.UserID); err == nil && user != nil {
		s.notifier.RoleChanged(ctx, repo, user, models.RoleUser)
	}
	return nil
}

// ReviewAuthorizationRequest serves reviews coming from Telegram.
func (s *authorizationService) ReviewAuthorizationRequest(ctx context.Context, reviewer *models.User, requestID int64, approve bool) error {
	err := s.Review(ctx, reviewer.ID, requestID, approve)
	if errors.Is(err, ErrPermissionDenied) {
		return denied("You are not an admin of this repository.")
	}
	return err
}

func (s *authorizationService) ListPending(ctx context.Context, userID int64, rawRepository string, page repository.Page) ([]*models.AuthorizationRequest, error) {
	id, err := parseRepositoryUUID(rawRepository)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.require(ctx, id, userID, isAdmin); err != nil {
		return nil, err
	}
	return s.requests.ListPending(ctx, id, page)
}

func (s *authorizationService) List(ctx context.Context, userID int64, rawRepository string, page repository.Page) ([]*models.Authorization, error) {
	id, err := parseRepositoryUUID(rawRepository)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.require(ctx, id, userID, isAdmin); err != nil {
		return nil, err
	}
	return s.auths.List(ctx, id, page)
}

// UpdateRole changes a user's role. The owner's role is immutable.
func (s *authorizationService) UpdateRole(ctx context.Context, userID int64, repoID uuid.UUID, nickname string, input models.UpdateRoleInput) (*models.Authorization, error) {
	repo, _, err := s.require(ctx, repoID, userID, isAdmin)
	if err != nil {
		return nil, err
	}
	if input.Role == nil {
		return nil, invalid("role", "This field is required.")
	}
	role, err := models.ParseRole(*input.Role)
	if err != nil {
		return nil, invalid("role", fmt.Sprintf("%d is not a valid choice.", *input.Role))
	}

	user, err := s.users.GetByNickname(ctx, nickname)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFound("User does not exist")
	}
	if user.ID == repo.OwnerID {
		return nil, denied("The owner role can't be changed.")
	}

	auth, err := s.auths.SetRole(ctx, user.ID, repo.UUID, role)
	if err != nil {
		return nil, fmt.Errorf("set role: %w", err)
	}
	s.logger.Info("Authorization role changed",
		zap.String("repository_uuid", repo.UUID.String()),
		zap.Int64("user_id", user.ID),
		zap.String("role", role.String()))

	s.notifier.RoleChanged(ctx, repo, user, role)
	return auth, nil
}
