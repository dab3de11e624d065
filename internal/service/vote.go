package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/repository"
)

type VoteService interface {
	Vote(ctx context.Context, userID int64, repo uuid.UUID) (*models.Vote, error)
	Unvote(ctx context.Context, userID int64, repo uuid.UUID) error
	List(ctx context.Context, userID int64, rawRepository, nickname string, page repository.Page) ([]*models.Vote, error)
}

type voteService struct {
	access
	votes  repository.VoteRepository
	logger *zap.Logger
}

func NewVoteService(bots repository.BotRepository, auths repository.AuthorizationRepository, votes repository.VoteRepository, logger *zap.Logger) VoteService {
	return &voteService{access: access{bots: bots, auths: auths}, votes: votes, logger: logger}
}

// Vote is idempotent: a second vote returns the first one.
func (s *voteService) Vote(ctx context.Context, userID int64, repo uuid.UUID) (*models.Vote, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	if _, _, err := s.readable(ctx, repo, userID); err != nil {
		return nil, err
	}
	vote, err := s.votes.Create(ctx, userID, repo)
	if err != nil {
		return nil, fmt.Errorf("vote: %w", err)
	}
	return vote, nil
}

func (s *voteService) Unvote(ctx context.Context, userID int64, repo uuid.UUID) error {
	if userID == 0 {
		return ErrUnauthenticated
	}
	if _, _, err := s.readable(ctx, repo, userID); err != nil {
		return err
	}
	return s.votes.Delete(ctx, userID, repo)
}

// List filters by repository or by voter nickname; one of them is required.
func (s *voteService) List(ctx context.Context, userID int64, rawRepository, nickname string, page repository.Page) ([]*models.Vote, error) {
	if rawRepository == "" && nickname == "" {
		return nil, invalid(NonFieldErrors, "Set the repository or the user filter.")
	}

	filter := repository.VoteFilter{UserNickname: nickname}
	if rawRepository != "" {
		repo, _, err := s.readableRaw(ctx, rawRepository, userID)
		if err != nil {
			return nil, err
		}
		filter.Repository = &repo.UUID
	}
	return s.votes.List(ctx, filter, page)
}
