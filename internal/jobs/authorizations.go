package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nluhub/internal/repository"
)

// AuthorizationCounter refreshes repositories.count_authorizations with the
// number of authorized users that queried the repository outside the backend.
type AuthorizationCounter struct {
	bots   repository.BotRepository
	auths  repository.AuthorizationRepository
	logger *zap.Logger
}

func NewAuthorizationCounter(bots repository.BotRepository, auths repository.AuthorizationRepository, logger *zap.Logger) *AuthorizationCounter {
	return &AuthorizationCounter{bots: bots, auths: auths, logger: logger}
}

func (a *AuthorizationCounter) Name() string { return "count-authorizations" }

func (a *AuthorizationCounter) Run(ctx context.Context) error {
	ids, err := a.bots.ListUUIDs(ctx)
	if err != nil {
		return fmt.Errorf("list repositories: %w", err)
	}

	var failures int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, err := a.auths.CountActiveUsers(ctx, id)
		if err == nil {
			err = a.bots.SetCountAuthorizations(ctx, id, count)
		}
		if err != nil {
			failures++
			a.logger.Error("Failed to count authorizations", zap.String("repository_uuid", id.String()), zap.Error(err))
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d repositories not counted", failures, len(ids))
	}
	a.logger.Info("Authorizations counted", zap.Int("repositories", len(ids)))
	return nil
}
