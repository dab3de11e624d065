package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"nluhub/internal/authz"
	"nluhub/internal/models"
	"nluhub/internal/repository"
)

// access resolves a repository and the caller's capabilities in it. Every
// nested collection goes through it before touching any data.
type access struct {
	bots  repository.BotRepository
	auths repository.AuthorizationRepository
}

// parseRepositoryUUID applies the repository_uuid rules: missing is a
// validation error, malformed is a not-found.
func parseRepositoryUUID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, invalid("repository_uuid", "This field is required.")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, notFound("Invalid repository_uuid")
	}
	return id, nil
}

func (a access) capabilities(ctx context.Context, repo *models.Repository, userID int64) (authz.Capabilities, error) {
	var stored *models.Authorization
	if userID != 0 {
		var err error
		stored, err = a.auths.Get(ctx, userID, repo.UUID)
		if err != nil {
			return authz.Capabilities{}, err
		}
	}
	return authz.Resolve(repo, userID, stored), nil
}

// load fetches the repository and resolves capabilities without checking them.
func (a access) load(ctx context.Context, id uuid.UUID, userID int64) (*models.Repository, authz.Capabilities, error) {
	repo, err := a.bots.GetByUUID(ctx, id)
	if err != nil {
		return nil, authz.Capabilities{}, err
	}
	if repo == nil {
		return nil, authz.Capabilities{}, notFound("Repository does not exist")
	}
	caps, err := a.capabilities(ctx, repo, userID)
	if err != nil {
		return nil, authz.Capabilities{}, err
	}
	return repo, caps, nil
}

// readable loads a repository the caller may read.
func (a access) readable(ctx context.Context, id uuid.UUID, userID int64) (*models.Repository, authz.Capabilities, error) {
	return a.require(ctx, id, userID, canRead)
}

// readableRaw is readable for an unparsed repository_uuid query parameter.
func (a access) readableRaw(ctx context.Context, raw string, userID int64) (*models.Repository, authz.Capabilities, error) {
	id, err := parseRepositoryUUID(raw)
	if err != nil {
		return nil, authz.Capabilities{}, err
	}
	return a.readable(ctx, id, userID)
}

// require loads the repository and checks one capability.
func (a access) require(ctx context.Context, id uuid.UUID, userID int64, allowed func(authz.Capabilities) bool) (*models.Repository, authz.Capabilities, error) {
	repo, caps, err := a.load(ctx, id, userID)
	if err != nil {
		return nil, caps, err
	}
	if !allowed(caps) {
		return nil, caps, forbidden(userID)
	}
	return repo, caps, nil
}

func forbidden(userID int64) error {
	if userID == 0 {
		return ErrUnauthenticated
	}
	return ErrPermissionDenied
}

func canWrite(c authz.Capabilities) bool     { return c.CanWrite }
func canTranslate(c authz.Capabilities) bool { return c.CanTranslate }
func isAdmin(c authz.Capabilities) bool      { return c.IsAdmin }
func isOwner(c authz.Capabilities) bool      { return c.IsOwner }
func canRead(c authz.Capabilities) bool      { return c.CanRead }
