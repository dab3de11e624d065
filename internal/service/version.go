package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/repository"
)

// VersionDetail is a version with the state of the clone that fills it.
type VersionDetail struct {
	*models.Version
	Clone *models.CloneJob `json:"clone,omitempty"`
}

type VersionService interface {
	List(ctx context.Context, userID int64, rawRepository string, page repository.Page) ([]*models.Version, error)
	Get(ctx context.Context, userID, id int64) (*VersionDetail, error)
	Create(ctx context.Context, userID int64, input models.CreateVersionInput) (*VersionDetail, error)
	Update(ctx context.Context, userID, id int64, input models.UpdateVersionInput) (*models.Version, error)
	Delete(ctx context.Context, userID, id int64) error
	Languages(ctx context.Context, userID int64, rawRepository string, versionID *int64, trained *bool, page repository.Page) ([]*models.VersionLanguage, error)
}

type versionService struct {
	access
	versions repository.VersionRepository
	jobs     repository.CloneJobRepository
	logger   *zap.Logger
}

func NewVersionService(
	bots repository.BotRepository,
	auths repository.AuthorizationRepository,
	versions repository.VersionRepository,
	jobs repository.CloneJobRepository,
	logger *zap.Logger,
) VersionService {
	return &versionService{
		access:   access{bots: bots, auths: auths},
		versions: versions,
		jobs:     jobs,
		logger:   logger,
	}
}

func validateVersionName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 40 {
		return invalid("name", "Ensure this field has between 1 and 40 characters.")
	}
	return nil
}

func (s *versionService) List(ctx context.Context, userID int64, rawRepository string, page repository.Page) ([]*models.Version, error) {
	repo, _, err := s.readableRaw(ctx, rawRepository, userID)
	if err != nil {
		return nil, err
	}
	return s.versions.List(ctx, repo.UUID, page)
}

func (s *versionService) owned(ctx context.Context, userID, id int64, write bool) (*models.Version, error) {
	v, err := s.versions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	allowed := canRead
	if write {
		allowed = canWrite
	}
	if _, _, err := s.require(ctx, v.RepositoryUUID, userID, allowed); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *versionService) Get(ctx context.Context, userID, id int64) (*VersionDetail, error) {
	v, err := s.owned(ctx, userID, id, false)
	if err != nil {
		return nil, err
	}
	job, err := s.jobs.GetByDestination(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	return &VersionDetail{Version: v, Clone: job}, nil
}

// Create inserts a pending version and queues the clone that fills it from
// the source version.
func (s *versionService) Create(ctx context.Context, userID int64, input models.CreateVersionInput) (*VersionDetail, error) {
	repo, _, err := s.require(ctx, input.Repository, userID, canWrite)
	if err != nil {
		return nil, err
	}
	if err := validateVersionName(input.Name); err != nil {
		return nil, err
	}

	source, err := s.versions.GetByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if source == nil || source.RepositoryUUID != repo.UUID || source.IsDeleted {
		return nil, invalid("id", "Invalid source version.")
	}

	version := &models.Version{
		RepositoryUUID: repo.UUID,
		Name:           strings.TrimSpace(input.Name),
		CreatedBy:      &userID,
	}
	job, err := s.versions.CreateClone(ctx, version, source.ID)
	if err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}

	s.logger.Info("Version clone queued",
		zap.Int64("job_id", job.ID),
		zap.Int64("source_version_id", source.ID),
		zap.Int64("destination_version_id", version.ID))
	return &VersionDetail{Version: version, Clone: job}, nil
}

func (s *versionService) Update(ctx context.Context, userID, id int64, input models.UpdateVersionInput) (*models.Version, error) {
	v, err := s.owned(ctx, userID, id, true)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if err := validateVersionName(*input.Name); err != nil {
			return nil, err
		}
		if err := s.versions.Rename(ctx, v.ID, strings.TrimSpace(*input.Name)); err != nil {
			return nil, fmt.Errorf("rename version: %w", err)
		}
	}

	if input.IsDefault != nil && *input.IsDefault && !v.IsDefault {
		if v.IsDeleted {
			return nil, invalid("is_default", "This version is still being created.")
		}
		if err := s.versions.MakeDefault(ctx, v.RepositoryUUID, v.ID); err != nil {
			return nil, fmt.Errorf("make default version: %w", err)
		}
	}
	return s.versions.GetByID(ctx, id)
}

func (s *versionService) Delete(ctx context.Context, userID, id int64) error {
	v, err := s.owned(ctx, userID, id, true)
	if err != nil {
		return err
	}
	if v.IsDefault {
		return invalid(NonFieldErrors, "You can't delete the default version.")
	}
	if err := s.versions.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalid(NonFieldErrors, "You can't delete the default version.")
		}
		return fmt.Errorf("delete version: %w", err)
	}
	return nil
}

func (s *versionService) Languages(ctx context.Context, userID int64, rawRepository string, versionID *int64, trained *bool, page repository.Page) ([]*models.VersionLanguage, error) {
	repo, _, err := s.readableRaw(ctx, rawRepository, userID)
	if err != nil {
		return nil, err
	}
	return s.versions.ListLanguages(ctx, repository.VersionLanguageFilter{
		RepositoryUUID: repo.UUID,
		VersionID:      versionID,
		Trained:        trained,
	}, page)
}
