package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"nluhub/internal/authz"
	"nluhub/internal/models"
	"nluhub/internal/repository"
)

// RepositoryDetail is a repository with its categories and the caller's
// capabilities.
type RepositoryDetail struct {
	*models.Repository
	Categories    []models.Category  `json:"categories"`
	Authorization authz.Capabilities `json:"authorization"`
	Languages     []string           `json:"available_languages"`
}

type BotService interface {
	Categories(ctx context.Context) ([]models.Category, error)
	Create(ctx context.Context, userID int64, input models.CreateRepositoryInput) (*RepositoryDetail, error)
	Get(ctx context.Context, userID int64, id uuid.UUID) (*RepositoryDetail, error)
	Update(ctx context.Context, userID int64, id uuid.UUID, input models.UpdateRepositoryInput) (*RepositoryDetail, error)
	Delete(ctx context.Context, userID int64, id uuid.UUID) error
	LanguagesStatus(ctx context.Context, userID int64, id uuid.UUID) ([]models.LanguageStatus, error)
	Authorization(ctx context.Context, userID int64, id uuid.UUID) (authz.Capabilities, error)
	ListPublic(ctx context.Context, filter repository.RepositoryFilter, page repository.Page) ([]*models.Repository, error)
	SearchByOwner(ctx context.Context, userID int64, nickname string, page repository.Page) ([]*models.Repository, error)
	Contributions(ctx context.Context, userID int64, nickname string, page repository.Page) ([]*models.Repository, error)
}

type botService struct {
	access
	categories repository.CategoryRepository
	versions   repository.VersionRepository
	users      repository.UserRepository
	minIntents int
	cache      *cache.Cache
	logger     *zap.Logger
}

const categoriesCacheKey = "categories"

func NewBotService(
	bots repository.BotRepository,
	auths repository.AuthorizationRepository,
	categories repository.CategoryRepository,
	versions repository.VersionRepository,
	users repository.UserRepository,
	minIntents int,
	categoriesTTL time.Duration,
	logger *zap.Logger,
) BotService {
	return &botService{
		access:     access{bots: bots, auths: auths},
		categories: categories,
		versions:   versions,
		users:      users,
		minIntents: minIntents,
		cache:      cache.New(categoriesTTL, categoriesTTL*2),
		logger:     logger,
	}
}

func (s *botService) Categories(ctx context.Context) ([]models.Category, error) {
	if cached, ok := s.cache.Get(categoriesCacheKey); ok {
		return cached.([]models.Category), nil
	}
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	s.cache.Set(categoriesCacheKey, categories, cache.DefaultExpiration)
	return categories, nil
}

func validateAlgorithm(verr *ValidationError, algorithm string) string {
	if algorithm == "" {
		return models.AlgorithmNeuralNetworkInternal
	}
	if !slices.Contains(models.Algorithms, algorithm) {
		verr.Add("algorithm", fmt.Sprintf("%q is not a valid choice.", algorithm))
	}
	return algorithm
}

func validateName(verr *ValidationError, name string) {
	if strings.TrimSpace(name) == "" || len(name) > 64 {
		verr.Add("name", "Ensure this field has between 1 and 64 characters.")
	}
}

func (s *botService) Create(ctx context.Context, userID int64, input models.CreateRepositoryInput) (*RepositoryDetail, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}

	verr := &ValidationError{}
	validateName(verr, input.Name)
	lang := normalizeLanguage(verr, "language", input.Language)
	algorithm := validateAlgorithm(verr, input.Algorithm)

	slug := input.Slug
	if slug == "" {
		slug = slugify(input.Name)
	}
	if !slugPattern.MatchString(slug) || len(slug) > 32 {
		verr.Add("slug", "Enter a valid slug consisting of lowercase letters, numbers, underscores or hyphens.")
	}
	if len(input.Categories) == 0 {
		verr.Add("categories", "This field is required.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	repo := &models.Repository{
		OwnerID:             userID,
		Name:                input.Name,
		Slug:                slug,
		Description:         input.Description,
		Language:            lang,
		IsPrivate:           input.IsPrivate,
		Algorithm:           algorithm,
		UseCompetingIntents: input.UseCompetingIntents,
		UseNameEntities:     input.UseNameEntities,
		UseAnalyzeChar:      input.UseAnalyzeChar,
		NLPServer:           input.NLPServer,
	}
	if _, err := s.bots.Create(ctx, repo, input.Categories); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, invalid("slug", "You already have a repository with this slug.")
		case errors.Is(err, repository.ErrInvalidReference):
			return nil, invalid("categories", "Invalid category.")
		}
		return nil, fmt.Errorf("create repository: %w", err)
	}

	s.logger.Info("Repository created", zap.String("uuid", repo.UUID.String()), zap.Int64("owner_id", userID))
	return s.Get(ctx, userID, repo.UUID)
}

func (s *botService) detail(ctx context.Context, repo *models.Repository, caps authz.Capabilities) (*RepositoryDetail, error) {
	categories, err := s.bots.Categories(ctx, repo.UUID)
	if err != nil {
		return nil, err
	}
	d := &RepositoryDetail{Repository: repo, Categories: categories, Authorization: caps, Languages: []string{}}

	version, err := s.versions.GetDefault(ctx, repo.UUID)
	if err != nil {
		return nil, err
	}
	if version != nil {
		statuses, err := s.bots.LanguagesStatus(ctx, version.ID)
		if err != nil {
			return nil, err
		}
		for _, st := range statuses {
			d.Languages = append(d.Languages, st.Language)
		}
	}
	return d, nil
}

func (s *botService) Get(ctx context.Context, userID int64, id uuid.UUID) (*RepositoryDetail, error) {
	repo, caps, err := s.readable(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, repo, caps)
}

func (s *botService) Update(ctx context.Context, userID int64, id uuid.UUID, input models.UpdateRepositoryInput) (*RepositoryDetail, error) {
	repo, caps, err := s.require(ctx, id, userID, isAdmin)
	if err != nil {
		return nil, err
	}

	verr := &ValidationError{}
	if input.Name != nil {
		validateName(verr, *input.Name)
		repo.Name = *input.Name
	}
	if input.Description != nil {
		repo.Description = *input.Description
	}
	if input.Language != nil {
		repo.Language = normalizeLanguage(verr, "language", *input.Language)
	}
	if input.IsPrivate != nil {
		repo.IsPrivate = *input.IsPrivate
	}
	if input.Algorithm != nil {
		repo.Algorithm = validateAlgorithm(verr, *input.Algorithm)
	}
	if input.UseCompetingIntents != nil {
		repo.UseCompetingIntents = *input.UseCompetingIntents
	}
	if input.UseNameEntities != nil {
		repo.UseNameEntities = *input.UseNameEntities
	}
	if input.UseAnalyzeChar != nil {
		repo.UseAnalyzeChar = *input.UseAnalyzeChar
	}
	if input.NLPServer != nil {
		if *input.NLPServer == "" {
			repo.NLPServer = nil
		} else {
			repo.NLPServer = input.NLPServer
		}
	}
	if input.Categories != nil && len(*input.Categories) == 0 {
		verr.Add("categories", "This field is required.")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if err := s.bots.Update(ctx, repo, input.Categories); err != nil {
		if errors.Is(err, repository.ErrInvalidReference) {
			return nil, invalid("categories", "Invalid category.")
		}
		return nil, fmt.Errorf("update repository: %w", err)
	}

	if input.Language != nil {
		version, err := s.versions.GetDefault(ctx, repo.UUID)
		if err != nil {
			return nil, err
		}
		if version != nil {
			if _, err := s.versions.GetOrCreateLanguage(ctx, version.ID, repo.Language); err != nil {
				return nil, err
			}
		}
	}
	return s.detail(ctx, repo, caps)
}

func (s *botService) Delete(ctx context.Context, userID int64, id uuid.UUID) error {
	if _, _, err := s.require(ctx, id, userID, isOwner); err != nil {
		return err
	}
	if err := s.bots.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	s.logger.Info("Repository deleted", zap.String("uuid", id.String()), zap.Int64("user_id", userID))
	return nil
}

func (s *botService) LanguagesStatus(ctx context.Context, userID int64, id uuid.UUID) ([]models.LanguageStatus, error) {
	repo, _, err := s.readable(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	version, err := s.versions.GetDefault(ctx, repo.UUID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return []models.LanguageStatus{}, nil
	}
	statuses, err := s.bots.LanguagesStatus(ctx, version.ID)
	if err != nil {
		return nil, err
	}
	for i := range statuses {
		st := &statuses[i]
		st.IsBaseLanguage = st.Language == repo.Language
		st.ReadyForTrain = st.ExamplesCount > 0 && st.IntentsCount >= s.minIntents
	}
	return statuses, nil
}

func (s *botService) Authorization(ctx context.Context, userID int64, id uuid.UUID) (authz.Capabilities, error) {
	_, caps, err := s.load(ctx, id, userID)
	return caps, err
}

func (s *botService) ListPublic(ctx context.Context, filter repository.RepositoryFilter, page repository.Page) ([]*models.Repository, error) {
	if filter.Language != "" {
		lang, err := normalizeLanguageFilter(filter.Language)
		if err != nil {
			return nil, err
		}
		filter.Language = lang
	}
	return s.bots.ListPublic(ctx, filter, page)
}

// normalizeLanguageFilter rejects unknown codes instead of silently
// returning an empty listing.
func normalizeLanguageFilter(code string) (string, error) {
	verr := &ValidationError{}
	out := normalizeLanguage(verr, "language", code)
	return out, verr.OrNil()
}

func (s *botService) userByNickname(ctx context.Context, userID int64, nickname string) (*models.User, error) {
	if nickname == "" {
		if userID == 0 {
			return nil, invalid("nickname", "This field is required.")
		}
		return s.users.GetByID(ctx, userID)
	}
	user, err := s.users.GetByNickname(ctx, nickname)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFound("User does not exist")
	}
	return user, nil
}

func (s *botService) SearchByOwner(ctx context.Context, userID int64, nickname string, page repository.Page) ([]*models.Repository, error) {
	owner, err := s.userByNickname(ctx, userID, nickname)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrNotFound
	}
	return s.bots.ListByOwner(ctx, owner.ID, owner.ID == userID, page)
}

func (s *botService) Contributions(ctx context.Context, userID int64, nickname string, page repository.Page) ([]*models.Repository, error) {
	user, err := s.userByNickname(ctx, userID, nickname)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	repos, err := s.bots.ListContributions(ctx, user.ID, page)
	if err != nil {
		return nil, err
	}
	if user.ID == userID {
		return repos, nil
	}

	visible := repos[:0]
	for _, r := range repos {
		if !r.IsPrivate {
			visible = append(visible, r)
		}
	}
	return visible, nil
}
