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

type TranslationQuery struct {
	Repository        string
	RepositoryVersion *int64
	FromLanguage      string
	ToLanguage        string
}

type TranslationService interface {
	Create(ctx context.Context, userID int64, input models.CreateTranslationInput) (*models.TranslatedExample, error)
	Get(ctx context.Context, userID, id int64) (*models.TranslatedExample, error)
	Update(ctx context.Context, userID, id int64, input models.UpdateTranslationInput) (*models.TranslatedExample, error)
	Delete(ctx context.Context, userID, id int64) error
	List(ctx context.Context, userID int64, query TranslationQuery, page repository.Page) ([]*models.TranslatedExample, error)
}

type translationService struct {
	access
	examples     repository.ExampleRepository
	translations repository.TranslationRepository
	versions     repository.VersionRepository
	logger       *zap.Logger
}

func NewTranslationService(
	bots repository.BotRepository,
	auths repository.AuthorizationRepository,
	examples repository.ExampleRepository,
	translations repository.TranslationRepository,
	versions repository.VersionRepository,
	logger *zap.Logger,
) TranslationService {
	return &translationService{
		access:       access{bots: bots, auths: auths},
		examples:     examples,
		translations: translations,
		versions:     versions,
		logger:       logger,
	}
}

func validateTranslation(verr *ValidationError, text string, spans []models.EntitySpanInput) {
	if strings.TrimSpace(text) == "" {
		verr.Add("text", "This field may not be blank.")
	}
	validateSpans(verr, text, spans)
}

func (s *translationService) Create(ctx context.Context, userID int64, input models.CreateTranslationInput) (*models.TranslatedExample, error) {
	original, err := s.examples.GetByID(ctx, input.OriginalExample)
	if err != nil {
		return nil, err
	}
	if original == nil || original.DeletedIn.IsDeleted() {
		return nil, invalid("original_example", "Example does not exist.")
	}
	repoUUID, err := s.examples.GetRepositoryUUID(ctx, original.ID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.require(ctx, repoUUID, userID, canTranslate); err != nil {
		return nil, err
	}

	verr := &ValidationError{}
	lang := normalizeLanguage(verr, "language", input.Language)
	if lang != "" && lang == original.Language {
		verr.Add("language", "Can't translate to the same language.")
	}
	validateTranslation(verr, input.Text, input.Entities)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	exists, err := s.translations.Exists(ctx, original.ID, lang)
	if err != nil {
		return nil, fmt.Errorf("check translation: %w", err)
	}
	if exists {
		return nil, invalid(NonFieldErrors, "This example already has a translation to this language.")
	}

	t, err := s.translations.Create(ctx, original, lang, input.Text, input.Entities, sameEntities(original.Entities, input.Entities))
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, invalid(NonFieldErrors, "This example already has a translation to this language.")
		}
		return nil, fmt.Errorf("create translation: %w", err)
	}
	return t, nil
}

func (s *translationService) owned(ctx context.Context, userID, id int64, write bool) (*models.TranslatedExample, *models.Example, error) {
	t, err := s.translations.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if t == nil {
		return nil, nil, ErrNotFound
	}
	repoUUID, err := s.examples.GetRepositoryUUID(ctx, t.OriginalExampleID)
	if err != nil {
		return nil, nil, err
	}
	allowed := canRead
	if write {
		allowed = canTranslate
	}
	if _, _, err := s.require(ctx, repoUUID, userID, allowed); err != nil {
		return nil, nil, err
	}
	if !write {
		return t, nil, nil
	}
	original, err := s.examples.GetByID(ctx, t.OriginalExampleID)
	if err != nil {
		return nil, nil, err
	}
	return t, original, nil
}

func (s *translationService) Get(ctx context.Context, userID, id int64) (*models.TranslatedExample, error) {
	t, _, err := s.owned(ctx, userID, id, false)
	return t, err
}

// Update revalidates the translated entities against the original example.
func (s *translationService) Update(ctx context.Context, userID, id int64, input models.UpdateTranslationInput) (*models.TranslatedExample, error) {
	t, original, err := s.owned(ctx, userID, id, true)
	if err != nil {
		return nil, err
	}

	text := t.Text
	if input.Text != nil {
		text = *input.Text
	}
	spans := make([]models.EntitySpanInput, 0, len(t.Entities))
	for _, e := range t.Entities {
		span := models.EntitySpanInput{Start: e.Start, End: e.End, Entity: e.Entity}
		if e.Label != nil {
			span.Label = *e.Label
		}
		if e.Group != nil {
			span.Group = *e.Group
		}
		spans = append(spans, span)
	}
	if input.Entities != nil {
		spans = *input.Entities
	}

	verr := &ValidationError{}
	validateTranslation(verr, text, spans)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if err := s.translations.Update(ctx, t, text, input.Entities, sameEntities(original.Entities, spans)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update translation: %w", err)
	}
	return s.translations.GetByID(ctx, id)
}

func (s *translationService) Delete(ctx context.Context, userID, id int64) error {
	if _, _, err := s.owned(ctx, userID, id, true); err != nil {
		return err
	}
	if err := s.translations.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete translation: %w", err)
	}
	return nil
}

func (s *translationService) List(ctx context.Context, userID int64, query TranslationQuery, page repository.Page) ([]*models.TranslatedExample, error) {
	repo, _, err := s.readableRaw(ctx, query.Repository, userID)
	if err != nil {
		return nil, err
	}
	version, err := resolveVersion(ctx, s.versions, repo, query.RepositoryVersion)
	if err != nil {
		return nil, err
	}

	filter := repository.TranslationFilter{VersionID: version.ID}
	verr := &ValidationError{}
	if query.FromLanguage != "" {
		filter.FromLanguage = normalizeLanguage(verr, "from_language", query.FromLanguage)
	}
	if query.ToLanguage != "" {
		filter.ToLanguage = normalizeLanguage(verr, "to_language", query.ToLanguage)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return s.translations.List(ctx, filter, page)
}
