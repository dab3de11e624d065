package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nluhub/internal/authz"
	"nluhub/internal/models"
	"nluhub/internal/repository"
)

// ExampleQuery carries the list filters of the examples endpoint.
type ExampleQuery struct {
	Repository          string
	RepositoryVersion   *int64
	Language            string
	Label               string
	Entity              string
	Intent              string
	Text                string
	Search              string
	HasTranslation      *bool
	HasNotTranslationTo string
	OrderByTranslation  string
}

// EntityLabel groups the entities of a version under one label. Entities
// without a label are listed under the "other" label.
type EntityLabel struct {
	Value    string           `json:"value"`
	Entities []*models.Entity `json:"entities"`
}

type EntityListing struct {
	Entities []*models.Entity `json:"entities"`
	Labels   []EntityLabel    `json:"labels"`
}

type ExampleService interface {
	Create(ctx context.Context, userID int64, input models.CreateExampleInput) (*models.Example, error)
	Get(ctx context.Context, userID, id int64) (*models.Example, error)
	Update(ctx context.Context, userID, id int64, input models.UpdateExampleInput) (*models.Example, error)
	Delete(ctx context.Context, userID, id int64) error
	List(ctx context.Context, userID int64, query ExampleQuery, page repository.Page) ([]*models.Example, error)
	Upload(ctx context.Context, userID int64, rawRepository string, payload []byte) (*models.UploadResult, error)
	Entities(ctx context.Context, userID int64, rawRepository string, versionID *int64, value string) (*EntityListing, error)
}

type exampleService struct {
	access
	examples repository.ExampleRepository
	versions repository.VersionRepository
	entities repository.EntityRepository
	logger   *zap.Logger
}

func NewExampleService(
	bots repository.BotRepository,
	auths repository.AuthorizationRepository,
	examples repository.ExampleRepository,
	versions repository.VersionRepository,
	entities repository.EntityRepository,
	logger *zap.Logger,
) ExampleService {
	return &exampleService{
		access:   access{bots: bots, auths: auths},
		examples: examples,
		versions: versions,
		entities: entities,
		logger:   logger,
	}
}

// resolveVersion returns the requested version of repo, or its default one.
// Versions still being cloned are not addressable.
func resolveVersion(ctx context.Context, versions repository.VersionRepository, repo *models.Repository, id *int64) (*models.Version, error) {
	if id == nil {
		v, err := versions.GetDefault(ctx, repo.UUID)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, notFound("Repository has no default version")
		}
		return v, nil
	}
	v, err := versions.GetByID(ctx, *id)
	if err != nil {
		return nil, err
	}
	if v == nil || v.RepositoryUUID != repo.UUID || v.IsDeleted {
		return nil, invalid("repository_version", "Invalid repository version.")
	}
	return v, nil
}

// validateExample checks one example. language is already normalized.
func (s *exampleService) validateExample(ctx context.Context, versionID int64, language, text, intent string, spans []models.EntitySpanInput, excludeID int64) error {
	verr := &ValidationError{}
	if strings.TrimSpace(text) == "" {
		verr.Add("text", "This field may not be blank.")
	}
	if intent != "" && !validIdentifier(intent) {
		verr.Add("intent", identifierMessage)
	}
	if intent == "" && len(spans) == 0 {
		verr.Add(NonFieldErrors, "Define an intent or one entity.")
	}
	validateSpans(verr, text, spans)
	if err := verr.OrNil(); err != nil {
		return err
	}

	dup, err := s.examples.DuplicateExists(ctx, versionID, language, text, intent, excludeID)
	if err != nil {
		return fmt.Errorf("check duplicate example: %w", err)
	}
	if dup {
		return invalid(NonFieldErrors, "Intention and Sentence already exists.")
	}
	return nil
}

func (s *exampleService) Create(ctx context.Context, userID int64, input models.CreateExampleInput) (*models.Example, error) {
	id, err := parseRepositoryUUID(input.Repository)
	if err != nil {
		return nil, err
	}
	repo, _, err := s.require(ctx, id, userID, canWrite)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, repo, input)
}

func (s *exampleService) create(ctx context.Context, repo *models.Repository, input models.CreateExampleInput) (*models.Example, error) {
	version, err := resolveVersion(ctx, s.versions, repo, input.RepositoryVersion)
	if err != nil {
		return nil, err
	}

	lang := repo.Language
	if input.Language != "" {
		verr := &ValidationError{}
		lang = normalizeLanguage(verr, "language", input.Language)
		if err := verr.OrNil(); err != nil {
			return nil, err
		}
	}

	if err := s.validateExample(ctx, version.ID, lang, input.Text, input.Intent, input.Entities, 0); err != nil {
		return nil, err
	}

	example, err := s.examples.Create(ctx, version.ID, lang, input.Text, input.Intent, input.Entities)
	if err != nil {
		return nil, fmt.Errorf("create example: %w", err)
	}
	return example, nil
}

// owned loads an example and the caller's capabilities in its repository.
func (s *exampleService) owned(ctx context.Context, userID, id int64, allowed func(authz.Capabilities) bool) (*models.Example, error) {
	example, err := s.examples.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if example == nil {
		return nil, ErrNotFound
	}
	repoUUID, err := s.examples.GetRepositoryUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.require(ctx, repoUUID, userID, allowed); err != nil {
		return nil, err
	}
	return example, nil
}

func (s *exampleService) Get(ctx context.Context, userID, id int64) (*models.Example, error) {
	return s.owned(ctx, userID, id, canRead)
}

func (s *exampleService) Update(ctx context.Context, userID, id int64, input models.UpdateExampleInput) (*models.Example, error) {
	example, err := s.owned(ctx, userID, id, canWrite)
	if err != nil {
		return nil, err
	}
	if example.DeletedIn.IsDeleted() {
		return nil, invalid(NonFieldErrors, "Deleted examples can't be edited.")
	}

	text := example.Text
	if input.Text != nil {
		text = *input.Text
	}
	intent := ""
	if example.Intent != nil {
		intent = *example.Intent
	}
	if input.Intent != nil {
		intent = *input.Intent
	}
	spans := spansOf(example.Entities)
	if input.Entities != nil {
		spans = *input.Entities
	}

	if err := s.validateExample(ctx, example.VersionID, example.Language, text, intent, spans, example.ID); err != nil {
		return nil, err
	}

	if err := s.examples.Update(ctx, example, text, intent, input.Entities); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalid(NonFieldErrors, "Deleted examples can't be edited.")
		}
		return nil, fmt.Errorf("update example: %w", err)
	}
	return s.examples.GetByID(ctx, id)
}

// Delete tombstones the example in its own version. A deleted example
// cannot be deleted again.
func (s *exampleService) Delete(ctx context.Context, userID, id int64) error {
	example, err := s.owned(ctx, userID, id, canWrite)
	if err != nil {
		return err
	}
	if example.DeletedIn.IsDeleted() {
		return invalid(NonFieldErrors, "Example already deleted.")
	}
	if err := s.examples.MarkDeleted(ctx, id, example.VersionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalid(NonFieldErrors, "Example already deleted.")
		}
		return fmt.Errorf("delete example: %w", err)
	}
	return nil
}

func (s *exampleService) List(ctx context.Context, userID int64, query ExampleQuery, page repository.Page) ([]*models.Example, error) {
	repo, _, err := s.readableRaw(ctx, query.Repository, userID)
	if err != nil {
		return nil, err
	}
	version, err := resolveVersion(ctx, s.versions, repo, query.RepositoryVersion)
	if err != nil {
		return nil, err
	}

	filter := repository.ExampleFilter{
		VersionID:          version.ID,
		Label:              query.Label,
		Entity:             query.Entity,
		Intent:             query.Intent,
		Text:               query.Text,
		Search:             query.Search,
		HasTranslation:     query.HasTranslation,
		OrderByTranslation: query.OrderByTranslation,
	}
	verr := &ValidationError{}
	if query.Language != "" {
		filter.Language = normalizeLanguage(verr, "language", query.Language)
	}
	if query.HasNotTranslationTo != "" {
		filter.HasNotTranslationTo = normalizeLanguage(verr, "has_not_translation_to", query.HasNotTranslationTo)
	}
	if query.OrderByTranslation != "" {
		desc := strings.HasPrefix(query.OrderByTranslation, "-")
		lang := normalizeLanguage(verr, "order_by_translation", strings.TrimPrefix(query.OrderByTranslation, "-"))
		if desc {
			lang = "-" + lang
		}
		filter.OrderByTranslation = lang
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	return s.examples.List(ctx, filter, page)
}

// Upload creates every item of a JSON array independently. Items that fail
// validation are returned with their errors; the rest are added.
func (s *exampleService) Upload(ctx context.Context, userID int64, rawRepository string, payload []byte) (*models.UploadResult, error) {
	id, err := parseRepositoryUUID(rawRepository)
	if err != nil {
		return nil, err
	}
	repo, _, err := s.require(ctx, id, userID, canWrite)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array of examples", ErrUnsupportedMedia)
	}

	result := &models.UploadResult{
		NotAdded:       []models.CreateExampleInput{},
		NotAddedErrors: []models.UploadItemError{},
	}
	for i, raw := range items {
		var input models.CreateExampleInput
		if err := json.Unmarshal(raw, &input); err != nil {
			result.NotAdded = append(result.NotAdded, input)
			result.NotAddedErrors = append(result.NotAddedErrors, models.UploadItemError{
				Index:  i,
				Errors: map[string][]string{NonFieldErrors: {"Invalid example object."}},
			})
			continue
		}
		input.Repository = repo.UUID.String()

		if _, err := s.create(ctx, repo, input); err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				return nil, err
			}
			result.NotAdded = append(result.NotAdded, input)
			result.NotAddedErrors = append(result.NotAddedErrors, models.UploadItemError{Index: i, Errors: verr.Fields})
			continue
		}
		result.Added++
	}

	s.logger.Info("Examples uploaded",
		zap.String("repository_uuid", repo.UUID.String()),
		zap.Int("added", result.Added),
		zap.Int("not_added", len(result.NotAdded)))
	return result, nil
}

func (s *exampleService) Entities(ctx context.Context, userID int64, rawRepository string, versionID *int64, value string) (*EntityListing, error) {
	repo, _, err := s.readableRaw(ctx, rawRepository, userID)
	if err != nil {
		return nil, err
	}
	version, err := resolveVersion(ctx, s.versions, repo, versionID)
	if err != nil {
		return nil, err
	}
	entities, err := s.entities.List(ctx, version.ID, value)
	if err != nil {
		return nil, err
	}

	listing := &EntityListing{Entities: entities, Labels: []EntityLabel{}}
	index := map[string]int{}
	var other []*models.Entity
	for _, e := range entities {
		if e.LabelValue == nil {
			other = append(other, e)
			continue
		}
		i, ok := index[*e.LabelValue]
		if !ok {
			i = len(listing.Labels)
			index[*e.LabelValue] = i
			listing.Labels = append(listing.Labels, EntityLabel{Value: *e.LabelValue})
		}
		listing.Labels[i].Entities = append(listing.Labels[i].Entities, e)
	}
	if len(other) > 0 {
		listing.Labels = append(listing.Labels, EntityLabel{Value: repository.OtherLabel, Entities: other})
	}
	return listing, nil
}
