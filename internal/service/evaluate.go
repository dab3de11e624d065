package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nluhub/internal/authz"
	"nluhub/internal/models"
	"nluhub/internal/repository"
)

type EvaluateQuery struct {
	Repository        string
	RepositoryVersion *int64
	Language          string
	Label             string
	Entity            string
	Intent            string
	Text              string
	Search            string
}

type EvaluateService interface {
	Create(ctx context.Context, userID int64, input models.CreateEvaluateInput) (*models.Evaluate, error)
	Get(ctx context.Context, userID, id int64) (*models.Evaluate, error)
	Update(ctx context.Context, userID, id int64, input models.UpdateEvaluateInput) (*models.Evaluate, error)
	Delete(ctx context.Context, userID, id int64) error
	List(ctx context.Context, userID int64, query EvaluateQuery, page repository.Page) ([]*models.Evaluate, error)
}

type evaluateService struct {
	access
	evaluates repository.EvaluateRepository
	versions  repository.VersionRepository
	logger    *zap.Logger
}

func NewEvaluateService(
	bots repository.BotRepository,
	auths repository.AuthorizationRepository,
	evaluates repository.EvaluateRepository,
	versions repository.VersionRepository,
	logger *zap.Logger,
) EvaluateService {
	return &evaluateService{
		access:    access{bots: bots, auths: auths},
		evaluates: evaluates,
		versions:  versions,
		logger:    logger,
	}
}

func validateEvaluate(text, intent string, spans []models.EntitySpanInput) error {
	verr := &ValidationError{}
	if strings.TrimSpace(text) == "" {
		verr.Add("text", "This field may not be blank.")
	}
	if intent == "" {
		verr.Add("intent", "This field is required.")
	} else if !validIdentifier(intent) {
		verr.Add("intent", identifierMessage)
	}
	validateSpans(verr, text, spans)
	return verr.OrNil()
}

func (s *evaluateService) Create(ctx context.Context, userID int64, input models.CreateEvaluateInput) (*models.Evaluate, error) {
	id, err := parseRepositoryUUID(input.Repository)
	if err != nil {
		return nil, err
	}
	repo, _, err := s.require(ctx, id, userID, canWrite)
	if err != nil {
		return nil, err
	}
	version, err := resolveVersion(ctx, s.versions, repo, nil)
	if err != nil {
		return nil, err
	}

	verr := &ValidationError{}
	lang := normalizeLanguage(verr, "language", input.Language)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	if err := validateEvaluate(input.Text, input.Intent, input.Entities); err != nil {
		return nil, err
	}

	e, err := s.evaluates.Create(ctx, version.ID, lang, input.Text, input.Intent, input.Entities)
	if err != nil {
		return nil, fmt.Errorf("create evaluate: %w", err)
	}
	return e, nil
}

func (s *evaluateService) owned(ctx context.Context, userID, id int64, allowed func(authz.Capabilities) bool) (*models.Evaluate, error) {
	e, err := s.evaluates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	repoUUID, err := s.evaluates.GetRepositoryUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.require(ctx, repoUUID, userID, allowed); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *evaluateService) Get(ctx context.Context, userID, id int64) (*models.Evaluate, error) {
	return s.owned(ctx, userID, id, canRead)
}

func (s *evaluateService) Update(ctx context.Context, userID, id int64, input models.UpdateEvaluateInput) (*models.Evaluate, error) {
	e, err := s.owned(ctx, userID, id, canWrite)
	if err != nil {
		return nil, err
	}
	if e.DeletedIn.IsDeleted() {
		return nil, invalid(NonFieldErrors, "Deleted evaluations can't be edited.")
	}

	text, intent := e.Text, e.Intent
	if input.Text != nil {
		text = *input.Text
	}
	if input.Intent != nil {
		intent = *input.Intent
	}
	spans := make([]models.EntitySpanInput, 0, len(e.Entities))
	for _, ent := range e.Entities {
		spans = append(spans, models.EntitySpanInput{Start: ent.Start, End: ent.End, Entity: ent.Entity})
	}
	if input.Entities != nil {
		spans = *input.Entities
	}
	if err := validateEvaluate(text, intent, spans); err != nil {
		return nil, err
	}

	if err := s.evaluates.Update(ctx, e, text, intent, input.Entities); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalid(NonFieldErrors, "Deleted evaluations can't be edited.")
		}
		return nil, fmt.Errorf("update evaluate: %w", err)
	}
	return s.evaluates.GetByID(ctx, id)
}

func (s *evaluateService) Delete(ctx context.Context, userID, id int64) error {
	e, err := s.owned(ctx, userID, id, canWrite)
	if err != nil {
		return err
	}
	if e.DeletedIn.IsDeleted() {
		return invalid(NonFieldErrors, "Evaluation already deleted.")
	}
	vl, err := s.versions.GetLanguageByID(ctx, e.VersionLanguageID)
	if err != nil {
		return err
	}
	if vl == nil {
		return ErrNotFound
	}
	if err := s.evaluates.MarkDeleted(ctx, id, vl.VersionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalid(NonFieldErrors, "Evaluation already deleted.")
		}
		return fmt.Errorf("delete evaluate: %w", err)
	}
	return nil
}

func (s *evaluateService) List(ctx context.Context, userID int64, query EvaluateQuery, page repository.Page) ([]*models.Evaluate, error) {
	repo, _, err := s.readableRaw(ctx, query.Repository, userID)
	if err != nil {
		return nil, err
	}
	version, err := resolveVersion(ctx, s.versions, repo, query.RepositoryVersion)
	if err != nil {
		return nil, err
	}

	filter := repository.EvaluateFilter{
		VersionID: version.ID,
		Label:     query.Label,
		Entity:    query.Entity,
		Intent:    query.Intent,
		Text:      query.Text,
		Search:    query.Search,
	}
	if query.Language != "" {
		lang, err := normalizeLanguageFilter(query.Language)
		if err != nil {
			return nil, err
		}
		filter.Language = lang
	}
	return s.evaluates.List(ctx, filter, page)
}
