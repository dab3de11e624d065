package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nluhub/internal/artifact"
	"nluhub/internal/models"
	"nluhub/internal/nlp_client"
	"nluhub/internal/repository"
)

// NLPClient is the part of the NLP service the API proxies to.
type NLPClient interface {
	Train(ctx context.Context, server string, req nlp_client.TrainRequest) (json.RawMessage, error)
	Evaluate(ctx context.Context, server string, req nlp_client.EvaluateRequest) (json.RawMessage, error)
	Parse(ctx context.Context, server string, req nlp_client.ParseRequest) (json.RawMessage, error)
}

type TrainingService interface {
	Train(ctx context.Context, userID int64, repo uuid.UUID, input models.TrainInput) (json.RawMessage, error)
	Evaluate(ctx context.Context, userID int64, repo uuid.UUID, input models.TrainInput) (json.RawMessage, error)
	Analyze(ctx context.Context, userID int64, repo uuid.UUID, input models.AnalyzeInput) (json.RawMessage, error)

	RegisterQueueTask(ctx context.Context, input models.CreateQueueTaskInput) (*models.QueueTask, error)
	LogPrediction(ctx context.Context, input models.CreateNLPLogInput) (*models.NLPLog, error)
	TrainingResult(ctx context.Context, versionLanguageID int64, input models.TrainingResultInput) error
	BotData(ctx context.Context, versionLanguageID int64) (string, error)
}

// TrainingRequirements are the minimums checked before forwarding to NLP.
type TrainingRequirements struct {
	MinIntents     int
	MinEvaluations int
}

type trainingService struct {
	access
	versions  repository.VersionRepository
	examples  repository.ExampleRepository
	evaluates repository.EvaluateRepository
	tasks     repository.QueueTaskRepository
	logs      repository.NLPLogRepository
	nlp       NLPClient
	artifacts artifact.Store
	req       TrainingRequirements
	logger    *zap.Logger
}

func NewTrainingService(
	bots repository.BotRepository,
	auths repository.AuthorizationRepository,
	versions repository.VersionRepository,
	examples repository.ExampleRepository,
	evaluates repository.EvaluateRepository,
	tasks repository.QueueTaskRepository,
	logs repository.NLPLogRepository,
	nlp NLPClient,
	artifacts artifact.Store,
	req TrainingRequirements,
	logger *zap.Logger,
) TrainingService {
	return &trainingService{
		access:    access{bots: bots, auths: auths},
		versions:  versions,
		examples:  examples,
		evaluates: evaluates,
		tasks:     tasks,
		logs:      logs,
		nlp:       nlp,
		artifacts: artifacts,
		req:       req,
		logger:    logger,
	}
}

func server(repo *models.Repository) string {
	if repo.NLPServer == nil {
		return ""
	}
	return *repo.NLPServer
}

// authorizationToken returns the caller's authorization uuid, creating an
// empty authorization for users that have none yet.
func (s *trainingService) authorizationToken(ctx context.Context, repo *models.Repository, userID int64) (string, error) {
	if userID == 0 {
		return "", nil
	}
	auth, err := s.auths.Get(ctx, userID, repo.UUID)
	if err != nil {
		return "", err
	}
	if auth == nil {
		if auth, err = s.auths.SetRole(ctx, userID, repo.UUID, models.RoleNotSet); err != nil {
			return "", err
		}
	}
	return auth.UUID.String(), nil
}

// target resolves the default version and the version-language to act on.
func (s *trainingService) target(ctx context.Context, repo *models.Repository, lang string) (*models.Version, *models.VersionLanguage, error) {
	if lang == "" {
		lang = repo.Language
	} else {
		verr := &ValidationError{}
		lang = normalizeLanguage(verr, "language", lang)
		if err := verr.OrNil(); err != nil {
			return nil, nil, err
		}
	}

	version, err := resolveVersion(ctx, s.versions, repo, nil)
	if err != nil {
		return nil, nil, err
	}
	vl, err := s.versions.GetLanguage(ctx, version.ID, lang)
	if err != nil {
		return nil, nil, err
	}
	if vl == nil {
		return nil, nil, invalid("language", "This repository has no examples in this language.")
	}
	return version, vl, nil
}

func (s *trainingService) checkIntents(ctx context.Context, vl *models.VersionLanguage) error {
	intents, err := s.examples.CountIntents(ctx, vl.ID)
	if err != nil {
		return fmt.Errorf("count intents: %w", err)
	}
	if intents < s.req.MinIntents {
		return invalid(NonFieldErrors, fmt.Sprintf("You need to have at least %d intents.", s.req.MinIntents))
	}
	return nil
}

func (s *trainingService) Train(ctx context.Context, userID int64, repoID uuid.UUID, input models.TrainInput) (json.RawMessage, error) {
	repo, _, err := s.require(ctx, repoID, userID, canWrite)
	if err != nil {
		return nil, err
	}
	version, vl, err := s.target(ctx, repo, input.Language)
	if err != nil {
		return nil, err
	}
	if err := s.checkIntents(ctx, vl); err != nil {
		return nil, err
	}
	token, err := s.authorizationToken(ctx, repo, userID)
	if err != nil {
		return nil, err
	}

	body, err := s.nlp.Train(ctx, server(repo), nlp_client.TrainRequest{
		RepositoryVersion:       version.ID,
		ByUser:                  userID,
		RepositoryAuthorization: token,
		Language:                vl.Language,
	})
	if err != nil {
		return nil, err
	}

	if err := s.versions.StartTraining(ctx, vl.ID); err != nil {
		s.logger.Warn("Failed to record training start", zap.Int64("version_language_id", vl.ID), zap.Error(err))
	}
	s.logger.Info("Training requested",
		zap.String("repository_uuid", repo.UUID.String()),
		zap.String("language", vl.Language),
		zap.Int64("user_id", userID))
	return body, nil
}

func (s *trainingService) Evaluate(ctx context.Context, userID int64, repoID uuid.UUID, input models.TrainInput) (json.RawMessage, error) {
	repo, _, err := s.require(ctx, repoID, userID, canWrite)
	if err != nil {
		return nil, err
	}
	if input.Language == "" {
		return nil, invalid("language", "This field is required.")
	}
	version, vl, err := s.target(ctx, repo, input.Language)
	if err != nil {
		return nil, err
	}

	evaluations, err := s.evaluates.Count(ctx, vl.ID)
	if err != nil {
		return nil, fmt.Errorf("count evaluations: %w", err)
	}
	if evaluations < s.req.MinEvaluations {
		return nil, invalid(NonFieldErrors, "You need to have at least one registered test phrase.")
	}
	if err := s.checkIntents(ctx, vl); err != nil {
		return nil, err
	}
	token, err := s.authorizationToken(ctx, repo, userID)
	if err != nil {
		return nil, err
	}

	return s.nlp.Evaluate(ctx, server(repo), nlp_client.EvaluateRequest{
		RepositoryVersion:       version.ID,
		ByUser:                  userID,
		RepositoryAuthorization: token,
		Language:                vl.Language,
	})
}

func (s *trainingService) Analyze(ctx context.Context, userID int64, repoID uuid.UUID, input models.AnalyzeInput) (json.RawMessage, error) {
	repo, _, err := s.readable(ctx, repoID, userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, invalid("text", "This field may not be blank.")
	}
	version, vl, err := s.target(ctx, repo, input.Language)
	if err != nil {
		return nil, err
	}
	token, err := s.authorizationToken(ctx, repo, userID)
	if err != nil {
		return nil, err
	}

	return s.nlp.Parse(ctx, server(repo), nlp_client.ParseRequest{
		RepositoryVersion:       version.ID,
		RepositoryAuthorization: token,
		Language:                vl.Language,
		Text:                    input.Text,
	})
}

func (s *trainingService) RegisterQueueTask(ctx context.Context, input models.CreateQueueTaskInput) (*models.QueueTask, error) {
	if input.FromQueue != models.QueueCelery && input.FromQueue != models.QueueAIPlatform {
		return nil, invalid("from_queue", fmt.Sprintf("%d is not a valid choice.", input.FromQueue))
	}
	if input.TypeProcessing != models.ProcessingTypeTraining && input.TypeProcessing != models.ProcessingTypeEvaluating {
		return nil, invalid("type_processing", fmt.Sprintf("%d is not a valid choice.", input.TypeProcessing))
	}

	task := &models.QueueTask{
		VersionLanguageID: input.RepositoryVersionLanguage,
		IDQueue:           input.IDQueue,
		FromQueue:         input.FromQueue,
		Status:            models.TaskStatusPending,
		TypeProcessing:    input.TypeProcessing,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		if errors.Is(err, repository.ErrInvalidReference) {
			return nil, invalid("repository_version", "Invalid repository version language.")
		}
		return nil, fmt.Errorf("create queue task: %w", err)
	}
	return task, nil
}

func (s *trainingService) LogPrediction(ctx context.Context, input models.CreateNLPLogInput) (*models.NLPLog, error) {
	if len(input.Log) > 0 && !json.Valid(input.Log) {
		return nil, invalid("nlp_log", "Value must be valid JSON.")
	}
	log := &models.NLPLog{
		VersionLanguageID: input.RepositoryVersionLanguage,
		UserID:            input.User,
		Text:              input.Text,
		UserAgent:         input.UserAgent,
		FromBackend:       input.FromBackend,
		Log:               input.Log,
	}
	if err := s.logs.Create(ctx, log); err != nil {
		if errors.Is(err, repository.ErrInvalidReference) {
			return nil, invalid("repository_version_language", "Invalid repository version language.")
		}
		return nil, fmt.Errorf("create nlp log: %w", err)
	}
	return log, nil
}

// repositoryOf returns the repository uuid owning a version-language.
func (s *trainingService) repositoryOf(ctx context.Context, versionLanguageID int64) (*models.VersionLanguage, uuid.UUID, error) {
	vl, err := s.versions.GetLanguageByID(ctx, versionLanguageID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if vl == nil {
		return nil, uuid.Nil, ErrNotFound
	}
	version, err := s.versions.GetByID(ctx, vl.VersionID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if version == nil {
		return nil, uuid.Nil, ErrNotFound
	}
	return vl, version.RepositoryUUID, nil
}

// TrainingResult stores the artifact of a finished training, or records
// the failure.
func (s *trainingService) TrainingResult(ctx context.Context, versionLanguageID int64, input models.TrainingResultInput) error {
	vl, repoUUID, err := s.repositoryOf(ctx, versionLanguageID)
	if err != nil {
		return err
	}

	if input.Failed {
		if err := s.versions.FailTraining(ctx, vl.ID, input.TrainingLog); err != nil {
			return fmt.Errorf("record failed training: %w", err)
		}
		s.logger.Warn("Training failed", zap.Int64("version_language_id", vl.ID))
		return nil
	}

	if input.BotData == "" {
		return invalid("bot_data", "This field is required.")
	}
	ref, err := s.artifacts.Put(ctx, repoUUID, vl.ID, input.BotData)
	if err != nil {
		return fmt.Errorf("store bot data: %w", err)
	}
	if err := s.versions.FinishTraining(ctx, vl.ID, ref, input.RasaVersion, input.TrainingLog); err != nil {
		return fmt.Errorf("record finished training: %w", err)
	}
	s.logger.Info("Training finished", zap.Int64("version_language_id", vl.ID), zap.String("rasa_version", input.RasaVersion))
	return nil
}

func (s *trainingService) BotData(ctx context.Context, versionLanguageID int64) (string, error) {
	vl, repoUUID, err := s.repositoryOf(ctx, versionLanguageID)
	if err != nil {
		return "", err
	}
	if vl.BotData == "" {
		return "", notFound("This version language was never trained.")
	}
	return s.artifacts.Get(ctx, repoUUID, vl.BotData)
}
