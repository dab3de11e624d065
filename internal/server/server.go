package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/artifact"
	"nluhub/internal/config"
	"nluhub/internal/handler"
	"nluhub/internal/metrics"
	"nluhub/internal/middleware"
	"nluhub/internal/nlp_client"
	"nluhub/internal/notifier"
	"nluhub/internal/repository"
	"nluhub/internal/service"
)

// Dependencies are the collaborators built outside the server.
type Dependencies struct {
	NLP       *nlp_client.Client
	Artifacts artifact.Store
	Notifier  notifier.Notifier
	Metrics   *metrics.Metrics
}

type Server struct {
	router *gin.Engine
	db     *sqlx.DB
	cfg    *config.Config
	deps   Dependencies
	logger *zap.Logger

	authorizations service.AuthorizationService
}

func NewServer(db *sqlx.DB, cfg *config.Config, deps Dependencies, logger *zap.Logger) *Server {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.Recovery(logger),
		middleware.RequestLogger(logger),
		middleware.Metrics(deps.Metrics),
	)

	s := &Server{
		router: router,
		db:     db,
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}

	s.setupRoutes()

	return s
}

// Reviewer lets the Telegram bot approve requests on behalf of admins.
func (s *Server) Reviewer() notifier.Reviewer {
	return s.authorizations
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Initialize repositories
	bots := repository.NewBotRepository(s.db, s.logger)
	auths := repository.NewAuthorizationRepository(s.db, s.logger)
	requests := repository.NewAuthorizationRequestRepository(s.db, s.logger)
	categories := repository.NewCategoryRepository(s.db, s.logger)
	users := repository.NewUserRepository(s.db, s.logger)
	versions := repository.NewVersionRepository(s.db, s.logger)
	examples := repository.NewExampleRepository(s.db, s.logger)
	entities := repository.NewEntityRepository(s.db, s.logger)
	translations := repository.NewTranslationRepository(s.db, s.logger)
	evaluates := repository.NewEvaluateRepository(s.db, s.logger)
	votes := repository.NewVoteRepository(s.db, s.logger)
	tasks := repository.NewQueueTaskRepository(s.db, s.logger)
	logs := repository.NewNLPLogRepository(s.db, s.logger)
	cloneJobs := repository.NewCloneJobRepository(s.db, s.logger)

	// Initialize services
	authService := service.NewAuthService(users, s.cfg.Auth.JWTSecret, s.cfg.Auth.TokenTTL, s.logger)
	botService := service.NewBotService(bots, auths, categories, versions, users,
		s.cfg.Training.MinIntents, s.cfg.Cache.CategoriesTTL, s.logger)
	exampleService := service.NewExampleService(bots, auths, examples, versions, entities, s.logger)
	translationService := service.NewTranslationService(bots, auths, examples, translations, versions, s.logger)
	evaluateService := service.NewEvaluateService(bots, auths, evaluates, versions, s.logger)
	versionService := service.NewVersionService(bots, auths, versions, cloneJobs, s.logger)
	voteService := service.NewVoteService(bots, auths, votes, s.logger)
	s.authorizations = service.NewAuthorizationService(bots, auths, requests, users, s.deps.Notifier, s.logger)
	trainingService := service.NewTrainingService(bots, auths, versions, examples, evaluates, tasks, logs,
		s.deps.NLP, s.deps.Artifacts, service.TrainingRequirements{
			MinIntents:     s.cfg.Training.MinIntents,
			MinEvaluations: s.cfg.Training.MinEvaluations,
		}, s.logger)

	// Initialize handlers
	accountHandler := handler.NewAccountHandler(authService, s.logger)
	repositoryHandler := handler.NewRepositoryHandler(botService, s.logger)
	exampleHandler := handler.NewExampleHandler(exampleService, s.logger)
	translationHandler := handler.NewTranslationHandler(translationService, s.logger)
	evaluateHandler := handler.NewEvaluateHandler(evaluateService, s.logger)
	versionHandler := handler.NewVersionHandler(versionService, s.logger)
	voteHandler := handler.NewVoteHandler(voteService, s.logger)
	authorizationHandler := handler.NewAuthorizationHandler(s.authorizations, s.logger)
	trainingHandler := handler.NewTrainingHandler(trainingService, s.logger)

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	s.router.GET("/health", s.health)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	var limiter *middleware.RateLimiter
	if s.cfg.Server.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateBurst)
	}
	optional := middleware.OptionalAuth(authService, s.logger)
	required := middleware.RequireAuth(authService, s.logger)

	v2 := s.router.Group("/v2")
	v2.Use(middleware.RateLimit(limiter))

	// Account routes
	account := v2.Group("/account")
	account.POST("/register", accountHandler.Register)
	account.POST("/login", accountHandler.Login)
	account.GET("/user-profile", required, accountHandler.Profile)
	account.PATCH("/user-profile", required, accountHandler.UpdateProfile)

	// Repository routes. Anonymous callers may read public repositories;
	// the services decide everything else.
	repo := v2.Group("/repository")
	repo.Use(optional)
	{
		repo.GET("/categories", repositoryHandler.Categories)
		repo.POST("/new", required, repositoryHandler.Create)
		repo.GET("/repository/:uuid", repositoryHandler.Get)
		repo.PATCH("/repository/:uuid", repositoryHandler.Update)
		repo.DELETE("/repository/:uuid", repositoryHandler.Delete)
		repo.GET("/repository/:uuid/languagesstatus", repositoryHandler.LanguagesStatus)
		repo.GET("/repository/:uuid/authorization", repositoryHandler.Authorization)
		repo.GET("/repositories", repositoryHandler.List)
		repo.GET("/search-repositories", repositoryHandler.Search)
		repo.GET("/repositories-contributions", repositoryHandler.Contributions)

		repo.GET("/repository-votes", voteHandler.List)
		repo.POST("/repository-votes", required, voteHandler.Vote)
		repo.DELETE("/repository-votes", required, voteHandler.Unvote)

		repo.POST("/example", exampleHandler.Create)
		repo.GET("/example/:id", exampleHandler.Get)
		repo.PATCH("/example/:id", exampleHandler.Update)
		repo.DELETE("/example/:id", exampleHandler.Delete)
		repo.GET("/examples", exampleHandler.List)
		repo.POST("/upload-examples", required, exampleHandler.Upload)
		repo.GET("/entities", exampleHandler.Entities)

		repo.POST("/translate-example", translationHandler.Create)
		repo.GET("/translation/:id", translationHandler.Get)
		repo.PATCH("/translation/:id", translationHandler.Update)
		repo.DELETE("/translation/:id", translationHandler.Delete)
		repo.GET("/translations", translationHandler.List)

		repo.POST("/evaluate", evaluateHandler.Create)
		repo.GET("/evaluate", evaluateHandler.List)
		repo.GET("/evaluate/:id", evaluateHandler.Get)
		repo.PATCH("/evaluate/:id", evaluateHandler.Update)
		repo.DELETE("/evaluate/:id", evaluateHandler.Delete)

		repo.GET("/version", versionHandler.List)
		repo.POST("/version", versionHandler.Create)
		repo.GET("/version/:id", versionHandler.Get)
		repo.PATCH("/version/:id", versionHandler.Update)
		repo.DELETE("/version/:id", versionHandler.Delete)
		repo.GET("/version-languages", versionHandler.Languages)

		repo.POST("/request-authorization", required, authorizationHandler.Request)
		repo.PUT("/review-authorization-request/:id", required, authorizationHandler.Approve)
		repo.DELETE("/review-authorization-request/:id", required, authorizationHandler.Reject)
		repo.GET("/authorizations", authorizationHandler.List)
		repo.PATCH("/authorization-role/:uuid/:nickname", required, authorizationHandler.UpdateRole)
		repo.GET("/authorization-requests", authorizationHandler.ListPending)

		repo.POST("/repository-info/:uuid/train", trainingHandler.Train)
		repo.POST("/repository-info/:uuid/evaluate", trainingHandler.Evaluate)
		repo.POST("/repository-info/:uuid/analyze", trainingHandler.Analyze)
	}

	// NLP service callbacks
	internal := v2.Group("/internal")
	internal.Use(middleware.ServiceToken(s.cfg.NLP.ServiceToken))
	{
		internal.POST("/queue-tasks", trainingHandler.RegisterQueueTask)
		internal.POST("/nlp-logs", trainingHandler.LogPrediction)
		internal.POST("/version-languages/:id/training", trainingHandler.TrainingResult)
		internal.GET("/version-languages/:id/bot-data", trainingHandler.BotData)
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("Server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Server stopped.")
	return nil
}
