package cmd

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"nluhub/internal/artifact"
	"nluhub/internal/config"
	"nluhub/internal/crypto"
	"nluhub/internal/jobs"
	"nluhub/internal/metrics"
	"nluhub/internal/nlp_client"
	"nluhub/internal/repository"
	"nluhub/internal/versioning"
)

// app holds what every command needs once the configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *sqlx.DB
	metrics *metrics.Metrics
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging.Development {
		return zap.NewDevelopment()
	}
	zapCfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid logging.level %q: %w", cfg.Logging.Level, err)
	}
	zapCfg.Level = level
	return zapCfg.Build()
}

// openApp loads the configuration, builds the logger and connects to the
// database. close must be called when the command finishes.
func openApp(configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			logger.Warn("Failed to initialize Sentry, continuing without it", zap.Error(err))
		} else {
			logger.Info("Sentry error reporting enabled")
		}
	}

	db, err := repository.NewPostgresDB(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	m, err := metrics.New()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, db: db, metrics: m}, nil
}

func (a *app) close() {
	sentry.Flush(2 * time.Second)
	if err := a.db.Close(); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync() // Flushes buffer, if any
}

func (a *app) nlpClient() *nlp_client.Client {
	return nlp_client.NewClient(nlp_client.Config{
		BaseURL:          a.cfg.NLP.URL,
		ServiceToken:     a.cfg.NLP.ServiceToken,
		Timeout:          a.cfg.NLP.Timeout,
		BreakerFailures:  a.cfg.NLP.BreakerFailures,
		BreakerOpenDelay: a.cfg.NLP.BreakerOpenDelay,
		OnRequest:        a.metrics.ObserveNLP,
	}, a.logger)
}

// artifactStore picks where trained bot data lives.
func (a *app) artifactStore() (artifact.Store, error) {
	var keys *crypto.KeyManager
	if a.cfg.Artifacts.MasterKey != "" {
		km, err := crypto.NewKeyManager(a.cfg.Artifacts.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("artifacts.master_key: %w", err)
		}
		keys = km
		a.logger.Info("Bot data will be sealed at rest")
	}
	inline := artifact.NewInline(keys)

	if a.cfg.Artifacts.Backend != "sftp" {
		return inline, nil
	}
	sftpCfg := a.cfg.Artifacts.SFTP
	a.logger.Info("Bot data offloaded over SFTP", zap.String("host", sftpCfg.Host), zap.String("path", sftpCfg.Path))
	return artifact.NewSFTP(artifact.SFTPConfig{
		Host:     sftpCfg.Host,
		Port:     sftpCfg.Port,
		User:     sftpCfg.User,
		Password: sftpCfg.Password,
		Path:     sftpCfg.Path,
		Timeout:  sftpCfg.Timeout,
	}, inline, a.logger), nil
}

func (a *app) cloneWorker() *jobs.CloneWorker {
	cloner := versioning.NewCloner(repository.NewCloneStore(a.db, a.logger), a.cfg.Versioning.CloneAtomic, a.logger)
	return jobs.NewCloneWorker(
		repository.NewCloneJobRepository(a.db, a.logger),
		cloner,
		a.metrics,
		a.cfg.Worker.PollInterval,
		a.logger,
	)
}

// maintenanceJobs returns the periodic jobs keyed by name with their interval.
func (a *app) maintenanceJobs() ([]jobs.Job, map[string]time.Duration) {
	trainings := jobs.NewTrainingChecker(
		repository.NewQueueTaskRepository(a.db, a.logger),
		a.nlpClient(),
		a.cfg.Jobs.TrainingTimeout,
		a.logger)
	pruner := jobs.NewLogPruner(
		repository.NewNLPLogRepository(a.db, a.logger),
		a.cfg.Jobs.LogRetentionDays,
		a.cfg.Jobs.PruneBatchSize,
		a.metrics,
		a.logger)
	counter := jobs.NewAuthorizationCounter(
		repository.NewBotRepository(a.db, a.logger),
		repository.NewAuthorizationRepository(a.db, a.logger),
		a.logger)

	intervals := map[string]time.Duration{
		trainings.Name(): a.cfg.Jobs.TrainingsInterval,
		pruner.Name():    a.cfg.Jobs.PruneInterval,
		counter.Name():   a.cfg.Jobs.AuthorizationsInterval,
	}
	return []jobs.Job{trainings, pruner, counter}, intervals
}

func (a *app) scheduler() *jobs.Scheduler {
	s := jobs.NewScheduler(a.metrics, a.logger)
	all, intervals := a.maintenanceJobs()
	for _, job := range all {
		s.Every(intervals[job.Name()], job)
	}
	return s
}
