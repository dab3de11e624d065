package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nluhub/internal/notifier"
	"nluhub/internal/repository"
	"nluhub/internal/server"
)

func serveCommand(configPath *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return serve(cmd.Context(), a, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func serve(parent context.Context, a *app, migrate bool) error {
	logger := a.logger
	if migrate {
		if err := repository.MigrateDB(a.db, a.cfg.Database.Migrations, logger); err != nil {
			return err
		}
	}

	artifacts, err := a.artifactStore()
	if err != nil {
		return err
	}

	// Notifications
	var dispatcher notifier.Notifier = notifier.Nop{}
	var bot *notifier.Bot
	if a.cfg.Notifications.Enabled {
		email, err := notifier.NewEmail(a.cfg.Notifications.EmailURLs, 0)
		if err != nil {
			logger.Warn("Failed to initialize e-mail notifications, continuing without them", zap.Error(err))
			email = nil
		}
		bot, err = notifier.NewBot(a.cfg.Notifications.TelegramBotToken, repository.NewUserRepository(a.db, logger), logger)
		if err != nil {
			logger.Warn("Failed to initialize Telegram bot, continuing without it", zap.Error(err))
			bot = nil
		}
		dispatcher = notifier.NewDispatcher(email, bot, a.cfg.Notifications.WebURL, logger)
	}

	srv := server.NewServer(a.db, a.cfg, server.Dependencies{
		NLP:       a.nlpClient(),
		Artifacts: artifacts,
		Notifier:  dispatcher,
		Metrics:   a.metrics,
	}, logger)
	bot.SetReviewer(srv.Reviewer())

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	if bot != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Start(ctx); err != nil {
				logger.Error("Telegram bot failed", zap.Error(err))
			}
		}()
	}
	if a.cfg.Worker.Embedded {
		logger.Info("Running the background worker in-process")
		worker, scheduler := a.cloneWorker(), a.scheduler()
		wg.Add(2)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
	}

	err = srv.Run(ctx, a.cfg.Server.Port)
	cancel()
	wg.Wait()

	logger.Info("Application stopped.")
	return err
}
