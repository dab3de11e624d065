package cmd

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
)

func workerCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the version clone worker and the periodic jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			worker, scheduler := a.cloneWorker(), a.scheduler()

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				worker.Run(ctx)
			}()
			go func() {
				defer wg.Done()
				scheduler.Run(ctx)
			}()
			wg.Wait()

			a.logger.Info("Worker stopped.")
			return nil
		},
	}
}
