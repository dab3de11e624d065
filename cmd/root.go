// Package cmd wires the nluhub processes: the API server, the background
// worker and the maintenance commands.
package cmd

import (
	"github.com/spf13/cobra"
)

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "nluhub",
		Short:         "NLU chatbot repository API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yml", "path to the YAML configuration file")

	rootCmd.AddCommand(
		serveCommand(&configPath),
		workerCommand(&configPath),
		migrateCommand(&configPath),
		jobsCommand(&configPath),
	)

	return rootCmd
}
