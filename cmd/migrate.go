package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nluhub/internal/repository"
)

func migrateCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return repository.MigrateDB(a.db, a.cfg.Database.Migrations, a.logger)
		},
	}

	down := &cobra.Command{
		Use:   "down [steps]",
		Short: "Revert migrations, one step by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return repository.RollbackDB(a.db, a.cfg.Database.Migrations, steps, a.logger)
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			v, dirty, err := repository.MigrationVersion(a.db, a.cfg.Database.Migrations)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}
