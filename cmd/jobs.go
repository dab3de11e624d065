package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"nluhub/internal/jobs"
)

func jobsCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs <check-trainings|prune-logs|count-authorizations>",
		Short: "Run one maintenance job once and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			all, _ := a.maintenanceJobs()
			job, err := findJob(all, args[0])
			if err != nil {
				return err
			}
			return jobs.NewScheduler(a.metrics, a.logger).RunOnce(cmd.Context(), job)
		},
	}
}

func findJob(all []jobs.Job, name string) (jobs.Job, error) {
	names := make([]string, 0, len(all))
	for _, job := range all {
		if job.Name() == name {
			return job, nil
		}
		names = append(names, job.Name())
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unknown job %q, expected one of: %s", name, strings.Join(names, ", "))
}
