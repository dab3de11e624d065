package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nluhub/internal/config"
	"nluhub/internal/jobs"
)

type namedJob string

func (j namedJob) Name() string                  { return string(j) }
func (j namedJob) Run(ctx context.Context) error { return nil }

func TestFindJob(t *testing.T) {
	all := []jobs.Job{namedJob("prune-logs"), namedJob("check-trainings")}

	job, err := findJob(all, "check-trainings")
	require.NoError(t, err)
	assert.Equal(t, "check-trainings", job.Name())

	_, err = findJob(all, "reindex")
	assert.EqualError(t, err, `unknown job "reindex", expected one of: check-trainings, prune-logs`)
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := config.LoadConfig("../configs/config.yml")
	require.NoError(t, err)
	assert.Equal(t, "inline", cfg.Artifacts.Backend)
	assert.True(t, cfg.Worker.Embedded)

	logger, err := newLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestRootCommandTree(t *testing.T) {
	root := RootCommand()
	for _, name := range []string{"serve", "worker", "migrate", "jobs"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}
