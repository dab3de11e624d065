package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"nluhub/internal/models"
	"nluhub/internal/versioning"
)

// startPostgres runs a throwaway PostgreSQL with the schema applied.
func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "nluhub",
				"POSTGRES_PASSWORD": "nluhub",
				"POSTGRES_DB":       "nluhub",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://nluhub:nluhub@%s:%s/nluhub?sslmode=disable", host, port.Port())
	db, err := NewPostgresDB(dsn, 5, 2, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, MigrateDB(db, "file://../../migrations", zap.NewNop()))
	return db
}

func TestPostgresVersionClone(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	logger := zap.NewNop()

	users := NewUserRepository(db, logger)
	bots := NewBotRepository(db, logger)
	versions := NewVersionRepository(db, logger)
	examples := NewExampleRepository(db, logger)
	cloneJobs := NewCloneJobRepository(db, logger)
	logs := NewNLPLogRepository(db, logger)

	owner := &models.User{Nickname: "owner", Name: "Owner", Email: "owner@example.com", PasswordHash: "x"}
	require.NoError(t, users.Create(ctx, owner))

	repo := &models.Repository{
		OwnerID:   owner.ID,
		Name:      "Weather",
		Slug:      "weather",
		Language:  "en",
		Algorithm: models.AlgorithmTransformerNetwork,
	}
	master, err := bots.Create(ctx, repo, []int64{1})
	require.NoError(t, err)
	assert.True(t, master.IsDefault)

	_, err = bots.Create(ctx, &models.Repository{
		OwnerID: owner.ID, Name: "Again", Slug: "weather", Language: "en", Algorithm: models.AlgorithmTransformerNetwork,
	}, nil)
	assert.ErrorIs(t, err, ErrConflict)

	withCity, err := examples.Create(ctx, master.ID, "en", "what is the weather in paris", "weather",
		[]models.EntitySpanInput{{Start: 23, End: 28, Entity: "city", Label: "place"}})
	require.NoError(t, err)
	require.Len(t, withCity.Entities, 1)
	_, err = examples.Create(ctx, master.ID, "en", "hello", "greet", nil)
	require.NoError(t, err)

	clone := &models.Version{RepositoryUUID: repo.UUID, Name: "v2", CreatedBy: &owner.ID}
	job, err := versions.CreateClone(ctx, clone, master.ID)
	require.NoError(t, err)
	assert.True(t, clone.IsDeleted)

	claimed, err := cloneJobs.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)

	again, err := cloneJobs.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)

	cloner := versioning.NewCloner(NewCloneStore(db, logger), true, logger)
	require.NoError(t, cloner.Clone(ctx, claimed.SourceVersionID, claimed.DestinationVersionID))
	require.NoError(t, cloneJobs.MarkDone(ctx, claimed.ID))

	ready, err := versions.GetByID(ctx, clone.ID)
	require.NoError(t, err)
	assert.False(t, ready.IsDeleted)

	copied, err := examples.List(ctx, ExampleFilter{VersionID: clone.ID}, Page{})
	require.NoError(t, err)
	require.Len(t, copied, 2)

	var city *models.Example
	for _, e := range copied {
		assert.NotEqual(t, withCity.ID, e.ID)
		if e.Text == withCity.Text {
			city = e
		}
	}
	require.NotNil(t, city)
	require.Len(t, city.Entities, 1)
	assert.Equal(t, "city", city.Entities[0].Entity)
	require.NotNil(t, city.Entities[0].Label)
	assert.Equal(t, "place", *city.Entities[0].Label)
	assert.True(t, withCity.Entities[0].CreatedAt.Equal(city.Entities[0].CreatedAt))

	// the source is untouched
	original, err := examples.List(ctx, ExampleFilter{VersionID: master.ID}, Page{})
	require.NoError(t, err)
	assert.Len(t, original, 2)

	vl, err := versions.GetLanguage(ctx, master.ID, "en")
	require.NoError(t, err)
	require.NotNil(t, vl)

	old := &models.NLPLog{VersionLanguageID: vl.ID, Text: "hello"}
	recent := &models.NLPLog{VersionLanguageID: vl.ID, Text: "hello again"}
	require.NoError(t, logs.Create(ctx, old))
	require.NoError(t, logs.Create(ctx, recent))
	_, err = db.ExecContext(ctx, `UPDATE repository_nlp_logs SET created_at = NOW() - INTERVAL '100 days' WHERE id = $1`, old.ID)
	require.NoError(t, err)

	lastID, deleted, err := logs.DeleteBatchBefore(ctx, time.Now().AddDate(0, 0, -90), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, old.ID, lastID)
}
