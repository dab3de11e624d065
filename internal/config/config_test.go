package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/nluhub
auth:
  jwt_secret: secret
nlp:
  url: http://nlp:2657/
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/nluhub", cfg.Database.URL)
	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Training.MinIntents)
	assert.Equal(t, 1, cfg.Training.MinEvaluations)
	assert.True(t, cfg.Versioning.CloneAtomic)
	assert.Equal(t, 2*time.Hour, cfg.Jobs.TrainingTimeout)
	assert.Equal(t, 5000, cfg.Jobs.PruneBatchSize)
	assert.Equal(t, "inline", cfg.Artifacts.Backend)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://file/db
auth:
  jwt_secret: from-file
nlp:
  url: http://nlp/
`)
	t.Setenv("NLUHUB_DATABASE_URL", "postgres://env/db")
	t.Setenv("NLUHUB_JWT_SECRET", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoadConfigDurations(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/nluhub
auth:
  jwt_secret: secret
  token_ttl: 1h
nlp:
  url: http://nlp/
  timeout: 5s
versioning:
  clone_atomic: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.NLP.Timeout)
	assert.False(t, cfg.Versioning.CloneAtomic)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing database", func(c *Config) { c.Database.URL = "" }, "database.url"},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret"},
		{"missing nlp", func(c *Config) { c.NLP.URL = "" }, "nlp.url"},
		{"sftp without host", func(c *Config) { c.Artifacts.Backend = "sftp" }, "artifacts.sftp"},
		{"unknown backend", func(c *Config) { c.Artifacts.Backend = "s3" }, "unknown artifacts.backend"},
		{"ok", func(c *Config) {}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.URL = "postgres://localhost/db"
			cfg.Auth.JWTSecret = "s"
			cfg.NLP.URL = "http://nlp/"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open config file")
}
