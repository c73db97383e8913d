package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 50, cfg.FollowUp.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.FollowUp.Pacing)
	assert.Equal(t, 5*time.Minute, cfg.FollowUp.RunTimeout)
	assert.Equal(t, "*/5 * * * *", cfg.FollowUp.Schedule)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := `
server:
  addr: ":9000"
database:
  driver: sqlite
  dsn: "file:test.db"
followup:
  batch_size: 10
  pacing: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	t.Setenv("FOLLOWUP_BATCH_SIZE", "25")
	t.Setenv("CRON_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file:test.db", cfg.Database.DSN)
	assert.Equal(t, 25, cfg.FollowUp.BatchSize, "env overrides yaml")
	assert.Equal(t, 500*time.Millisecond, cfg.FollowUp.Pacing)
	assert.Equal(t, "s3cret", cfg.FollowUp.CronSecret)
}

func TestLoad_DSNFromParts(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_NAME", "leads")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://app:pw@db:5433/leads?sslmode=disable", cfg.Database.DSN)
}

func TestLoad_InvalidValues(t *testing.T) {
	chdir(t, t.TempDir())
	missing := filepath.Join(t.TempDir(), "none.yaml")

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("FOLLOWUP_PACING", "soon")
		_, err := Load(missing)
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("DATABASE_DRIVER", "mysql")
		_, err := Load(missing)
		assert.ErrorContains(t, err, "unsupported database driver")
	})

	t.Run("zero batch size", func(t *testing.T) {
		t.Setenv("FOLLOWUP_BATCH_SIZE", "0")
		_, err := Load(missing)
		assert.ErrorContains(t, err, "batch size")
	})
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
