package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, c.Redis.TTL())
	assert.Equal(t, 20*time.Millisecond, c.Query.SlowThreshold)
	assert.Equal(t, "ohlcv_", c.Postgres.TablePrefix)
	assert.Equal(t, time.Minute, c.Repair.Threshold)
	assert.Equal(t, "missing", c.Repair.Mode)
	assert.Equal(t, 180*24*time.Hour, c.Ingest.RecentWindow)
	assert.Equal(t, 3, c.Postgres.DDLRetries)
	assert.Equal(t, []string{"*"}, c.Server.CORSOrigins)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
postgres:
  host: db.internal
  database: bars
redis:
  ttl_seconds: 45
repair:
  mode: boundary
server:
  cors_origins: ["https://dash.example.com"]
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, "db.internal", c.Postgres.Host)
	assert.Equal(t, 5432, c.Postgres.Port)
	assert.Equal(t, 45*time.Second, c.Redis.TTL())
	assert.Equal(t, "boundary", c.Repair.Mode)
	assert.Equal(t, []string{"https://dash.example.com"}, c.Server.CORSOrigins)
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REALTIME_CACHE_TTL", "60")
	t.Setenv("DB_NAME", "marketdata")

	c, err := LoadWithEnv("")
	require.NoError(t, err)

	assert.Equal(t, "cache.internal", c.Redis.Host)
	assert.Equal(t, 3, c.Redis.DB)
	assert.Equal(t, time.Minute, c.Redis.TTL())
	assert.Equal(t, "marketdata", c.Postgres.Database)
	assert.Equal(t, "localhost", c.Postgres.Host)
}

func TestValidateRejectsBadMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("repair:\n  mode: sideways\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
