package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  admin_token: "s3cret"
  allowed_origins: ["https://purosuco.dev"]

site:
  base_url: "https://purosuco.dev"
  name: "Puro Suco"

storage:
  type: "postgres"
  database_url: "postgres://localhost/newsletter"

content:
  type: "s3"
  s3_bucket: "issues"
  s3_prefix: "newsletter/"

email:
  provider: "ses"
  from: "news@purosuco.dev"
  batch_size: 25

dispatch:
  delay_ms: 250
  rate_per_second: 14
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "s3cret", cfg.Server.AdminToken)
	assert.Equal(t, []string{"https://purosuco.dev"}, cfg.Server.AllowedOrigins)

	assert.Equal(t, "https://purosuco.dev", cfg.Site.BaseURL)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres://localhost/newsletter", cfg.Storage.DatabaseURL)

	assert.Equal(t, "s3", cfg.Content.Type)
	assert.Equal(t, "issues", cfg.Content.S3Bucket)
	assert.Equal(t, "newsletter/", cfg.Content.S3Prefix)

	assert.Equal(t, "ses", cfg.Email.Provider)
	assert.Equal(t, "news@purosuco.dev", cfg.Email.From)
	assert.Equal(t, 25, cfg.Email.BatchSize)

	assert.Equal(t, 250*time.Millisecond, cfg.Dispatch.Delay())
	assert.Equal(t, 14.0, cfg.Dispatch.RatePerSecond)
}

func TestLoadDefaults(t *testing.T) {
	configPath := writeConfig(t, `
site:
  base_url: "https://example.com"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "Puro Suco", cfg.Site.Name)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "file", cfg.Content.Type)
	assert.Equal(t, "log", cfg.Email.Provider)
	assert.Equal(t, "Puro Suco", cfg.Email.FromName)
	assert.Equal(t, 50, cfg.Email.BatchSize)
	assert.Equal(t, time.Second, cfg.Email.BatchPause())
	assert.Equal(t, 100*time.Millisecond, cfg.Dispatch.Delay())
	assert.Equal(t, 15*time.Minute, cfg.Dispatch.LockTTL())
	assert.Equal(t, 30*time.Second, cfg.SES.Timeout())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.ShouldRedact())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadRedactPIIDisabled(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: debug
  redact_pii: false
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.ShouldRedact())
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
site:
  base_url: "https://file-url.com"
ses:
  region: "us-west-2"
`)

	t.Setenv("PUBLIC_SITE_URL", "https://env-url.com")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("AWS_SES_REGION", "eu-west-1")
	t.Setenv("ADMIN_TOKEN", "from-env")
	t.Setenv("PORT", "3000")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://env-url.com", cfg.Site.BaseURL)
	assert.Equal(t, "postgres://env/db", cfg.Storage.DatabaseURL)
	assert.Equal(t, "postgres", cfg.Storage.Type, "DATABASE_URL should switch memory storage to postgres")
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "eu-west-1", cfg.SES.Region)
	assert.Equal(t, "from-env", cfg.Server.AdminToken)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestGetHostHonorsOverride(t *testing.T) {
	t.Setenv("ECS_CONTAINER_METADATA_URI", "")
	t.Setenv("AWS_EXECUTION_ENV", "")
	t.Setenv("SERVER_HOST", "127.0.0.2")

	cfg := ServerConfig{Host: "localhost"}
	assert.Equal(t, "127.0.0.2", cfg.GetHost())
}
