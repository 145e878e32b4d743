package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DevelopmentSubstitutesInsecureDefaults(t *testing.T) {
	t.Setenv("STARTER_ENVIRONMENT", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.IsProduction())
	assert.NotEmpty(t, cfg.Security.AuthSecret)
	assert.NotEmpty(t, cfg.Postgres.DSN)
	assert.Len(t, cfg.Warnings(), 2)
	assert.Equal(t, 720*time.Hour, cfg.Security.SessionMaxAge)
	assert.Equal(t, 24*time.Hour, cfg.Security.SessionUpdateAge)
}

func TestLoad_TestEnvironmentAlsoWarns(t *testing.T) {
	t.Setenv("STARTER_ENVIRONMENT", "test")
	t.Setenv("STARTER_POSTGRES_DSN", "postgres://u:p@db:5432/app")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/app", cfg.Postgres.DSN)
	require.Len(t, cfg.Warnings(), 1)
	assert.Contains(t, cfg.Warnings()[0], "security.authsecret")
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("STARTER_ENVIRONMENT", "production")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrMissingRequired)
	assert.Contains(t, err.Error(), "security.authsecret")
	assert.Contains(t, err.Error(), "postgres.dsn")
}

func TestLoad_ProductionWithSecrets(t *testing.T) {
	t.Setenv("STARTER_ENVIRONMENT", "production")
	t.Setenv("STARTER_SECURITY_AUTHSECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("STARTER_POSTGRES_DSN", "postgres://u:p@db:5432/app")
	t.Setenv("STARTER_OAUTH_GOOGLE_CLIENTID", "google-id")
	t.Setenv("STARTER_OAUTH_GOOGLE_CLIENTSECRET", "google-secret")
	t.Setenv("STARTER_ALLOWCORSORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Empty(t, cfg.Warnings())
	assert.True(t, cfg.OAuth.Google.Enabled())
	assert.False(t, cfg.OAuth.GitHub.Enabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowCORSOrigins)
}

func TestLoad_RejectsShortSecret(t *testing.T) {
	t.Setenv("STARTER_ENVIRONMENT", "development")
	t.Setenv("STARTER_SECURITY_AUTHSECRET", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AuthSecret")
}

func TestLoad_RejectsUnknownEnvironment(t *testing.T) {
	t.Setenv("STARTER_ENVIRONMENT", "staging")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Environment")
}

func TestLoad_RejectsUpdateAgeAboveMaxAge(t *testing.T) {
	t.Setenv("STARTER_ENVIRONMENT", "development")
	t.Setenv("STARTER_SECURITY_SESSIONMAXAGE", "1h")
	t.Setenv("STARTER_SECURITY_SESSIONUPDATEAGE", "2h")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SessionUpdateAge")
}

func TestLoad_ClientLimitBelowSignInLimit(t *testing.T) {
	t.Setenv("STARTER_ENVIRONMENT", "development")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.RateLimit.ClientLimit)

	t.Setenv("STARTER_RATELIMIT_CLIENTLIMIT", "2")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ClientLimit")
}
