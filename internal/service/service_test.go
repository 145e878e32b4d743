package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"starterkit/api/internal/auth"
	"starterkit/api/internal/config"
	"starterkit/api/internal/database/dbtest"
	"starterkit/api/internal/oauth"
	"starterkit/api/internal/repository"
	"starterkit/api/internal/security"
	"starterkit/api/internal/singleton"
)

type fixture struct {
	users    *repository.UserRepository
	accounts *repository.AccountRepository
	authCfg  *auth.Config
	redis    *miniredis.Miniredis
	cache    *singleton.Lazy[*redis.Client]
	auth     *AuthService
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment: config.EnvTest,
		HTTP:        config.HTTPConfig{PublicURL: "http://localhost:8080"},
		Security: config.SecurityConfig{
			AuthSecret:       "test-secret-0123456789abcdef0123456789",
			SessionMaxAge:    30 * 24 * time.Hour,
			SessionUpdateAge: 24 * time.Hour,
		},
		OAuth: config.OAuthConfig{
			GitHub: config.OAuthClientConfig{ClientID: "gh-id", ClientSecret: "gh-secret"},
		},
	}
}

func fastHasher() *security.PasswordHasher {
	return security.NewPasswordHasher(security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
}

func newFixture(t *testing.T, providers oauth.Providers) *fixture {
	t.Helper()

	holder := dbtest.Holder(t, dbtest.Open(t))
	mr := miniredis.RunT(t)
	cache := singleton.New("redis", func(ctx context.Context) (*redis.Client, error) {
		return redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), nil
	}, singleton.WithClose(func(c *redis.Client) error { return c.Close() }))
	t.Cleanup(func() { _ = cache.Close() })

	authCfg := auth.NewConfig(testConfig())
	users := repository.NewUserRepository(holder)

	svc, err := NewAuthService(users, providers, authCfg, fastHasher(), cache, zerolog.Nop())
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}

	return &fixture{
		users:    users,
		accounts: repository.NewAccountRepository(holder),
		authCfg:  authCfg,
		redis:    mr,
		cache:    cache,
		auth:     svc,
	}
}
