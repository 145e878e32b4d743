package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"starterkit/api/internal/auth"
	"starterkit/api/internal/ids"
	"starterkit/api/internal/models"
	"starterkit/api/internal/oauth"
	"starterkit/api/internal/repository"
	"starterkit/api/internal/security"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserSuspended        = errors.New("user suspended")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrOAuthFailed          = errors.New("oauth sign-in failed")
	ErrInvalidInput         = errors.New("invalid input")
)

const (
	revokedPrefix     = "revoked:"
	minPasswordLength = 8
	cacheTimeout      = 500 * time.Millisecond
)

// RedisProvider hands out the shared Redis client.
type RedisProvider interface {
	Get(ctx context.Context) (*redis.Client, error)
}

type AuthService struct {
	users     *repository.UserRepository
	providers oauth.Providers
	cfg       *auth.Config
	hasher    *security.PasswordHasher
	cache     RedisProvider
	log       zerolog.Logger

	// dummyHash is verified when the email is unknown so both paths cost the same.
	dummyHash []byte
}

func NewAuthService(
	users *repository.UserRepository,
	providers oauth.Providers,
	cfg *auth.Config,
	hasher *security.PasswordHasher,
	cache RedisProvider,
	log zerolog.Logger,
) (*AuthService, error) {
	dummy, err := hasher.Hash(ids.New())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &AuthService{
		users:     users,
		providers: providers,
		cfg:       cfg,
		hasher:    hasher,
		cache:     cache,
		log:       log.With().Str("component", "auth").Logger(),
		dummyHash: dummy,
	}, nil
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type AuthResult struct {
	Token  string
	Claims *security.SessionClaims
	User   models.User
}

func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = NormalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	if input.Email == "" || len(input.Password) < minPasswordLength {
		return AuthResult{}, fmt.Errorf("%w: email and a password of at least %d characters required", ErrInvalidInput, minPasswordLength)
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: passwordHash,
		Role:         models.UserRoleUser,
		Status:       models.UserStatusActive,
	}

	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return AuthResult{}, err
		}
		s.log.Error().Err(err).Str("email", input.Email).Msg("create user failed")
		return AuthResult{}, ErrAuthenticationFailed
	}

	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return s.issue(user)
}

// SignInWithCredentials never tells callers whether the email exists.
func (s *AuthService) SignInWithCredentials(ctx context.Context, email string, password string) (AuthResult, error) {
	email = NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_, _ = s.hasher.Verify(password, s.dummyHash)
			return AuthResult{}, ErrInvalidCredentials
		}
		s.log.Error().Err(err).Str("email", email).Msg("user lookup failed")
		return AuthResult{}, ErrAuthenticationFailed
	}

	if !user.HasPassword() {
		_, _ = s.hasher.Verify(password, s.dummyHash)
		return AuthResult{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return AuthResult{}, ErrInvalidCredentials
	}
	if !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	return s.issue(user)
}

// StartOAuth returns the provider redirect and the flow secrets to keep until
// the callback.
func (s *AuthService) StartOAuth(providerID string, callback string) (string, oauth.Flow, error) {
	provider, info, err := s.provider(providerID)
	if err != nil {
		return "", oauth.Flow{}, err
	}

	flow, err := oauth.NewFlow()
	if err != nil {
		return "", oauth.Flow{}, err
	}
	flow.Callback = auth.SafeCallback(callback, s.cfg.Pages.Landing)
	return provider.AuthCodeURL(flow, info.CallbackURL), flow, nil
}

func (s *AuthService) SignInWithOAuth(ctx context.Context, providerID string, code string, verifier string) (AuthResult, error) {
	provider, info, err := s.provider(providerID)
	if err != nil {
		return AuthResult{}, err
	}

	token, err := provider.Exchange(ctx, code, verifier, info.CallbackURL)
	if err != nil {
		s.log.Warn().Err(err).Str("provider", providerID).Msg("oauth code exchange failed")
		return AuthResult{}, fmt.Errorf("%w: %v", ErrOAuthFailed, err)
	}

	identity, err := provider.Identity(ctx, token)
	if err != nil {
		s.log.Warn().Err(err).Str("provider", providerID).Msg("oauth profile fetch failed")
		return AuthResult{}, fmt.Errorf("%w: %v", ErrOAuthFailed, err)
	}

	user, created, err := s.users.UpsertOAuthUser(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotLinked) {
			return AuthResult{}, err
		}
		s.log.Error().Err(err).
			Str("provider", providerID).
			Str("email", identity.Email).
			Msg("oauth user upsert failed")
		return AuthResult{}, ErrAuthenticationFailed
	}

	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	s.log.Info().
		Str("user_id", user.ID).
		Str("provider", providerID).
		Bool("created", created).
		Msg("oauth sign-in")
	return s.issue(user)
}

func (s *AuthService) provider(id string) (*oauth.Provider, auth.ProviderInfo, error) {
	info, ok := s.cfg.Provider(id)
	if !ok || info.Type != "oauth" {
		return nil, auth.ProviderInfo{}, fmt.Errorf("%w: %s", oauth.ErrUnknownProvider, id)
	}
	provider, err := s.providers.Get(id)
	if err != nil {
		return nil, auth.ProviderInfo{}, err
	}
	return provider, info, nil
}

// SignOut revokes the token id until the token would expire anyway. When the
// cache is down the token stays valid until expiry.
func (s *AuthService) SignOut(ctx context.Context, claims *security.SessionClaims) {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()

	client, err := s.cache.Get(ctx)
	if err == nil {
		err = client.Set(ctx, revokedPrefix+claims.ID, claims.UserID(), ttl).Err()
	}
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", claims.UserID()).Msg("token revocation unavailable")
		return
	}

	s.log.Info().Str("user_id", claims.UserID()).Msg("signed out")
}

// IsRevoked fails open: an unreachable cache reports the token as not revoked.
func (s *AuthService) IsRevoked(ctx context.Context, jti string) bool {
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()

	client, err := s.cache.Get(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("revocation check skipped")
		return false
	}

	n, err := client.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("revocation check skipped")
		return false
	}
	return n > 0
}

// Authenticate verifies a session token and that it was not signed out.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*security.SessionClaims, error) {
	claims, err := s.cfg.Tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	if s.IsRevoked(ctx, claims.ID) {
		return nil, fmt.Errorf("%w: revoked", security.ErrInvalidToken)
	}
	return claims, nil
}

func (s *AuthService) issue(user models.User) (AuthResult, error) {
	token, claims, err := s.cfg.Tokens.Issue(Subject(user))
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, Claims: claims, User: user}, nil
}

// Subject is what of a user goes into the session token.
func Subject(user models.User) security.TokenSubject {
	return security.TokenSubject{
		UserID:  user.ID,
		Role:    string(user.Role),
		Name:    user.Name,
		Email:   user.Email,
		Picture: user.ImageURL(),
	}
}
