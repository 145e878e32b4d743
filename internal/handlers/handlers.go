package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"starterkit/api/internal/auth"
	"starterkit/api/internal/config"
	"starterkit/api/internal/metrics"
	"starterkit/api/internal/middleware"
	"starterkit/api/internal/models"
	"starterkit/api/internal/oauth"
	"starterkit/api/internal/ratelimit"
	"starterkit/api/internal/repository"
	"starterkit/api/internal/security"
	"starterkit/api/internal/service"
	"starterkit/api/internal/singleton"
)

// Deps are the process-wide pieces the handlers are built from. Avatars may be
// nil when object storage is not configured.
type Deps struct {
	Config    *config.AppConfig
	Auth      *auth.Config
	DB        repository.DBProvider
	Redis     service.RedisProvider
	Avatars   service.AvatarStoreProvider
	Providers oauth.Providers
	Hasher    *security.PasswordHasher
	Registry  *singleton.Registry
	Metrics   *metrics.Metrics
	CSRFKey   []byte
}

type HandlerSet struct {
	log             zerolog.Logger
	cfg             *config.AppConfig
	authCfg         *auth.Config
	authService     *service.AuthService
	profiles        *service.ProfileService
	users           *repository.UserRepository
	accounts        *repository.AccountRepository
	registry        *singleton.Registry
	metrics         *metrics.Metrics
	csrfKey         []byte
	signInLimiter   *ratelimit.Limiter
	registerLimiter *ratelimit.Limiter
	clientLimiter   *ratelimit.Limiter
	oauthThrottle   *middleware.Throttle
}

func NewHandlerSet(log zerolog.Logger, deps Deps) (HandlerSet, error) {
	userRepo := repository.NewUserRepository(deps.DB)
	accountRepo := repository.NewAccountRepository(deps.DB)

	authService, err := service.NewAuthService(userRepo, deps.Providers, deps.Auth, deps.Hasher, deps.Redis, log)
	if err != nil {
		return HandlerSet{}, fmt.Errorf("auth service: %w", err)
	}

	limits := deps.Config.RateLimit
	observer := ratelimit.WithObserver(deps.Metrics)

	return HandlerSet{
		log:             log,
		cfg:             deps.Config,
		authCfg:         deps.Auth,
		authService:     authService,
		profiles:        service.NewProfileService(userRepo, deps.Avatars, log),
		users:           userRepo,
		accounts:        accountRepo,
		registry:        deps.Registry,
		metrics:         deps.Metrics,
		csrfKey:         deps.CSRFKey,
		signInLimiter:   ratelimit.New(deps.Redis, "signin", limits.SignInLimit, limits.SignInWindow, log, observer),
		registerLimiter: ratelimit.New(deps.Redis, "register", limits.SignInLimit, limits.SignInWindow, log, observer),
		clientLimiter:   ratelimit.New(deps.Redis, "client", limits.ClientLimit, limits.SignInWindow, log, observer),
		oauthThrottle:   middleware.NewThrottle(limits.OAuthPerSec, limits.OAuthBurst),
	}, nil
}

// Throttle is the per-IP limiter in front of the OAuth redirects.
func (h HandlerSet) Throttle() *middleware.Throttle {
	return h.oauthThrottle
}

func (h HandlerSet) Register(engine *gin.Engine) {
	engine.GET("/healthz", h.Health)
	engine.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	h.registerPages(engine)

	api := engine.Group("/api")
	api.Use(middleware.CSRF(h.csrfKey, h.authCfg.Cookies))
	{
		authGroup := api.Group("/auth")
		authGroup.GET("/csrf", h.CSRF)
		authGroup.GET("/providers", h.Providers)
		authGroup.GET("/session", h.Session)
		authGroup.POST("/signout", h.SignOut)
		authGroup.POST("/register",
			middleware.RateLimit(h.clientLimiter, middleware.ClientIPKey),
			middleware.RateLimit(h.registerLimiter, middleware.IPAndEmailKey),
			h.RegisterUser,
		)
		authGroup.POST("/callback/credentials",
			middleware.RateLimit(h.clientLimiter, middleware.ClientIPKey),
			middleware.RateLimit(h.signInLimiter, middleware.IPAndEmailKey),
			h.SignInCredentials,
		)
		authGroup.GET("/signin/:provider", h.oauthThrottle.Handler(), h.SignInOAuth)
		authGroup.GET("/callback/:provider", h.oauthThrottle.Handler(), h.CallbackOAuth)

		profile := api.Group("/profile")
		profile.Use(middleware.RequireSession(h.authService))
		profile.GET("", h.GetProfile)
		profile.PATCH("", h.UpdateProfile)
		profile.POST("/avatar", h.UploadAvatar)

		admin := api.Group("/admin")
		admin.Use(
			middleware.RequireSession(h.authService),
			middleware.RequireRoles(models.UserRoleAdmin),
		)
		admin.GET("/users", h.AdminListUsers)
	}
}
