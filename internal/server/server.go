package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"starterkit/api/internal/auth"
	"starterkit/api/internal/config"
	"starterkit/api/internal/handlers"
	"starterkit/api/internal/metrics"
	"starterkit/api/internal/middleware"
)

type HTTPServer struct {
	engine *gin.Engine
	server *http.Server
	log    zerolog.Logger
	cfg    *config.AppConfig
}

// NewEngine builds the router: request plumbing first, then the edge route
// authorizer so every route, page or API, passes through it.
func NewEngine(cfg *config.AppConfig, authCfg *auth.Config, log zerolog.Logger, m *metrics.Metrics, handlerSet handlers.HandlerSet) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.RedirectTrailingSlash = true
	engine.RedirectFixedPath = true

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.Metrics(m),
		middleware.CORS(cfg.AllowCORSOrigins, cfg.IsProduction()),
		middleware.Edge(authCfg, log, m),
	)

	handlerSet.Register(engine)
	return engine
}

func NewHTTPServer(cfg *config.AppConfig, log zerolog.Logger, engine *gin.Engine) *HTTPServer {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &HTTPServer{
		engine: engine,
		server: srv,
		log:    log,
		cfg:    cfg,
	}
}

func (s *HTTPServer) Start() error {
	s.log.Info().
		Str("addr", s.server.Addr).
		Str("public_url", s.cfg.HTTP.PublicURL).
		Msg("http server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}
