package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"starterkit/api/internal/auth"
	"starterkit/api/internal/cache"
	"starterkit/api/internal/config"
	"starterkit/api/internal/database"
	"starterkit/api/internal/handlers"
	"starterkit/api/internal/jobs"
	"starterkit/api/internal/log"
	"starterkit/api/internal/metrics"
	"starterkit/api/internal/oauth"
	"starterkit/api/internal/security"
	"starterkit/api/internal/server"
	"starterkit/api/internal/service"
	"starterkit/api/internal/singleton"
	"starterkit/api/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := log.Bootstrap(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	logger := log.New(cfg.Environment)
	for _, warning := range cfg.Warnings() {
		logger.Warn().Msg(warning)
	}

	m := metrics.New()
	registry := singleton.NewRegistry(logger)

	db := singleton.New("database", func(ctx context.Context) (*database.DB, error) {
		return database.Connect(ctx, cfg.Postgres, logger)
	},
		singleton.WithClose(func(d *database.DB) error { return d.Close() }),
		singleton.WithHealthCheck(func(ctx context.Context, d *database.DB) error { return d.Ping(ctx) }),
		singleton.WithObserver[*database.DB](m.ObserveClientInit),
	)

	redisClient := singleton.New("redis", func(ctx context.Context) (*redis.Client, error) {
		return cache.NewRedisClient(ctx, cfg.Redis)
	},
		singleton.WithClose(cache.Close),
		singleton.WithHealthCheck(cache.Ping),
		singleton.WithRetryCooldown[*redis.Client](cfg.Redis.RetryCooldown),
		singleton.WithObserver[*redis.Client](m.ObserveClientInit),
	)
	registry.Register(db, redisClient)

	var avatars service.AvatarStoreProvider
	if cfg.Storage.Enabled() {
		objectStore := singleton.New[storage.Avatars]("objectstore", func(ctx context.Context) (storage.Avatars, error) {
			store, err := storage.NewObjectStore(cfg.Storage)
			if err != nil {
				return nil, err
			}
			if err := store.EnsureBucket(ctx); err != nil {
				return nil, err
			}
			return store, nil
		},
			singleton.WithHealthCheck(func(ctx context.Context, a storage.Avatars) error { return a.Ping(ctx) }),
			singleton.WithObserver[storage.Avatars](m.ObserveClientInit),
		)
		registry.Register(objectStore)
		avatars = objectStore
	} else {
		logger.Warn().Msg("object storage not configured; avatar uploads disabled")
	}

	csrfKey, err := security.DeriveKey(cfg.Security.AuthSecret, "csrf", 32)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to derive csrf key")
	}

	authCfg := auth.NewConfig(cfg)
	handlerSet, err := handlers.NewHandlerSet(logger, handlers.Deps{
		Config:    cfg,
		Auth:      authCfg,
		DB:        db,
		Redis:     redisClient,
		Avatars:   avatars,
		Providers: oauth.NewProviders(cfg.OAuth),
		Hasher:    security.NewPasswordHasher(security.DefaultArgon2Params()),
		Registry:  registry,
		Metrics:   m,
		CSRFKey:   csrfKey,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build handlers")
	}

	engine := server.NewEngine(cfg, authCfg, logger, m, handlerSet)
	httpServer := server.NewHTTPServer(cfg, logger, engine)

	scheduler := jobs.NewScheduler(registry, handlerSet.Throttle(), logger)
	if err := scheduler.Start(cfg.Jobs.HealthProbe); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, registry)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, registry *singleton.Registry) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduled jobs still running at shutdown")
	}

	if err := registry.Close(); err != nil {
		logger.Error().Err(err).Msg("client close error")
	}

	logger.Info().Msg("server exited cleanly")
}
