package app

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pttalk/presence-server/internal/config"
	"github.com/pttalk/presence-server/internal/core"
	"github.com/pttalk/presence-server/internal/store"
	transporthttp "github.com/pttalk/presence-server/internal/transport/http"
)

// App wires together the registry, coordinator, store, and transport.
type App struct {
	server          *stdhttp.Server
	rdb             *redis.Client
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application with provided configuration. An
// unreachable Redis is logged and tolerated: the coordinator runs on
// registry-only truth until the store comes back.
func New(cfg config.Config, logger *zerolog.Logger) *App {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("redis_addr", cfg.RedisAddr).Msg("membership store unreachable at startup, continuing registry-only")
	} else {
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("membership store connected")
	}

	members := store.NewRedis(rdb)
	registry := core.NewRegistry()
	fanout := core.NewFanout(registry, logger)
	coordinator := core.NewCoordinator(registry, members, fanout, logger, cfg.StoreTimeout)
	server := transporthttp.NewServer(coordinator, members, cfg, logger)

	return &App{
		server:          server,
		rdb:             rdb,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

func (a *App) cleanup() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
}
