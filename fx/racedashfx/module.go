// Package racedashfx provides an fx module for the racedash session service.
// Requires a *config.Config to be supplied.
package racedashfx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"racedash/internal/backend"
	"racedash/internal/cache"
	"racedash/internal/config"
	"racedash/internal/dashboard"
	"racedash/internal/handlers"
	"racedash/internal/httpserver"
	"racedash/internal/metrics"
	"racedash/pkg/logging/logging"
)

// Module wires the backend client, session manager and HTTP server.
var Module = fx.Module("racedash",
	fx.Provide(
		newLogger,
		newRedisClient,
		newBackendClient,
		newManager,
		newSessionHandler,
		newServer,
	),
	fx.Invoke(func(*http.Server) {}),
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{Env: cfg.Environment, Level: cfg.LogLevel})
}

// RedisParams holds dependencies for the optional redis client.
type RedisParams struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Lifecycle fx.Lifecycle
}

// newRedisClient returns nil unless the redis cache backend is selected.
func newRedisClient(p RedisParams) (*redis.Client, error) {
	if p.Config.CacheBackend != "redis" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: p.Config.RedisAddr})

	// Fail fast if Redis is misconfigured.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	p.Logger.Info("redis connection established", zap.String("addr", p.Config.RedisAddr))

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error { return client.Close() },
	})
	return client, nil
}

func newBackendClient(cfg *config.Config, logger *zap.Logger, lc fx.Lifecycle) (*backend.Client, error) {
	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return client.Close() },
	})
	return client, nil
}

// ManagerParams holds dependencies for the session manager.
type ManagerParams struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Backend   *backend.Client
	Redis     *redis.Client `optional:"true"`
	Lifecycle fx.Lifecycle
}

func newManager(p ManagerParams) (*dashboard.Manager, error) {
	priority, err := p.Config.Priority()
	if err != nil {
		return nil, err
	}

	m := dashboard.NewManager(dashboard.ManagerConfig{
		Backend:     p.Backend,
		Priority:    priority,
		Concurrency: p.Config.BatchLimit,
		NewCache: func(sessionID string) cache.Cache {
			return cache.New(p.Config.Cache("racedash:"+sessionID), p.Redis, p.Logger)
		},
		Logger: p.Logger,
	})

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			m.Close()
			return nil
		},
	})
	return m, nil
}

func newSessionHandler(cfg *config.Config, m *dashboard.Manager) *handlers.SessionHandler {
	return handlers.NewSessionHandler(m, cfg.ViewportHeight)
}

// ServerParams holds dependencies for the HTTP server.
type ServerParams struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Sessions  *handlers.SessionHandler
	Lifecycle fx.Lifecycle
}

func newServer(p ServerParams) *http.Server {
	metrics.Register()

	r := chi.NewRouter()
	httpserver.SetupRouter(r, p.Logger, p.Sessions, httpserver.Options{
		RequestTimeout: p.Config.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + p.Config.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      p.Config.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			p.Logger.Info("starting racedash",
				zap.String("addr", srv.Addr),
				zap.String("backend_url", p.Config.BackendURL),
				zap.String("cache_backend", p.Config.CacheBackend),
			)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("shutting down server")
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
