package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"racedash/internal/handlers"
	"racedash/internal/metrics"
	"racedash/internal/middleware"
)

// MaxBodyBytes bounds uploaded datasets.
const MaxBodyBytes = 64 << 20

type Options struct {
	RequestTimeout time.Duration // default: 60s
	MaxBodyBytes   int64         // default: MaxBodyBytes
}

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, sessions *handlers.SessionHandler, opts Options) {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = MaxBodyBytes
	}

	r.Use(metrics.Middleware(routePattern))

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(chimw.RequestSize(opts.MaxBodyBytes))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions", sessions.Routes)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
