// Package server exposes a running flock over HTTP: health, snapshots,
// configuration hot reload, prometheus metrics and a websocket frame stream.
package server

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/lao-tseu-is-alive/go-flock-simulation/internal/world"
	"github.com/lao-tseu-is-alive/go-flock-simulation/pkg/simulation"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WorldInterface is the part of world.World the HTTP layer needs.
// Keep it minimal so handlers can be tested against a fake.
type WorldInterface interface {
	Latest() *world.Frame
	Config() simulation.Config
	ModifyConfig(ctx context.Context, fn func(cur simulation.Config) (*simulation.Config, error)) error
	Subscribe(buffer int) (<-chan *world.Frame, func())
}

// RouterConfig contains the dependencies of the HTTP router.
type RouterConfig struct {
	// World is the running simulation (required).
	World WorldInterface

	// Metrics serves /metrics when set.
	Metrics http.Handler

	// Logger logs every request. Nil disables request logging.
	Logger *zap.Logger

	// CORSOrigins defaults to localhost origins.
	CORSOrigins []string

	// ConfigWritesPerSecond bounds PUT /api/config. Zero uses 5 per second.
	ConfigWritesPerSecond float64

	// OnClients is called with the websocket subscriber count when it changes.
	OnClients func(int)
}

type routerHandlers struct {
	world  WorldInterface
	logger *zap.Logger
}

// NewRouter builds the HTTP router. It starts no goroutine and opens no
// listener, so it can be served by httptest directly.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	} else {
		r.Use(requestLogger(logger))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	h := &routerHandlers{world: cfg.World, logger: logger}

	limiter := configLimiter(cfg.ConfigWritesPerSecond)

	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", h.handleSnapshot)
		r.Get("/config", h.handleGetConfig)
		r.With(limit(limiter)).Put("/config", h.handlePutConfig)
		r.Get("/schema", h.handleSchema)
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	r.Get("/ws", newStreamer(cfg.World, logger, cfg.OnClients).ServeHTTP)

	return r
}

// configLimiter allows writes configuration changes per second with a burst
// of two seconds' worth, never less than one.
func configLimiter(writes float64) *rate.Limiter {
	if writes <= 0 {
		writes = 5
	}
	return rate.NewLimiter(rate.Limit(writes), max(1, int(math.Ceil(writes*2))))
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("requestId", middleware.GetReqID(r.Context())))
		})
	}
}

// limit rejects requests beyond the limiter budget with 429.
func limit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, "too many configuration updates", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
