// Package api is the local inspection API of a running dispatcher.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/keriauth/internal/clock"
	"github.com/jmcleod/keriauth/message"
	"github.com/jmcleod/keriauth/models"
	"github.com/jmcleod/keriauth/session"
)

// Dispatcher is what the API inspects and controls.
type Dispatcher interface {
	SessionStatus(ctx context.Context) (session.State, time.Time, bool, error)
	Lock(ctx context.Context) error
	Unlock(ctx context.Context, passcode string) error
	PendingRequests(ctx context.Context) ([]models.PendingBwAppRequest, error)
	RemovePending(ctx context.Context, id string) error
	SweepPending(ctx context.Context, maxAge time.Duration) (int, error)
	RequestFromApp(ctx context.Context, msg message.ToApp, timeout time.Duration) (message.FromApp, error)
}

// API holds the dependencies needed by the REST handlers.
type API struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	clock      clock.Clock
	limiter    *unlockRateLimiter
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithClock sets the clock used for rate limiting.
func WithClock(c clock.Clock) Option {
	return func(a *API) { a.clock = c }
}

// New creates a new API instance.
func New(d Dispatcher, opts ...Option) *API {
	a := &API{
		dispatcher: d,
		logger:     slog.Default(),
		clock:      clock.Real(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.limiter = newUnlockRateLimiter(a.clock)
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/health", a.Health)

	r.Get("/session", a.GetSession)
	r.Post("/session/lock", a.LockSession)
	r.Post("/session/unlock", a.UnlockSession)

	r.Get("/pending", a.ListPending)
	r.Post("/pending", a.CreatePending)
	r.Post("/pending/sweep", a.SweepPending)
	r.Delete("/pending/{requestID}", a.DeletePending)

	return r
}
