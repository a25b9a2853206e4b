// Package httptransport is the public HTTP boundary. Handlers decode
// requests, take the authenticated subject from context and delegate to the
// domain services; they hold no business rules.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mutuelle/internal/platform/metrics"
	"mutuelle/internal/platform/middleware"
	"mutuelle/internal/platform/tracing"
	"mutuelle/pkg/platform/httputil"
	"mutuelle/pkg/platform/middleware/metadata"
	"mutuelle/pkg/platform/middleware/requesttime"
)

const requestTimeout = 30 * time.Second

// HealthCheck reports whether a backing dependency answers.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router needs. Nil services leave their routes
// unregistered.
type Deps struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Health         map[string]HealthCheck

	// SignInLimit and APILimit throttle the sign-in endpoint and the
	// authenticated API. Nil disables them.
	SignInLimit func(http.Handler) http.Handler
	APILimit    func(http.Handler) http.Handler

	Authenticator middleware.Authenticator
	Auth          *AuthHandler
	Directory     *DirectoryHandler
	Members       *MemberHandler
	Verification  *VerificationHandler
}

// NewRouter wires all public endpoints.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Recovery(logger, d.Metrics))
	r.Use(middleware.Logger(logger))
	if d.Metrics != nil {
		r.Use(middleware.Latency(d.Metrics))
	}
	r.Use(tracing.Middleware("mutuelle"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(chimiddleware.Timeout(requestTimeout))

	r.Get("/health", healthHandler(d.Health))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		if d.SignInLimit != nil {
			r.Use(d.SignInLimit)
		}
		if d.Auth != nil {
			d.Auth.Register(r)
		}
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireOperator(d.Authenticator, logger))
		if d.APILimit != nil {
			r.Use(d.APILimit)
		}
		if d.Directory != nil {
			d.Directory.Register(r)
		}
		if d.Members != nil {
			d.Members.Register(r)
		}
		if d.Verification != nil {
			d.Verification.Register(r)
		}
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, map[string]any{"healthy": healthy, "checks": status})
	}
}
