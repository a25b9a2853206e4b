// Package tracing wires OpenTelemetry into the HTTP boundary. Services
// start their own spans through otel.Tracer; exporters are configured by
// the process's tracer provider, which is a no-op unless one is installed.
package tracing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Init installs the W3C trace-context propagator.
func Init() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Middleware starts a server span per request, named after the chi route
// pattern once routing has resolved it.
func Middleware(service string) func(http.Handler) http.Handler {
	return otelhttp.NewMiddleware(service,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					return r.Method + " " + p
				}
			}
			return r.Method + " " + r.URL.Path
		}),
	)
}
