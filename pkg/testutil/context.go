package testutil

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mutuelle/internal/access"
	"mutuelle/pkg/requestcontext"
)

// WithSubject attaches an authenticated operator to the request, as the
// bearer token middleware does.
func WithSubject(req *http.Request, subject access.Subject) *http.Request {
	ctx := access.WithSubject(req.Context(), subject)
	ctx = requestcontext.WithOperatorID(ctx, subject.OperatorID)
	return req.WithContext(ctx)
}

// WithTime pins the request clock.
func WithTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithURLParams sets chi route parameters for handlers called directly,
// without a router.
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
