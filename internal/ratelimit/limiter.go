// Package ratelimit caps how often a client may call an endpoint class,
// using a sliding window per key.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/platform/httputil"
	"mutuelle/pkg/requestcontext"
)

// Result describes the window after a request was counted (or refused).
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the number of whole seconds until the window frees a slot.
func (r Result) RetryAfter(now time.Time) int {
	secs := int(r.ResetAt.Sub(now).Seconds() + 0.999)
	return max(secs, 1)
}

// Store counts requests per key in a sliding window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Class names an endpoint group sharing one budget.
type Class string

const (
	ClassSignIn Class = "signin"
	ClassAPI    Class = "api"
)

// Rule is the budget for one class.
type Rule struct {
	Limit  int
	Window time.Duration
}

type Limiter struct {
	store  Store
	rules  map[Class]Rule
	logger *slog.Logger
}

type Option func(*Limiter)

func WithRule(class Class, limit int, window time.Duration) Option {
	return func(l *Limiter) {
		l.rules[class] = Rule{Limit: limit, Window: window}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func New(store Store, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("rate limit store is required")
	}
	l := &Limiter{
		store: store,
		rules: map[Class]Rule{
			ClassSignIn: {Limit: 20, Window: time.Minute},
			ClassAPI:    {Limit: 300, Window: time.Minute},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	for class, rule := range l.rules {
		if rule.Limit <= 0 || rule.Window <= 0 {
			return nil, fmt.Errorf("rate limit %s: limit and window must be positive", class)
		}
	}
	return l, nil
}

// Check counts one request for key under class.
func (l *Limiter) Check(ctx context.Context, class Class, key string) (Result, error) {
	rule, ok := l.rules[class]
	if !ok {
		return Result{Allowed: true}, nil
	}
	return l.store.Allow(ctx, "ratelimit:"+string(class)+":"+key, rule.Limit, rule.Window, requestcontext.Now(ctx))
}

// PerClientIP limits unauthenticated endpoints by caller address.
func (l *Limiter) PerClientIP(class Class) func(http.Handler) http.Handler {
	return l.middleware(class, func(ctx context.Context) string {
		return "ip:" + requestcontext.ClientIP(ctx)
	})
}

// PerOperator limits authenticated endpoints by operator, falling back to
// the caller address when no operator is in context.
func (l *Limiter) PerOperator(class Class) func(http.Handler) http.Handler {
	return l.middleware(class, func(ctx context.Context) string {
		if op := requestcontext.OperatorID(ctx); op != 0 {
			return "op:" + strconv.FormatInt(int64(op), 10)
		}
		return "ip:" + requestcontext.ClientIP(ctx)
	})
}

func (l *Limiter) middleware(class Class, keyOf func(context.Context) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			res, err := l.Check(ctx, class, keyOf(ctx))
			if err != nil {
				// Fail open: a broken counter must not take the API down.
				l.logger.ErrorContext(ctx, "rate limit check failed",
					"error", err,
					"class", string(class),
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}
			if res.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}
			if !res.Allowed {
				l.logger.WarnContext(ctx, "rate limit exceeded",
					"class", string(class),
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter(requestcontext.Now(ctx))))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "request budget exhausted"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
