// Package lockout throttles sign-in attempts per email address. After
// MaxAttempts failures inside one window further attempts are refused until
// the window ends; a successful sign-in clears the count.
package lockout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	dErrors "mutuelle/pkg/domain-errors"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
)

// Store counts failures per key over fixed windows that start at the first
// failure.
type Store interface {
	RecordFailure(ctx context.Context, key string, window time.Duration) (int, error)
	Failures(ctx context.Context, key string) (int, error)
	Clear(ctx context.Context, key string) error
}

type Guard struct {
	store       Store
	maxAttempts int
	window      time.Duration
	logger      *slog.Logger
}

type Option func(*Guard)

func WithLimits(maxAttempts int, window time.Duration) Option {
	return func(g *Guard) {
		if maxAttempts > 0 {
			g.maxAttempts = maxAttempts
		}
		if window > 0 {
			g.window = window
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func New(store Store, opts ...Option) (*Guard, error) {
	if store == nil {
		return nil, errors.New("lockout store is required")
	}
	g := &Guard{
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		window:      DefaultWindow,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Check refuses identifier once it has used up its attempts.
func (g *Guard) Check(ctx context.Context, identifier string) error {
	n, err := g.store.Failures(ctx, key(identifier))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read sign-in failures")
	}
	if n >= g.maxAttempts {
		return dErrors.New(dErrors.CodeRateLimited, "too many failed sign-in attempts")
	}
	return nil
}

func (g *Guard) RecordFailure(ctx context.Context, identifier string) error {
	n, err := g.store.RecordFailure(ctx, key(identifier), g.window)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record sign-in failure")
	}
	if n == g.maxAttempts {
		g.logger.WarnContext(ctx, "sign-in locked", "email", identifier, "window", g.window)
	}
	return nil
}

func (g *Guard) Clear(ctx context.Context, identifier string) error {
	if err := g.store.Clear(ctx, key(identifier)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear sign-in failures")
	}
	return nil
}

func key(identifier string) string {
	return "signin-failures:" + identifier
}
