package subscription

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/platform/audit"
	"mutuelle/pkg/requestcontext"
)

const (
	DefaultSweepInterval    = time.Hour
	DefaultSweepConcurrency = 8
)

// Sweeper deactivates every member whose payments no longer cover the
// current plan year. It never runs as part of an interactive request.
type Sweeper struct {
	ledger      Expirer
	auditor     Auditor
	logger      *slog.Logger
	interval    time.Duration
	concurrency int
}

type SweeperOption func(*Sweeper)

func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithSweepAuditor(auditor Auditor) SweeperOption {
	return func(s *Sweeper) {
		s.auditor = auditor
	}
}

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSweepConcurrency(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func NewSweeper(ledger Expirer, opts ...SweeperOption) (*Sweeper, error) {
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	s := &Sweeper{
		ledger:      ledger,
		logger:      slog.Default(),
		interval:    DefaultSweepInterval,
		concurrency: DefaultSweepConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type SweepResult struct {
	Checked int
	Expired []id.MemberID
	Failed  int
}

// Sweep checks every account against asOf, which is also the time every
// ledger call and audit event of the batch sees. A member whose lock is busy
// is counted as failed and left for the next pass; any other error stops the
// sweep.
func (s *Sweeper) Sweep(ctx context.Context, asOf time.Time) (*SweepResult, error) {
	ctx = requestcontext.WithTime(ctx, asOf)
	ids, err := s.ledger.MemberIDs(ctx)
	if err != nil {
		return nil, err
	}

	expired := make([]bool, len(ids))
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, memberID := range ids {
		g.Go(func() error {
			changed, err := s.ledger.ExpireIfStale(gctx, memberID, asOf)
			switch {
			case err == nil:
				expired[i] = changed
				return nil
			case dErrors.HasCode(err, dErrors.CodeBusy), dErrors.HasCode(err, dErrors.CodeMemberNotFound):
				failed.Add(1)
				s.logger.WarnContext(gctx, "expiry skipped", "member_id", memberID, "error", err)
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &SweepResult{Checked: len(ids), Failed: int(failed.Load())}
	for i, changed := range expired {
		if !changed {
			continue
		}
		res.Expired = append(res.Expired, ids[i])
		s.emit(ctx, ids[i])
	}
	s.logger.InfoContext(ctx, "expiry sweep finished",
		"checked", res.Checked,
		"expired", len(res.Expired),
		"failed", res.Failed,
	)
	return res, nil
}

// Run sweeps immediately and then on every tick until ctx is cancelled. Each
// pass reads the clock once.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx, time.Now()); err != nil {
			s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) emit(ctx context.Context, memberID id.MemberID) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{MemberID: memberID, Action: string(audit.EventSubscriptionExpired)}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
