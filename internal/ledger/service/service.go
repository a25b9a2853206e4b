// Package service is the entitlement ledger: the only component allowed to
// change a member's quota counters or subscription flag.
//
// Every write runs inside Store.Execute for one member, so the activity
// check, the counter check and the mutation happen as one step with respect
// to every other write on that member. Reads go through Store.Get and never
// wait for writers.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mutuelle/internal/ledger/metrics"
	"mutuelle/internal/ledger/models"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/platform/sentinel"
	"mutuelle/pkg/requestcontext"
)

// Store persists accounts. Execute must apply fn and commit its result
// atomically with respect to other Execute calls on the same member, and
// must leave the account untouched when fn returns an error.
type Store interface {
	Open(ctx context.Context, acct *models.Account) error
	Get(ctx context.Context, memberID id.MemberID) (*models.Account, error)
	Execute(ctx context.Context, memberID id.MemberID, fn func(acct *models.Account) error) (*models.Account, error)
	ListMemberIDs(ctx context.Context) ([]id.MemberID, error)
}

type Service struct {
	store   Store
	plan    models.Plan
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(store Store, plan models.Plan, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		store:  store,
		plan:   plan,
		logger: slog.Default(),
		tracer: otel.Tracer("mutuelle/ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Plan returns the forfait configuration the ledger applies.
func (s *Service) Plan() models.Plan {
	return s.plan
}

// OpenAccount creates the account for a newly registered member: inactive,
// balances at the plan caps.
func (s *Service) OpenAccount(ctx context.Context, memberID id.MemberID) (*models.Balance, error) {
	acct, err := models.NewAccount(memberID, s.plan, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Open(ctx, acct); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "account for member %s already exists", memberID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open account")
	}
	b := acct.Balance()
	return &b, nil
}

// GetBalance returns the last committed balance. Two calls with no write in
// between return identical values.
func (s *Service) GetBalance(ctx context.Context, memberID id.MemberID) (*models.Balance, error) {
	acct, err := s.store.Get(ctx, memberID)
	if err != nil {
		return nil, translate(err)
	}
	b := acct.Balance()
	return &b, nil
}

// ConsumeRequest describes the treatment that draws on the quota.
type ConsumeRequest struct {
	MemberID    id.MemberID
	Kind        id.TreatmentKind
	Date        time.Time
	Description string
}

type ConsumeResult struct {
	Treatment models.Treatment `json:"treatment"`
	Balance   models.Balance   `json:"balance"`
}

// Consume checks the subscription and the counter for req.Kind, then
// decrements it by one and appends the treatment, all in one step. On any
// failure nothing is written. Once the member lock is held the operation is
// not interrupted by ctx cancellation.
func (s *Service) Consume(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error) {
	if !req.Kind.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown treatment kind %q", req.Kind)
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ledger.Consume", trace.WithAttributes(
		attribute.Int64("member.id", int64(req.MemberID)),
		attribute.String("treatment.kind", string(req.Kind)),
	))
	defer span.End()

	now := requestcontext.Now(ctx)
	var recorded models.Treatment
	acct, err := s.store.Execute(context.WithoutCancel(ctx), req.MemberID, func(acct *models.Account) error {
		if err := acct.CanConsume(req.Kind); err != nil {
			return err
		}
		recorded = models.Treatment{
			ID:          id.NewTreatmentID(),
			MemberID:    req.MemberID,
			Kind:        req.Kind,
			Date:        req.Date,
			Description: strings.TrimSpace(req.Description),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		acct.Consume(recorded, now)
		return nil
	})
	s.observe("consume", start)
	if err != nil {
		err = translate(err)
		s.recordConsume(req.Kind, dErrors.CodeOf(err))
		s.fail(span, err)
		return nil, err
	}
	s.recordConsume(req.Kind, "ok")
	s.logger.DebugContext(ctx, "quota consumed",
		"member_id", req.MemberID,
		"kind", req.Kind,
		"treatment_id", recorded.ID,
	)
	return &ConsumeResult{Treatment: recorded, Balance: acct.Balance()}, nil
}

// Credit appends payment, activates the forfait and, under RenewalReset,
// restores both counters to the plan caps.
func (s *Service) Credit(ctx context.Context, memberID id.MemberID, payment models.Payment, policy models.RenewalPolicy) (*models.Balance, error) {
	if payment.Amount <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "payment amount must be positive")
	}
	if !policy.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown renewal policy %q", policy)
	}
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ledger.Credit", trace.WithAttributes(
		attribute.Int64("member.id", int64(memberID)),
		attribute.Int("payment.year", payment.Year),
		attribute.String("renewal.policy", string(policy)),
	))
	defer span.End()

	now := requestcontext.Now(ctx)
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}
	payment.CreatedAt, payment.UpdatedAt = now, now

	acct, err := s.store.Execute(context.WithoutCancel(ctx), memberID, func(acct *models.Account) error {
		acct.Credit(payment, policy, s.plan, now)
		return nil
	})
	s.observe("credit", start)
	if err != nil {
		err = translate(err)
		s.fail(span, err)
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordCredit(string(policy))
	}
	b := acct.Balance()
	return &b, nil
}

// ExpireIfStale deactivates the member when no payment covers the plan year
// of asOf. It reports whether the flag changed.
func (s *Service) ExpireIfStale(ctx context.Context, memberID id.MemberID, asOf time.Time) (bool, error) {
	year := s.plan.PeriodOf(asOf)

	current, err := s.store.Get(ctx, memberID)
	if err != nil {
		return false, translate(err)
	}
	if !current.Active || current.Covers(year) {
		return false, nil
	}

	ctx, span := s.tracer.Start(ctx, "ledger.ExpireIfStale", trace.WithAttributes(
		attribute.Int64("member.id", int64(memberID)),
		attribute.Int("period.year", year),
	))
	defer span.End()

	start := time.Now()
	expired := false
	now := requestcontext.Now(ctx)
	_, err = s.store.Execute(context.WithoutCancel(ctx), memberID, func(acct *models.Account) error {
		expired = acct.Expire(year, now)
		return nil
	})
	s.observe("expire", start)
	if err != nil {
		err = translate(err)
		s.fail(span, err)
		return false, err
	}
	if expired && s.metrics != nil {
		s.metrics.IncrementExpired()
	}
	return expired, nil
}

// History returns the member's balance with payments and treatments,
// optionally narrowed by filter.
func (s *Service) History(ctx context.Context, memberID id.MemberID, filter models.HistoryFilter) (*models.History, error) {
	acct, err := s.store.Get(ctx, memberID)
	if err != nil {
		return nil, translate(err)
	}

	h := &models.History{Balance: acct.Balance()}
	h.Payments = acct.Payments
	if filter.LastPayments > 0 && len(h.Payments) > filter.LastPayments {
		h.Payments = h.Payments[len(h.Payments)-filter.LastPayments:]
	}
	for _, t := range acct.Treatments {
		if filter.Month.IsZero() || filter.Month.Contains(t.Date, s.plan.Location) {
			h.Treatments = append(h.Treatments, t)
		}
	}
	return h, nil
}

// MemberIDs lists every account, for housekeeping sweeps.
func (s *Service) MemberIDs(ctx context.Context) ([]id.MemberID, error) {
	ids, err := s.store.ListMemberIDs(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list accounts")
	}
	return ids, nil
}

// translate maps store failures onto ledger error codes. Coded errors from
// the account model pass through unchanged.
func translate(err error) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeMemberNotFound, "member not found")
	case errors.Is(err, sentinel.ErrLockTimeout):
		return dErrors.Wrap(err, dErrors.CodeBusy, "member record is busy")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "ledger write conflict")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "ledger operation failed")
	}
}

func (s *Service) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveWrite(op, start)
	}
}

func (s *Service) recordConsume(kind id.TreatmentKind, outcome dErrors.Code) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordConsume(string(kind), string(outcome))
	if outcome == dErrors.CodeBusy {
		s.metrics.IncrementBusy()
	}
}

func (s *Service) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
}
