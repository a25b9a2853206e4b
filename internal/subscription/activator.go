// Package subscription applies payments to member accounts and expires
// forfaits whose coverage has lapsed.
package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mutuelle/internal/access"
	ledger "mutuelle/internal/ledger/models"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/platform/audit"
	"mutuelle/pkg/requestcontext"
)

// firstPlanYear is the earliest year a payment may cover.
const firstPlanYear = 2000

type Activator struct {
	authorizer Authorizer
	ledger     Ledger
	auditor    Auditor
	logger     *slog.Logger
	tracer     trace.Tracer
}

type Option func(*Activator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Activator) {
		a.logger = logger
	}
}

func WithAuditor(auditor Auditor) Option {
	return func(a *Activator) {
		a.auditor = auditor
	}
}

func NewActivator(authorizer Authorizer, ledger Ledger, opts ...Option) (*Activator, error) {
	if authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	a := &Activator{
		authorizer: authorizer,
		ledger:     ledger,
		logger:     slog.Default(),
		tracer:     otel.Tracer("mutuelle/subscription"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type PaymentRequest struct {
	MemberID id.MemberID          `json:"member_id"`
	Amount   int64                `json:"amount"`
	Year     int                  `json:"year"`
	PaidAt   time.Time            `json:"paid_at"`
	Policy   ledger.RenewalPolicy `json:"renewal_policy"`
}

// ApplyPayment records a payment for req.Year and reactivates the forfait.
// Only zone and global admins may register payments. An empty policy means
// RenewalReset; a zero year means the plan year of today.
func (a *Activator) ApplyPayment(ctx context.Context, subject access.Subject, req PaymentRequest) (*ledger.Balance, error) {
	ctx, span := a.tracer.Start(ctx, "subscription.ApplyPayment", trace.WithAttributes(
		attribute.Int64("member.id", int64(req.MemberID)),
		attribute.Int64("operator.id", int64(subject.OperatorID)),
	))
	defer span.End()

	if _, err := a.authorizer.Check(ctx, subject, access.ActionRecordPayment, access.MemberRef(req.MemberID)); err != nil {
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			a.emit(ctx, subject, req.MemberID, audit.EventAccessDenied, err)
		}
		return nil, err
	}
	if err := a.validate(ctx, &req); err != nil {
		return nil, err
	}

	balance, err := a.ledger.Credit(ctx, req.MemberID, ledger.Payment{
		Year:   req.Year,
		Amount: req.Amount,
		PaidAt: req.PaidAt,
	}, req.Policy)
	if err != nil {
		return nil, err
	}

	a.emit(ctx, subject, req.MemberID, audit.EventPaymentApplied, nil)
	a.logger.InfoContext(ctx, "payment applied",
		"member_id", req.MemberID,
		"year", req.Year,
		"amount", req.Amount,
		"renewal_policy", req.Policy,
		"operator_id", subject.OperatorID,
	)
	return balance, nil
}

func (a *Activator) validate(ctx context.Context, req *PaymentRequest) error {
	if req.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "payment amount must be positive")
	}
	if req.Policy == "" {
		req.Policy = ledger.RenewalReset
	}
	if !req.Policy.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown renewal policy %q", req.Policy)
	}
	current := a.ledger.Plan().PeriodOf(requestcontext.Now(ctx))
	if req.Year == 0 {
		req.Year = current
	}
	if req.Year < firstPlanYear || req.Year > current+1 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "payment year must be between %d and %d", firstPlanYear, current+1)
	}
	if !req.PaidAt.IsZero() && req.PaidAt.After(requestcontext.Now(ctx)) {
		return dErrors.New(dErrors.CodeInvalidInput, "payment date cannot be in the future")
	}
	return nil
}

func (a *Activator) emit(ctx context.Context, subject access.Subject, memberID id.MemberID, action audit.AuditEvent, cause error) {
	if a.auditor == nil {
		return
	}
	event := audit.Event{OperatorID: subject.OperatorID, MemberID: memberID, Action: string(action)}
	if cause != nil {
		event.Decision = "denied"
		event.Reason = string(dErrors.CodeOf(cause))
	}
	if err := a.auditor.Emit(ctx, event); err != nil {
		a.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
