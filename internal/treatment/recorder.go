// Package treatment records treatments: it authorizes the operator,
// validates the request, then draws one unit of quota from the ledger,
// which appends the treatment in the same step.
package treatment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mutuelle/internal/access"
	ledger "mutuelle/internal/ledger/models"
	ledgerservice "mutuelle/internal/ledger/service"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/platform/audit"
	"mutuelle/pkg/requestcontext"
)

// MaxDescriptionLength bounds the free-text description in characters.
const MaxDescriptionLength = 500

type Authorizer interface {
	Check(ctx context.Context, subject access.Subject, action access.Action, ref access.Ref) (access.Target, error)
}

type Ledger interface {
	Plan() ledger.Plan
	Consume(ctx context.Context, req ledgerservice.ConsumeRequest) (*ledgerservice.ConsumeResult, error)
}

type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Recorder struct {
	authorizer Authorizer
	ledger     Ledger
	auditor    Auditor
	logger     *slog.Logger
	tracer     trace.Tracer
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithAuditor(a Auditor) Option {
	return func(r *Recorder) {
		r.auditor = a
	}
}

func New(authorizer Authorizer, ledger Ledger, opts ...Option) (*Recorder, error) {
	if authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger is required")
	}
	r := &Recorder{
		authorizer: authorizer,
		ledger:     ledger,
		logger:     slog.Default(),
		tracer:     otel.Tracer("mutuelle/treatment"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Request is checked only after the operator is authorized, so an
// out-of-scope caller learns nothing from validation errors. DateText is
// read in the plan zone when Date is zero.
type Request struct {
	MemberID    id.MemberID      `json:"member_id"`
	Kind        id.TreatmentKind `json:"kind"`
	Date        time.Time        `json:"date"`
	DateText    string           `json:"-"`
	Description string           `json:"description"`
}

// Record draws one unit of req.Kind from the member's quota. Ledger failures are returned
// unchanged; on any failure no treatment exists and no quota was drawn.
func (r *Recorder) Record(ctx context.Context, subject access.Subject, req Request) (*ledgerservice.ConsumeResult, error) {
	ctx, span := r.tracer.Start(ctx, "treatment.Record", trace.WithAttributes(
		attribute.Int64("member.id", int64(req.MemberID)),
		attribute.Int64("operator.id", int64(subject.OperatorID)),
	))
	defer span.End()

	if _, err := r.authorizer.Check(ctx, subject, access.ActionRecordTreatment, access.MemberRef(req.MemberID)); err != nil {
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			r.emit(ctx, subject, req.MemberID, audit.EventAccessDenied, err)
		}
		return nil, err
	}
	if err := r.validate(ctx, &req); err != nil {
		return nil, err
	}

	res, err := r.ledger.Consume(ctx, ledgerservice.ConsumeRequest{
		MemberID:    req.MemberID,
		Kind:        req.Kind,
		Date:        req.Date,
		Description: req.Description,
	})
	if err != nil {
		r.emit(ctx, subject, req.MemberID, audit.EventTreatmentRejected, err)
		r.logger.InfoContext(ctx, "treatment rejected",
			"member_id", req.MemberID, "kind", req.Kind, "reason", dErrors.CodeOf(err))
		return nil, err
	}

	r.emit(ctx, subject, req.MemberID, audit.EventTreatmentRecorded, nil)
	r.logger.InfoContext(ctx, "treatment recorded",
		"member_id", req.MemberID,
		"kind", req.Kind,
		"treatment_id", res.Treatment.ID,
		"operator_id", subject.OperatorID,
	)
	return res, nil
}

func (r *Recorder) validate(ctx context.Context, req *Request) error {
	kind, err := id.ParseTreatmentKind(string(req.Kind))
	if err != nil {
		return err
	}
	req.Kind = kind
	plan := r.ledger.Plan()
	if req.Date.IsZero() && req.DateText != "" {
		if req.Date, err = plan.ParseDay(req.DateText); err != nil {
			return err
		}
	}
	if req.Date.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "treatment date is required")
	}
	if plan.LocalDay(req.Date).After(plan.LocalDay(requestcontext.Now(ctx))) {
		return dErrors.New(dErrors.CodeInvalidInput, "treatment date cannot be in the future")
	}
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "treatment description is required")
	}
	if utf8.RuneCountInString(req.Description) > MaxDescriptionLength {
		return dErrors.Newf(dErrors.CodeInvalidInput, "treatment description must be at most %d characters", MaxDescriptionLength)
	}
	return nil
}

func (r *Recorder) emit(ctx context.Context, subject access.Subject, memberID id.MemberID, action audit.AuditEvent, cause error) {
	if r.auditor == nil {
		return
	}
	event := audit.Event{OperatorID: subject.OperatorID, MemberID: memberID, Action: string(action)}
	if cause != nil {
		event.Decision = "denied"
		event.Reason = string(dErrors.CodeOf(cause))
	}
	if err := r.auditor.Emit(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
