package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mutuelle/internal/access"
	dirmodels "mutuelle/internal/directory/models"
	dirservice "mutuelle/internal/directory/service"
	ledger "mutuelle/internal/ledger/models"
	ledgerservice "mutuelle/internal/ledger/service"
	"mutuelle/internal/subscription"
	"mutuelle/internal/treatment"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/platform/httputil"
	"mutuelle/pkg/requestcontext"
)

// paymentsShown is how many recent payments the member history returns by
// default.
const paymentsShown = 6

type MemberService interface {
	CreateMember(ctx context.Context, subject access.Subject, req dirservice.CreateMemberRequest) (*dirservice.CreateMemberResult, error)
	ListMembers(ctx context.Context, subject access.Subject, filter dirmodels.MemberFilter) ([]dirservice.MemberView, error)
	GetMember(ctx context.Context, subject access.Subject, memberID id.MemberID) (*dirmodels.Member, error)
	MemberBalance(ctx context.Context, subject access.Subject, memberID id.MemberID) (*ledger.Balance, error)
	MemberHistory(ctx context.Context, subject access.Subject, memberID id.MemberID, filter ledger.HistoryFilter) (*ledger.History, error)
}

type TreatmentRecorder interface {
	Record(ctx context.Context, subject access.Subject, req treatment.Request) (*ledgerservice.ConsumeResult, error)
}

type PaymentApplier interface {
	ApplyPayment(ctx context.Context, subject access.Subject, req subscription.PaymentRequest) (*ledger.Balance, error)
}

type MemberHandler struct {
	members    MemberService
	treatments TreatmentRecorder
	payments   PaymentApplier
	location   *time.Location
	logger     *slog.Logger
}

// NewMemberHandler builds the member routes. location is the plan time zone
// that picks the default history year.
func NewMemberHandler(members MemberService, treatments TreatmentRecorder, payments PaymentApplier, location *time.Location, logger *slog.Logger) *MemberHandler {
	if location == nil {
		location = time.UTC
	}
	return &MemberHandler{
		members:    members,
		treatments: treatments,
		payments:   payments,
		location:   location,
		logger:     logger,
	}
}

func (h *MemberHandler) Register(r chi.Router) {
	r.Post("/members", h.handleCreateMember)
	r.Get("/members", h.handleListMembers)
	r.Route("/members/{memberID}", func(r chi.Router) {
		r.Get("/", h.handleGetMember)
		r.Get("/balance", h.handleBalance)
		r.Get("/treatments", h.handleHistory)
		r.Post("/treatments", h.handleRecordTreatment)
		r.Post("/payments", h.handleApplyPayment)
	})
}

func (h *MemberHandler) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req dirservice.CreateMemberRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.members.CreateMember(r.Context(), subject, req)
	if err != nil {
		h.logFailure(r.Context(), "create member", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *MemberHandler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	filter, err := memberFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	views, err := h.members.ListMembers(r.Context(), subject, filter)
	if err != nil {
		h.logFailure(r.Context(), "list members", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (h *MemberHandler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	subject, memberID, ok := h.target(w, r)
	if !ok {
		return
	}
	m, err := h.members.GetMember(r.Context(), subject, memberID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *MemberHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	subject, memberID, ok := h.target(w, r)
	if !ok {
		return
	}
	b, err := h.members.MemberBalance(r.Context(), subject, memberID)
	if err != nil {
		h.logFailure(r.Context(), "get balance", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

// handleHistory serves ?month=1..12 (with an optional year, default the
// current plan year) and ?payments=N (default 6).
func (h *MemberHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	subject, memberID, ok := h.target(w, r)
	if !ok {
		return
	}
	filter, err := h.historyFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	history, err := h.members.MemberHistory(r.Context(), subject, memberID, filter)
	if err != nil {
		h.logFailure(r.Context(), "member history", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, history)
}

func (h *MemberHandler) historyFilter(r *http.Request) (ledger.HistoryFilter, error) {
	month, err := intQuery(r, "month")
	if err != nil {
		return ledger.HistoryFilter{}, err
	}
	year, err := intQuery(r, "year")
	if err != nil {
		return ledger.HistoryFilter{}, err
	}
	payments, err := intQuery(r, "payments")
	if err != nil {
		return ledger.HistoryFilter{}, err
	}
	if payments == 0 {
		payments = paymentsShown
	}
	filter := ledger.HistoryFilter{LastPayments: payments}
	if month != 0 {
		if year == 0 {
			year = requestcontext.Now(r.Context()).In(h.location).Year()
		}
		filter.Month = ledger.Month{Year: year, Month: time.Month(month)}
	}
	return filter, nil
}

type recordTreatmentRequest struct {
	Kind        string `json:"kind"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

func (h *MemberHandler) handleRecordTreatment(w http.ResponseWriter, r *http.Request) {
	subject, memberID, ok := h.target(w, r)
	if !ok {
		return
	}
	var body recordTreatmentRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.treatments.Record(r.Context(), subject, treatment.Request{
		MemberID:    memberID,
		Kind:        id.TreatmentKind(strings.TrimSpace(body.Kind)),
		DateText:    body.Date,
		Description: body.Description,
	})
	if err != nil {
		h.logFailure(r.Context(), "record treatment", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *MemberHandler) handleApplyPayment(w http.ResponseWriter, r *http.Request) {
	subject, memberID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req subscription.PaymentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !req.MemberID.IsNil() && req.MemberID != memberID {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "member_id does not match the URL"))
		return
	}
	req.MemberID = memberID
	b, err := h.payments.ApplyPayment(r.Context(), subject, req)
	if err != nil {
		h.logFailure(r.Context(), "apply payment", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *MemberHandler) target(w http.ResponseWriter, r *http.Request) (access.Subject, id.MemberID, bool) {
	subject, err := subjectFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return access.Subject{}, 0, false
	}
	memberID, err := memberIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return access.Subject{}, 0, false
	}
	return subject, memberID, true
}

func (h *MemberHandler) logFailure(ctx context.Context, op string, err error) {
	code := dErrors.CodeOf(err)
	if code != dErrors.CodeInternal && code != dErrors.CodeBusy {
		return
	}
	h.logger.ErrorContext(ctx, op+" failed",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
		"operator_id", requestcontext.OperatorID(ctx),
	)
}
