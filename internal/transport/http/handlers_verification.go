package httptransport

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mutuelle/internal/access"
	"mutuelle/internal/verification"
	"mutuelle/pkg/platform/httputil"
)

// Scanner opens a scan session per request; the request context aborts it.
type Scanner interface {
	NewSession(subject access.Subject) *verification.Session
}

type VerificationHandler struct {
	scanner Scanner
	logger  *slog.Logger
}

func NewVerificationHandler(scanner Scanner, logger *slog.Logger) *VerificationHandler {
	return &VerificationHandler{scanner: scanner, logger: logger}
}

func (h *VerificationHandler) Register(r chi.Router) {
	r.Post("/verify", h.handleVerify)
}

var statusByOutcome = map[verification.Outcome]int{
	verification.OutcomeResolved:    http.StatusOK,
	verification.OutcomeNotFound:    http.StatusNotFound,
	verification.OutcomeReaderError: http.StatusUnprocessableEntity,
}

// handleVerify always answers with a verification result body when the
// scan itself completed, so terminals can tell an unreadable card from an
// unknown member. A client that leaves mid-scan gets nothing and the attempt
// is not recorded.
func (h *VerificationHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var c verification.Credential
	if err := httputil.DecodeJSON(r, &c); err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.scanner.NewSession(subject).Scan(r.Context(), verification.Presented(c))
	if errors.Is(err, verification.ErrAborted) {
		h.logger.InfoContext(r.Context(), "verification abandoned by client", "channel", c.Channel)
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status, ok := statusByOutcome[res.Outcome]
	if !ok {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, res)
}
