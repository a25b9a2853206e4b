package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mutuelle/internal/access"
	authservice "mutuelle/internal/auth/service"
	dirmodels "mutuelle/internal/directory/models"
	dirservice "mutuelle/internal/directory/service"
	id "mutuelle/pkg/domain"
	"mutuelle/pkg/platform/httputil"
)

// DirectoryService manages the territory and the operators working in it.
type DirectoryService interface {
	CreateZone(ctx context.Context, subject access.Subject, req dirservice.CreateZoneRequest) (*dirmodels.Zone, error)
	DeleteZone(ctx context.Context, subject access.Subject, zoneID id.ZoneID) error
	ListZones(ctx context.Context, subject access.Subject) ([]*dirmodels.Zone, error)
	ZoneSummary(ctx context.Context, subject access.Subject, zoneID id.ZoneID) (*dirmodels.ZoneSummary, error)
	CreateStructure(ctx context.Context, subject access.Subject, req dirservice.CreateStructureRequest) (*dirmodels.Structure, error)
	ListStructures(ctx context.Context, subject access.Subject, zoneID id.ZoneID) ([]*dirmodels.Structure, error)
	DeleteStructure(ctx context.Context, subject access.Subject, structureID id.StructureID) error
	CreateOperator(ctx context.Context, subject access.Subject, req dirservice.CreateOperatorRequest) (*dirmodels.Operator, error)
	ListOperators(ctx context.Context, subject access.Subject) ([]*dirmodels.Operator, error)
	PaymentsReport(ctx context.Context, subject access.Subject, filter dirmodels.MemberFilter) ([]dirmodels.PaymentLine, error)
}

type DirectoryHandler struct {
	directory DirectoryService
	logger    *slog.Logger
}

func NewDirectoryHandler(directory DirectoryService, logger *slog.Logger) *DirectoryHandler {
	return &DirectoryHandler{directory: directory, logger: logger}
}

func (h *DirectoryHandler) Register(r chi.Router) {
	r.Get("/zones", h.handleListZones)
	r.Post("/zones", h.handleCreateZone)
	r.Delete("/zones/{zoneID}", h.handleDeleteZone)
	r.Get("/zones/{zoneID}/summary", h.handleZoneSummary)
	r.Post("/zones/{zoneID}/structures", h.handleCreateStructure)
	r.Get("/structures", h.handleListStructures)
	r.Delete("/structures/{structureID}", h.handleDeleteStructure)
	r.Get("/operators", h.handleListOperators)
	r.Post("/operators", h.handleCreateOperator)
	r.Get("/payments", h.handlePaymentsReport)
}

func (h *DirectoryHandler) handleListZones(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	zones, err := h.directory.ListZones(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, zones)
}

func (h *DirectoryHandler) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req dirservice.CreateZoneRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	zone, err := h.directory.CreateZone(r.Context(), subject, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, zone)
}

func (h *DirectoryHandler) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	zoneID, err := zoneIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.directory.DeleteZone(r.Context(), subject, zoneID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DirectoryHandler) handleZoneSummary(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	zoneID, err := zoneIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summary, err := h.directory.ZoneSummary(r.Context(), subject, zoneID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *DirectoryHandler) handleCreateStructure(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	zoneID, err := zoneIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	st, err := h.directory.CreateStructure(r.Context(), subject, dirservice.CreateStructureRequest{ZoneID: zoneID, Name: body.Name})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, st)
}

// handleListStructures accepts an optional zone_id query parameter.
func (h *DirectoryHandler) handleListStructures(w http.ResponseWriter, r *http.Request) {
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
	structures, err := h.directory.ListStructures(r.Context(), subject, filter.ZoneID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if structures == nil {
		structures = []*dirmodels.Structure{}
	}
	httputil.WriteJSON(w, http.StatusOK, structures)
}

func (h *DirectoryHandler) handleDeleteStructure(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	structureID, err := structureIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.directory.DeleteStructure(r.Context(), subject, structureID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DirectoryHandler) handleCreateOperator(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req dirservice.CreateOperatorRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	op, err := h.directory.CreateOperator(r.Context(), subject, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, authservice.NewOperatorView(op))
}

func (h *DirectoryHandler) handleListOperators(w http.ResponseWriter, r *http.Request) {
	subject, err := subjectFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	operators, err := h.directory.ListOperators(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	views := make([]authservice.OperatorView, 0, len(operators))
	for _, op := range operators {
		views = append(views, authservice.NewOperatorView(op))
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (h *DirectoryHandler) handlePaymentsReport(w http.ResponseWriter, r *http.Request) {
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
	lines, err := h.directory.PaymentsReport(r.Context(), subject, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lines)
}
