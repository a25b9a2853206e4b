package httptransport

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"mutuelle/internal/access"
	dirmodels "mutuelle/internal/directory/models"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
)

// subjectFrom returns the operator RequireOperator authenticated.
func subjectFrom(r *http.Request) (access.Subject, error) {
	subject, ok := access.SubjectFromContext(r.Context())
	if !ok {
		return access.Subject{}, dErrors.New(dErrors.CodeUnauthorized, "authentication context missing")
	}
	return subject, nil
}

func memberIDParam(r *http.Request) (id.MemberID, error) {
	return id.ParseMemberID(chi.URLParam(r, "memberID"))
}

func zoneIDParam(r *http.Request) (id.ZoneID, error) {
	return id.ParseZoneID(chi.URLParam(r, "zoneID"))
}

func structureIDParam(r *http.Request) (id.StructureID, error) {
	return id.ParseStructureID(chi.URLParam(r, "structureID"))
}

// memberFilter reads the optional zone_id and structure_id query parameters.
func memberFilter(r *http.Request) (dirmodels.MemberFilter, error) {
	var f dirmodels.MemberFilter
	q := r.URL.Query()
	if v := q.Get("zone_id"); v != "" {
		zoneID, err := id.ParseZoneID(v)
		if err != nil {
			return f, err
		}
		f.ZoneID = zoneID
	}
	if v := q.Get("structure_id"); v != "" {
		structureID, err := id.ParseStructureID(v)
		if err != nil {
			return f, err
		}
		f.StructureID = structureID
	}
	return f, nil
}

func intQuery(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "%s must be a number", key)
	}
	return n, nil
}
