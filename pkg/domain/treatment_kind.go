package domain

import dErrors "mutuelle/pkg/domain-errors"

// TreatmentKind identifies which quota a treatment draws from.
// Invariant: the value must be one of the supported kinds.
//
// Usage: construct via ParseTreatmentKind at trust boundaries; direct casting
// bypasses validation.
type TreatmentKind string

const (
	TreatmentHospitalization TreatmentKind = "hospitalization"
	TreatmentAmbulatory      TreatmentKind = "ambulatory"
)

func (k TreatmentKind) IsValid() bool {
	return k == TreatmentHospitalization || k == TreatmentAmbulatory
}

func (k TreatmentKind) String() string {
	return string(k)
}

// ParseTreatmentKind constructs a TreatmentKind from external input.
func ParseTreatmentKind(s string) (TreatmentKind, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "treatment kind is required")
	}
	k := TreatmentKind(s)
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "treatment kind must be 'hospitalization' or 'ambulatory'")
	}
	return k, nil
}
