// Package domain holds the typed identifiers shared by every module.
//
// Directory entities (zones, structures, operators, members) use positive
// numeric identifiers, matching the ids printed on member cards. Treatments
// are server-generated and use UUIDs.
package domain

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "mutuelle/pkg/domain-errors"
)

type (
	ZoneID      int64
	StructureID int64
	OperatorID  int64
	MemberID    int64
	TreatmentID uuid.UUID
)

// maxIDLength bounds numeric id input; int64 never needs more than 19 digits.
const maxIDLength = 19

func (id ZoneID) String() string      { return strconv.FormatInt(int64(id), 10) }
func (id StructureID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id OperatorID) String() string  { return strconv.FormatInt(int64(id), 10) }
func (id MemberID) String() string    { return strconv.FormatInt(int64(id), 10) }
func (id TreatmentID) String() string { return uuid.UUID(id).String() }

func (id TreatmentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *TreatmentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id ZoneID) IsNil() bool      { return id <= 0 }
func (id StructureID) IsNil() bool { return id <= 0 }
func (id OperatorID) IsNil() bool  { return id <= 0 }
func (id MemberID) IsNil() bool    { return id <= 0 }
func (id TreatmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// parsePositiveID accepts only ASCII decimal digits. Signs, spaces inside the
// number, and leading "+" are rejected so that card payloads cannot smuggle
// alternative spellings of the same id.
func parsePositiveID(kind, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "%s id is required", kind)
	}
	if !utf8.ValidString(s) || len(s) > maxIDLength {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s id", kind)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, dErrors.Newf(dErrors.CodeInvalidInput, "%s id must be numeric", kind)
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s id", kind)
	}
	return v, nil
}

func ParseZoneID(s string) (ZoneID, error) {
	v, err := parsePositiveID("zone", s)
	return ZoneID(v), err
}

func ParseStructureID(s string) (StructureID, error) {
	v, err := parsePositiveID("structure", s)
	return StructureID(v), err
}

func ParseOperatorID(s string) (OperatorID, error) {
	v, err := parsePositiveID("operator", s)
	return OperatorID(v), err
}

// ParseMemberID validates a member id taken from external input (URL path,
// card payload, manual entry).
func ParseMemberID(s string) (MemberID, error) {
	v, err := parsePositiveID("member", s)
	return MemberID(v), err
}

func ParseTreatmentID(s string) (TreatmentID, error) {
	if s == "" {
		return TreatmentID{}, dErrors.New(dErrors.CodeInvalidInput, "treatment id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return TreatmentID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid treatment id")
	}
	return TreatmentID(u), nil
}

// NewTreatmentID generates a fresh treatment identifier.
func NewTreatmentID() TreatmentID {
	return TreatmentID(uuid.New())
}
