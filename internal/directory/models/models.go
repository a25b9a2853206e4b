package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"mutuelle/internal/access"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
)

const maxNameLength = 128

// Zone is an administrative health region. Its structures and members are
// found by querying on ZoneID; the zone row holds no lists of its own.
type Zone struct {
	ID            id.ZoneID     `json:"id"`
	Name          string        `json:"name"`
	ResponsibleID id.OperatorID `json:"responsible_operator_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Structure is a health facility within exactly one zone.
type Structure struct {
	ID        id.StructureID `json:"id"`
	ZoneID    id.ZoneID      `json:"zone_id"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Operator is a dashboard user. Scope carries the role and, through its
// concrete type, only the territory that role may reference.
type Operator struct {
	ID           id.OperatorID
	Name         string
	Email        string
	PasswordHash string
	Scope        access.Scope
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (o *Operator) Role() access.Role { return o.Scope.Role() }

func (o *Operator) Subject() access.Subject {
	return access.Subject{OperatorID: o.ID, Scope: o.Scope}
}

// Member is the directory side of a member: identity and placement. The
// entitlement state lives in the ledger under the same id.
//
// StructureID is optional; when set the structure belongs to ZoneID.
type Member struct {
	ID          id.MemberID    `json:"id"`
	Name        string         `json:"name"`
	ZoneID      id.ZoneID      `json:"zone_id"`
	StructureID id.StructureID `json:"structure_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (m *Member) Placement() access.Placement {
	return access.Placement{Zone: m.ZoneID, Structure: m.StructureID}
}

func NewZone(name string, responsible id.OperatorID, now time.Time) (*Zone, error) {
	name, err := validName("zone", name)
	if err != nil {
		return nil, err
	}
	return &Zone{Name: name, ResponsibleID: responsible, CreatedAt: now, UpdatedAt: now}, nil
}

func NewStructure(zoneID id.ZoneID, name string, now time.Time) (*Structure, error) {
	if zoneID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "structure requires a zone")
	}
	name, err := validName("structure", name)
	if err != nil {
		return nil, err
	}
	return &Structure{ZoneID: zoneID, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// NewOperator expects a normalized email and an already hashed password.
func NewOperator(name, email, passwordHash string, scope access.Scope, now time.Time) (*Operator, error) {
	name, err := validName("operator", name)
	if err != nil {
		return nil, err
	}
	if email == "" || passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "operator requires email and password")
	}
	if scope == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "operator requires a scope")
	}
	return &Operator{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Scope:        scope,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func NewMember(name string, zoneID id.ZoneID, structureID id.StructureID, now time.Time) (*Member, error) {
	name, err := validName("member", name)
	if err != nil {
		return nil, err
	}
	if zoneID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "member requires a zone")
	}
	return &Member{Name: name, ZoneID: zoneID, StructureID: structureID, CreatedAt: now, UpdatedAt: now}, nil
}

func validName(kind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s name is required", kind)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "%s name must be at most %d characters", kind, maxNameLength)
	}
	return name, nil
}
