// Package access resolves which members, structures and zones an operator may
// act on, and for which actions.
//
// Authorize is a pure decision over an already-resolved Target. Resolver does
// the directory lookups that turn a member or structure reference into its
// zone before handing off to Authorize.
package access

import (
	"fmt"

	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
)

// Role is the operator's rank in the program hierarchy.
type Role string

const (
	RoleGlobalAdmin    Role = "global_admin"
	RoleZoneAdmin      Role = "zone_admin"
	RoleStructureAgent Role = "structure_agent"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleGlobalAdmin, RoleZoneAdmin, RoleStructureAgent:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole converts external input into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", s)
	}
	return r, nil
}

// Scope is the territory an operator is confined to. Exactly one of
// GlobalScope, ZoneScope or StructureScope.
type Scope interface {
	Role() Role
	isScope()
}

// GlobalScope covers every zone.
type GlobalScope struct{}

// ZoneScope confines a zone administrator to one zone.
type ZoneScope struct {
	Zone id.ZoneID
}

// StructureScope confines an agent to one health structure.
type StructureScope struct {
	Structure id.StructureID
}

func (GlobalScope) Role() Role    { return RoleGlobalAdmin }
func (ZoneScope) Role() Role      { return RoleZoneAdmin }
func (StructureScope) Role() Role { return RoleStructureAgent }

func (GlobalScope) isScope()    {}
func (ZoneScope) isScope()      {}
func (StructureScope) isScope() {}

// NewScope builds the scope for role. A zone administrator needs a zone and
// nothing else; a structure agent needs a structure and nothing else; a global
// administrator takes neither.
func NewScope(role Role, zone id.ZoneID, structure id.StructureID) (Scope, error) {
	switch role {
	case RoleGlobalAdmin:
		if !zone.IsNil() || !structure.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "global administrator cannot be bound to a zone or structure")
		}
		return GlobalScope{}, nil
	case RoleZoneAdmin:
		if zone.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "zone administrator requires a zone")
		}
		if !structure.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "zone administrator cannot be bound to a structure")
		}
		return ZoneScope{Zone: zone}, nil
	case RoleStructureAgent:
		if structure.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "structure agent requires a structure")
		}
		if !zone.IsNil() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "structure agent cannot be bound to a zone")
		}
		return StructureScope{Structure: structure}, nil
	default:
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", role)
	}
}

// ScopeIDs flattens a scope back into its zone and structure columns.
func ScopeIDs(scope Scope) (id.ZoneID, id.StructureID) {
	switch sc := scope.(type) {
	case ZoneScope:
		return sc.Zone, 0
	case StructureScope:
		return 0, sc.Structure
	}
	return 0, 0
}

// Subject is the authenticated operator as seen by authorization.
type Subject struct {
	OperatorID id.OperatorID
	Scope      Scope
}

func (s Subject) Role() Role {
	if s.Scope == nil {
		return ""
	}
	return s.Scope.Role()
}

func (s Subject) String() string {
	return fmt.Sprintf("operator %s (%s)", s.OperatorID, s.Role())
}

// Action is an operation an operator asks to perform.
type Action string

const (
	ActionViewMember      Action = "view_member"
	ActionListMembers     Action = "list_members"
	ActionRecordTreatment Action = "record_treatment"
	ActionRecordPayment   Action = "record_payment"
	ActionCreateMember    Action = "create_member"
	ActionViewZone        Action = "view_zone"
	ActionViewPayments    Action = "view_payments"
	ActionListStructures  Action = "list_structures"
	ActionListOperators   Action = "list_operators"
	ActionManageDirectory Action = "manage_directory"
)

// Target is what an action applies to, with member and structure references
// already resolved to their zone. Zero fields are absent.
type Target struct {
	Zone      id.ZoneID
	Structure id.StructureID
	Member    id.MemberID
}

// DenyReason explains a negative Decision.
type DenyReason string

const (
	ReasonOutOfScope       DenyReason = "out_of_scope"
	ReasonRoleInsufficient DenyReason = "role_insufficient"
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision                { return Decision{Allowed: true} }
func deny(reason DenyReason) Decision { return Decision{Reason: reason} }

// Err converts a denial into a forbidden error. It returns nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return dErrors.Newf(dErrors.CodeForbidden, "access denied: %s", d.Reason)
}
