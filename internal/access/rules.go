package access

import dErrors "mutuelle/pkg/domain-errors"

// permitted lists what each role may do anywhere inside its scope.
var permitted = map[Role]map[Action]bool{
	RoleGlobalAdmin: {
		ActionViewMember:      true,
		ActionListMembers:     true,
		ActionRecordTreatment: true,
		ActionRecordPayment:   true,
		ActionCreateMember:    true,
		ActionViewZone:        true,
		ActionViewPayments:    true,
		ActionListStructures:  true,
		ActionListOperators:   true,
		ActionManageDirectory: true,
	},
	RoleZoneAdmin: {
		ActionViewMember:      true,
		ActionListMembers:     true,
		ActionRecordTreatment: true,
		ActionRecordPayment:   true,
		ActionCreateMember:    true,
		ActionViewZone:        true,
		ActionViewPayments:    true,
		ActionListStructures:  true,
		ActionListOperators:   true,
	},
	RoleStructureAgent: {
		ActionViewMember:      true,
		ActionListMembers:     true,
		ActionRecordTreatment: true,
		ActionListStructures:  true,
	},
}

func knownAction(a Action) bool {
	return permitted[RoleGlobalAdmin][a]
}

// Authorize decides whether subject may perform action on target.
// Pure function: no I/O, no side effects. The role check runs before the scope
// check, so an agent asking for a payment is told role_insufficient even for a
// member of its own structure.
//
// A subject without a recognised scope, or an action outside the catalogue, is
// a programming error and aborts through dErrors.Fault.
func Authorize(subject Subject, action Action, target Target) Decision {
	if !knownAction(action) {
		dErrors.Fault("authorize: unknown action %q", action)
	}

	switch sc := subject.Scope.(type) {
	case GlobalScope:
		return allow()
	case ZoneScope:
		if !permitted[RoleZoneAdmin][action] {
			return deny(ReasonRoleInsufficient)
		}
		if target.Zone.IsNil() || target.Zone != sc.Zone {
			return deny(ReasonOutOfScope)
		}
		return allow()
	case StructureScope:
		if !permitted[RoleStructureAgent][action] {
			return deny(ReasonRoleInsufficient)
		}
		if target.Structure.IsNil() || target.Structure != sc.Structure {
			return deny(ReasonOutOfScope)
		}
		return allow()
	default:
		dErrors.Fault("authorize: %s has no recognised scope (%T)", subject.OperatorID, subject.Scope)
		return Decision{}
	}
}
