package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
)

const (
	zoneA      id.ZoneID      = 1
	zoneB      id.ZoneID      = 2
	structA1   id.StructureID = 11
	structA2   id.StructureID = 12
	memberInA1 id.MemberID    = 101
)

var (
	global    = Subject{OperatorID: 1, Scope: GlobalScope{}}
	zoneAdmin = Subject{OperatorID: 2, Scope: ZoneScope{Zone: zoneA}}
	agent     = Subject{OperatorID: 3, Scope: StructureScope{Structure: structA1}}
)

func TestAuthorize(t *testing.T) {
	inA1 := Target{Zone: zoneA, Structure: structA1, Member: memberInA1}
	inA2 := Target{Zone: zoneA, Structure: structA2, Member: 102}
	zoneOnlyA := Target{Zone: zoneA, Member: 103}
	inB := Target{Zone: zoneB, Member: 201}

	tests := []struct {
		name    string
		subject Subject
		action  Action
		target  Target
		want    Decision
	}{
		{"global admin can pay anywhere", global, ActionRecordPayment, inB, allow()},
		{"global admin manages directory", global, ActionManageDirectory, Target{}, allow()},
		{"zone admin views member in zone", zoneAdmin, ActionViewMember, inA2, allow()},
		{"zone admin records treatment for zone-only member", zoneAdmin, ActionRecordTreatment, zoneOnlyA, allow()},
		{"zone admin pays in zone", zoneAdmin, ActionRecordPayment, inA1, allow()},
		{"zone admin outside zone", zoneAdmin, ActionViewMember, inB, deny(ReasonOutOfScope)},
		{"zone admin unscoped target", zoneAdmin, ActionListMembers, Target{}, deny(ReasonOutOfScope)},
		{"zone admin cannot manage directory", zoneAdmin, ActionManageDirectory, Target{Zone: zoneA}, deny(ReasonRoleInsufficient)},
		{"agent records treatment in own structure", agent, ActionRecordTreatment, inA1, allow()},
		{"agent views member in own structure", agent, ActionViewMember, inA1, allow()},
		{"agent other structure same zone", agent, ActionRecordTreatment, inA2, deny(ReasonOutOfScope)},
		{"agent zone-only member", agent, ActionViewMember, zoneOnlyA, deny(ReasonOutOfScope)},
		{"agent other zone", agent, ActionViewMember, inB, deny(ReasonOutOfScope)},
		{"agent cannot record payment even in scope", agent, ActionRecordPayment, inA1, deny(ReasonRoleInsufficient)},
		{"agent cannot view zone", agent, ActionViewZone, Target{Zone: zoneA}, deny(ReasonRoleInsufficient)},
		{"agent cannot create member", agent, ActionCreateMember, inA1, deny(ReasonRoleInsufficient)},
		{"agent lists own structure", agent, ActionListStructures, Target{Zone: zoneA, Structure: structA1}, allow()},
		{"agent cannot list operators", agent, ActionListOperators, Target{}, deny(ReasonRoleInsufficient)},
		{"zone admin lists operators of own zone", zoneAdmin, ActionListOperators, Target{Zone: zoneA}, allow()},
		{"zone admin lists structures of another zone", zoneAdmin, ActionListStructures, Target{Zone: zoneB}, deny(ReasonOutOfScope)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Authorize(tt.subject, tt.action, tt.target)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthorizeIsDeterministic(t *testing.T) {
	target := Target{Zone: zoneA, Structure: structA2, Member: 102}
	first := Authorize(agent, ActionRecordTreatment, target)
	for range 100 {
		assert.Equal(t, first, Authorize(agent, ActionRecordTreatment, target))
	}
}

func TestAuthorizeFaults(t *testing.T) {
	t.Run("subject without scope", func(t *testing.T) {
		assert.Panics(t, func() {
			Authorize(Subject{OperatorID: 9}, ActionViewMember, Target{Zone: zoneA})
		})
	})

	t.Run("unknown action", func(t *testing.T) {
		defer func() {
			fault, ok := dErrors.AsFault(recover())
			require.True(t, ok)
			assert.Contains(t, fault.Message, "unknown action")
		}()
		Authorize(global, Action("delete_everything"), Target{})
	})
}

func TestDecisionErr(t *testing.T) {
	assert.NoError(t, allow().Err())

	err := deny(ReasonOutOfScope).Err()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	assert.Contains(t, err.Error(), "out_of_scope")
}

func TestNewScope(t *testing.T) {
	t.Run("global admin takes no ids", func(t *testing.T) {
		sc, err := NewScope(RoleGlobalAdmin, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, GlobalScope{}, sc)

		_, err = NewScope(RoleGlobalAdmin, zoneA, 0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("zone admin requires exactly a zone", func(t *testing.T) {
		sc, err := NewScope(RoleZoneAdmin, zoneA, 0)
		require.NoError(t, err)
		assert.Equal(t, ZoneScope{Zone: zoneA}, sc)

		_, err = NewScope(RoleZoneAdmin, 0, 0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		_, err = NewScope(RoleZoneAdmin, zoneA, structA1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("structure agent requires exactly a structure", func(t *testing.T) {
		sc, err := NewScope(RoleStructureAgent, 0, structA1)
		require.NoError(t, err)
		assert.Equal(t, StructureScope{Structure: structA1}, sc)

		_, err = NewScope(RoleStructureAgent, zoneA, structA1)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := NewScope(Role("superuser"), 0, 0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("scope ids round trip", func(t *testing.T) {
		z, s := ScopeIDs(ZoneScope{Zone: zoneA})
		assert.Equal(t, zoneA, z)
		assert.True(t, s.IsNil())
		z, s = ScopeIDs(StructureScope{Structure: structA1})
		assert.True(t, z.IsNil())
		assert.Equal(t, structA1, s)
	})
}
