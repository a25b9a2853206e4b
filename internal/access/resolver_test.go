package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
)

type fakeDirectory struct {
	members    map[id.MemberID]Placement
	structures map[id.StructureID]id.ZoneID
	lookups    int
}

func (f *fakeDirectory) MemberPlacement(_ context.Context, memberID id.MemberID) (Placement, error) {
	f.lookups++
	p, ok := f.members[memberID]
	if !ok {
		return Placement{}, dErrors.New(dErrors.CodeMemberNotFound, "member not found")
	}
	return p, nil
}

func (f *fakeDirectory) StructureZone(_ context.Context, structureID id.StructureID) (id.ZoneID, error) {
	f.lookups++
	z, ok := f.structures[structureID]
	if !ok {
		return 0, dErrors.New(dErrors.CodeNotFound, "structure not found")
	}
	return z, nil
}

type ResolverSuite struct {
	suite.Suite
	dir      *fakeDirectory
	resolver *Resolver
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.dir = &fakeDirectory{
		members: map[id.MemberID]Placement{
			memberInA1: {Zone: zoneA, Structure: structA1},
			102:        {Zone: zoneA, Structure: structA2},
			201:        {Zone: zoneB},
		},
		structures: map[id.StructureID]id.ZoneID{
			structA1: zoneA,
			structA2: zoneA,
		},
	}
	s.resolver = NewResolver(s.dir)
}

// =============================================================================
// Resolve
// =============================================================================

func (s *ResolverSuite) TestResolve() {
	ctx := context.Background()

	s.Run("member resolves to its structure and zone", func() {
		target, err := s.resolver.Resolve(ctx, MemberRef(memberInA1))
		s.Require().NoError(err)
		s.Equal(Target{Zone: zoneA, Structure: structA1, Member: memberInA1}, target)
	})

	s.Run("structure resolves to its zone", func() {
		target, err := s.resolver.Resolve(ctx, StructureRef(structA2))
		s.Require().NoError(err)
		s.Equal(Target{Zone: zoneA, Structure: structA2}, target)
	})

	s.Run("zone needs no lookup", func() {
		before := s.dir.lookups
		target, err := s.resolver.Resolve(ctx, ZoneRef(zoneB))
		s.Require().NoError(err)
		s.Equal(Target{Zone: zoneB}, target)
		s.Equal(before, s.dir.lookups)
	})

	s.Run("unknown member surfaces member_not_found", func() {
		_, err := s.resolver.Resolve(ctx, MemberRef(999))
		s.True(dErrors.HasCode(err, dErrors.CodeMemberNotFound))
	})
}

// =============================================================================
// Check
// =============================================================================

func (s *ResolverSuite) TestCheck() {
	ctx := context.Background()

	s.Run("agent in own structure", func() {
		_, err := s.resolver.Check(ctx, agent, ActionRecordTreatment, MemberRef(memberInA1))
		s.NoError(err)
	})

	s.Run("agent on neighbouring structure is forbidden", func() {
		_, err := s.resolver.Check(ctx, agent, ActionRecordTreatment, MemberRef(102))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("zone admin on other zone is forbidden", func() {
		_, err := s.resolver.Check(ctx, zoneAdmin, ActionViewMember, MemberRef(201))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("subject round trips through context", func() {
		got, ok := SubjectFromContext(WithSubject(ctx, agent))
		s.True(ok)
		s.Equal(agent, got)

		_, ok = SubjectFromContext(ctx)
		s.False(ok)
	})
}
