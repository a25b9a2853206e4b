package verification

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"mutuelle/internal/access"
	dirmodels "mutuelle/internal/directory/models"
	ledger "mutuelle/internal/ledger/models"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/platform/audit"
	"mutuelle/pkg/platform/audit/publisher"
	auditmemory "mutuelle/pkg/platform/audit/store/memory"
)

type fakeMembers struct {
	members map[id.MemberID]*dirmodels.Member
	err     error
}

func (f *fakeMembers) GetMember(_ context.Context, subject access.Subject, memberID id.MemberID) (*dirmodels.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.members[memberID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeMemberNotFound, "member not found")
	}
	if sc, ok := subject.Scope.(access.StructureScope); ok && sc.Structure != m.StructureID {
		return nil, access.Decision{Reason: access.ReasonOutOfScope}.Err()
	}
	return m, nil
}

type fakeBalances map[id.MemberID]ledger.Balance

func (f fakeBalances) GetBalance(_ context.Context, memberID id.MemberID) (*ledger.Balance, error) {
	b, ok := f[memberID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeMemberNotFound, "member not found")
	}
	return &b, nil
}

type GatewaySuite struct {
	suite.Suite
	members  *fakeMembers
	registry *prometheus.Registry
	audit    *auditmemory.InMemoryStore
	gateway  *Gateway
	agent    access.Subject
	ctx      context.Context
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.ctx = context.Background()
	s.members = &fakeMembers{members: map[id.MemberID]*dirmodels.Member{
		42: {ID: 42, Name: "Awa", ZoneID: 1, StructureID: 10},
		43: {ID: 43, Name: "Binta", ZoneID: 1, StructureID: 11},
	}}
	balances := fakeBalances{
		42: {MemberID: 42, Active: true, HospitalizationsRemaining: 1, AmbulatoryRemaining: 2},
		43: {MemberID: 43},
	}
	s.registry = prometheus.NewRegistry()
	s.audit = auditmemory.NewInMemoryStore()

	var err error
	s.gateway, err = New(s.members, balances,
		WithMetrics(s.registry),
		WithAuditor(publisher.NewPublisher(s.audit)))
	s.Require().NoError(err)
	s.agent = access.Subject{OperatorID: 5, Scope: access.StructureScope{Structure: 10}}
}

func (s *GatewaySuite) TestChannelsResolveToTheSameMember() {
	creds := []Credential{
		{Channel: ChannelNFC, Records: []Record{{Kind: RecordMIME, MIMEType: "application/json", Data: []byte(`{"id":42}`)}}},
		{Channel: ChannelQR, Payload: "42"},
		{Channel: ChannelManual, Payload: "42"},
	}
	for _, c := range creds {
		res, err := s.gateway.Verify(s.ctx, s.agent, c)
		s.Require().NoError(err, c.Channel)
		s.Equal(OutcomeResolved, res.Outcome, c.Channel)
		s.Equal(id.MemberID(42), res.Member.ID)
		s.Equal(ledger.Balance{MemberID: 42, Active: true, HospitalizationsRemaining: 1, AmbulatoryRemaining: 2}, *res.Balance)
	}

	verified, err := s.audit.ListByAction(s.ctx, audit.EventMemberVerified)
	s.Require().NoError(err)
	s.Len(verified, 3)
	s.Equal(3.0, testutil.ToFloat64(s.gateway.outcomes.WithLabelValues("qr", "resolved"))+
		testutil.ToFloat64(s.gateway.outcomes.WithLabelValues("nfc", "resolved"))+
		testutil.ToFloat64(s.gateway.outcomes.WithLabelValues("manual", "resolved")))
}

func (s *GatewaySuite) TestReaderErrorIsNotNotFound() {
	res, err := s.gateway.Verify(s.ctx, s.agent, Credential{Channel: ChannelManual, Payload: "not-a-number"})
	s.Require().NoError(err)
	s.Equal(OutcomeReaderError, res.Outcome)
	s.Nil(res.Member)

	res, err = s.gateway.Verify(s.ctx, s.agent, Credential{Channel: ChannelManual, Payload: "999"})
	s.Require().NoError(err)
	s.Equal(OutcomeNotFound, res.Outcome)
	s.Equal(id.MemberID(999), res.MemberID)

	s.NotEqual(res.Message, dErrors.Message(dErrors.CodeReaderError))

	failed, err := s.audit.ListByAction(s.ctx, audit.EventVerificationFailed)
	s.Require().NoError(err)
	s.Len(failed, 2)
}

func (s *GatewaySuite) TestOutOfScopeMemberIsForbidden() {
	_, err := s.gateway.Verify(s.ctx, s.agent, Credential{Channel: ChannelQR, Payload: "43"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *GatewaySuite) TestInfrastructureFailurePropagates() {
	s.members.err = dErrors.Wrap(errors.New("dial tcp: refused"), dErrors.CodeInternal, "directory operation failed")
	_, err := s.gateway.Verify(s.ctx, s.agent, Credential{Channel: ChannelQR, Payload: "42"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *GatewaySuite) TestUnknownChannel() {
	_, err := s.gateway.Verify(s.ctx, s.agent, Credential{Channel: "sms", Payload: "42"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), fmt.Sprint(err))
}
