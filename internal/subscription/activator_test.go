package subscription

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Authorizer,Ledger,Expirer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mutuelle/internal/access"
	ledger "mutuelle/internal/ledger/models"
	"mutuelle/internal/subscription/mocks"
	id "mutuelle/pkg/domain"
	dErrors "mutuelle/pkg/domain-errors"
	"mutuelle/pkg/platform/audit"
	"mutuelle/pkg/platform/audit/publisher"
	auditmemory "mutuelle/pkg/platform/audit/store/memory"
	"mutuelle/pkg/requestcontext"
)

// =============================================================================
// Activator Test Suite
// =============================================================================

type ActivatorSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	authorizer *mocks.MockAuthorizer
	ledger     *mocks.MockLedger
	audit      *auditmemory.InMemoryStore
	activator  *Activator
	ctx        context.Context
	now        time.Time
	zoneAdmin  access.Subject
}

func TestActivatorSuite(t *testing.T) {
	suite.Run(t, new(ActivatorSuite))
}

func (s *ActivatorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.authorizer = mocks.NewMockAuthorizer(s.ctrl)
	s.ledger = mocks.NewMockLedger(s.ctrl)
	s.ledger.EXPECT().Plan().Return(ledger.DefaultPlan()).AnyTimes()
	s.audit = auditmemory.NewInMemoryStore()
	s.now = time.Date(2026, 5, 2, 11, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.zoneAdmin = access.Subject{OperatorID: 4, Scope: access.ZoneScope{Zone: 1}}

	var err error
	s.activator, err = NewActivator(s.authorizer, s.ledger, WithAuditor(publisher.NewPublisher(s.audit)))
	s.Require().NoError(err)
}

func (s *ActivatorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ActivatorSuite) allow() {
	s.authorizer.EXPECT().
		Check(gomock.Any(), s.zoneAdmin, access.ActionRecordPayment, access.MemberRef(9)).
		Return(access.Target{Zone: 1, Member: 9}, nil)
}

func (s *ActivatorSuite) TestApplyPayment() {
	s.Run("defaults year and policy", func() {
		s.allow()
		s.ledger.EXPECT().
			Credit(gomock.Any(), id.MemberID(9), ledger.Payment{Year: 2026, Amount: 15000}, ledger.RenewalReset).
			Return(&ledger.Balance{MemberID: 9, Active: true, HospitalizationsRemaining: 3, AmbulatoryRemaining: 5}, nil)

		b, err := s.activator.ApplyPayment(s.ctx, s.zoneAdmin, PaymentRequest{MemberID: 9, Amount: 15000})
		s.Require().NoError(err)
		s.True(b.Active)

		events, err := s.audit.ListByAction(s.ctx, audit.EventPaymentApplied)
		s.Require().NoError(err)
		s.Len(events, 1)
	})

	s.Run("top up for next year", func() {
		paidAt := s.now.Add(-time.Hour)
		s.allow()
		s.ledger.EXPECT().
			Credit(gomock.Any(), id.MemberID(9), ledger.Payment{Year: 2027, Amount: 5000, PaidAt: paidAt}, ledger.RenewalTopUp).
			Return(&ledger.Balance{MemberID: 9, Active: true}, nil)

		_, err := s.activator.ApplyPayment(s.ctx, s.zoneAdmin, PaymentRequest{
			MemberID: 9, Amount: 5000, Year: 2027, PaidAt: paidAt, Policy: ledger.RenewalTopUp,
		})
		s.NoError(err)
	})

	s.Run("ledger failures propagate", func() {
		s.allow()
		s.ledger.EXPECT().Credit(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeBusy, "member record is busy"))

		_, err := s.activator.ApplyPayment(s.ctx, s.zoneAdmin, PaymentRequest{MemberID: 9, Amount: 100})
		s.Equal(dErrors.CodeBusy, dErrors.CodeOf(err))
	})
}

func (s *ActivatorSuite) TestAgentsCannotRegisterPayments() {
	agent := access.Subject{OperatorID: 5, Scope: access.StructureScope{Structure: 2}}
	s.authorizer.EXPECT().
		Check(gomock.Any(), agent, access.ActionRecordPayment, access.MemberRef(9)).
		Return(access.Target{}, access.Decision{Reason: access.ReasonRoleInsufficient}.Err())

	_, err := s.activator.ApplyPayment(s.ctx, agent, PaymentRequest{MemberID: 9, Amount: 15000})
	s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))

	events, err := s.audit.ListByAction(s.ctx, audit.EventAccessDenied)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *ActivatorSuite) TestValidation() {
	cases := []struct {
		name string
		req  PaymentRequest
	}{
		{"zero amount", PaymentRequest{MemberID: 9}},
		{"negative amount", PaymentRequest{MemberID: 9, Amount: -1}},
		{"year too old", PaymentRequest{MemberID: 9, Amount: 1, Year: 1999}},
		{"year too far ahead", PaymentRequest{MemberID: 9, Amount: 1, Year: 2028}},
		{"unknown policy", PaymentRequest{MemberID: 9, Amount: 1, Policy: "double"}},
		{"paid in the future", PaymentRequest{MemberID: 9, Amount: 1, PaidAt: time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.allow()
			_, err := s.activator.ApplyPayment(s.ctx, s.zoneAdmin, tc.req)
			s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
		})
	}
}
